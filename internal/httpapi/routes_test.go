package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

type staticLister []types.SessionInfo

func (s staticLister) List() []types.SessionInfo { return s }

func TestRoutes(t *testing.T) {
	sessions := staticLister{{ID: "s1", State: engine.StateWaiting, MaxPlayers: 4}}
	socket := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := SetupRoutes(sessions, socket)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/sessions", http.StatusOK},
		{http.MethodGet, "/ws", http.StatusTeapot},
		{http.MethodPost, "/sessions", http.StatusMethodNotAllowed},
		{http.MethodGet, "/lobbies", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestListSessions_Body(t *testing.T) {
	sessions := staticLister{{ID: "s1", State: engine.StateWaiting, MaxPlayers: 4}}
	rec := httptest.NewRecorder()
	ListSessions(sessions)(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body types.SessionsList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.OutSessionsList, body.Type)
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "s1", body.Sessions[0].ID)
}
