package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// Lister is satisfied by the hub.
type Lister interface {
	List() []types.SessionInfo
}

func ListSessions(l Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.SessionsList{Type: types.OutSessionsList, Sessions: l.List()})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
