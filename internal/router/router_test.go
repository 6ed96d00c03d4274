package router

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

func recvFrame(t *testing.T, ch <-chan []byte) map[string]any {
	t.Helper()
	select {
	case data, ok := <-ch:
		require.True(t, ok, "outbox closed unexpectedly")
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func TestRouter_SendToRegistered(t *testing.T) {
	r := New(2, zaptest.NewLogger(t))
	out := r.Register("c1")

	require.NoError(t, r.Send("c1", types.TimerSync{Type: types.OutTimerSync, TimeRemaining: 42}))
	m := recvFrame(t, out)
	assert.Equal(t, "timer_sync", m["type"])
	assert.EqualValues(t, 42, m["time_remaining"])
}

func TestRouter_SendUnknownIsClosed(t *testing.T) {
	r := New(2, zaptest.NewLogger(t))
	err := r.Send("nobody", types.TimerSync{Type: types.OutTimerSync})
	require.ErrorIs(t, err, ErrClosed)
	assert.False(t, Retryable(err))
}

func TestRouter_FullOutboxIsBackpressure(t *testing.T) {
	r := New(1, zaptest.NewLogger(t))
	r.Register("c1")

	require.NoError(t, r.Send("c1", types.TimerSync{Type: types.OutTimerSync}))
	err := r.Send("c1", types.TimerSync{Type: types.OutTimerSync})
	require.ErrorIs(t, err, ErrBackpressure)
	assert.True(t, Retryable(err))
}

func TestRouter_UnregisterClosesOutbox(t *testing.T) {
	r := New(1, zaptest.NewLogger(t))
	out := r.Register("c1")
	r.Unregister("c1")

	_, ok := <-out
	assert.False(t, ok)
	assert.False(t, r.Connected("c1"))
	assert.Zero(t, r.Len())
}

func TestRouter_BroadcastIsolatesSlowClients(t *testing.T) {
	r := New(1, zaptest.NewLogger(t))
	slow := r.Register("slow")
	fast := r.Register("fast")
	require.NoError(t, r.Send("slow", types.TimerSync{Type: types.OutTimerSync}))

	failed := r.Broadcast(types.SessionsList{Type: types.OutSessionsListUpdate})
	assert.Equal(t, 1, failed)
	assert.Equal(t, "sessions_list_update", recvFrame(t, fast)["type"])
	assert.Equal(t, "timer_sync", recvFrame(t, slow)["type"])
}
