package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/session"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakeTransport struct {
	mu    sync.Mutex
	sent  map[string][]types.Message
	lists []types.SessionsList
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: map[string][]types.Message{}}
}

func (f *fakeTransport) Send(conn string, m types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[conn] = append(f.sent[conn], m)
	return nil
}

func (f *fakeTransport) Broadcast(m types.Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := m.(types.SessionsList); ok {
		f.lists = append(f.lists, l)
	}
	return 0
}

func (f *fakeTransport) lastList() (types.SessionsList, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lists) == 0 {
		return types.SessionsList{}, false
	}
	return f.lists[len(f.lists)-1], true
}

type recorded struct {
	sessionID string
	res       engine.Result
}

type fakeRecorder struct{ got chan recorded }

func (f *fakeRecorder) Record(_ context.Context, sessionID string, _ time.Time, res engine.Result) error {
	f.got <- recorded{sessionID: sessionID, res: res}
	return nil
}

type fixture struct {
	h         *Hub
	transport *fakeTransport
	recorder  *fakeRecorder
	clock     *clock
	t0        time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	t0 := time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
	clk := &clock{t: t0}
	opts.Now = clk.Now
	if opts.Session.TickInterval == 0 {
		opts.Session.TickInterval = time.Hour
	}
	f := &fixture{transport: newFakeTransport(), recorder: &fakeRecorder{got: make(chan recorded, 4)}, clock: clk, t0: t0}
	f.h = NewHub(context.Background(), opts, f.transport, f.recorder, zaptest.NewLogger(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, f.h.Close(ctx))
	})
	return f
}

func (f *fixture) create(t *testing.T, name, color string) types.Admission {
	t.Helper()
	adm, err := f.h.Create(context.Background(), CreateRequest{Name: name, Color: color, ConnID: "c-" + name})
	require.NoError(t, err)
	return adm
}

func (f *fixture) join(t *testing.T, sessionID, name string) types.Admission {
	t.Helper()
	adm, err := f.h.Join(context.Background(), JoinRequest{SessionID: sessionID, Name: name, ConnID: "c-" + name})
	require.NoError(t, err)
	return adm
}

func recvRecord(t *testing.T, ch <-chan recorded) recorded {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for archived result")
		return recorded{}
	}
}

func TestCreate_Validation(t *testing.T) {
	cases := []struct {
		name     string
		req      CreateRequest
		wantErr  error
		duration int
	}{
		{name: "below floor", req: CreateRequest{Name: "ann", Color: "red", DurationMinutes: 10}, wantErr: engine.ErrInvalidParameter},
		{name: "above ceiling", req: CreateRequest{Name: "ann", Color: "red", DurationMinutes: 121}, wantErr: engine.ErrInvalidParameter},
		{name: "bad color", req: CreateRequest{Name: "ann", Color: "pink", DurationMinutes: 30}, wantErr: engine.ErrInvalidParameter},
		{name: "missing color", req: CreateRequest{Name: "ann", DurationMinutes: 30}, wantErr: engine.ErrInvalidParameter},
		{name: "missing name", req: CreateRequest{Name: "  ", Color: "red", DurationMinutes: 30}, wantErr: engine.ErrInvalidParameter},
		{name: "floor is inclusive", req: CreateRequest{Name: "ann", Color: "red", DurationMinutes: 15}, duration: 15},
		{name: "ceiling is inclusive", req: CreateRequest{Name: "ann", Color: "red", DurationMinutes: 120}, duration: 120},
		{name: "zero means default", req: CreateRequest{Name: "ann", Color: "green"}, duration: 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			adm, err := f.h.Create(context.Background(), tc.req)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Zero(t, f.h.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.OutSessionCreated, adm.Type)
			assert.Equal(t, tc.duration, adm.Session.DurationMinutes)
			assert.Equal(t, adm.PlayerID, adm.Session.HostID)
			assert.Equal(t, adm.PlayerID, adm.PlayerInfo.ID)
			assert.True(t, adm.PlayerInfo.IsHost)
			assert.Equal(t, engine.StateWaiting, adm.Session.State)
			assert.Equal(t, f.t0.Add(time.Minute), adm.Session.WaitingDeadline)
			assert.Equal(t, f.t0.Add(time.Duration(tc.duration)*time.Minute), adm.Session.ExpiresAt)
		})
	}
}

func TestJoin_IndexesPlayerAndUpdatesListing(t *testing.T) {
	f := newFixture(t, Options{})
	created := f.create(t, "ann", "blue")
	sid := created.Session.ID

	joined := f.join(t, sid, "bob")
	assert.Equal(t, engine.ColorRed, joined.PlayerInfo.Color)

	got, ok := f.h.SessionOf(joined.PlayerID)
	require.True(t, ok)
	assert.Equal(t, sid, got)

	require.Eventually(t, func() bool {
		l, ok := f.transport.lastList()
		return ok && len(l.Sessions) == 1 && len(l.Sessions[0].Players) == 2
	}, time.Second, 5*time.Millisecond)

	_, err := f.h.Join(context.Background(), JoinRequest{SessionID: "nope", Name: "eve"})
	require.ErrorIs(t, err, engine.ErrNotFound)

	_, err = f.h.Join(context.Background(), JoinRequest{SessionID: sid, Name: ""})
	require.ErrorIs(t, err, engine.ErrInvalidParameter)
}

func TestList_HidesFullAndPlayingSessions(t *testing.T) {
	f := newFixture(t, Options{})
	full := f.create(t, "ann", "red")
	for _, n := range []string{"b", "c", "d"} {
		f.join(t, full.Session.ID, n)
	}

	playing := f.create(t, "zed", "red")
	f.join(t, playing.Session.ID, "yan")
	require.NoError(t, f.h.Start(context.Background(), playing.PlayerID))

	open := f.create(t, "kim", "yellow")

	require.Eventually(t, func() bool {
		list := f.h.List()
		return len(list) == 1 && list[0].ID == open.Session.ID
	}, time.Second, 5*time.Millisecond)
}

func TestLeave_LastPlayerDestroysAfterGrace(t *testing.T) {
	f := newFixture(t, Options{Session: session.Options{EmptyGrace: 20 * time.Millisecond}})
	adm := f.create(t, "ann", "red")
	ctx := context.Background()

	require.NoError(t, f.h.Leave(ctx, adm.PlayerID))
	_, ok := f.h.SessionOf(adm.PlayerID)
	assert.False(t, ok)
	require.ErrorIs(t, f.h.Leave(ctx, adm.PlayerID), engine.ErrNotFound)

	require.Eventually(t, func() bool { return f.h.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.h.List())
	require.Eventually(t, func() bool {
		l, ok := f.transport.lastList()
		return ok && len(l.Sessions) == 0
	}, time.Second, 5*time.Millisecond)

	_, err := f.h.Join(ctx, JoinRequest{SessionID: adm.Session.ID, Name: "late"})
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSweepHeartbeats_EvictsSilentPlayer(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: 30 * time.Second})
	host := f.create(t, "ann", "red")
	guest := f.join(t, host.Session.ID, "bob")
	ctx := context.Background()

	f.clock.Set(f.t0.Add(40 * time.Second))
	require.NoError(t, f.h.Heartbeat(ctx, host.PlayerID, ""))
	f.h.SweepHeartbeats(ctx, f.t0.Add(59*time.Second))
	_, ok := f.h.SessionOf(guest.PlayerID)
	assert.True(t, ok)

	f.h.SweepHeartbeats(ctx, f.t0.Add(61*time.Second))
	require.Eventually(t, func() bool {
		_, ok := f.h.SessionOf(guest.PlayerID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	_, ok = f.h.SessionOf(host.PlayerID)
	assert.True(t, ok)

	require.ErrorIs(t, f.h.Heartbeat(ctx, guest.PlayerID, "c-new"), engine.ErrNotFound)
}

func TestSweepDeadlines_StartsLoneHostSolo(t *testing.T) {
	f := newFixture(t, Options{})
	adm := f.create(t, "ann", "red")
	ctx := context.Background()

	f.h.SweepDeadlines(ctx, f.t0.Add(61*time.Second))

	require.Eventually(t, func() bool { return len(f.h.List()) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.h.EndTurn(ctx, adm.Session.ID, adm.PlayerID))
	require.ErrorIs(t, f.h.EndTurn(ctx, "other-session", adm.PlayerID), engine.ErrNotFound)
}

func TestSweepDeadlines_ExpiryArchivesRanking(t *testing.T) {
	f := newFixture(t, Options{Session: session.Options{FinishGrace: 10 * time.Millisecond}})
	host := f.create(t, "ann", "red")
	guest := f.join(t, host.Session.ID, "bob")
	ctx := context.Background()

	require.NoError(t, f.h.Start(ctx, host.PlayerID))
	_, err := f.h.Act(ctx, guest.PlayerID, engine.ActionBuyCard, json.RawMessage(`{"cost":100}`))
	require.NoError(t, err)

	f.h.SweepDeadlines(ctx, f.t0.Add(30*time.Minute))

	rec := recvRecord(t, f.recorder.got)
	assert.Equal(t, host.Session.ID, rec.sessionID)
	assert.Equal(t, host.PlayerID, rec.res.Winner.PlayerID)
	require.Len(t, rec.res.Rankings, 2)
	assert.Equal(t, 900, rec.res.Rankings[1].Balance)

	require.Eventually(t, func() bool { return f.h.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMailboxOperationsRouteByPlayer(t *testing.T) {
	f := newFixture(t, Options{})
	host := f.create(t, "ann", "red")
	guest := f.join(t, host.Session.ID, "bob")
	ctx := context.Background()

	stored, err := f.h.StoreCard(ctx, session.StoreRequest{
		SenderID:    host.PlayerID,
		TargetColor: string(guest.PlayerInfo.Color),
		Payload:     json.RawMessage(`{"category":"actions"}`),
	})
	require.NoError(t, err)
	assert.True(t, stored.Delivered)

	got, err := f.h.FetchCards(ctx, guest.PlayerID, "")
	require.NoError(t, err)
	assert.Equal(t, guest.PlayerInfo.Color, got.Color)
	require.Len(t, got.Cards, 1)

	card, err := f.h.DrawReserve(ctx, guest.PlayerID, "events")
	require.NoError(t, err)
	assert.Nil(t, card)

	require.NoError(t, f.h.UpdateScore(ctx, "", guest.PlayerID, 50))
	_, err = f.h.FetchCards(ctx, "ghost", "")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Millisecond, SweepInterval: time.Millisecond})
	f.create(t, "ann", "red")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.h.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
