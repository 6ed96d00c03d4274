// Package hub is the session registry. It creates sessions, indexes players
// to the session they belong to, keeps the public listing, and is the entry
// point for every client-initiated operation.
package hub

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/mailbox"
	"github.com/DoyleJ11/tabletop-backend/internal/session"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// Transport delivers to one connection or to every connection.
type Transport interface {
	session.Sender
	Broadcast(m types.Message) int
}

// Recorder archives ranked results.
type Recorder interface {
	Record(ctx context.Context, sessionID string, finishedAt time.Time, res engine.Result) error
}

type Options struct {
	DefaultDuration   int
	MinDuration       int
	MaxDuration       int
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	RecordTimeout     time.Duration
	Session           session.Options
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = 30
	}
	if o.MinDuration <= 0 {
		o.MinDuration = 15
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 120
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 10 * time.Second
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = 5 * time.Second
	}
	if o.Session.HeartbeatTimeout <= 0 {
		o.Session.HeartbeatTimeout = 2 * o.HeartbeatInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Session.Now == nil {
		o.Session.Now = o.Now
	}
	return o
}

// Hub guards its maps with a mutex instead of running as an actor: sessions
// report back through hooks on their own goroutines, and the lock is never
// held while waiting on a session.
type Hub struct {
	ctx       context.Context
	cancel    context.CancelFunc
	opts      Options
	transport Transport
	recorder  Recorder
	log       *zap.Logger
	records   sync.WaitGroup

	mu        sync.RWMutex
	sessions  map[string]*session.Session
	byPlayer  map[string]string
	summaries map[string]types.SessionInfo
}

// NewHub builds a registry. recorder may be nil.
func NewHub(parent context.Context, opts Options, transport Transport, recorder Recorder, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	return &Hub{
		ctx:       ctx,
		cancel:    cancel,
		opts:      opts.withDefaults(),
		transport: transport,
		recorder:  recorder,
		log:       log,
		sessions:  make(map[string]*session.Session),
		byPlayer:  make(map[string]string),
		summaries: make(map[string]types.SessionInfo),
	}
}

type CreateRequest struct {
	Name            string
	Color           string
	DurationMinutes int
	ConnID          string
}

func (h *Hub) Create(ctx context.Context, req CreateRequest) (types.Admission, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return types.Admission{}, fmt.Errorf("%w: player_name is required", engine.ErrInvalidParameter)
	}
	color, err := engine.ParseColor(req.Color)
	if err != nil {
		return types.Admission{}, err
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = h.opts.DefaultDuration
	}
	if duration < h.opts.MinDuration || duration > h.opts.MaxDuration {
		return types.Admission{}, fmt.Errorf("%w: duration_minutes must be between %d and %d",
			engine.ErrInvalidParameter, h.opts.MinDuration, h.opts.MaxDuration)
	}

	sessionID, playerID := uuid.NewString(), uuid.NewString()
	host := engine.NewPlayer(playerID, name, color, req.ConnID, h.opts.Now())
	s := session.New(h.ctx, session.Params{ID: sessionID, DurationMinutes: duration, Host: host},
		h.opts.Session, h.transport, hooks{h}, h.log.Named("session"))

	h.mu.Lock()
	h.sessions[sessionID] = s
	h.byPlayer[playerID] = sessionID
	h.mu.Unlock()

	h.log.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("host_id", playerID),
		zap.Int("duration_minutes", duration))

	v, err := s.View(ctx)
	if err != nil {
		return types.Admission{}, err
	}
	adm := types.Admission{Type: types.OutSessionCreated, Session: v.Info, PlayerID: playerID}
	if len(v.Info.Players) > 0 {
		adm.PlayerInfo = v.Info.Players[0]
	}
	return adm, nil
}

type JoinRequest struct {
	SessionID string
	Name      string
	Color     string
	ConnID    string
}

func (h *Hub) Join(ctx context.Context, req JoinRequest) (types.Admission, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return types.Admission{}, fmt.Errorf("%w: player_name is required", engine.ErrInvalidParameter)
	}
	s, err := h.session(req.SessionID)
	if err != nil {
		return types.Admission{}, err
	}
	return s.Join(ctx, session.JoinRequest{
		PlayerID: uuid.NewString(),
		Name:     name,
		Color:    req.Color,
		ConnID:   req.ConnID,
	})
}

func (h *Hub) Leave(ctx context.Context, playerID string) error {
	s, err := h.lookup("", playerID)
	if err != nil {
		return err
	}
	return s.Leave(ctx, playerID)
}

// List returns the discoverable sessions: Waiting or Starting, not past
// expiry and not full. It never touches a session goroutine.
func (h *Hub) List() []types.SessionInfo {
	now := h.opts.Now()
	h.mu.RLock()
	out := make([]types.SessionInfo, 0, len(h.summaries))
	for _, info := range h.summaries {
		if !info.State.Discoverable() || !now.Before(info.ExpiresAt) || len(info.Players) >= info.MaxPlayers {
			continue
		}
		out = append(out, info)
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b types.SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (h *Hub) Start(ctx context.Context, playerID string) error {
	s, err := h.lookup("", playerID)
	if err != nil {
		return err
	}
	return s.Start(ctx, playerID)
}

func (h *Hub) EndTurn(ctx context.Context, sessionID, playerID string) error {
	s, err := h.lookup(sessionID, playerID)
	if err != nil {
		return err
	}
	return s.EndTurn(ctx, playerID)
}

func (h *Hub) Act(ctx context.Context, playerID, actionType string, data json.RawMessage) (engine.ActionOutcome, error) {
	s, err := h.lookup("", playerID)
	if err != nil {
		return engine.ActionOutcome{}, err
	}
	return s.Act(ctx, playerID, actionType, data)
}

func (h *Hub) UpdateScore(ctx context.Context, sessionID, playerID string, score int) error {
	s, err := h.lookup(sessionID, playerID)
	if err != nil {
		return err
	}
	return s.UpdateScore(ctx, playerID, score)
}

// Heartbeat refreshes playerID and rebinds it to connID.
func (h *Hub) Heartbeat(ctx context.Context, playerID, connID string) error {
	s, err := h.lookup("", playerID)
	if err != nil {
		return err
	}
	return s.Heartbeat(ctx, playerID, connID, h.opts.Now())
}

func (h *Hub) StoreCard(ctx context.Context, req session.StoreRequest) (types.CardStored, error) {
	s, err := h.lookup("", req.SenderID)
	if err != nil {
		return types.CardStored{}, err
	}
	return s.StoreCard(ctx, req)
}

func (h *Hub) FetchCards(ctx context.Context, playerID, color string) (types.Cards, error) {
	s, err := h.lookup("", playerID)
	if err != nil {
		return types.Cards{}, err
	}
	return s.FetchCards(ctx, playerID, color)
}

func (h *Hub) DrawReserve(ctx context.Context, playerID, category string) (*mailbox.Item, error) {
	s, err := h.lookup("", playerID)
	if err != nil {
		return nil, err
	}
	return s.DrawReserve(ctx, playerID, category)
}

// SessionOf reports which session playerID belongs to.
func (h *Hub) SessionOf(playerID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byPlayer[playerID]
	return id, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close stops every session and waits for them and for pending archive
// writes, or for ctx.
func (h *Hub) Close(ctx context.Context) error {
	h.cancel()

	h.mu.RLock()
	live := make([]*session.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		live = append(live, s)
	}
	h.mu.RUnlock()

	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		h.records.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) session(id string) (*session.Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", engine.ErrNotFound, id)
	}
	return s, nil
}

// lookup resolves playerID to its session. A non-empty sessionID must agree
// with the index.
func (h *Hub) lookup(sessionID, playerID string) (*session.Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byPlayer[playerID]
	if !ok || (sessionID != "" && sessionID != id) {
		return nil, fmt.Errorf("%w: player %s is not in a session", engine.ErrNotFound, playerID)
	}
	s, ok := h.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", engine.ErrNotFound, id)
	}
	return s, nil
}

func (h *Hub) publishList() {
	if failed := h.transport.Broadcast(types.SessionsList{Type: types.OutSessionsListUpdate, Sessions: h.List()}); failed > 0 {
		h.log.Debug("sessions list update not delivered everywhere", zap.Int("failed", failed))
	}
}
