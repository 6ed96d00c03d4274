// Package session runs one goroutine per game session. The goroutine owns
// the roster, turn order, mailbox, lifecycle state and countdown; every
// mutation, including those driven by timers and sweeps, arrives as a
// message on its inbox.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/mailbox"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// ErrGone is returned by requests to a session whose goroutine has exited.
var ErrGone = fmt.Errorf("%w: session closed", engine.ErrNotFound)

// Sender delivers a message to one connection.
type Sender interface {
	Send(connID string, m types.Message) error
}

// Hooks lets the registry mirror session changes. Hooks run on the session
// goroutine and must not call back into the session.
type Hooks interface {
	PlayerAdded(sessionID, playerID string)
	PlayerRemoved(sessionID, playerID string)
	Changed(info types.SessionInfo)
	Finished(sessionID string, res engine.Result)
	Destroyed(sessionID string)
}

type Options struct {
	MaxPlayers       int
	WaitingTimeout   time.Duration
	HeartbeatTimeout time.Duration
	EmptyGrace       time.Duration
	FinishGrace      time.Duration
	TickInterval     time.Duration
	SendAttempts     int
	RetryBackoff     time.Duration
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = 4
	}
	if o.WaitingTimeout <= 0 {
		o.WaitingTimeout = time.Minute
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = time.Minute
	}
	if o.EmptyGrace <= 0 {
		o.EmptyGrace = 30 * time.Second
	}
	if o.FinishGrace <= 0 {
		o.FinishGrace = 5 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.SendAttempts <= 0 {
		o.SendAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Params struct {
	ID              string
	DurationMinutes int
	Host            *engine.Player
}

type Session struct {
	id      string
	inbox   chan Msg
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	opts    Options
	sender  Sender
	hooks   Hooks
	log     *zap.Logger
	created time.Time

	// Everything below is owned by loop.
	state           engine.State
	hostID          string
	players         map[string]*engine.Player
	order           engine.TurnOrder
	mail            *mailbox.Mailbox
	durationMinutes int
	expiresAt       time.Time
	waitingDeadline time.Time
	emptySince      time.Time
	remaining       int
	timer           countdown
}

// New starts a Waiting session with p.Host as its only member.
func New(parent context.Context, p Params, opts Options, sender Sender, hooks Hooks, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()
	now := opts.Now()

	s := &Session{
		id:              p.ID,
		inbox:           make(chan Msg, 64),
		done:            make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
		opts:            opts,
		sender:          sender,
		hooks:           hooks,
		log:             log.With(zap.String("session_id", p.ID)),
		created:         now,
		state:           engine.StateWaiting,
		hostID:          p.Host.ID,
		players:         map[string]*engine.Player{p.Host.ID: p.Host},
		mail:            mailbox.New(),
		durationMinutes: p.DurationMinutes,
		expiresAt:       now.Add(time.Duration(p.DurationMinutes) * time.Minute),
		waitingDeadline: now.Add(opts.WaitingTimeout),
	}
	s.order.Add(p.Host.ID)

	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop terminates the session without notifying the registry.
func (s *Session) Stop() { s.cancel() }

// Inbox exposes the raw message channel.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	defer close(s.done)
	s.hooks.Changed(s.info())
	for {
		select {
		case <-s.ctx.Done():
			s.stopTimer()
			return
		case m := <-s.inbox:
			if s.dispatch(m) {
				return
			}
		}
	}
}

func (s *Session) dispatch(m Msg) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session handler panic",
				zap.Any("panic", r),
				zap.String("msg", fmt.Sprintf("%T", m)))
			if f, ok := m.(failer); ok {
				f.fail(fmt.Errorf("internal error handling %T", m))
			}
			stop = false
		}
	}()
	return s.handle(m)
}

func (s *Session) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		msg.Reply.send(s.join(msg))
	case Leave:
		msg.Reply.send(struct{}{}, s.removePlayer(msg.PlayerID, "left"))
	case Start:
		msg.Reply.send(struct{}{}, s.start(msg.PlayerID))
	case EndTurn:
		msg.Reply.send(struct{}{}, s.endTurn(msg.PlayerID))
	case Action:
		msg.Reply.send(s.act(msg))
	case UpdateScore:
		msg.Reply.send(struct{}{}, s.updateScore(msg.PlayerID, msg.Score))
	case Heartbeat:
		msg.Reply.send(struct{}{}, s.heartbeat(msg))
	case StoreCard:
		msg.Reply.send(s.storeCard(msg))
	case FetchCards:
		msg.Reply.send(s.fetchCards(msg))
	case DrawReserve:
		msg.Reply.send(s.drawReserve(msg))
	case EvictStale:
		s.evictStale(msg.Now)
	case CheckDeadlines:
		s.checkDeadlines(msg.Now)
	case GetState:
		msg.Reply.send(s.view(), nil)
	case timerTick:
		s.onTick(msg)
	case emptyCheck:
		if len(s.players) == 0 && s.emptySince.Equal(msg.since) {
			s.log.Info("destroying empty session", zap.Duration("grace", s.opts.EmptyGrace))
			s.destroy()
			return true
		}
	case sendFailed:
		if p, ok := s.players[msg.playerID]; ok && p.ConnID == msg.connID {
			p.Connected = false
		}
	case destroyNow:
		s.destroy()
		return true
	case Shutdown:
		s.stopTimer()
		s.cancel()
		return true
	}
	return false
}

// post hands m to the session goroutine.
func (s *Session) post(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postLater delivers m after d unless the session has exited by then.
func (s *Session) postLater(d time.Duration, m Msg) {
	time.AfterFunc(d, func() { _ = s.post(s.ctx, m) })
}

func request[T any](ctx context.Context, s *Session, build func(Reply[T]) Msg) (T, error) {
	reply := make(Reply[T], 1)
	if err := s.post(ctx, build(reply)); err != nil {
		var zero T
		return zero, err
	}
	select {
	case r := <-reply:
		return r.Val, r.Err
	case <-s.done:
		var zero T
		return zero, ErrGone
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type JoinRequest struct {
	PlayerID string
	Name     string
	Color    string // empty picks the first free color
	ConnID   string
}

func (s *Session) Join(ctx context.Context, req JoinRequest) (types.Admission, error) {
	return request(ctx, s, func(r Reply[types.Admission]) Msg {
		return Join{JoinRequest: req, Reply: r}
	})
}

func (s *Session) Leave(ctx context.Context, playerID string) error {
	_, err := request(ctx, s, func(r Reply[struct{}]) Msg {
		return Leave{PlayerID: playerID, Reply: r}
	})
	return err
}

func (s *Session) Start(ctx context.Context, playerID string) error {
	_, err := request(ctx, s, func(r Reply[struct{}]) Msg {
		return Start{PlayerID: playerID, Reply: r}
	})
	return err
}

func (s *Session) EndTurn(ctx context.Context, playerID string) error {
	_, err := request(ctx, s, func(r Reply[struct{}]) Msg {
		return EndTurn{PlayerID: playerID, Reply: r}
	})
	return err
}

func (s *Session) Act(ctx context.Context, playerID, actionType string, data json.RawMessage) (engine.ActionOutcome, error) {
	return request(ctx, s, func(r Reply[engine.ActionOutcome]) Msg {
		return Action{PlayerID: playerID, ActionType: actionType, Data: data, Reply: r}
	})
}

func (s *Session) UpdateScore(ctx context.Context, playerID string, score int) error {
	_, err := request(ctx, s, func(r Reply[struct{}]) Msg {
		return UpdateScore{PlayerID: playerID, Score: score, Reply: r}
	})
	return err
}

func (s *Session) Heartbeat(ctx context.Context, playerID, connID string, at time.Time) error {
	_, err := request(ctx, s, func(r Reply[struct{}]) Msg {
		return Heartbeat{PlayerID: playerID, ConnID: connID, At: at, Reply: r}
	})
	return err
}

type StoreRequest struct {
	SenderID    string
	SenderColor string
	TargetColor string
	Path        string
	Payload     json.RawMessage
}

func (s *Session) StoreCard(ctx context.Context, req StoreRequest) (types.CardStored, error) {
	return request(ctx, s, func(r Reply[types.CardStored]) Msg {
		return StoreCard{StoreRequest: req, Reply: r}
	})
}

// FetchCards drains the caller's own queue. An empty color means the
// caller's color.
func (s *Session) FetchCards(ctx context.Context, playerID, color string) (types.Cards, error) {
	return request(ctx, s, func(r Reply[types.Cards]) Msg {
		return FetchCards{PlayerID: playerID, Color: color, Reply: r}
	})
}

func (s *Session) DrawReserve(ctx context.Context, playerID, category string) (*mailbox.Item, error) {
	return request(ctx, s, func(r Reply[*mailbox.Item]) Msg {
		return DrawReserve{PlayerID: playerID, Category: category, Reply: r}
	})
}

// EvictStale asks the session to drop players whose heartbeat is too old.
func (s *Session) EvictStale(ctx context.Context, now time.Time) error {
	return s.post(ctx, EvictStale{Now: now})
}

// CheckDeadlines asks the session to act on its waiting and absolute deadlines.
func (s *Session) CheckDeadlines(ctx context.Context, now time.Time) error {
	return s.post(ctx, CheckDeadlines{Now: now})
}

func (s *Session) View(ctx context.Context) (View, error) {
	return request(ctx, s, func(r Reply[View]) Msg {
		return GetState{Reply: r}
	})
}
