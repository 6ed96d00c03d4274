package session

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/mailbox"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

type Msg interface{ isSessionMsg() }

type Result[T any] struct {
	Val T
	Err error
}

// Reply must be buffered; the session never blocks on it.
type Reply[T any] chan Result[T]

func (r Reply[T]) send(v T, err error) {
	if r == nil {
		return
	}
	select {
	case r <- Result[T]{Val: v, Err: err}:
	default:
	}
}

func (r Reply[T]) fail(err error) {
	var zero T
	r.send(zero, err)
}

type failer interface{ fail(error) }

type Join struct {
	JoinRequest
	Reply Reply[types.Admission]
}

type Leave struct {
	PlayerID string
	Reply    Reply[struct{}]
}

type Start struct {
	PlayerID string
	Reply    Reply[struct{}]
}

type EndTurn struct {
	PlayerID string
	Reply    Reply[struct{}]
}

type Action struct {
	PlayerID   string
	ActionType string
	Data       json.RawMessage
	Reply      Reply[engine.ActionOutcome]
}

type UpdateScore struct {
	PlayerID string
	Score    int
	Reply    Reply[struct{}]
}

type Heartbeat struct {
	PlayerID string
	ConnID   string
	At       time.Time
	Reply    Reply[struct{}]
}

type StoreCard struct {
	StoreRequest
	Reply Reply[types.CardStored]
}

type FetchCards struct {
	PlayerID string
	Color    string
	Reply    Reply[types.Cards]
}

type DrawReserve struct {
	PlayerID string
	Category string
	Reply    Reply[*mailbox.Item]
}

type EvictStale struct{ Now time.Time }

type CheckDeadlines struct{ Now time.Time }

type Shutdown struct{}

// GetState reflects internal state without data races.
type GetState struct {
	Reply Reply[View]
}

type View struct {
	Info       types.SessionInfo
	Cursor     int
	EmptySince time.Time
	Remaining  int
	Pending    map[engine.Color]int
	Reserve    map[string]int
}

type timerTick struct {
	gen       int
	remaining int
}

type emptyCheck struct{ since time.Time }

type sendFailed struct {
	playerID string
	connID   string
}

type destroyNow struct{}

func (Join) isSessionMsg()           {}
func (Leave) isSessionMsg()          {}
func (Start) isSessionMsg()          {}
func (EndTurn) isSessionMsg()        {}
func (Action) isSessionMsg()         {}
func (UpdateScore) isSessionMsg()    {}
func (Heartbeat) isSessionMsg()      {}
func (StoreCard) isSessionMsg()      {}
func (FetchCards) isSessionMsg()     {}
func (DrawReserve) isSessionMsg()    {}
func (EvictStale) isSessionMsg()     {}
func (CheckDeadlines) isSessionMsg() {}
func (Shutdown) isSessionMsg()       {}
func (GetState) isSessionMsg()       {}
func (timerTick) isSessionMsg()      {}
func (emptyCheck) isSessionMsg()     {}
func (sendFailed) isSessionMsg()     {}
func (destroyNow) isSessionMsg()     {}

func (m Join) fail(err error)        { m.Reply.fail(err) }
func (m Leave) fail(err error)       { m.Reply.fail(err) }
func (m Start) fail(err error)       { m.Reply.fail(err) }
func (m EndTurn) fail(err error)     { m.Reply.fail(err) }
func (m Action) fail(err error)      { m.Reply.fail(err) }
func (m UpdateScore) fail(err error) { m.Reply.fail(err) }
func (m Heartbeat) fail(err error)   { m.Reply.fail(err) }
func (m StoreCard) fail(err error)   { m.Reply.fail(err) }
func (m FetchCards) fail(err error)  { m.Reply.fail(err) }
func (m DrawReserve) fail(err error) { m.Reply.fail(err) }
func (m GetState) fail(err error)    { m.Reply.fail(err) }
