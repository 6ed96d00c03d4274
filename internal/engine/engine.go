package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidParameter = errors.New("invalid parameter")
var ErrNotFound = errors.New("not found")
var ErrExpired = errors.New("session expired")
var ErrFull = errors.New("session full")
var ErrColorUnavailable = errors.New("color unavailable")
var ErrForbidden = errors.New("forbidden")
var ErrInsufficientPlayers = errors.New("insufficient players")
var ErrNotYourTurn = errors.New("not your turn")
var ErrInsufficientBalance = errors.New("insufficient balance")
var ErrInvalidState = errors.New("invalid session state")
var ErrTransportFailure = errors.New("transport failure")
var ErrSerializationFailure = errors.New("serialization failure")

// codes is checked in order; the first sentinel matched by errors.Is wins.
var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidParameter, "invalid_parameter"},
	{ErrNotFound, "not_found"},
	{ErrExpired, "expired"},
	{ErrFull, "full"},
	{ErrColorUnavailable, "color_unavailable"},
	{ErrForbidden, "forbidden"},
	{ErrInsufficientPlayers, "insufficient_players"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInvalidState, "invalid_state"},
	{ErrTransportFailure, "transport_failure"},
	{ErrSerializationFailure, "serialization_failure"},
}

// Code maps err onto the stable code reported to clients.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal_error"
}

type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
)

// Colors is the canonical assignment order.
var Colors = []Color{ColorRed, ColorBlue, ColorGreen, ColorYellow}

func ParseColor(s string) (Color, error) {
	for _, c := range Colors {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown color %q", ErrInvalidParameter, s)
}

type State string

const (
	StateWaiting  State = "waiting"
	StateStarting State = "starting"
	StatePlaying  State = "playing"
	StateFinished State = "finished"
	StateExpired  State = "expired"
)

func (s State) Terminal() bool {
	return s == StateFinished || s == StateExpired
}

// Discoverable reports whether sessions in this state may appear in listings.
func (s State) Discoverable() bool {
	return s == StateWaiting || s == StateStarting
}

const InitialBalance = 1000

type Player struct {
	ID            string
	Name          string
	Color         Color
	ConnID        string // lookup key into the router; never owns the connection
	Connected     bool
	LastHeartbeat time.Time
	Position      int
	Balance       int
	JoinedAt      time.Time
}

func NewPlayer(id, name string, color Color, connID string, now time.Time) *Player {
	return &Player{
		ID:            id,
		Name:          name,
		Color:         color,
		ConnID:        connID,
		Connected:     connID != "",
		LastHeartbeat: now,
		Balance:       InitialBalance,
		JoinedAt:      now,
	}
}

// Stale reports whether the last heartbeat is older than timeout at now.
func (p *Player) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.LastHeartbeat) > timeout
}
