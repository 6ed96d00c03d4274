package types

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/mailbox"
)

// Inbound message types.
const (
	InCreateSession   = "create_session"
	InJoinSession     = "join_session"
	InLeaveSession    = "leave_session"
	InListSessions    = "list_sessions"
	InStartGame       = "start_game"
	InGameAction      = "game_action"
	InEndTurn         = "end_turn"
	InHeartbeat       = "heartbeat"
	InStoreCard       = "store_card_for_player"
	InGetPendingCards = "get_pending_cards"
	InUpdateScore     = "update_player_score"
	InDrawReserveCard = "draw_reserve_card"
)

// Outbound message types.
const (
	OutSessionCreated     = "session_created"
	OutSessionJoined      = "session_joined"
	OutSessionLeft        = "session_left"
	OutSessionsList       = "sessions_list"
	OutSessionsListUpdate = "sessions_list_update"
	OutPlayerJoined       = "player_joined"
	OutPlayerLeft         = "player_left"
	OutHostChanged        = "host_changed"
	OutGameStarted        = "game_started"
	OutTurnChanged        = "turn_changed"
	OutTimerSync          = "timer_sync"
	OutGameFinished       = "game_finished"
	OutSessionExpired     = "session_expired"
	OutHeartbeatAck       = "heartbeat_ack"
	OutActionResult       = "action_result"
	OutPlayerAction       = "player_action"
	OutScoreUpdated       = "score_updated"
	OutCardStored         = "card_stored"
	OutCardsPending       = "cards_pending"
	OutPendingCards       = "pending_cards"
	OutReserveCard        = "reserve_card"
	OutError              = "error"
)

type ClientMessage struct {
	Type              string          `json:"type"`
	SessionID         string          `json:"session_id,omitempty"`
	PlayerID          string          `json:"player_id,omitempty"`
	PlayerName        string          `json:"player_name,omitempty"`
	Color             string          `json:"color,omitempty"`
	DurationMinutes   int             `json:"duration_minutes,omitempty"`
	ActionType        string          `json:"action_type,omitempty"`
	ActionData        json.RawMessage `json:"action_data,omitempty"`
	SenderPlayerID    string          `json:"sender_player_id,omitempty"`
	SenderColor       string          `json:"sender_color,omitempty"`
	TargetPlayerColor string          `json:"target_player_color,omitempty"`
	CardData          json.RawMessage `json:"card_data,omitempty"`
	Path              string          `json:"path,omitempty"`
	PlayerColor       string          `json:"player_color,omitempty"`
	Score             *int            `json:"score,omitempty"`
	Category          string          `json:"category,omitempty"`
}

// Message is anything the server sends. MessageType names the envelope.
type Message interface {
	MessageType() string
}

type PlayerInfo struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Color     engine.Color `json:"color"`
	Connected bool         `json:"connected"`
	Position  int          `json:"position"`
	Balance   int          `json:"balance"`
	IsHost    bool         `json:"is_host"`
}

func NewPlayerInfo(p *engine.Player, hostID string) PlayerInfo {
	return PlayerInfo{
		ID:        p.ID,
		Name:      p.Name,
		Color:     p.Color,
		Connected: p.Connected,
		Position:  p.Position,
		Balance:   p.Balance,
		IsHost:    p.ID == hostID,
	}
}

// SessionInfo is the public view of a session, used both for members and
// for discovery listings.
type SessionInfo struct {
	ID              string         `json:"id"`
	HostID          string         `json:"host_id"`
	State           engine.State   `json:"state"`
	Players         []PlayerInfo   `json:"players"`
	PlayerOrder     []string       `json:"player_order"`
	MaxPlayers      int            `json:"max_players"`
	AvailableColors []engine.Color `json:"available_colors"`
	DurationMinutes int            `json:"duration_minutes"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
	WaitingDeadline time.Time      `json:"waiting_deadline"`
}

type Admission struct {
	Type       string      `json:"type"`
	Session    SessionInfo `json:"session"`
	PlayerID   string      `json:"player_id"`
	PlayerInfo PlayerInfo  `json:"player_info"`
}

func (m Admission) MessageType() string { return m.Type }

type SessionsList struct {
	Type     string        `json:"type"`
	Sessions []SessionInfo `json:"sessions"`
}

func (m SessionsList) MessageType() string { return m.Type }

type Membership struct {
	Type     string      `json:"type"`
	PlayerID string      `json:"player_id,omitempty"`
	Player   *PlayerInfo `json:"player,omitempty"`
	HostID   string      `json:"host_id,omitempty"`
	Session  SessionInfo `json:"session"`
}

func (m Membership) MessageType() string { return m.Type }

type GameStarted struct {
	Type    string      `json:"type"`
	Session SessionInfo `json:"session"`
}

func (m GameStarted) MessageType() string { return m.Type }

type TurnChanged struct {
	Type               string       `json:"type"`
	CurrentPlayerID    string       `json:"current_player_id"`
	CurrentPlayerName  string       `json:"current_player_name"`
	CurrentPlayerColor engine.Color `json:"current_player_color"`
	PlayerOrder        []string     `json:"player_order"`
	CurrentTurnIndex   int          `json:"current_turn_index"`
	Solo               bool         `json:"solo,omitempty"`
}

func (m TurnChanged) MessageType() string { return m.Type }

type TimerSync struct {
	Type          string `json:"type"`
	TimeRemaining int    `json:"time_remaining"`
}

func (m TimerSync) MessageType() string { return m.Type }

// Finished is sent as game_finished when a ranking exists and as
// session_expired otherwise.
type Finished struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	GameResult *engine.Result `json:"game_result,omitempty"`
}

func (m Finished) MessageType() string { return m.Type }

type HeartbeatAck struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"server_time"`
}

func (m HeartbeatAck) MessageType() string { return m.Type }

type ActionEvent struct {
	Type     string               `json:"type"`
	PlayerID string               `json:"player_id"`
	Outcome  engine.ActionOutcome `json:"outcome"`
}

func (m ActionEvent) MessageType() string { return m.Type }

type ScoreUpdated struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	Balance  int    `json:"balance"`
}

func (m ScoreUpdated) MessageType() string { return m.Type }

type CardStored struct {
	Type        string       `json:"type"`
	ItemID      string       `json:"item_id"`
	TargetColor engine.Color `json:"target_player_color"`
	Delivered   bool         `json:"delivered"`
	Category    string       `json:"category"`
}

func (m CardStored) MessageType() string { return m.Type }

type Cards struct {
	Type  string         `json:"type"`
	Color engine.Color   `json:"player_color"`
	Count int            `json:"count"`
	Cards []mailbox.Item `json:"cards"`
}

func (m Cards) MessageType() string { return m.Type }

// CardsPending tells a player how many items wait in its queue.
type CardsPending struct {
	Type  string       `json:"type"`
	Color engine.Color `json:"player_color"`
	Count int          `json:"count"`
}

func (m CardsPending) MessageType() string { return m.Type }

type ReserveCard struct {
	Type     string        `json:"type"`
	Category string        `json:"category"`
	Card     *mailbox.Item `json:"card"`
}

func (m ReserveCard) MessageType() string { return m.Type }

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m Error) MessageType() string { return m.Type }

func NewError(err error) Error {
	return Error{Type: OutError, Code: engine.Code(err), Message: err.Error()}
}
