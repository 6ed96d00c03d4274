package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/hub"
	"github.com/DoyleJ11/tabletop-backend/internal/mailbox"
	"github.com/DoyleJ11/tabletop-backend/internal/session"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// Registry is the part of the hub the socket layer drives.
type Registry interface {
	Create(ctx context.Context, req hub.CreateRequest) (types.Admission, error)
	Join(ctx context.Context, req hub.JoinRequest) (types.Admission, error)
	Leave(ctx context.Context, playerID string) error
	List() []types.SessionInfo
	Start(ctx context.Context, playerID string) error
	EndTurn(ctx context.Context, sessionID, playerID string) error
	Act(ctx context.Context, playerID, actionType string, data json.RawMessage) (engine.ActionOutcome, error)
	UpdateScore(ctx context.Context, sessionID, playerID string, score int) error
	Heartbeat(ctx context.Context, playerID, connID string) error
	StoreCard(ctx context.Context, req session.StoreRequest) (types.CardStored, error)
	FetchCards(ctx context.Context, playerID, color string) (types.Cards, error)
	DrawReserve(ctx context.Context, playerID, category string) (*mailbox.Item, error)
}

type Dispatcher struct {
	reg Registry
	log *zap.Logger
	now func() time.Time
}

func NewDispatcher(reg Registry, log *zap.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, log: log, now: time.Now}
}

// Dispatch runs one client message and returns the reply for the sender, or
// nil when the outcome reaches the sender through a broadcast. Errors and
// panics become error replies; they never escape.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, cm types.ClientMessage) (reply types.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panic",
				zap.Any("panic", r),
				zap.String("type", cm.Type),
				zap.String("conn_id", connID))
			reply = types.Error{Type: types.OutError, Code: "internal_error", Message: "internal error"}
		}
	}()

	m, err := d.dispatch(ctx, connID, cm)
	if err != nil {
		d.log.Debug("request rejected",
			zap.String("type", cm.Type),
			zap.String("player_id", cm.PlayerID),
			zap.String("code", engine.Code(err)),
			zap.Error(err))
		return types.NewError(err)
	}
	return m
}

func (d *Dispatcher) dispatch(ctx context.Context, connID string, cm types.ClientMessage) (types.Message, error) {
	switch cm.Type {
	case types.InCreateSession:
		return d.reg.Create(ctx, hub.CreateRequest{
			Name:            cm.PlayerName,
			Color:           cm.Color,
			DurationMinutes: cm.DurationMinutes,
			ConnID:          connID,
		})

	case types.InJoinSession:
		if err := required(cm.SessionID, "session_id"); err != nil {
			return nil, err
		}
		return d.reg.Join(ctx, hub.JoinRequest{
			SessionID: cm.SessionID,
			Name:      cm.PlayerName,
			Color:     cm.Color,
			ConnID:    connID,
		})

	case types.InLeaveSession:
		if err := required(cm.PlayerID, "player_id"); err != nil {
			return nil, err
		}
		if err := d.reg.Leave(ctx, cm.PlayerID); err != nil {
			return nil, err
		}
		return types.Membership{Type: types.OutSessionLeft, PlayerID: cm.PlayerID}, nil

	case types.InListSessions:
		return types.SessionsList{Type: types.OutSessionsList, Sessions: d.reg.List()}, nil

	case types.InStartGame:
		if err := required(cm.PlayerID, "player_id"); err != nil {
			return nil, err
		}
		return nil, d.reg.Start(ctx, cm.PlayerID)

	case types.InGameAction:
		if err := required(cm.PlayerID, "player_id"); err != nil {
			return nil, err
		}
		out, err := d.reg.Act(ctx, cm.PlayerID, cm.ActionType, cm.ActionData)
		if err != nil {
			return nil, err
		}
		return types.ActionEvent{Type: types.OutActionResult, PlayerID: cm.PlayerID, Outcome: out}, nil

	case types.InEndTurn:
		if err := required(cm.PlayerID, "player_id"); err != nil {
			return nil, err
		}
		return nil, d.reg.EndTurn(ctx, cm.SessionID, cm.PlayerID)

	case types.InHeartbeat:
		// Acknowledged whether or not the player is still a member.
		if cm.PlayerID != "" {
			if err := d.reg.Heartbeat(ctx, cm.PlayerID, connID); err != nil {
				d.log.Debug("heartbeat for unknown player", zap.String("player_id", cm.PlayerID), zap.Error(err))
			}
		}
		return types.HeartbeatAck{Type: types.OutHeartbeatAck, ServerTime: d.now().UnixMilli()}, nil

	case types.InStoreCard:
		if err := required(cm.SenderPlayerID, "sender_player_id"); err != nil {
			return nil, err
		}
		return d.reg.StoreCard(ctx, session.StoreRequest{
			SenderID:    cm.SenderPlayerID,
			SenderColor: cm.SenderColor,
			TargetColor: cm.TargetPlayerColor,
			Path:        cm.Path,
			Payload:     cm.CardData,
		})

	case types.InGetPendingCards:
		if err := required(cm.PlayerID, "player_id"); err != nil {
			return nil, err
		}
		return d.reg.FetchCards(ctx, cm.PlayerID, cm.PlayerColor)

	case types.InUpdateScore:
		if err := required(cm.PlayerID, "player_id"); err != nil {
			return nil, err
		}
		if cm.Score == nil {
			return nil, fmt.Errorf("%w: score is required", engine.ErrInvalidParameter)
		}
		return nil, d.reg.UpdateScore(ctx, cm.SessionID, cm.PlayerID, *cm.Score)

	case types.InDrawReserveCard:
		if err := required(cm.PlayerID, "player_id"); err != nil {
			return nil, err
		}
		category := cm.Category
		if category == "" {
			category = mailbox.CategoryActions
		}
		card, err := d.reg.DrawReserve(ctx, cm.PlayerID, category)
		if err != nil {
			return nil, err
		}
		return types.ReserveCard{Type: types.OutReserveCard, Category: category, Card: card}, nil

	default:
		return nil, fmt.Errorf("%w: unknown message type %q", engine.ErrInvalidParameter, cm.Type)
	}
}

func required(v, field string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", engine.ErrInvalidParameter, field)
	}
	return nil
}
