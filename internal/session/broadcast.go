package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/router"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// broadcast is best effort per member: a failed send marks that member
// disconnected and moves on. Removal is left to heartbeats and leave.
func (s *Session) broadcast(m types.Message) {
	s.broadcastExcept("", m)
}

func (s *Session) broadcastExcept(skip string, m types.Message) {
	for _, id := range s.order.IDs() {
		if id == skip {
			continue
		}
		s.sendTo(s.players[id], m)
	}
}

func (s *Session) sendTo(p *engine.Player, m types.Message) {
	if p.ConnID == "" {
		p.Connected = false
		return
	}
	if err := s.sender.Send(p.ConnID, m); err != nil {
		if p.Connected {
			s.log.Debug("send failed, marking disconnected",
				zap.String("player_id", p.ID),
				zap.String("type", m.MessageType()),
				zap.Error(err))
		}
		p.Connected = false
	}
}

func (s *Session) broadcastTurn() {
	cur, ok := s.order.Current()
	if !ok {
		return
	}
	p := s.players[cur]
	s.broadcast(types.TurnChanged{
		Type:               types.OutTurnChanged,
		CurrentPlayerID:    p.ID,
		CurrentPlayerName:  p.Name,
		CurrentPlayerColor: p.Color,
		PlayerOrder:        s.order.IDs(),
		CurrentTurnIndex:   s.order.Cursor(),
		Solo:               len(s.players) == 1,
	})
}

// sendWithRetry tries once inline so ordering with later broadcasts holds,
// then retries off the session goroutine with linear backoff. A closed
// connection is never retried.
func (s *Session) sendWithRetry(p *engine.Player, m types.Message) {
	if p.ConnID == "" {
		p.Connected = false
		return
	}
	err := s.sender.Send(p.ConnID, m)
	if err == nil {
		return
	}
	if !router.Retryable(err) {
		p.Connected = false
		return
	}

	playerID, connID := p.ID, p.ConnID
	ctx, attempts, backoff := s.ctx, s.opts.SendAttempts, s.opts.RetryBackoff
	go func() {
		var err error
		for attempt := 1; attempt < attempts; attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff * time.Duration(attempt)):
			}
			if err = s.sender.Send(connID, m); err == nil {
				return
			}
			if !router.Retryable(err) {
				break
			}
		}
		s.log.Warn("giving up on send",
			zap.String("player_id", playerID),
			zap.String("type", m.MessageType()),
			zap.Int("attempts", attempts),
			zap.Error(err))
		_ = s.post(ctx, sendFailed{playerID: playerID, connID: connID})
	}()
}
