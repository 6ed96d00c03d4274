package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// countdown tracks the running timer. Ticks carry the generation they were
// armed with so fires from a replaced timer are dropped.
type countdown struct {
	gen    int
	cancel context.CancelFunc
}

// startTimer replaces any running countdown with a fresh one for the full
// session duration.
func (s *Session) startTimer() {
	s.stopTimer()
	s.timer.gen++
	gen := s.timer.gen
	total := s.durationMinutes * 60

	ctx, cancel := context.WithCancel(s.ctx)
	s.timer.cancel = cancel
	s.remaining = total
	s.broadcast(types.TimerSync{Type: types.OutTimerSync, TimeRemaining: total})

	go runCountdown(ctx, s.opts.TickInterval, total, func(remaining int) bool {
		return s.post(ctx, timerTick{gen: gen, remaining: remaining}) == nil
	})
}

func (s *Session) stopTimer() {
	if s.timer.cancel != nil {
		s.timer.cancel()
		s.timer.cancel = nil
	}
}

// runCountdown emits total-1 down to 0, one value per tick, until ctx ends
// or emit reports the session is gone.
func runCountdown(ctx context.Context, tick time.Duration, total int, emit func(int) bool) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for remaining := total - 1; remaining >= 0; remaining-- {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if ctx.Err() != nil || !emit(remaining) {
			return
		}
	}
}

func (s *Session) onTick(m timerTick) {
	if m.gen != s.timer.gen {
		return
	}
	if s.state != engine.StatePlaying {
		s.stopTimer()
		return
	}
	s.remaining = m.remaining
	s.broadcast(types.TimerSync{Type: types.OutTimerSync, TimeRemaining: m.remaining})
	if m.remaining == 0 {
		s.log.Info("countdown reached zero", zap.Int("duration_minutes", s.durationMinutes))
		s.finalize("timer")
	}
}
