package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/tabletop-backend/internal/session"
)

// Run drives the heartbeat monitor and the deadline sweep until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(ctx, h.opts.HeartbeatInterval, h.SweepHeartbeats)
	})
	g.Go(func() error {
		return every(ctx, h.opts.SweepInterval, h.SweepDeadlines)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func every(ctx context.Context, d time.Duration, fn func(context.Context, time.Time)) error {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(ctx, time.Time{})
		}
	}
}

// SweepHeartbeats asks every session to evict players silent for longer than
// twice the heartbeat interval. A zero now means the current time.
func (h *Hub) SweepHeartbeats(ctx context.Context, now time.Time) {
	h.sweep(ctx, now, "heartbeat", func(s *session.Session, now time.Time) error {
		return s.EvictStale(ctx, now)
	})
}

// SweepDeadlines asks every session to honor its waiting and expiry
// deadlines. A zero now means the current time.
func (h *Hub) SweepDeadlines(ctx context.Context, now time.Time) {
	h.sweep(ctx, now, "deadline", func(s *session.Session, now time.Time) error {
		return s.CheckDeadlines(ctx, now)
	})
}

func (h *Hub) sweep(ctx context.Context, now time.Time, kind string, fn func(*session.Session, time.Time) error) {
	if now.IsZero() {
		now = h.opts.Now()
	}
	h.mu.RLock()
	live := make([]*session.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		live = append(live, s)
	}
	h.mu.RUnlock()

	for _, s := range live {
		if err := fn(s, now); err != nil && !errors.Is(err, session.ErrGone) {
			h.log.Warn("sweep skipped session",
				zap.String("sweep", kind),
				zap.String("session_id", s.ID()),
				zap.Error(err))
		}
	}
}
