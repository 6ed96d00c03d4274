package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// hooks keeps the registry's index and listing in step with a session. It
// runs on the session's goroutine.
type hooks struct{ h *Hub }

func (k hooks) PlayerAdded(sessionID, playerID string) {
	k.h.mu.Lock()
	k.h.byPlayer[playerID] = sessionID
	k.h.mu.Unlock()
}

func (k hooks) PlayerRemoved(sessionID, playerID string) {
	k.h.mu.Lock()
	if k.h.byPlayer[playerID] == sessionID {
		delete(k.h.byPlayer, playerID)
	}
	k.h.mu.Unlock()
}

func (k hooks) Changed(info types.SessionInfo) {
	// Destroyed is always the session's last hook, so this never
	// resurrects a removed entry.
	k.h.mu.Lock()
	k.h.summaries[info.ID] = info
	k.h.mu.Unlock()
	k.h.publishList()
}

func (k hooks) Finished(sessionID string, res engine.Result) {
	if k.h.recorder == nil {
		return
	}
	finishedAt := k.h.opts.Now()
	k.h.records.Add(1)
	go func() {
		defer k.h.records.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(k.h.ctx), k.h.opts.RecordTimeout)
		defer cancel()
		if err := k.h.recorder.Record(ctx, sessionID, finishedAt, res); err != nil {
			k.h.log.Error("archive result", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
}

func (k hooks) Destroyed(sessionID string) {
	k.h.mu.Lock()
	delete(k.h.sessions, sessionID)
	delete(k.h.summaries, sessionID)
	for pid, sid := range k.h.byPlayer {
		if sid == sessionID {
			delete(k.h.byPlayer, pid)
		}
	}
	k.h.mu.Unlock()
	k.h.log.Info("session destroyed", zap.String("session_id", sessionID))
	k.h.publishList()
}
