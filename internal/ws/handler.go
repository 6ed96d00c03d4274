package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/router"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

type Options struct {
	// SendTimeout bounds one websocket write; a slower peer is dropped.
	SendTimeout time.Duration
	// ReadTimeout should exceed the heartbeat interval.
	ReadTimeout    time.Duration
	OriginPatterns []string
}

// Handler serves one websocket per client. Disconnecting does not leave the
// session; the player stays until heartbeat eviction or a rebinding
// heartbeat from a new connection.
func Handler(d *Dispatcher, rt *router.Router, opts Options, log *zap.Logger) http.HandlerFunc {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Minute
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		clog := log.With(zap.String("conn_id", connID))
		out := rt.Register(connID)
		defer rt.Unregister(connID)
		clog.Debug("connected", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-out:
					if !ok {
						return
					}
					wctx, wcancel := context.WithTimeout(ctx, opts.SendTimeout)
					err := conn.Write(wctx, websocket.MessageText, payload)
					wcancel()
					if err != nil {
						clog.Debug("write failed", zap.Error(err))
						return
					}
				}
			}
		}()

		reply := func(m types.Message) {
			if m == nil {
				return
			}
			if err := rt.Send(connID, m); err != nil {
				clog.Warn("reply dropped", zap.String("type", m.MessageType()), zap.Error(err))
			}
		}

		reply(types.SessionsList{Type: types.OutSessionsList, Sessions: d.reg.List()})

		// Reader loop
		for {
			rctx, rcancel := context.WithTimeout(ctx, opts.ReadTimeout)
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch {
				case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
					websocket.CloseStatus(err) == websocket.StatusGoingAway,
					errors.Is(err, context.Canceled):
					clog.Debug("disconnected")
				default:
					clog.Info("connection dropped", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				reply(types.Error{Type: types.OutError, Code: engine.Code(engine.ErrInvalidParameter), Message: "bad json"})
				continue
			}
			reply(d.Dispatch(ctx, connID, cm))
		}
	}
}
