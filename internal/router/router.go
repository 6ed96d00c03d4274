// Package router maps connection ids to outbound queues. Sessions only ever
// hold connection ids; the router owns the queues.
package router

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

var (
	// ErrClosed means the connection is gone; retrying is pointless.
	ErrClosed = fmt.Errorf("%w: connection closed", engine.ErrTransportFailure)
	// ErrBackpressure means the outbox is full right now.
	ErrBackpressure = fmt.Errorf("%w: outbox full", engine.ErrTransportFailure)
)

type client struct {
	out chan []byte
}

type Router struct {
	mu      sync.RWMutex
	clients map[string]*client
	outbox  int
	log     *zap.Logger
}

func New(outbox int, log *zap.Logger) *Router {
	if outbox <= 0 {
		outbox = 64
	}
	return &Router{
		clients: make(map[string]*client),
		outbox:  outbox,
		log:     log,
	}
}

// Register creates the outbox for id. The returned channel is closed by
// Unregister.
func (r *Router) Register(id string) <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.clients[id]; ok {
		close(old.out)
	}
	c := &client{out: make(chan []byte, r.outbox)}
	r.clients[id] = c
	return c.out
}

func (r *Router) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		close(c.out)
		delete(r.clients, id)
	}
}

func (r *Router) Connected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[id]
	return ok
}

func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Send enqueues m for id without blocking.
func (r *Router) Send(id string, m types.Message) error {
	data := r.encode(m)
	if data == nil {
		return engine.ErrSerializationFailure
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return ErrClosed
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Broadcast enqueues m for every registered connection and reports how many
// could not take it.
func (r *Router) Broadcast(m types.Message) int {
	data := r.encode(m)
	if data == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	failed := 0
	for _, c := range r.clients {
		select {
		case c.out <- data:
		default:
			failed++
		}
	}
	return failed
}

func (r *Router) encode(m types.Message) []byte {
	data, err := types.Encode(m)
	if err != nil {
		r.log.Warn("encode outbound message",
			zap.String("type", m.MessageType()),
			zap.Bool("fallback", data != nil),
			zap.Error(err))
	}
	return data
}

// Retryable reports whether a failed Send may succeed later.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrClosed)
}
