// Package handlers delivers task reminders over notification channels.
package handlers

import (
	"context"
	"sync"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// Handler delivers a reminder over one channel.
type Handler interface {
	Handle(ctx context.Context, r domain.Reminder) error
	Channel() string
}

// Registry maps channel names to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a Registry holding hs.
func NewRegistry(hs ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range hs {
		r.Register(h)
	}
	return r
}

// Register adds a handler, replacing any previous one for the same channel.
// Safe to call concurrently.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Channel()] = h
}

// Get returns the handler for channel, or *domain.UnknownChannelError.
func (r *Registry) Get(channel string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[channel]
	if !ok {
		return nil, &domain.UnknownChannelError{Channel: channel}
	}
	return h, nil
}

func permanent(err error) error {
	return &domain.PermanentError{Err: err}
}
