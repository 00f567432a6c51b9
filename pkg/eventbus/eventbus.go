// Package eventbus dispatches application events to registered handlers.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Event is anything with a type name.
type Event interface {
	Type() string
}

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, e Event) error

// Bus is the contract for emitting events and registering handlers.
type Bus interface {
	Register(eventType string, handler HandlerFunc)
	Emit(ctx context.Context, e Event) error
}

// Memory is a synchronous in-process Bus. Handlers run in registration order
// on the emitting goroutine.
type Memory struct {
	mu        sync.RWMutex
	handlers  map[string][]HandlerFunc
	logger    *slog.Logger
	published []Event
	record    bool
}

// NewMemory creates an empty bus.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		handlers: make(map[string][]HandlerFunc),
		logger:   logger.With("bus", "memory"),
	}
}

// Recording makes the bus keep every emitted event for Published.
func (b *Memory) Recording() *Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record = true
	return b
}

// Register adds handler for eventType.
func (b *Memory) Register(eventType string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit runs every handler for the event's type. A failing or panicking
// handler does not stop the others; their errors are joined.
func (b *Memory) Emit(ctx context.Context, e Event) error {
	eventType := e.Type()
	b.mu.Lock()
	handlers := append([]HandlerFunc(nil), b.handlers[eventType]...)
	if b.record {
		b.published = append(b.published, e)
	}
	b.mu.Unlock()

	b.logger.Debug("Emitting event", "event_type", eventType, "handlers", len(handlers))
	var errs []error
	for _, h := range handlers {
		if err := b.call(ctx, h, e); err != nil {
			b.logger.Error("Event handler failed", "event_type", eventType, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Memory) call(ctx context.Context, h HandlerFunc, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for %s: %v", e.Type(), r)
		}
	}()
	return h(ctx, e)
}

// Published returns a copy of the recorded events.
func (b *Memory) Published() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.published...)
}

// ClearPublished drops the recorded events.
func (b *Memory) ClearPublished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

var _ Bus = (*Memory)(nil)
