// Package eventbus provides the in-process implementation of domain.EventBus.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/logger"
)

// InProcessEventBus dispatches events synchronously on the publishing
// goroutine. Handlers run outside the bus lock, so a handler may subscribe
// or publish; a panicking handler is logged and skipped.
type InProcessEventBus struct {
	handlers    map[domain.EventType][]domain.EventHandler
	allHandlers []domain.EventHandler
	mu          sync.RWMutex
	closed      bool
}

func New() *InProcessEventBus {
	return &InProcessEventBus{
		handlers:    make(map[domain.EventType][]domain.EventHandler),
		allHandlers: make([]domain.EventHandler, 0),
	}
}

// Publish dispatches an event to all matching handlers.
// Handlers for the specific event type are called first, then global handlers.
func (b *InProcessEventBus) Publish(event domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	typed := b.handlers[event.EventType()]
	targets := make([]domain.EventHandler, 0, len(typed)+len(b.allHandlers))
	targets = append(targets, typed...)
	targets = append(targets, b.allHandlers...)
	b.mu.RUnlock()

	for _, handler := range targets {
		b.dispatch(handler, event)
	}
}

func (b *InProcessEventBus) dispatch(handler domain.EventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("eventbus", "Event handler panicked", map[string]interface{}{
				"event_type":   string(event.EventType()),
				"aggregate_id": string(event.AggregateID()),
				"panic":        fmt.Sprint(r),
			})
		}
	}()
	handler(event)
}

func (b *InProcessEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *InProcessEventBus) SubscribeAll(handler domain.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allHandlers = append(b.allHandlers, handler)
}

// Close marks the bus as closed. No more events will be dispatched.
func (b *InProcessEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}

// PublishAll dispatches multiple events (e.g., from AggregateRoot.PullEvents).
func (b *InProcessEventBus) PublishAll(events []domain.Event) {
	for _, event := range events {
		b.Publish(event)
	}
}

// HandlerCount returns the total number of registered handlers (for diagnostics).
func (b *InProcessEventBus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allHandlers)
	for _, handlers := range b.handlers {
		count += len(handlers)
	}
	return count
}

var _ domain.EventBus = (*InProcessEventBus)(nil)
