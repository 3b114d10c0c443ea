// Package bus is the in-process queue between broker adapters and the
// command listener: inbound commands one way, replies the other.
package bus

import (
	"context"
	"sync"
)

// Subscriber is a named tap on a message stream. Multiple subscribers can
// independently consume the same published messages (fan-out).
type Subscriber struct {
	Name string
	ch   chan interface{}
}

type MessageBus struct {
	inbound   chan InboundMessage
	outbound  chan OutboundMessage
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	inboundSubs  []*Subscriber
	outboundSubs []*Subscriber
}

// NewMessageBus creates a bus whose queues hold size messages each.
func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = 100
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

// --- Fan-out subscriptions ---

// SubscribeInboundTap returns a buffered channel receiving copies of all
// inbound messages. Slow consumers drop.
func (mb *MessageBus) SubscribeInboundTap(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, 64)}
	mb.inboundSubs = append(mb.inboundSubs, sub)
	return sub.ch
}

// SubscribeOutboundTap is SubscribeInboundTap for replies.
func (mb *MessageBus) SubscribeOutboundTap(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, 64)}
	mb.outboundSubs = append(mb.outboundSubs, sub)
	return sub.ch
}

func fanOut[T any](subs []*Subscriber, msg T) {
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default: // drop if subscriber is slow
		}
	}
}

// --- Publish / consume ---

// PublishInbound enqueues msg. When the queue is full the oldest message is
// dropped. It returns false once the bus is closed.
func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}
	fanOut(mb.inboundSubs, msg)
	pushDropOldest(mb.inbound, msg)
	return true
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}
	fanOut(mb.outboundSubs, msg)
	pushDropOldest(mb.outbound, msg)
	return true
}

func (mb *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-mb.outbound:
		return msg, ok
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func pushDropOldest[T any](ch chan T, msg T) {
	select {
	case ch <- msg:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close closes both queues and every tap. Consumers drain what is left and
// then see ok == false.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		mb.closed = true
		for _, sub := range mb.inboundSubs {
			close(sub.ch)
		}
		for _, sub := range mb.outboundSubs {
			close(sub.ch)
		}
		close(mb.inbound)
		close(mb.outbound)
	})
}
