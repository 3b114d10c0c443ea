// Event bridge: wires domain events and broker traffic into the WebSocket
// hub for live updates.
package api

import (
	"context"

	"github.com/sipeed/picocrud/pkg/bus"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/logger"
)

// EventBridge forwards domain events and bus traffic to WebSocket clients.
type EventBridge struct {
	events domain.EventBus
	bus    *bus.MessageBus
	hub    *WSHub
}

// NewEventBridge creates a bridge. Either source may be nil.
func NewEventBridge(events domain.EventBus, mb *bus.MessageBus, hub *WSHub) *EventBridge {
	return &EventBridge{events: events, bus: mb, hub: hub}
}

// Run subscribes and starts the forwarding loops; it returns immediately.
// Call it once: event bus subscriptions cannot be withdrawn.
func (eb *EventBridge) Run(ctx context.Context) {
	logger.InfoC("events", "Event bridge started")

	if eb.events != nil {
		eb.events.SubscribeAll(eb.forwardEvent)
	}
	if eb.bus != nil {
		// Taps receive copies without stealing from the command listener.
		go eb.forwardInbound(ctx, eb.bus.SubscribeInboundTap("event-bridge"))
		go eb.forwardOutbound(ctx, eb.bus.SubscribeOutboundTap("event-bridge"))
	}
}

func (eb *EventBridge) forwardEvent(e domain.Event) {
	eb.hub.Broadcast(string(e.EventType()), map[string]interface{}{
		"aggregate_id": e.AggregateID(),
		"occurred_at":  e.OccurredAt(),
		"data":         e.Payload(),
	})
}

func (eb *EventBridge) forwardInbound(ctx context.Context, tap <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-tap:
			if !ok {
				return
			}
			if msg, ok := raw.(bus.InboundMessage); ok {
				eb.hub.Broadcast("broker.inbound", map[string]interface{}{
					"source":         msg.Source,
					"correlation_id": msg.CorrelationID,
					"operation":      msg.Command.Operation,
					"kind":           msg.Command.Kind,
					"parent_id":      msg.Command.ParentID,
				})
			}
		}
	}
}

func (eb *EventBridge) forwardOutbound(ctx context.Context, tap <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-tap:
			if !ok {
				return
			}
			if msg, ok := raw.(bus.OutboundMessage); ok {
				eb.hub.Broadcast("broker.outbound", map[string]interface{}{
					"correlation_id": msg.CorrelationID,
					"status":         msg.Status,
					"code":           msg.Code,
				})
			}
		}
	}
}
