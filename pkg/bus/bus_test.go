package bus

import (
	"context"
	"testing"
	"time"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/domain"
)

func TestPublishConsumeAndTap(t *testing.T) {
	mb := NewMessageBus(4)
	tap := mb.SubscribeInboundTap("audit")

	msg := InboundMessage{CorrelationID: "c1", Command: app.Command{Operation: domain.OpGet}}
	if !mb.PublishInbound(msg) {
		t.Fatal("publish on open bus failed")
	}

	got, ok := mb.ConsumeInbound(context.Background())
	if !ok || got.CorrelationID != "c1" {
		t.Fatalf("ConsumeInbound = %+v, %v", got, ok)
	}
	select {
	case v := <-tap:
		if v.(InboundMessage).CorrelationID != "c1" {
			t.Errorf("tap got %+v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("tap received nothing")
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	mb := NewMessageBus(2)
	for _, id := range []string{"a", "b", "c"} {
		mb.PublishOutbound(OutboundMessage{CorrelationID: id})
	}
	ctx := context.Background()
	first, _ := mb.ConsumeOutbound(ctx)
	second, _ := mb.ConsumeOutbound(ctx)
	if first.CorrelationID != "b" || second.CorrelationID != "c" {
		t.Errorf("got %q, %q; want b, c", first.CorrelationID, second.CorrelationID)
	}
}

func TestCloseStopsConsumers(t *testing.T) {
	mb := NewMessageBus(1)
	mb.Close()
	mb.Close()

	if mb.PublishInbound(InboundMessage{}) {
		t.Error("publish after close reported success")
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Error("consume on closed bus reported ok")
	}
}

func TestConsumeHonoursContext(t *testing.T) {
	mb := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := mb.ConsumeOutbound(ctx); ok {
		t.Error("expected ok == false on cancelled context")
	}
}
