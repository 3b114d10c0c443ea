package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sipeed/picocrud/pkg/bus"
	"github.com/sipeed/picocrud/pkg/logger"
)

// Publisher is the slice of the redis client used for replies.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBridge moves envelopes between a Redis pub/sub channel and the bus.
type RedisBridge struct {
	rdb     *redis.Client
	pub     Publisher
	channel string
	bus     *bus.MessageBus
	counter Counter
}

// NewRedisBridge connects to addr and verifies the connection.
func NewRedisBridge(ctx context.Context, addr, channel string, mb *bus.MessageBus, counter Counter) (*RedisBridge, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBridge{rdb: rdb, pub: rdb, channel: channel, bus: mb, counter: counter}, nil
}

// Run subscribes to the command channel and forwards replies until ctx is
// done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// ensures the subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	logger.InfoCF("broker", "Listening for commands", map[string]interface{}{"channel": b.channel})

	go b.forwardReplies(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			b.Ingest(m.Payload)
		}
	}
}

// Ingest decodes one envelope and queues it. Undecodable payloads are logged
// and dropped since there is no callback to reply to.
func (b *RedisBridge) Ingest(payload string) {
	var msg bus.InboundMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		logger.WarnCF("broker", "Bad command payload", map[string]interface{}{"error": err})
		if b.counter != nil {
			b.counter.BrokerMessage("invalid")
		}
		return
	}
	msg.Source = "redis"
	b.bus.PublishInbound(msg)
}

func (b *RedisBridge) forwardReplies(ctx context.Context) {
	for {
		out, ok := b.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		if err := b.Reply(ctx, out); err != nil {
			logger.ErrorCF("broker", "Reply publish failed", map[string]interface{}{
				"callback":       out.Callback,
				"correlation_id": out.CorrelationID,
				"error":          err,
			})
		}
	}
}

// Reply publishes out on its callback channel.
func (b *RedisBridge) Reply(ctx context.Context, out bus.OutboundMessage) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return b.pub.Publish(ctx, out.Callback, raw).Err()
}

func (b *RedisBridge) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
