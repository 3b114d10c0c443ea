package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/bus"
	"github.com/sipeed/picocrud/pkg/domain"
)

type fakeExecutor struct {
	mu    sync.Mutex
	users []domain.User
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, cmd app.Command, user domain.User) (app.Reply, error) {
	f.mu.Lock()
	f.users = append(f.users, user)
	f.mu.Unlock()
	if f.err != nil {
		return app.Reply{}, f.err
	}
	return app.Reply{Operation: cmd.Operation, Kind: cmd.Kind, Status: cmd.Operation.Status()}, nil
}

type countingCounter struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *countingCounter) BrokerMessage(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[result]++
}

func TestHandleRepliesOnCallback(t *testing.T) {
	mb := bus.NewMessageBus(4)
	exec := &fakeExecutor{}
	counter := &countingCounter{}
	l := NewListener(mb, exec, 1, counter)

	l.Handle(context.Background(), bus.InboundMessage{
		CorrelationID: "c1",
		Callback:      "replies",
		Command:       app.Command{Operation: domain.OpSave, Kind: "characteristic", ParentID: "p1"},
	})

	out, ok := mb.ConsumeOutbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "replies", out.Callback)
	assert.Equal(t, "c1", out.CorrelationID)
	assert.Equal(t, 201, out.Status)
	require.NotNil(t, out.Reply)
	assert.Equal(t, domain.Anonymous, exec.users[0])
	assert.Equal(t, 1, counter.results["ok"])
}

func TestHandleMapsErrors(t *testing.T) {
	mb := bus.NewMessageBus(4)
	exec := &fakeExecutor{err: &domain.ChildNotFoundError{Kind: "characteristic", ParentID: "p1"}}
	l := NewListener(mb, exec, 1, nil)

	l.Handle(context.Background(), bus.InboundMessage{Callback: "replies", User: domain.User{ID: "bob"}})

	out, ok := mb.ConsumeOutbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, 404, out.Status)
	assert.Equal(t, "not_found", out.Code)
	assert.Nil(t, out.Reply)
	assert.Equal(t, "bob", exec.users[0].ID)
}

func TestHandleWithoutCallbackIsSilent(t *testing.T) {
	mb := bus.NewMessageBus(4)
	l := NewListener(mb, &fakeExecutor{}, 1, nil)
	l.Handle(context.Background(), bus.InboundMessage{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := mb.ConsumeOutbound(ctx)
	assert.False(t, ok)
}

func TestRunDrainsUntilClosed(t *testing.T) {
	mb := bus.NewMessageBus(8)
	exec := &fakeExecutor{}
	l := NewListener(mb, exec, 3, nil)
	for i := 0; i < 5; i++ {
		mb.PublishInbound(bus.InboundMessage{})
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.users) == 5
	}, time.Second, 5*time.Millisecond)

	mb.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

type fakePublisher struct {
	channel string
	payload []byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestBridgeIngestAndReply(t *testing.T) {
	mb := bus.NewMessageBus(4)
	counter := &countingCounter{}
	pub := &fakePublisher{}
	b := &RedisBridge{pub: pub, bus: mb, counter: counter}

	b.Ingest(`{"correlation_id":"c9","callback":"cb","command":{"operation":"get","kind":"characteristic","parent_id":"p1"}}`)
	b.Ingest(`not json`)

	msg, ok := mb.ConsumeInbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "redis", msg.Source)
	assert.Equal(t, domain.OpGet, msg.Command.Operation)
	assert.Equal(t, 1, counter.results["invalid"])

	require.NoError(t, b.Reply(context.Background(), bus.OutboundMessage{Callback: "cb", CorrelationID: "c9", Status: 200}))
	assert.Equal(t, "cb", pub.channel)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, "c9", decoded["correlation_id"])
	assert.NotContains(t, decoded, "callback")
}
