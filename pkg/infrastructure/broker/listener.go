// Package broker connects external message brokers to the child command
// dispatcher: envelopes arrive on a channel, are executed, and replies go to
// the envelope's callback channel.
package broker

import (
	"context"
	"sync"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/bus"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/logger"
)

// Executor runs one child command.
type Executor interface {
	Execute(ctx context.Context, cmd app.Command, user domain.User) (app.Reply, error)
}

// Counter receives one call per handled message.
type Counter interface {
	BrokerMessage(result string)
}

// Listener drains inbound commands from the bus with a fixed worker pool.
type Listener struct {
	bus     *bus.MessageBus
	exec    Executor
	workers int
	counter Counter
}

func NewListener(mb *bus.MessageBus, exec Executor, workers int, counter Counter) *Listener {
	if workers <= 0 {
		workers = 4
	}
	return &Listener{bus: mb, exec: exec, workers: workers, counter: counter}
}

// Run blocks until ctx is done or the bus is closed.
func (l *Listener) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < l.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, ok := l.bus.ConsumeInbound(ctx)
				if !ok {
					return
				}
				l.Handle(ctx, msg)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Handle executes one message and, when it names a callback, publishes the
// reply. Errors become error replies; they never stop the listener.
func (l *Listener) Handle(ctx context.Context, msg bus.InboundMessage) {
	user := msg.User
	if user.ID == "" {
		user = domain.Anonymous
	}

	reply, err := l.exec.Execute(ctx, msg.Command, user)
	out := bus.OutboundMessage{
		Callback:      msg.Callback,
		CorrelationID: msg.CorrelationID,
	}
	if err != nil {
		out.Status = domain.StatusOf(err)
		out.Error = err.Error()
		out.Code = domain.CodeOf(err)
		l.count("error")
		logger.WarnCF("broker", "Command failed", map[string]interface{}{
			"correlation_id": msg.CorrelationID,
			"operation":      string(msg.Command.Operation),
			"kind":           string(msg.Command.Kind),
			"status":         out.Status,
			"error":          err,
		})
	} else {
		out.Status = reply.Status
		out.Reply = &reply
		l.count("ok")
	}

	if msg.Callback == "" {
		return
	}
	l.bus.PublishOutbound(out)
}

func (l *Listener) count(result string) {
	if l.counter != nil {
		l.counter.BrokerMessage(result)
	}
}
