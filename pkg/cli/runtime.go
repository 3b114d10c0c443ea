package cli

import (
	"context"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/config"
	"github.com/sipeed/picocrud/pkg/infrastructure/eventbus"
	"github.com/sipeed/picocrud/pkg/infrastructure/persistence"
	"github.com/sipeed/picocrud/pkg/metrics"
	"github.com/sipeed/picocrud/pkg/nested"
)

// runtime is the wired application shared by every command.
type runtime struct {
	store     persistence.Store
	events    *eventbus.InProcessEventBus
	metrics   *metrics.Metrics
	container *app.Container
}

func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	store, err := persistence.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	events := eventbus.New()
	m := metrics.New()
	return &runtime{
		store:     store,
		events:    events,
		metrics:   m,
		container: app.NewContainer(events, store, nested.WithRecorder(m)),
	}, nil
}

func (r *runtime) Close() error {
	r.events.Close()
	return r.store.Close()
}
