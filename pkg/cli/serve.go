package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picocrud/pkg/api"
	"github.com/sipeed/picocrud/pkg/auth"
	"github.com/sipeed/picocrud/pkg/bus"
	"github.com/sipeed/picocrud/pkg/config"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/infrastructure/broker"
	"github.com/sipeed/picocrud/pkg/logger"
	"github.com/sipeed/picocrud/pkg/maintenance"
	"github.com/sipeed/picocrud/pkg/rpc"
)

type ServeOptions struct {
	*RootOptions
	Port    int
	Workers int
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API, gRPC, broker and maintenance services",
		Long: `Run every enabled service until interrupted:

  REST + WebSocket + /metrics on gateway.host:gateway.port
  gRPC on grpc.addr              (grpc.enabled)
  Redis command listener         (broker.enabled)
  store maintenance              (maintenance.schedule)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Port > 0 {
				opts.Config.Gateway.Port = opts.Port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.Config, opts.Workers)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "override gateway.port")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "broker listener workers")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, workers int) error {
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var mb *bus.MessageBus
	var bridge *broker.RedisBridge
	if cfg.Broker.Enabled {
		mb = bus.NewMessageBus(256)
		bridge, err = broker.NewRedisBridge(ctx, cfg.Broker.RedisAddr, cfg.Broker.Channel, mb, rt.metrics)
		if err != nil {
			return WrapExitError(ExitCommandError, "connect broker", err)
		}
		defer bridge.Close()
	}

	var sched *maintenance.Scheduler
	if cfg.Maintenance.Schedule != "" {
		sched, err = maintenance.New(cfg.Maintenance.Schedule, rt.store, rt.events, rt.metrics)
		if err != nil {
			return WrapExitError(ExitCommandError, "maintenance", err)
		}
	}

	// NewServer may generate a session API key; gRPC must see the same one.
	srv := api.NewServer(cfg, rt.container, rt.metrics, mb)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.GRPC.Enabled {
		rs := rpc.NewServer(rt.container.Dispatcher, auth.NewVerifier(cfg.Gateway.APIKey, cfg.Gateway.JWTSecret))
		g.Go(func() error { return rs.Run(gctx, cfg.GRPC.Addr) })
	}
	if mb != nil {
		listener := broker.NewListener(mb, rt.container.Dispatcher, workers, rt.metrics)
		g.Go(func() error { return ignoreCanceled(listener.Run(gctx)) })
		g.Go(func() error {
			defer mb.Close()
			return ignoreCanceled(bridge.Run(gctx))
		})
	}
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	rt.events.Publish(domain.NewEvent(domain.EventSystemStartup, "", map[string]interface{}{
		"version": Version,
		"addr":    cfg.Gateway.Addr(),
		"grpc":    cfg.GRPC.Enabled,
		"broker":  cfg.Broker.Enabled,
	}))

	err = g.Wait()
	rt.events.Publish(domain.NewEvent(domain.EventSystemShutdown, "", nil))
	logger.InfoC("serve", "Shutdown complete")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
