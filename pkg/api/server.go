// picocrud - HTTP API server
// Serves the REST child-collection routes, WebSocket events and metrics.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/auth"
	"github.com/sipeed/picocrud/pkg/bus"
	"github.com/sipeed/picocrud/pkg/config"
	"github.com/sipeed/picocrud/pkg/logger"
	"github.com/sipeed/picocrud/pkg/metrics"
)

// Server is the HTTP API server.
type Server struct {
	config      *config.Config
	container   *app.Container
	verifier    *auth.Verifier
	metrics     *metrics.Metrics
	wsHub       *WSHub
	eventBridge *EventBridge
	limiter     *rateLimiter
	router      *gin.Engine
	startTime   time.Time
	server      *http.Server
	mu          sync.Mutex
}

// NewServer creates a new API server instance. msgBus may be nil when the
// broker is disabled; metrics may be nil to skip instrumentation.
func NewServer(cfg *config.Config, container *app.Container, m *metrics.Metrics, msgBus *bus.MessageBus) *Server {
	// Secure by default: a random key per process when nothing is configured.
	if cfg.Gateway.APIKey == "" && cfg.Gateway.JWTSecret == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, "╔══════════════════════════════════════════════════════╗")
			fmt.Fprintln(os.Stderr, "║          PICOCRUD API KEY (session token)            ║")
			fmt.Fprintf(os.Stderr, "║  %-50s  ║\n", cfg.Gateway.APIKey)
			fmt.Fprintln(os.Stderr, "║  Set gateway.api_key in config.yaml to make          ║")
			fmt.Fprintln(os.Stderr, "║  this permanent. Rotate it any time.                 ║")
			fmt.Fprintln(os.Stderr, "╚══════════════════════════════════════════════════════╝")
			fmt.Fprintln(os.Stderr)
		}
	}

	s := &Server{
		config:    cfg,
		container: container,
		verifier:  auth.NewVerifier(cfg.Gateway.APIKey, cfg.Gateway.JWTSecret),
		metrics:   m,
		limiter:   newRateLimiter(cfg.Gateway.RateLimit.RPS, cfg.Gateway.RateLimit.Burst),
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(container.Dispatcher, container.Service, s.startTime)
	s.eventBridge = NewEventBridge(container.EventBus, msgBus, s.wsHub)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(), s.requestMetrics(), s.authRequired(), s.rateLimit())

	r.GET("/api/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/api/ws", s.wsHub.HandleWebSocket)

	res := r.Group("/api/resources")
	res.POST("", s.handleCreateResource)
	res.GET("", s.handleListResources)
	res.GET("/:id", s.handleGetResource)
	res.PATCH("/:id", s.handlePatchResource)
	res.DELETE("/:id", s.handleDeleteResource)

	res.GET("/:id/:kind", s.handleGetChildren)
	res.GET("/:id/:kind/items/:childId", s.handleGetChild)

	res.POST("/:id/:kind", s.handleSaveChild)
	res.POST("/:id/:kind/many", s.handleSaveChildren)

	res.PUT("/:id/:kind", s.handleUpdateChild)
	res.PUT("/:id/:kind/many", s.handleUpdateChildren)
	res.PUT("/:id/:kind/items/:childId", s.handleUpdateChildByID)
	res.PUT("/:id/:kind/by/:field/:value", s.handleUpdateChildBy)

	res.DELETE("/:id/:kind", s.handleDeleteChild)
	res.DELETE("/:id/:kind/many", s.handleDeleteChildren)
	res.DELETE("/:id/:kind/items/:childId", s.handleDeleteChildByID)
	res.DELETE("/:id/:kind/by/:field/:value", s.handleDeleteChildBy)

	return r
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Gateway.Addr()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	logger.InfoCF("api", "API server starting", map[string]interface{}{
		"addr":       addr,
		"jwt":        s.config.Gateway.JWTSecret != "",
		"rate_limit": s.config.Gateway.RateLimit.RPS,
	})

	go s.wsHub.Run(ctx)
	s.eventBridge.Run(ctx)
	go s.limiter.sweepEvery(ctx, time.Minute, 10*time.Minute)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"kinds":          s.container.Dispatcher.Kinds(),
	})
}
