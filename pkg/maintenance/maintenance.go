// Package maintenance runs scheduled store upkeep (SQLite PRAGMA optimize,
// Postgres ANALYZE, file store sweeps) on a cron schedule.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/logger"
)

// Optimizer is implemented by every persistence.Store.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// Counter receives one call per run.
type Counter interface {
	MaintenanceRun(result string)
}

// Scheduler runs Optimize whenever the cron schedule is due.
type Scheduler struct {
	schedule string
	store    Optimizer
	events   domain.EventBus
	counter  Counter
	now      func() time.Time

	mu      sync.RWMutex
	runs    int
	failed  int
	lastRun time.Time
	lastErr error
}

// New validates schedule. events and counter may be nil.
func New(schedule string, store Optimizer, events domain.EventBus, counter Counter) (*Scheduler, error) {
	gron := gronx.New()
	if !gron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid maintenance schedule %q", schedule)
	}
	return &Scheduler{
		schedule: schedule,
		store:    store,
		events:   events,
		counter:  counter,
		now:      time.Now,
	}, nil
}

// Next returns the first due time strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.schedule, t, false)
}

// RunOnce optimizes the store immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()
	err := s.store.Optimize(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.runs++
	s.lastRun = start
	s.lastErr = err
	if err != nil {
		s.failed++
	}
	s.mu.Unlock()

	if err != nil {
		s.count("error")
		logger.ErrorCF("maintenance", "Store optimize failed", map[string]interface{}{
			"error":       err,
			"duration_ms": elapsed.Milliseconds(),
		})
		return err
	}

	s.count("ok")
	logger.InfoCF("maintenance", "Store optimized", map[string]interface{}{
		"duration_ms": elapsed.Milliseconds(),
	})
	if s.events != nil {
		s.events.Publish(domain.NewEvent(domain.EventStoreOptimized, "", map[string]interface{}{
			"duration_ms": elapsed.Milliseconds(),
		}))
	}
	return nil
}

// Run blocks until ctx is done, optimizing at every due time. A failed run
// is logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.InfoCF("maintenance", "Maintenance scheduled", map[string]interface{}{"schedule": s.schedule})
	for {
		next, err := s.Next(s.now())
		if err != nil {
			return fmt.Errorf("next maintenance tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// Status returns a snapshot of past runs.
func (s *Scheduler) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"schedule": s.schedule,
		"runs":     s.runs,
		"failed":   s.failed,
	}
	if !s.lastRun.IsZero() {
		status["last_run"] = s.lastRun.UTC().Format(time.RFC3339)
	}
	if s.lastErr != nil {
		status["last_error"] = s.lastErr.Error()
	}
	return status
}

func (s *Scheduler) count(result string) {
	if s.counter != nil {
		s.counter.MaintenanceRun(result)
	}
}
