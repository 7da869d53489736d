// Package cleanup runs the background janitor: expired bus messages are
// pruned and dead checkin entries evicted on a timer.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/herd-sh/herd/pkg/bus"
	"github.com/herd-sh/herd/pkg/checkin"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/metrics"
)

// Service owns the janitor loop. Every pass is idempotent and in-process; a
// missed tick only delays eviction.
type Service struct {
	interval  time.Duration
	retention time.Duration
	bus       *bus.Bus
	checkins  *checkin.Registry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a janitor over the bus and checkin registry. Either
// dependency may be nil; its sweep is skipped.
func NewService(cfg config.CleanupConfig, b *bus.Bus, reg *checkin.Registry) *Service {
	return &Service{
		interval:  cfg.Interval.Std(),
		retention: cfg.CheckinRetention.Std(),
		bus:       b,
		checkins:  reg,
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Janitor started",
		"interval", s.interval,
		"checkin_retention", s.retention)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Janitor stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one janitor pass and refreshes the checkin gauge.
func (s *Service) Sweep() {
	if s.bus != nil {
		if n := s.bus.Prune(); n > 0 {
			slog.Info("Janitor pruned expired messages", "count", n)
		}
	}
	if s.checkins != nil {
		if n := s.checkins.Evict(s.retention); n > 0 {
			slog.Info("Janitor evicted dead checkins", "count", n)
		}
		metrics.CheckinsTracked.Set(float64(s.checkins.Len()))
	}
}
