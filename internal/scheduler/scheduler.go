// Package scheduler runs the periodic city processing loop. One loop per
// process; the target city can be hot-swapped between ticks.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// DefaultInterval is the cycle period when none is configured.
const DefaultInterval = 300 * time.Second

// stopGrace is how long Stop waits for an in-flight run before hard
// cancellation.
const stopGrace = 10 * time.Second

// Runner is the processing entry point the scheduler drives.
type Runner interface {
	ProcessCity(ctx context.Context, city models.City) (models.ProcessingSummary, error)
}

// Scheduler owns the single processing loop. Safe for concurrent use.
type Scheduler struct {
	runner   Runner
	interval time.Duration

	city atomic.Pointer[models.City]

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a stopped Scheduler. A non-positive interval selects the
// default.
func New(runner Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{runner: runner, interval: interval}
}

// Start begins the loop for a city: one immediate run, then one per
// interval. A positive interval replaces the configured one; non-positive
// keeps it. Calling Start while running only retargets the city; an
// interval change takes effect when the loop next starts.
func (s *Scheduler) Start(city models.City, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.city.Store(&city)
	if interval > 0 {
		s.interval = interval
	}
	if s.running {
		log.Debug().Str("city", city.ID).Msg("Scheduler already running; city updated")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.stop = make(chan struct{})
	s.cancel = cancel
	s.done = make(chan struct{})

	log.Info().Str("city", city.ID).Dur("interval", s.interval).Msg("Scheduler started")
	go s.loop(ctx, s.interval, s.stop, s.done)
}

// UpdateCity retargets the loop; the next tick processes the new city.
func (s *Scheduler) UpdateCity(city models.City) {
	s.city.Store(&city)
	log.Info().Str("city", city.ID).Msg("Scheduler city updated")
}

// City returns the current target, or nil when never started.
func (s *Scheduler) City() *models.City {
	return s.city.Load()
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop ends the loop. An in-flight run gets a grace period to finish, then
// is cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, cancel, done := s.stop, s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Warn().Msg("Scheduler grace period expired; cancelling in-flight run")
		cancel()
		<-done
	}
	cancel()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, stop chan struct{}, done chan struct{}) {
	defer close(done)

	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runOnce processes the current city; failures are logged and the loop
// continues on the next tick.
func (s *Scheduler) runOnce(ctx context.Context) {
	city := s.city.Load()
	if city == nil {
		return
	}
	summary, err := s.runner.ProcessCity(ctx, *city)
	if err != nil {
		log.Error().Err(err).Str("city", city.ID).Msg("Scheduled run failed")
		return
	}
	log.Debug().Str("city", city.ID).Int("successful", summary.Successful).
		Int("failed", summary.Failed).Msg("Scheduled run complete")
}
