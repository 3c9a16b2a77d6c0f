package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanmesh/gridpulse/internal/models"
)

type recordingRunner struct {
	mu     sync.Mutex
	cities []string
	block  time.Duration
	ran    chan string
}

func newRecordingRunner(block time.Duration) *recordingRunner {
	return &recordingRunner{block: block, ran: make(chan string, 16)}
}

func (r *recordingRunner) ProcessCity(ctx context.Context, city models.City) (models.ProcessingSummary, error) {
	r.mu.Lock()
	r.cities = append(r.cities, city.ID)
	r.mu.Unlock()
	if r.block > 0 {
		select {
		case <-time.After(r.block):
		case <-ctx.Done():
			return models.ProcessingSummary{}, ctx.Err()
		}
	}
	r.ran <- city.ID
	return models.ProcessingSummary{CityID: city.ID, Total: 1, Successful: 1}, nil
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cities))
	copy(out, r.cities)
	return out
}

func waitRun(t *testing.T, r *recordingRunner) string {
	t.Helper()
	select {
	case id := <-r.ran:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduled run")
		return ""
	}
}

func TestStart_RunsImmediatelyThenTicks(t *testing.T) {
	runner := newRecordingRunner(0)
	s := New(runner, 50*time.Millisecond)
	defer s.Stop()

	s.Start(models.City{ID: "nyc"}, 0)
	assert.Equal(t, "nyc", waitRun(t, runner))
	assert.Equal(t, "nyc", waitRun(t, runner)) // first tick
	assert.True(t, s.Running())
}

func TestStart_IsIdempotent(t *testing.T) {
	runner := newRecordingRunner(0)
	s := New(runner, time.Hour)
	defer s.Stop()

	s.Start(models.City{ID: "nyc"}, 0)
	waitRun(t, runner)
	s.Start(models.City{ID: "la"}, 0) // no second loop, just a retarget

	assert.True(t, s.Running())
	require.NotNil(t, s.City())
	assert.Equal(t, "la", s.City().ID)

	// only the initial immediate run happened
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"nyc"}, runner.seen())
}

func TestStart_IntervalOverride(t *testing.T) {
	runner := newRecordingRunner(0)
	s := New(runner, time.Hour)
	defer s.Stop()

	// a positive interval on Start replaces the configured one
	s.Start(models.City{ID: "nyc"}, 50*time.Millisecond)
	waitRun(t, runner)
	waitRun(t, runner) // a tick well before the constructed hour
}

func TestUpdateCity_NextTickUsesNewCity(t *testing.T) {
	runner := newRecordingRunner(0)
	s := New(runner, 50*time.Millisecond)
	defer s.Stop()

	s.Start(models.City{ID: "nyc"}, 0)
	waitRun(t, runner)

	s.UpdateCity(models.City{ID: "chicago"})
	require.Eventually(t, func() bool {
		for _, id := range runner.seen() {
			if id == "chicago" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStop_WaitsForInFlightRun(t *testing.T) {
	runner := newRecordingRunner(150 * time.Millisecond)
	s := New(runner, time.Hour)

	s.Start(models.City{ID: "nyc"}, 0)
	time.Sleep(30 * time.Millisecond) // let the immediate run begin

	start := time.Now()
	s.Stop()
	elapsed := time.Since(start)

	assert.False(t, s.Running())
	// the in-flight run completed within the grace period
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Equal(t, []string{"nyc"}, runner.seen())
}

func TestStop_WithoutStartIsNoop(t *testing.T) {
	s := New(newRecordingRunner(0), time.Second)
	s.Stop()
	assert.False(t, s.Running())
}

func TestRestartAfterStop(t *testing.T) {
	runner := newRecordingRunner(0)
	s := New(runner, time.Hour)

	s.Start(models.City{ID: "nyc"}, 0)
	waitRun(t, runner)
	s.Stop()

	s.Start(models.City{ID: "la"}, 0)
	defer s.Stop()
	assert.Equal(t, "la", waitRun(t, runner))
}
