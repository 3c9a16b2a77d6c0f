package scenario

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// toolTimeout bounds a single tool invocation.
const toolTimeout = 5 * time.Second

// tool is one read-only lookup in the orchestrator's plan. run returns a
// short human-readable summary for the trace.
type tool struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// runTools executes the plan sequentially, recording every invocation with
// its duration. A tool failure is recorded and the plan continues; the
// orchestrator degrades to whatever evidence it gathered.
func runTools(ctx context.Context, plan []tool, now func() time.Time) []models.TraceEntry {
	trace := make([]models.TraceEntry, 0, len(plan))
	for _, t := range plan {
		start := now()
		tctx, cancel := context.WithTimeout(ctx, toolTimeout)
		summary, err := t.run(tctx)
		cancel()

		entry := models.TraceEntry{
			Tool:       t.name,
			StartedAt:  start.UTC(),
			DurationMS: now().Sub(start).Milliseconds(),
			OK:         err == nil,
			Summary:    summary,
		}
		if err != nil {
			entry.Error = err.Error()
			log.Warn().Err(err).Str("tool", t.name).Msg("Scenario tool failed")
		}
		trace = append(trace, entry)

		if ctx.Err() != nil {
			break
		}
	}
	return trace
}
