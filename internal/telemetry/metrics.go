// Package telemetry exposes the Prometheus instrumentation shared across
// gridpulse components.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderFetches counts provider calls by provider name and the tier
	// that ultimately served the signal.
	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Name:      "provider_fetches_total",
		Help:      "External signal fetches by provider and serving tier.",
	}, []string{"provider", "tier"})

	// ZonesProcessed counts per-zone processing outcomes.
	ZonesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Name:      "zones_processed_total",
		Help:      "Zone processing outcomes by city and status.",
	}, []string{"city", "status"})

	// AlertsEmitted counts alerts by level.
	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Name:      "alerts_emitted_total",
		Help:      "Alerts emitted by level.",
	}, []string{"level"})

	// BusMessages counts bus messages consumed by topic.
	BusMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Name:      "bus_messages_total",
		Help:      "Bus messages consumed by topic.",
	}, []string{"topic"})

	// ScenarioRuns counts orchestrator exchanges by intent.
	ScenarioRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Name:      "scenario_runs_total",
		Help:      "Scenario orchestrator exchanges by classified intent.",
	}, []string{"intent"})

	// ProcessCityDuration observes full city fan-out durations.
	ProcessCityDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gridpulse",
		Name:      "process_city_seconds",
		Help:      "Duration of full city processing runs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"city", "mode"})
)
