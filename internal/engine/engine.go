// Package engine runs the fan-out ingestion and fusion pipeline: for a
// selected city it enumerates zones, gathers per-zone external signals,
// runs the analytics kernel in fixed order, persists the fused snapshot,
// and emits alerts plus a per-run summary.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/urbanmesh/gridpulse/internal/analytics"
	"github.com/urbanmesh/gridpulse/internal/cities"
	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/providers"
	"github.com/urbanmesh/gridpulse/internal/store"
	"github.com/urbanmesh/gridpulse/internal/telemetry"
)

const (
	// zoneDeadline bounds one full ProcessZone, providers included.
	zoneDeadline = 30 * time.Second

	// maxConcurrentZones bounds the city fan-out.
	maxConcurrentZones = 8

	// historyWindow is how many prior forecasts seed the anomaly baseline.
	historyWindow = 12
)

// WeatherProvider, AirQualityProvider and TrafficProvider are the narrow
// contracts the engine needs from the signal layer.
type WeatherProvider interface {
	Fetch(ctx context.Context, lat, lon float64, cityID string) *models.WeatherSignal
}

type AirQualityProvider interface {
	Fetch(ctx context.Context, lat, lon float64, cityID string) *models.AirQualitySignal
}

type TrafficProvider interface {
	Fetch(ctx context.Context, lat, lon float64, cityID string) *models.TrafficSignal
}

// Notifier receives engine outputs for fan-out to connected clients.
// Implementations must not block.
type Notifier interface {
	NotifyAlert(models.Alert)
	NotifySummary(models.ProcessingSummary)
}

// Engine fuses provider signals into per-zone snapshots.
type Engine struct {
	store    *store.Store
	weather  WeatherProvider
	aqi      AirQualityProvider
	traffic  TrafficProvider
	notifier Notifier
	maxZones int
	now      func() time.Time
}

// Config wires an Engine.
type Config struct {
	Store    *store.Store
	Weather  WeatherProvider
	AirQual  AirQualityProvider
	Traffic  TrafficProvider
	Notifier Notifier
	// MaxZones caps how many zones one run processes; 0 means all.
	MaxZones int
}

// New builds an Engine.
func New(cfg Config) *Engine {
	return &Engine{
		store:    cfg.Store,
		weather:  cfg.Weather,
		aqi:      cfg.AirQual,
		traffic:  cfg.Traffic,
		notifier: cfg.Notifier,
		maxZones: cfg.MaxZones,
		now:      time.Now,
	}
}

// ProcessZone fetches the zone's signals concurrently, fuses them through
// the analytics kernel in fixed order, persists the snapshot, and emits
// any threshold alerts.
func (e *Engine) ProcessZone(ctx context.Context, city models.City, zone models.Zone) (models.ZoneSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, zoneDeadline)
	defer cancel()

	var (
		weather *models.WeatherSignal
		airq    *models.AirQualitySignal
		traffic *models.TrafficSignal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		weather = e.weather.Fetch(gctx, zone.Center.Lat, zone.Center.Lon, city.ID)
		return nil
	})
	g.Go(func() error {
		airq = e.aqi.Fetch(gctx, zone.Center.Lat, zone.Center.Lon, city.ID)
		return nil
	})
	g.Go(func() error {
		traffic = e.traffic.Fetch(gctx, zone.Center.Lat, zone.Center.Lon, city.ID)
		return nil
	})
	g.Wait()

	if err := ctx.Err(); err != nil {
		return models.ZoneSnapshot{}, fmt.Errorf("zone %s cancelled: %w", zone.ID, err)
	}
	if weather == nil && airq == nil && traffic == nil {
		return models.ZoneSnapshot{}, fmt.Errorf("zone %s: no signal from any provider", zone.ID)
	}

	e.recordSignalHistory(city.ID, zone.ID, weather, airq, traffic)

	return e.fuse(ctx, city, zone.ID, weather, airq, traffic)
}

// fuse is the shared tail of the live-pull and bus-fed paths: kernel in
// fixed order, recommendations, persist, alerts.
func (e *Engine) fuse(ctx context.Context, city models.City, zoneID string,
	weather *models.WeatherSignal, airq *models.AirQualitySignal, traffic *models.TrafficSignal) (models.ZoneSnapshot, error) {

	history, err := e.store.DemandHistory(city.ID, zoneID, historyWindow)
	if err != nil {
		log.Warn().Err(err).Str("zone", zoneID).Msg("Demand history unavailable; continuing without")
		history = nil
	}

	forecast := analytics.DemandForecast(weather, history)
	anomaly := analytics.DetectAnomaly(forecast.NextHourKWH, history, airq, traffic)
	risk := analytics.RiskScore(airq, traffic, forecast, history)
	resilience := analytics.ResilienceScore(risk)
	projection := analytics.ProjectAQI(airq, weather, traffic)
	priority := analytics.GridPriority(risk, anomaly, airq, forecast)

	snap := models.ZoneSnapshot{
		CityID:    city.ID,
		ZoneID:    zoneID,
		Timestamp: e.now().UTC(),
		Raw: models.RawRecord{
			Weather:      weather,
			AQI:          airq,
			Traffic:      traffic,
			GridPriority: priority,
		},
		Analytics: models.Analytics{
			DemandForecast:   forecast,
			AnomalyDetection: anomaly,
			RiskScore:        risk,
			ResilienceScore:  resilience,
			AQIPrediction:    projection,
		},
	}
	snap.Recommendations = recommendations(snap)

	if err := e.store.WriteSnapshot(snap); err != nil {
		return models.ZoneSnapshot{}, fmt.Errorf("persist snapshot for %s: %w", zoneID, err)
	}

	e.emitAlerts(zoneAlerts(snap, e.now().UTC()))
	return snap, nil
}

// recordSignalHistory appends fetched signals to the live feed, best-effort.
func (e *Engine) recordSignalHistory(cityID, zoneID string,
	weather *models.WeatherSignal, airq *models.AirQualitySignal, traffic *models.TrafficSignal) {

	now := e.now().UTC()
	var recs []models.RawLatest
	if weather != nil {
		recs = append(recs, models.RawLatest{
			Topic: "weather", CityID: cityID, ZoneID: zoneID,
			TS: weather.Timestamp, IngestedAt: now,
			Payload: map[string]any{
				"source": weather.Source, "temperature": weather.Temperature,
				"humidity": weather.Humidity, "wind_speed": weather.WindSpeed,
			},
		})
	}
	if airq != nil {
		recs = append(recs, models.RawLatest{
			Topic: "aqi", CityID: cityID, ZoneID: zoneID,
			TS: airq.Timestamp, IngestedAt: now,
			Payload: map[string]any{"source": airq.Source, "aqi": airq.AQI},
		})
	}
	if traffic != nil {
		recs = append(recs, models.RawLatest{
			Topic: "traffic", CityID: cityID, ZoneID: zoneID,
			TS: traffic.Timestamp, IngestedAt: now,
			Payload: map[string]any{
				"source": traffic.Source, "current_speed": traffic.CurrentSpeed,
				"free_flow_speed": traffic.FreeFlowSpeed, "congestion": string(traffic.Congestion),
			},
		})
	}
	if err := e.store.AppendLiveFeed(recs); err != nil {
		log.Warn().Err(err).Str("zone", zoneID).Msg("Signal history append failed")
	}
}

// ProcessCity fans ProcessZone out over the city's zones with bounded
// concurrency. Individual zone failures are recorded, never fatal.
func (e *Engine) ProcessCity(ctx context.Context, city models.City) (models.ProcessingSummary, error) {
	return e.processZones(ctx, city, "live", func(ctx context.Context, zone models.Zone) error {
		_, err := e.ProcessZone(ctx, city, zone)
		return err
	})
}

func (e *Engine) processZones(ctx context.Context, city models.City, mode string,
	run func(context.Context, models.Zone) error) (models.ProcessingSummary, error) {

	start := e.now()
	zones := cities.Zones(city)
	if e.maxZones > 0 && len(zones) > e.maxZones {
		zones = zones[:e.maxZones]
	}

	log.Info().Str("city", city.ID).Int("zones", len(zones)).Str("mode", mode).
		Msg("Processing city")

	sem := semaphore.NewWeighted(maxConcurrentZones)
	statuses := make([]models.ZoneStatus, len(zones))
	g, gctx := errgroup.WithContext(ctx)
	for i, zone := range zones {
		if err := sem.Acquire(gctx, 1); err != nil {
			statuses[i] = models.ZoneStatus{ZoneID: zone.ID, Error: err.Error()}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := run(gctx, zone); err != nil {
				log.Warn().Err(err).Str("city", city.ID).Str("zone", zone.ID).
					Msg("Zone processing failed")
				telemetry.ZonesProcessed.WithLabelValues(city.ID, "failed").Inc()
				statuses[i] = models.ZoneStatus{ZoneID: zone.ID, Error: err.Error()}
				return nil
			}
			telemetry.ZonesProcessed.WithLabelValues(city.ID, "ok").Inc()
			statuses[i] = models.ZoneStatus{ZoneID: zone.ID, OK: true}
			return nil
		})
	}
	g.Wait()

	summary := models.ProcessingSummary{
		CityID:    city.ID,
		Timestamp: e.now().UTC(),
		Total:     len(zones),
		Zones:     statuses,
	}
	for _, st := range statuses {
		if st.OK {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	if summary.Successful > 0 {
		e.emitAlerts([]models.Alert{completionAlert(city.ID, summary, e.now().UTC())})
		if err := e.store.WriteProcessingSummary(summary); err != nil {
			log.Error().Err(err).Str("city", city.ID).Msg("Summary persist failed")
		}
		if e.notifier != nil {
			e.notifier.NotifySummary(summary)
		}
	}

	telemetry.ProcessCityDuration.WithLabelValues(city.ID, mode).
		Observe(e.now().Sub(start).Seconds())
	log.Info().Str("city", city.ID).Int("successful", summary.Successful).
		Int("failed", summary.Failed).Msg("City processing complete")

	return summary, ctx.Err()
}

// emitAlerts persists a batch and fans it out to the notifier.
func (e *Engine) emitAlerts(alerts []models.Alert) {
	if len(alerts) == 0 {
		return
	}
	if err := e.store.InsertAlerts(alerts); err != nil {
		log.Error().Err(err).Int("count", len(alerts)).Msg("Alert persist failed")
		return
	}
	if e.notifier != nil {
		for _, a := range alerts {
			e.notifier.NotifyAlert(a)
		}
	}
}

var _ WeatherProvider = (*providers.Weather)(nil)
var _ AirQualityProvider = (*providers.AirQuality)(nil)
var _ TrafficProvider = (*providers.Traffic)(nil)
