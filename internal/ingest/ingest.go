// Package ingest consumes the external signal topics from the message bus
// and maintains two views in the state store: an append-only live feed in
// arrival order and a latest-per-(city, zone) record per topic, so the
// streaming and batch paths converge on the same canonical state.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/store"
	"github.com/urbanmesh/gridpulse/internal/telemetry"
)

// Bus topics consumed by the ingester.
const (
	TopicPowerDemand   = "power_demand"
	TopicAQIStream     = "aqi_stream"
	TopicTrafficEvents = "traffic_events"
	TopicGridAlerts    = "grid_alerts"
	TopicIncidentText  = "incident_text"
)

// Topics lists every bus topic the ingester subscribes to.
var Topics = []string{
	TopicPowerDemand, TopicAQIStream, TopicTrafficEvents,
	TopicGridAlerts, TopicIncidentText,
}

const (
	batchSize     = 50
	batchIdleTime = time.Second
)

// Ingester routes bus messages into the state store.
type Ingester struct {
	store *store.Store
	now   func() time.Time

	messages chan models.RawLatest
	done     chan struct{}
}

// New builds an Ingester over the given store.
func New(s *store.Store) *Ingester {
	return &Ingester{
		store:    s,
		now:      time.Now,
		messages: make(chan models.RawLatest, batchSize*2),
		done:     make(chan struct{}),
	}
}

// Ingest handles one bus message: decode, upsert the raw-latest record, and
// queue for the live-feed batch. Undecodable payloads are kept as
// {"raw": <text>} rather than dropped.
func (in *Ingester) Ingest(ctx context.Context, topic string, value []byte) {
	var payload map[string]any
	if err := json.Unmarshal(value, &payload); err != nil || payload == nil {
		payload = map[string]any{"raw": string(value)}
	}

	now := in.now().UTC()
	rec := models.RawLatest{
		Topic:      topic,
		CityID:     stringField(payload, "city_id"),
		ZoneID:     stringField(payload, "zone_id"),
		TS:         messageTime(payload, now),
		IngestedAt: now,
		Payload:    payload,
	}
	telemetry.BusMessages.WithLabelValues(topic).Inc()

	if rec.CityID != "" && rec.ZoneID != "" {
		if err := in.store.UpsertRawLatest(routeTopic(topic, payload), rec); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Raw-latest upsert failed")
		}
	}

	select {
	case in.messages <- rec:
	case <-ctx.Done():
	}
}

// routeTopic maps a bus topic to its raw-latest collection. aqi_stream
// multiplexes weather and air-quality readings and splits on payload.type.
func routeTopic(topic string, payload map[string]any) store.Topic {
	switch topic {
	case TopicAQIStream:
		if stringField(payload, "type") == "weather" {
			return store.TopicWeather
		}
		return store.TopicAQI
	case TopicTrafficEvents:
		return store.TopicTraffic
	case TopicGridAlerts:
		return store.TopicGridAlerts
	case TopicIncidentText:
		return store.Topic311
	default:
		return store.TopicPowerDemand
	}
}

// RunBatcher accumulates live-feed writes and flushes every batchSize
// messages or after one second idle. It drains and flushes the pending
// batch before returning on cancellation.
func (in *Ingester) RunBatcher(ctx context.Context) {
	defer close(in.done)

	batch := make([]models.RawLatest, 0, batchSize)
	idle := time.NewTimer(batchIdleTime)
	defer idle.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := in.store.AppendLiveFeed(batch); err != nil {
			log.Error().Err(err).Int("count", len(batch)).Msg("Live-feed flush failed")
		} else {
			log.Debug().Int("count", len(batch)).Msg("Live-feed batch flushed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-in.messages:
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(batchIdleTime)
		case <-idle.C:
			flush()
			idle.Reset(batchIdleTime)
		case <-ctx.Done():
			// drain whatever producers already queued
			for {
				select {
				case rec := <-in.messages:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

// WaitClosed blocks until the batcher has flushed and exited.
func (in *Ingester) WaitClosed() {
	<-in.done
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// messageTime prefers the producer timestamp; arrival time otherwise.
func messageTime(payload map[string]any, fallback time.Time) time.Time {
	if s := stringField(payload, "ts"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
