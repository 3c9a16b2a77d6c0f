package engine

import (
	"context"
	"fmt"

	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/providers"
	"github.com/urbanmesh/gridpulse/internal/store"
)

// ProcessCityFromStream runs the same fuse-and-persist path as ProcessCity
// but sources signals from the raw-latest records the streaming ingester
// maintains instead of calling providers.
func (e *Engine) ProcessCityFromStream(ctx context.Context, city models.City) (models.ProcessingSummary, error) {
	weather, err := e.rawSignals(store.TopicWeather, city.ID)
	if err != nil {
		return models.ProcessingSummary{}, err
	}
	airq, err := e.rawSignals(store.TopicAQI, city.ID)
	if err != nil {
		return models.ProcessingSummary{}, err
	}
	traffic, err := e.rawSignals(store.TopicTraffic, city.ID)
	if err != nil {
		return models.ProcessingSummary{}, err
	}

	return e.processZones(ctx, city, "stream", func(ctx context.Context, zone models.Zone) error {
		w := weatherFromRaw(weather[zone.ID])
		a := aqiFromRaw(airq[zone.ID])
		t := trafficFromRaw(traffic[zone.ID])
		if w == nil && a == nil && t == nil {
			return fmt.Errorf("zone %s: no raw-latest data", zone.ID)
		}
		_, err := e.fuse(ctx, city, zone.ID, w, a, t)
		return err
	})
}

func (e *Engine) rawSignals(topic store.Topic, cityID string) (map[string]*models.RawLatest, error) {
	recs, err := e.store.ReadRawLatest(topic, cityID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", topic, err)
	}
	byZone := make(map[string]*models.RawLatest, len(recs))
	for i := range recs {
		byZone[recs[i].ZoneID] = &recs[i]
	}
	return byZone, nil
}

func weatherFromRaw(rec *models.RawLatest) *models.WeatherSignal {
	if rec == nil {
		return nil
	}
	return &models.WeatherSignal{
		Source:      "stream",
		Timestamp:   rec.TS,
		Temperature: floatField(rec.Payload, "temperature"),
		Humidity:    floatField(rec.Payload, "humidity"),
		WindSpeed:   floatField(rec.Payload, "wind_speed"),
	}
}

func aqiFromRaw(rec *models.RawLatest) *models.AirQualitySignal {
	if rec == nil {
		return nil
	}
	return &models.AirQualitySignal{
		Source:    "stream",
		Timestamp: rec.TS,
		AQI:       floatField(rec.Payload, "aqi"),
	}
}

func trafficFromRaw(rec *models.RawLatest) *models.TrafficSignal {
	if rec == nil {
		return nil
	}
	current := floatField(rec.Payload, "current_speed")
	freeFlow := floatField(rec.Payload, "free_flow_speed")
	return &models.TrafficSignal{
		Source:        "stream",
		Timestamp:     rec.TS,
		CurrentSpeed:  current,
		FreeFlowSpeed: freeFlow,
		Congestion:    providers.Congestion(current, freeFlow),
	}
}

// floatField reads a numeric payload field, tolerating the types JSON
// decoding produces.
func floatField(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
