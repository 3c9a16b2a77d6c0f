package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/urbanmesh/gridpulse/internal/models"
)

const (
	SourceAQIAPI     = "aqi_api"
	SourceAQIDataset = "aqi_dataset"
	SourceSynthetic  = "synthetic"

	syntheticAQI = 50.0
)

// AirQuality fetches the AQI and pollutant components. Fallback chain:
// vendor API, nearest dataset station within 50 km, synthetic AQI 50.
type AirQuality struct {
	baseURL   string
	apiKey    string
	datasets  *Datasets
	forceTier Tier
	now       func() time.Time
}

// NewAirQuality builds the air-quality provider. An empty baseURL disables
// the API tier.
func NewAirQuality(baseURL, apiKey string, datasets *Datasets) *AirQuality {
	return &AirQuality{
		baseURL:  baseURL,
		apiKey:   apiKey,
		datasets: datasets,
		now:      time.Now,
	}
}

// Tiers reports the fallback chain in descending preference.
func (a *AirQuality) Tiers() []Tier {
	return []Tier{TierAPI, TierDataset, TierSynthetic}
}

// ForceTier pins the provider to a single tier.
func (a *AirQuality) ForceTier(t Tier) { a.forceTier = t }

type aqiEnvelope struct {
	AQI        float64            `json:"aqi"`
	Components map[string]float64 `json:"components"`
}

// Fetch returns air quality for the coordinate; the synthetic tier
// guarantees a non-nil signal.
func (a *AirQuality) Fetch(ctx context.Context, lat, lon float64, cityID string) *models.AirQualitySignal {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	if a.tierEnabled(TierAPI) && a.baseURL != "" {
		sig, err := a.fetchAPI(ctx, lat, lon)
		if err == nil {
			recordFetch("aqi", TierAPI)
			return sig
		}
		logDowngrade("aqi", TierAPI, TierDataset, err)
	}

	if a.tierEnabled(TierDataset) && a.datasets != nil {
		if station, ok := a.datasets.NearestStation(lat, lon); ok {
			recordFetch("aqi", TierDataset)
			return &models.AirQualitySignal{
				Source:    SourceAQIDataset,
				Timestamp: a.now().UTC(),
				AQI:       station.AQI,
				Components: map[string]float64{
					"pm2_5": station.PM25,
				},
			}
		}
	}

	recordFetch("aqi", TierSynthetic)
	return &models.AirQualitySignal{
		Source:    SourceSynthetic,
		Timestamp: a.now().UTC(),
		AQI:       syntheticAQI,
	}
}

func (a *AirQuality) fetchAPI(ctx context.Context, lat, lon float64) (*models.AirQualitySignal, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", lat))
	q.Set("lon", fmt.Sprintf("%.4f", lon))
	if a.apiKey != "" {
		q.Set("key", a.apiKey)
	}

	var env aqiEnvelope
	if err := getJSON(ctx, a.baseURL+"?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	if env.AQI < 0 || env.AQI > 500 {
		return nil, fmt.Errorf("aqi %v out of range", env.AQI)
	}
	return &models.AirQualitySignal{
		Source:     SourceAQIAPI,
		Timestamp:  a.now().UTC(),
		AQI:        env.AQI,
		Components: env.Components,
	}, nil
}

func (a *AirQuality) tierEnabled(t Tier) bool {
	return a.forceTier == "" || a.forceTier == t
}
