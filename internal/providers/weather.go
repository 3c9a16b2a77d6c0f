package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/urbanmesh/gridpulse/internal/models"
)

const (
	SourceWeatherAPI      = "weather_api"
	SourceWeatherFallback = "weather_fallback"
)

// Weather fetches current conditions. Fallback chain: vendor API, monthly
// climate means keyed by city, neutral synthetic record.
type Weather struct {
	baseURL  string
	apiKey   string
	datasets *Datasets

	// forceTier, when set, skips earlier tiers. Tests use this to pin a
	// provider to its dataset or synthetic rung.
	forceTier Tier

	now func() time.Time
}

// NewWeather builds the weather provider. An empty baseURL disables the API
// tier entirely.
func NewWeather(baseURL, apiKey string, datasets *Datasets) *Weather {
	return &Weather{
		baseURL:  baseURL,
		apiKey:   apiKey,
		datasets: datasets,
		now:      time.Now,
	}
}

// Tiers reports the fallback chain in descending preference.
func (w *Weather) Tiers() []Tier {
	return []Tier{TierAPI, TierDataset, TierSynthetic}
}

// ForceTier pins the provider to a single tier. Passing the empty string
// restores the full chain.
func (w *Weather) ForceTier(t Tier) { w.forceTier = t }

type weatherEnvelope struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Description string  `json:"description"`
}

// Fetch returns current conditions for the coordinate. It never returns an
// error alongside a nil signal: the synthetic tier always produces.
func (w *Weather) Fetch(ctx context.Context, lat, lon float64, cityID string) *models.WeatherSignal {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	if w.tierEnabled(TierAPI) && w.baseURL != "" {
		sig, err := w.fetchAPI(ctx, lat, lon)
		if err == nil {
			recordFetch("weather", TierAPI)
			return sig
		}
		logDowngrade("weather", TierAPI, TierDataset, err)
	}

	if w.tierEnabled(TierDataset) && w.datasets != nil {
		if mean, ok := w.datasets.MonthlyMeanFor(cityID, int(w.now().Month())); ok {
			recordFetch("weather", TierDataset)
			return &models.WeatherSignal{
				Source:      SourceWeatherFallback,
				Timestamp:   w.now().UTC(),
				Temperature: mean.Temperature,
				Humidity:    mean.Humidity,
				WindSpeed:   mean.WindSpeed,
				Description: "monthly mean",
			}
		}
	}

	recordFetch("weather", TierSynthetic)
	return &models.WeatherSignal{
		Source:      SourceWeatherFallback,
		Timestamp:   w.now().UTC(),
		Temperature: 20,
		Humidity:    50,
		WindSpeed:   3,
		Description: "synthetic",
	}
}

func (w *Weather) fetchAPI(ctx context.Context, lat, lon float64) (*models.WeatherSignal, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", lat))
	q.Set("lon", fmt.Sprintf("%.4f", lon))
	if w.apiKey != "" {
		q.Set("key", w.apiKey)
	}

	var env weatherEnvelope
	if err := getJSON(ctx, w.baseURL+"?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	return &models.WeatherSignal{
		Source:      SourceWeatherAPI,
		Timestamp:   w.now().UTC(),
		Temperature: env.Temperature,
		Humidity:    env.Humidity,
		WindSpeed:   env.WindSpeed,
		Description: env.Description,
	}, nil
}

func (w *Weather) tierEnabled(t Tier) bool {
	return w.forceTier == "" || w.forceTier == t
}
