package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/urbanmesh/gridpulse/internal/models"
)

const (
	SourceTrafficAPI       = "traffic_api"
	SourceTrafficSynthetic = "traffic_synthetic"
)

// Traffic fetches current and free-flow speeds. There is no local dataset
// for traffic; the chain is API then synthetic.
type Traffic struct {
	baseURL   string
	apiKey    string
	forceTier Tier
	now       func() time.Time
}

// NewTraffic builds the traffic provider. An empty baseURL disables the API
// tier.
func NewTraffic(baseURL, apiKey string) *Traffic {
	return &Traffic{baseURL: baseURL, apiKey: apiKey, now: time.Now}
}

// Tiers reports the fallback chain in descending preference.
func (t *Traffic) Tiers() []Tier {
	return []Tier{TierAPI, TierSynthetic}
}

// ForceTier pins the provider to a single tier.
func (t *Traffic) ForceTier(tier Tier) { t.forceTier = tier }

type trafficEnvelope struct {
	CurrentSpeed  float64 `json:"current_speed"`
	FreeFlowSpeed float64 `json:"free_flow_speed"`
}

// Fetch returns traffic conditions for the coordinate; the synthetic tier
// guarantees a non-nil signal with unknown congestion.
func (t *Traffic) Fetch(ctx context.Context, lat, lon float64, cityID string) *models.TrafficSignal {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	if t.tierEnabled(TierAPI) && t.baseURL != "" {
		sig, err := t.fetchAPI(ctx, lat, lon)
		if err == nil {
			recordFetch("traffic", TierAPI)
			return sig
		}
		logDowngrade("traffic", TierAPI, TierSynthetic, err)
	}

	recordFetch("traffic", TierSynthetic)
	return &models.TrafficSignal{
		Source:     SourceTrafficSynthetic,
		Timestamp:  t.now().UTC(),
		Congestion: models.CongestionUnknown,
	}
}

func (t *Traffic) fetchAPI(ctx context.Context, lat, lon float64) (*models.TrafficSignal, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", lat))
	q.Set("lon", fmt.Sprintf("%.4f", lon))
	if t.apiKey != "" {
		q.Set("key", t.apiKey)
	}

	var env trafficEnvelope
	if err := getJSON(ctx, t.baseURL+"?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	return &models.TrafficSignal{
		Source:        SourceTrafficAPI,
		Timestamp:     t.now().UTC(),
		CurrentSpeed:  env.CurrentSpeed,
		FreeFlowSpeed: env.FreeFlowSpeed,
		Congestion:    Congestion(env.CurrentSpeed, env.FreeFlowSpeed),
	}, nil
}

func (t *Traffic) tierEnabled(tier Tier) bool {
	return t.forceTier == "" || t.forceTier == tier
}

// Congestion classifies flow by the ratio of current to free-flow speed:
// >=0.9 free, >=0.7 moderate, >=0.5 heavy, below severe. A zero free-flow
// speed means the classification is unknown.
func Congestion(current, freeFlow float64) models.Congestion {
	if freeFlow == 0 {
		return models.CongestionUnknown
	}
	switch ratio := current / freeFlow; {
	case ratio >= 0.9:
		return models.CongestionFree
	case ratio >= 0.7:
		return models.CongestionModerate
	case ratio >= 0.5:
		return models.CongestionHeavy
	default:
		return models.CongestionSevere
	}
}
