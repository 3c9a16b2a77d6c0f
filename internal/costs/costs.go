// Package costs rolls the latest per-zone state up into city-level dollar
// figures: energy spend, CO2 externality, air-quality burden, and civic
// incident load.
package costs

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/store"
)

// co2KgPerKWH is the grid-average emission factor.
const co2KgPerKWH = 0.4

// TariffSource resolves the $/kWh price for a region.
type TariffSource interface {
	PriceFor(ctx context.Context, region string) (float64, string)
}

// Pricing carries the tunable cost constants.
type Pricing struct {
	CarbonPricePerTon float64
	AQIPointPrice     float64
	IncidentPrice     float64
}

// Summary is the per-city cost rollup.
type Summary struct {
	CityID       string  `json:"city_id"`
	TotalKWH     float64 `json:"total_kwh"`
	EnergyUSD    float64 `json:"energy_usd"`
	CO2USD       float64 `json:"co2_usd"`
	AQIUSD       float64 `json:"aqi_usd"`
	IncidentUSD  float64 `json:"incident_usd"`
	TotalUSD     float64 `json:"total_usd"`
	PriceKWH     float64 `json:"price_per_kwh"`
	PriceSource  string  `json:"price_source"`
	ZoneCount    int     `json:"zone_count"`
	IncidentHits int     `json:"incident_count"`
}

// Aggregator computes cost summaries from the latest snapshots.
type Aggregator struct {
	store   *store.Store
	tariffs TariffSource
	pricing Pricing
}

// New builds an Aggregator.
func New(s *store.Store, tariffs TariffSource, pricing Pricing) *Aggregator {
	return &Aggregator{store: s, tariffs: tariffs, pricing: pricing}
}

// Summarize computes the rollup for a city. The incident count comes from
// the 311 raw-latest records when present.
func (a *Aggregator) Summarize(ctx context.Context, city models.City) (Summary, error) {
	snaps, err := a.store.LatestSnapshots(city.ID)
	if err != nil {
		return Summary{}, err
	}

	var totalKWH, aqiBurden float64
	for _, snap := range snaps {
		totalKWH += snap.Analytics.DemandForecast.NextHourKWH
		if snap.Raw.AQI != nil {
			aqiBurden += math.Max(0, snap.Raw.AQI.AQI-50)
		}
	}

	price, source := a.tariffs.PriceFor(ctx, city.Region)

	incidents := 0
	if recs, err := a.store.ReadRawLatest(store.Topic311, city.ID); err != nil {
		log.Warn().Err(err).Str("city", city.ID).Msg("Incident count unavailable")
	} else {
		incidents = len(recs)
	}

	sum := Summary{
		CityID:       city.ID,
		TotalKWH:     round2(totalKWH),
		EnergyUSD:    round2(totalKWH * price),
		CO2USD:       round2(totalKWH * co2KgPerKWH / 1000 * a.pricing.CarbonPricePerTon),
		AQIUSD:       round2(aqiBurden * a.pricing.AQIPointPrice),
		IncidentUSD:  round2(float64(incidents) * a.pricing.IncidentPrice),
		PriceKWH:     price,
		PriceSource:  source,
		ZoneCount:    len(snaps),
		IncidentHits: incidents,
	}
	sum.TotalUSD = round2(sum.EnergyUSD + sum.CO2USD + sum.AQIUSD + sum.IncidentUSD)
	return sum, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
