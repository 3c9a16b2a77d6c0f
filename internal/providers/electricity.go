package providers

import (
	"context"
	"fmt"
	"net/url"
)

const (
	SourceTariffAPI     = "tariff_api"
	SourceTariffDataset = "tariff_dataset"
	SourceTariffDefault = "tariff_default"
)

// Electricity resolves the state-level monthly retail price in $/kWh for
// the cost aggregator. Fallback chain: vendor API, dataset table, the
// configured default.
type Electricity struct {
	baseURL      string
	datasets     *Datasets
	defaultPrice float64
	forceTier    Tier
}

// NewElectricity builds the tariff provider. An empty baseURL disables the
// API tier.
func NewElectricity(baseURL string, datasets *Datasets, defaultPrice float64) *Electricity {
	return &Electricity{baseURL: baseURL, datasets: datasets, defaultPrice: defaultPrice}
}

// Tiers reports the fallback chain in descending preference.
func (e *Electricity) Tiers() []Tier {
	return []Tier{TierAPI, TierDataset, TierSynthetic}
}

// ForceTier pins the provider to a single tier.
func (e *Electricity) ForceTier(t Tier) { e.forceTier = t }

type tariffEnvelope struct {
	PricePerKWH float64 `json:"price_per_kwh"`
}

// PriceFor returns the $/kWh for a state/region plus the source label of
// the tier that served it. It always returns a usable price.
func (e *Electricity) PriceFor(ctx context.Context, region string) (float64, string) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	if e.tierEnabled(TierAPI) && e.baseURL != "" {
		price, err := e.fetchAPI(ctx, region)
		if err == nil {
			recordFetch("tariff", TierAPI)
			return price, SourceTariffAPI
		}
		logDowngrade("tariff", TierAPI, TierDataset, err)
	}

	if e.tierEnabled(TierDataset) && e.datasets != nil {
		if price, ok := e.datasets.TariffFor(region); ok {
			recordFetch("tariff", TierDataset)
			return price, SourceTariffDataset
		}
	}

	recordFetch("tariff", TierSynthetic)
	return e.defaultPrice, SourceTariffDefault
}

func (e *Electricity) fetchAPI(ctx context.Context, region string) (float64, error) {
	q := url.Values{}
	q.Set("state", region)

	var env tariffEnvelope
	if err := getJSON(ctx, e.baseURL+"?"+q.Encode(), &env); err != nil {
		return 0, err
	}
	if env.PricePerKWH <= 0 {
		return 0, fmt.Errorf("non-positive price %v", env.PricePerKWH)
	}
	return env.PricePerKWH, nil
}

func (e *Electricity) tierEnabled(t Tier) bool {
	return e.forceTier == "" || e.forceTier == t
}
