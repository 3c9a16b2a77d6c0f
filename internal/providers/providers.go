// Package providers implements the external signal providers: weather, air
// quality, traffic, and electricity tariffs. Every provider walks a
// declarative fallback chain (API, local dataset, synthetic) so a fetch
// never blocks the processing engine on missing data. Errors downgrade to
// the next tier; they are logged, never propagated.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/telemetry"
)

// Tier identifies one rung of a provider's fallback chain.
type Tier string

const (
	TierAPI       Tier = "api"
	TierDataset   Tier = "dataset"
	TierSynthetic Tier = "synthetic"
)

const (
	// FetchTimeout bounds a single provider call, retry included.
	FetchTimeout = 10 * time.Second

	retryDelay     = 500 * time.Millisecond
	maxBodyBytes   = 1 << 20
	requestTimeout = 4 * time.Second
)

// httpClient is shared by all providers. Individual requests carry their
// own deadline; the client timeout is a backstop.
var httpClient = &http.Client{Timeout: FetchTimeout}

// getJSON issues a GET with one retry and decodes the response into out.
func getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		if err := getJSONOnce(ctx, url, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func getJSONOnce(ctx context.Context, url string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func recordFetch(provider string, tier Tier) {
	telemetry.ProviderFetches.WithLabelValues(provider, string(tier)).Inc()
}

func logDowngrade(provider string, from, to Tier, err error) {
	log.Debug().
		Str("provider", provider).
		Str("from", string(from)).
		Str("to", string(to)).
		Err(err).
		Msg("Provider tier downgrade")
}
