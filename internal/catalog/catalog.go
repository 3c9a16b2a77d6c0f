// Package catalog is the read surface over operational grounding facts:
// registered assets, active events, service outages, and remedial playbooks.
// Entries are created externally; the orchestrator only reads them and cites
// event ids as evidence.
package catalog

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/store"
)

// defaultPlaybooks is installed on first read when the playbook table is
// empty, so a fresh deployment can still recommend actions.
var defaultPlaybooks = []models.Playbook{
	{EventType: "outage", ActionID: "dispatch_crew", Name: "Dispatch repair crew",
		Description: "Send a field crew to the affected zone to restore service.",
		ETAMinutes:  60, CostEstimate: 500},
	{EventType: "outage", ActionID: "load_shed_zone", Name: "Shed zone load",
		Description: "Temporarily reduce load in the affected zone to protect the feeder.",
		ETAMinutes:  15, CostEstimate: 0},
	{EventType: "aqi_spike", ActionID: "notify_public", Name: "Issue public advisory",
		Description: "Push an air-quality advisory to residents in the affected zones.",
		ETAMinutes:  5, CostEstimate: 0},
	{EventType: "aqi_spike", ActionID: "reduce_industrial", Name: "Request industrial curtailment",
		Description: "Ask major industrial emitters to curtail output until AQI recovers.",
		ETAMinutes:  120, CostEstimate: 2000},
	{EventType: "road_closure", ActionID: "reroute_crews", Name: "Reroute field crews",
		Description: "Update crew routing to avoid the closed segments.",
		ETAMinutes:  30, CostEstimate: 100},
	{EventType: "failure", ActionID: "isolate_asset", Name: "Isolate failed asset",
		Description: "Open switches around the failed asset and confirm isolation.",
		ETAMinutes:  45, CostEstimate: 300},
}

// Catalog exposes read-only grounding queries.
type Catalog struct {
	store    *store.Store
	seedOnce sync.Once
}

// New wraps the state store with the catalog query surface.
func New(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

func (c *Catalog) ensureSeeded() {
	c.seedOnce.Do(func() {
		n, err := c.store.PlaybookCount()
		if err != nil {
			log.Warn().Err(err).Msg("Playbook count check failed; skipping seed")
			return
		}
		if n > 0 {
			return
		}
		if err := c.store.SeedPlaybooks(defaultPlaybooks); err != nil {
			log.Warn().Err(err).Msg("Default playbook seed failed")
			return
		}
		log.Info().Int("count", len(defaultPlaybooks)).Msg("Seeded default playbooks")
	})
}

// Assets lists registered infrastructure for a city, optionally narrowed to
// a zone.
func (c *Catalog) Assets(cityID, zoneID string) ([]models.Asset, error) {
	c.ensureSeeded()
	return c.store.Assets(cityID, zoneID)
}

// ActiveEvents lists current operational events for a city, optionally
// filtered by event type.
func (c *Catalog) ActiveEvents(cityID, eventType string) ([]models.ActiveEvent, error) {
	c.ensureSeeded()
	events, err := c.store.ActiveEvents(cityID)
	if err != nil || eventType == "" {
		return events, err
	}
	filtered := events[:0]
	for _, e := range events {
		if e.Type == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// ServiceOutages lists current service interruptions for a city.
func (c *Catalog) ServiceOutages(cityID string) ([]models.ServiceOutage, error) {
	c.ensureSeeded()
	return c.store.ServiceOutages(cityID)
}

// Playbooks lists remedial actions for an event type.
func (c *Catalog) Playbooks(eventType string) ([]models.Playbook, error) {
	c.ensureSeeded()
	return c.store.Playbooks(eventType)
}
