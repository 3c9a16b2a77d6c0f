package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/store"
)

func testCatalog(t *testing.T) (*Catalog, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func TestSeedsDefaultsOnFirstRead(t *testing.T) {
	c, s := testCatalog(t)

	books, err := c.Playbooks("outage")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "dispatch_crew", books[0].ActionID)
	assert.Equal(t, 60, books[0].ETAMinutes)
	assert.Equal(t, 500.0, books[0].CostEstimate)
	assert.Equal(t, "load_shed_zone", books[1].ActionID)

	n, err := s.PlaybookCount()
	require.NoError(t, err)
	assert.Equal(t, len(defaultPlaybooks), n)
}

func TestSeedSkippedWhenPopulated(t *testing.T) {
	c, s := testCatalog(t)
	require.NoError(t, s.SeedPlaybooks([]models.Playbook{
		{EventType: "outage", ActionID: "custom_action", Name: "Custom"},
	}))

	books, err := c.Playbooks("outage")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "custom_action", books[0].ActionID)
}

func TestActiveEventsFilteredByType(t *testing.T) {
	c, s := testCatalog(t)
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertActiveEvent(models.ActiveEvent{
		EventID: "EVT-1", CityID: "nyc", Type: "outage", ZoneID: "Z_004", Severity: "high", TS: ts,
	}))
	require.NoError(t, s.InsertActiveEvent(models.ActiveEvent{
		EventID: "EVT-2", CityID: "nyc", Type: "aqi_spike", ZoneID: "Z_002", Severity: "medium", TS: ts,
	}))

	all, err := c.ActiveEvents("nyc", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	outages, err := c.ActiveEvents("nyc", "outage")
	require.NoError(t, err)
	require.Len(t, outages, 1)
	assert.Equal(t, "EVT-1", outages[0].EventID)
}
