package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanmesh/gridpulse/internal/catalog"
	"github.com/urbanmesh/gridpulse/internal/costs"
	"github.com/urbanmesh/gridpulse/internal/engine"
	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/scenario"
	"github.com/urbanmesh/gridpulse/internal/scheduler"
	"github.com/urbanmesh/gridpulse/internal/store"
	"github.com/urbanmesh/gridpulse/internal/websocket"
)

type stubWeather struct{}

func (stubWeather) Fetch(context.Context, float64, float64, string) *models.WeatherSignal {
	return &models.WeatherSignal{Source: "test", Timestamp: time.Now().UTC(), Temperature: 22}
}

type stubAQI struct{}

func (stubAQI) Fetch(context.Context, float64, float64, string) *models.AirQualitySignal {
	return &models.AirQualitySignal{Source: "test", Timestamp: time.Now().UTC(), AQI: 60}
}

type stubTraffic struct{}

func (stubTraffic) Fetch(context.Context, float64, float64, string) *models.TrafficSignal {
	return &models.TrafficSignal{Source: "test", Timestamp: time.Now().UTC(), Congestion: models.CongestionFree}
}

type stubTariff struct{}

func (stubTariff) PriceFor(context.Context, string) (float64, string) { return 0.15, "tariff_test" }

func testServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	eng := engine.New(engine.Config{
		Store:   s,
		Weather: stubWeather{},
		AirQual: stubAQI{},
		Traffic: stubTraffic{},
	})
	sched := scheduler.New(eng, time.Hour)
	t.Cleanup(sched.Stop)

	router := New(Config{
		Store:        s,
		Engine:       eng,
		Orchestrator: scenario.New(s, catalog.New(s)),
		Costs: costs.New(s, stubTariff{}, costs.Pricing{
			CarbonPricePerTon: 50, AQIPointPrice: 0.5, IncidentPrice: 50,
		}),
		Scheduler: sched,
		Hub:       websocket.NewHub(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, s
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any, out any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestCities_ListAndSelect(t *testing.T) {
	srv, _ := testServer(t)

	var list struct {
		Cities []models.City `json:"cities"`
	}
	resp := getJSON(t, srv, "/api/cities", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list.Cities, 5)

	// slug is case-insensitive
	var selected struct {
		City models.City `json:"city"`
	}
	resp = postJSON(t, srv, "/api/cities/select", map[string]string{"city_id": "NYC"}, &selected)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nyc", selected.City.ID)

	var current struct {
		City *models.City `json:"city"`
	}
	getJSON(t, srv, "/api/cities/current", &current)
	require.NotNil(t, current.City)
	assert.Equal(t, "nyc", current.City.ID)
}

func TestSelectCity_UnknownIsValidationError(t *testing.T) {
	srv, _ := testServer(t)

	var out map[string]string
	resp := postJSON(t, srv, "/api/cities/select", map[string]string{"city_id": "atlantis"}, &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "atlantis")
}

func TestProcessAndSnapshots(t *testing.T) {
	srv, _ := testServer(t)

	var processed struct {
		Summary models.ProcessingSummary `json:"summary"`
	}
	resp := postJSON(t, srv, "/api/process/phoenix", nil, &processed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 9, processed.Summary.Total)
	assert.Equal(t, processed.Summary.Total, processed.Summary.Successful+processed.Summary.Failed)

	var snaps struct {
		Snapshots []models.ZoneSnapshot `json:"snapshots"`
	}
	getJSON(t, srv, "/api/snapshots?city=phoenix", &snaps)
	assert.Len(t, snaps.Snapshots, 9)

	getJSON(t, srv, "/api/snapshots?city=phoenix&zone=Z_003", &snaps)
	require.Len(t, snaps.Snapshots, 1)
	assert.Equal(t, "Z_003", snaps.Snapshots[0].ZoneID)

	getJSON(t, srv, "/api/snapshots?city=phoenix&limit=2", &snaps)
	assert.Len(t, snaps.Snapshots, 2)
}

func TestSnapshots_RequiresKnownCity(t *testing.T) {
	srv, _ := testServer(t)

	var out map[string]any
	resp := getJSON(t, srv, "/api/snapshots", &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, out["error"])

	resp = getJSON(t, srv, "/api/snapshots?city=gotham", &out)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAlerts_FilterAndValidation(t *testing.T) {
	srv, s := testServer(t)
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertAlerts([]models.Alert{
		{ID: "a1", CityID: "nyc", ZoneID: "Z_001", TS: ts, Level: models.AlertLevelWarning,
			Type: models.AlertTypeHighRisk, Message: "m", Source: "engine"},
		{ID: "a2", CityID: "nyc", ZoneID: "Z_001", TS: ts.Add(-2 * time.Hour),
			Level: models.AlertLevelInfo, Type: models.AlertTypeProcessingComplete,
			Message: "m", Source: "engine"},
	}))

	var out struct {
		Alerts []models.Alert `json:"alerts"`
	}
	getJSON(t, srv, "/api/alerts?city=nyc", &out)
	assert.Len(t, out.Alerts, 2)

	getJSON(t, srv, "/api/alerts?city=nyc&since="+ts.Add(-time.Hour).Format(time.RFC3339), &out)
	require.Len(t, out.Alerts, 1)
	assert.Equal(t, "a1", out.Alerts[0].ID)

	var bad map[string]any
	resp := getJSON(t, srv, "/api/alerts?since=yesterday", &bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCosts_Rollup(t *testing.T) {
	srv, s := testServer(t)
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for zone, kwh := range map[string]float64{"Z_001": 800, "Z_002": 1200} {
		require.NoError(t, s.WriteSnapshot(models.ZoneSnapshot{
			CityID: "nyc", ZoneID: zone, Timestamp: ts,
			Raw: models.RawRecord{GridPriority: 2},
			Analytics: models.Analytics{
				DemandForecast: models.DemandForecast{NextHourKWH: kwh},
			},
		}))
	}

	var out struct {
		Costs costs.Summary `json:"costs"`
	}
	getJSON(t, srv, "/api/costs?city=nyc", &out)
	assert.Equal(t, 2000.0, out.Costs.TotalKWH)
	assert.Equal(t, 300.0, out.Costs.EnergyUSD)
	assert.Equal(t, 40.0, out.Costs.CO2USD)
}

func TestScenario_StartAndMessage(t *testing.T) {
	srv, _ := testServer(t)

	var started struct {
		SessionID string `json:"session_id"`
	}
	resp := postJSON(t, srv, "/api/scenario/start", map[string]string{"city_id": "nyc"}, &started)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, started.SessionID)

	var ex scenario.Exchange
	resp = postJSON(t, srv, "/api/scenario/message", map[string]string{
		"session_id": started.SessionID,
		"city_id":    "nyc",
		"message":    "power outage in Z_002",
	}, &ex)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.IntentPowerOutage, ex.Result.Intent)
	assert.Equal(t, []string{"Z_002"}, ex.Result.AffectedZones)
	require.NotEmpty(t, ex.RunID)

	var fetched struct {
		Run models.AgentRun `json:"run"`
	}
	resp = getJSON(t, srv, "/api/agent-runs/"+ex.RunID, &fetched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, started.SessionID, fetched.Run.SessionID)

	var runs struct {
		Runs []models.AgentRun `json:"runs"`
	}
	getJSON(t, srv, "/api/agent-runs?session="+started.SessionID, &runs)
	assert.Len(t, runs.Runs, 1)
}

func TestAgentRun_NotFound(t *testing.T) {
	srv, _ := testServer(t)

	var out map[string]any
	resp := getJSON(t, srv, "/api/agent-runs/missing", &out)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, out["error"])
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	var out map[string]any
	resp := getJSON(t, srv, "/api/health", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}

func TestZonesPreview(t *testing.T) {
	srv, _ := testServer(t)

	var out struct {
		CityID string        `json:"city_id"`
		Zones  []models.Zone `json:"zones"`
	}
	resp := getJSON(t, srv, "/api/cities/PHOENIX/zones", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "phoenix", out.CityID)
	assert.Len(t, out.Zones, 9)
}
