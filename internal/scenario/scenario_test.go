package scenario

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanmesh/gridpulse/internal/catalog"
	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/store"
)

func testOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, catalog.New(s)), s
}

func writeSnapshot(t *testing.T, s *store.Store, zone string, risk float64, level models.ScoreLevel) {
	t.Helper()
	require.NoError(t, s.WriteSnapshot(models.ZoneSnapshot{
		CityID:    "nyc",
		ZoneID:    zone,
		Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Raw:       models.RawRecord{GridPriority: 3},
		Analytics: models.Analytics{
			RiskScore:       models.RiskScore{Score: risk, Level: level},
			ResilienceScore: models.ResilienceScore{Score: 100 - risk},
		},
	}))
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		message string
		want    models.Intent
	}{
		{"I have no power in Z_001", models.IntentPowerOutage},
		{"We have a blackout", models.IntentPowerOutage},
		{"AQI is terrible downtown", models.IntentAQISpike},
		{"Main street road closed", models.IntentRoadClosure},
		{"transformer failure near the park", models.IntentFailure},
		{"how is the city doing", models.IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.message))
		})
	}
}

func TestExtractZone(t *testing.T) {
	assert.Equal(t, "Z_001", extractZone("no power in Z_001 since noon"))
	assert.Equal(t, "Z_014", extractZone("zone z_014 is dark"))
	assert.Equal(t, "", extractZone("no zone mentioned"))
}

func TestHandleMessage_ZoneResolvedNoEvidence(t *testing.T) {
	o, s := testOrchestrator(t)
	writeSnapshot(t, s, "Z_001", 40, models.LevelMedium)

	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "", "I have no power in Z_001")
	require.NoError(t, err)

	assert.Equal(t, models.IntentPowerOutage, ex.Result.Intent)
	assert.False(t, ex.Result.ClarifyingQuestion)
	assert.Equal(t, []string{"Z_001"}, ex.Result.AffectedZones)
	assert.Empty(t, ex.Result.EvidenceIDs)
	require.Len(t, ex.Result.Hypotheses, 1)
	assert.LessOrEqual(t, ex.Result.Hypotheses[0].Confidence, 0.6)
	assert.Contains(t, ex.Reply, "Z_001")
	assert.Contains(t, ex.Reply, "Scenario panel")

	// all four tools ran
	require.Len(t, ex.Trace, 4)
	assert.Equal(t, "city_state", ex.Trace[0].Tool)
	assert.Equal(t, "active_events", ex.Trace[1].Tool)
	assert.Equal(t, "service_outages", ex.Trace[2].Tool)
	assert.Equal(t, "playbooks", ex.Trace[3].Tool)

	// the run is persisted and retrievable
	run, err := s.GetAgentRun(ex.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, sessionID, run.SessionID)
}

func TestHandleMessage_ClarifiesWhenZoneUnknown(t *testing.T) {
	o, s := testOrchestrator(t)
	for i, zone := range []string{"Z_001", "Z_002", "Z_003", "Z_004", "Z_005"} {
		writeSnapshot(t, s, zone, float64(10*(i+1)), models.LevelLow)
	}

	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "", "We have a blackout")
	require.NoError(t, err)

	assert.True(t, ex.Result.ClarifyingQuestion)
	assert.Empty(t, ex.Trace)
	for _, zone := range []string{"Z_001", "Z_002", "Z_003", "Z_004", "Z_005"} {
		assert.Contains(t, ex.Reply, zone)
	}

	o.sessions.mu.Lock()
	assert.Equal(t, 1, o.sessions.sessions[sessionID].Clarifications)
	o.sessions.mu.Unlock()
}

func TestHandleMessage_ClarificationCapThenProceeds(t *testing.T) {
	o, _ := testOrchestrator(t)
	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	for i := 0; i < maxClarifications; i++ {
		ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "", "We have a blackout")
		require.NoError(t, err)
		assert.True(t, ex.Result.ClarifyingQuestion, "attempt %d", i)
	}

	// cap reached: tools run even without a zone
	ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "", "We have a blackout")
	require.NoError(t, err)
	assert.False(t, ex.Result.ClarifyingQuestion)
	assert.Len(t, ex.Trace, 4)
}

func TestHandleMessage_EvidenceFromCatalog(t *testing.T) {
	o, s := testOrchestrator(t)
	ts := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertActiveEvent(models.ActiveEvent{
		EventID: "EVT-OUT-7", CityID: "nyc", Type: "outage", ZoneID: "Z_004",
		Severity: "high", TS: ts,
	}))
	require.NoError(t, s.InsertServiceOutage(models.ServiceOutage{
		EventID: "OUT-12", CityID: "nyc", ZoneID: "Z_004", ServiceType: "power",
		PctAffected: 35, StartTS: ts, ETATS: ts.Add(3 * time.Hour),
	}))

	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "Z_004", "power outage reported")
	require.NoError(t, err)

	// events first, then outages, no duplicates
	assert.Equal(t, []string{"EVT-OUT-7", "OUT-12"}, ex.Result.EvidenceIDs)
	assert.Equal(t, []string{"Z_004"}, ex.Result.AffectedZones)
	require.Len(t, ex.Result.Hypotheses, 1)
	assert.Equal(t, 0.85, ex.Result.Hypotheses[0].Confidence)

	// default outage playbooks surface as recommended actions
	require.Len(t, ex.Result.RecommendedActions, 2)
	assert.Equal(t, "dispatch_crew", ex.Result.RecommendedActions[0].ActionID)

	assert.Contains(t, ex.Reply, "EVT-OUT-7")
	assert.Contains(t, ex.Reply, "Dispatch repair crew")
}

func TestEvidenceIDsSubsetOfToolResults(t *testing.T) {
	o, s := testOrchestrator(t)
	ts := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertActiveEvent(models.ActiveEvent{
		EventID: "EVT-1", CityID: "nyc", Type: "outage", ZoneID: "Z_001", Severity: "low", TS: ts,
	}))
	// different city: must never appear as evidence
	require.NoError(t, s.InsertActiveEvent(models.ActiveEvent{
		EventID: "EVT-LA", CityID: "la", Type: "outage", ZoneID: "Z_009", Severity: "high", TS: ts,
	}))

	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "Z_001", "outage")
	require.NoError(t, err)
	assert.Equal(t, []string{"EVT-1"}, ex.Result.EvidenceIDs)
}

func TestHandleMessage_GeneralIntentSkipsPlaybooks(t *testing.T) {
	o, _ := testOrchestrator(t)
	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "", "how is the city doing")
	require.NoError(t, err)

	assert.Equal(t, models.IntentGeneral, ex.Result.Intent)
	assert.False(t, ex.Result.ClarifyingQuestion)
	assert.Empty(t, ex.Result.RecommendedActions)
}

func TestHandleMessage_ZoneRememberedAcrossTurns(t *testing.T) {
	o, _ := testOrchestrator(t)
	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	_, err = o.HandleMessage(context.Background(), sessionID, "nyc", "", "no power in Z_007")
	require.NoError(t, err)

	// follow-up without a zone reuses the remembered one
	ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "", "is the power outage still ongoing")
	require.NoError(t, err)
	assert.False(t, ex.Result.ClarifyingQuestion)
	assert.Equal(t, []string{"Z_007"}, ex.Result.AffectedZones)
}

func TestSessionExpiry(t *testing.T) {
	ss := newSessionStore()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	ss.now = func() time.Time { return base }

	ss.get("s1", "nyc")
	require.True(t, ss.clarify("s1"))
	ss.update("s1", func(s *session) { s.ZoneID = "Z_001" })

	// within the TTL the session survives
	ss.now = func() time.Time { return base.Add(10 * time.Minute) }
	assert.Equal(t, "Z_001", ss.get("s1", "").ZoneID)

	// past the TTL it is recreated fresh
	ss.now = func() time.Time { return base.Add(41 * time.Minute) }
	fresh := ss.get("s1", "nyc")
	assert.Equal(t, "", fresh.ZoneID)
	assert.Equal(t, 0, fresh.Clarifications)
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	ss := newSessionStore()
	ss.get("s1", "nyc")
	ss.update("s1", func(s *session) { s.ZoneID = "Z_001" })

	sess := ss.get("s1", "")
	sess.ZoneID = "Z_999"
	assert.Equal(t, "Z_001", ss.get("s1", "").ZoneID)
}

func TestHandleMessage_ConcurrentClarificationCap(t *testing.T) {
	o, _ := testOrchestrator(t)
	sessionID, err := o.StartSession("nyc")
	require.NoError(t, err)

	const turns = 8
	results := make(chan bool, turns)
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex, err := o.HandleMessage(context.Background(), sessionID, "nyc", "", "We have a blackout")
			assert.NoError(t, err)
			results <- ex.Result.ClarifyingQuestion
		}()
	}
	wg.Wait()
	close(results)

	// exactly the capped number of turns may clarify, no matter the
	// interleaving; the rest run the tool plan
	clarified := 0
	for q := range results {
		if q {
			clarified++
		}
	}
	assert.Equal(t, maxClarifications, clarified)
}

func TestTopRiskZones_CapAndOrder(t *testing.T) {
	snaps := make([]models.ZoneSnapshot, 0, 7)
	for i, risk := range []float64{10, 70, 30, 70, 50, 20, 60} {
		snaps = append(snaps, models.ZoneSnapshot{
			ZoneID:    []string{"Z_001", "Z_002", "Z_003", "Z_004", "Z_005", "Z_006", "Z_007"}[i],
			Analytics: models.Analytics{RiskScore: models.RiskScore{Score: risk}},
		})
	}
	zones := topRiskZones(snaps, 5)
	assert.Equal(t, []string{"Z_002", "Z_004", "Z_007", "Z_005", "Z_003"}, zones)
}
