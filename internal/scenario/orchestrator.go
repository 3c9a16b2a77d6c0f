// Package scenario is the evidence-grounded decision-support agent: it maps
// a free-text operator message to an intent, runs read-only tools over the
// state store and grounding catalog, and assembles a structured result plus
// a deterministic assistant reply. No language model sits on this path.
package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/catalog"
	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/store"
	"github.com/urbanmesh/gridpulse/internal/telemetry"
)

// maxAffectedZones caps the highest-risk fallback zone list.
const maxAffectedZones = 5

// recentAlertWindow is how many recent alerts city_state inspects.
const recentAlertWindow = 10

// Orchestrator handles scenario exchanges. Safe for concurrent use.
type Orchestrator struct {
	store    *store.Store
	catalog  *catalog.Catalog
	sessions *sessionStore
	now      func() time.Time
}

// New builds an Orchestrator.
func New(s *store.Store, c *catalog.Catalog) *Orchestrator {
	return &Orchestrator{
		store:    s,
		catalog:  c,
		sessions: newSessionStore(),
		now:      time.Now,
	}
}

// StartSession registers a new scenario session for a city and persists the
// scenario record.
func (o *Orchestrator) StartSession(cityID string) (string, error) {
	id := ulid.Make().String()
	o.sessions.get(id, cityID)
	if err := o.store.InsertScenario(id, o.now().UTC(), map[string]string{"city_id": cityID}); err != nil {
		return "", fmt.Errorf("persist scenario: %w", err)
	}
	log.Info().Str("session", id).Str("city", cityID).Msg("Scenario session started")
	return id, nil
}

// Exchange is one orchestrator turn.
type Exchange struct {
	RunID  string                `json:"run_id"`
	Reply  string                `json:"assistant_reply"`
	Result models.ScenarioResult `json:"scenario_result"`
	Trace  []models.TraceEntry   `json:"trace"`
}

// evidence is the raw material the tools gather.
type evidence struct {
	snapshots []models.ZoneSnapshot
	alerts    []models.Alert
	events    []models.ActiveEvent
	outages   []models.ServiceOutage
	playbooks []models.Playbook
}

// HandleMessage processes one operator message within a session.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, cityID, zoneID, message string) (*Exchange, error) {
	sess := o.sessions.get(sessionID, cityID)
	city := sess.CityID

	if zoneID == "" {
		zoneID = extractZone(message)
	}
	if zoneID != "" {
		o.sessions.update(sessionID, func(s *session) { s.ZoneID = zoneID })
	} else {
		zoneID = sess.ZoneID
	}

	intent := ClassifyIntent(message)
	telemetry.ScenarioRuns.WithLabelValues(string(intent)).Inc()

	if requiresZone(intent) && zoneID == "" && o.sessions.clarify(sessionID) {
		ex := o.clarify(sessionID, city, intent, message)
		o.persistRun(sessionID, city, zoneID, message, ex)
		return ex, nil
	}

	ev := &evidence{}
	eventType := eventTypeFor(intent)
	trace := runTools(ctx, o.plan(city, eventType, ev), o.now)

	result := synthesize(intent, zoneID, ev)
	reply := renderReply(intent, city, result, ev)

	ex := &Exchange{
		Reply:  reply,
		Result: result,
		Trace:  trace,
	}
	o.persistRun(sessionID, city, zoneID, message, ex)
	return ex, nil
}

// plan is the fixed read-only tool sequence for a non-clarifying turn.
func (o *Orchestrator) plan(cityID, eventType string, ev *evidence) []tool {
	return []tool{
		{name: "city_state", run: func(ctx context.Context) (string, error) {
			snaps, err := o.store.LatestSnapshots(cityID)
			if err != nil {
				return "", err
			}
			alerts, err := o.store.QueryAlerts(store.AlertFilter{CityID: cityID, Limit: recentAlertWindow})
			if err != nil {
				return "", err
			}
			ev.snapshots = snaps
			ev.alerts = alerts
			return fmt.Sprintf("%d zones, %d recent alerts", len(snaps), len(alerts)), nil
		}},
		{name: "active_events", run: func(ctx context.Context) (string, error) {
			events, err := o.catalog.ActiveEvents(cityID, eventType)
			if err != nil {
				return "", err
			}
			ev.events = events
			return fmt.Sprintf("%d active events", len(events)), nil
		}},
		{name: "service_outages", run: func(ctx context.Context) (string, error) {
			outages, err := o.catalog.ServiceOutages(cityID)
			if err != nil {
				return "", err
			}
			ev.outages = outages
			return fmt.Sprintf("%d service outages", len(outages)), nil
		}},
		{name: "playbooks", run: func(ctx context.Context) (string, error) {
			if eventType == "" {
				return "no event type mapped", nil
			}
			books, err := o.catalog.Playbooks(eventType)
			if err != nil {
				return "", err
			}
			ev.playbooks = books
			return fmt.Sprintf("%d playbooks for %s", len(books), eventType), nil
		}},
	}
}

// clarify builds the zone-question turn: candidate zones come from the
// latest snapshots, highest risk first. No tools run.
func (o *Orchestrator) clarify(sessionID, cityID string, intent models.Intent, message string) *Exchange {
	candidates := o.candidateZones(cityID)

	var b strings.Builder
	b.WriteString("Which zone is affected?")
	if len(candidates) > 0 {
		b.WriteString(" Highest-risk zones right now: ")
		b.WriteString(strings.Join(candidates, ", "))
		b.WriteString(".")
	}

	return &Exchange{
		Reply: b.String(),
		Result: models.ScenarioResult{
			Intent:             intent,
			ClarifyingQuestion: true,
		},
	}
}

func (o *Orchestrator) candidateZones(cityID string) []string {
	snaps, err := o.store.LatestSnapshots(cityID)
	if err != nil {
		log.Warn().Err(err).Str("city", cityID).Msg("Candidate zone lookup failed")
		return nil
	}
	return topRiskZones(snaps, maxAffectedZones)
}

// topRiskZones orders zones by descending risk (zone id as tiebreak) and
// returns up to limit ids.
func topRiskZones(snaps []models.ZoneSnapshot, limit int) []string {
	sorted := make([]models.ZoneSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Analytics.RiskScore.Score != sorted[j].Analytics.RiskScore.Score {
			return sorted[i].Analytics.RiskScore.Score > sorted[j].Analytics.RiskScore.Score
		}
		return sorted[i].ZoneID < sorted[j].ZoneID
	})
	zones := make([]string, 0, limit)
	for _, s := range sorted {
		if len(zones) == limit {
			break
		}
		zones = append(zones, s.ZoneID)
	}
	return zones
}

// synthesize assembles the structured result from gathered evidence.
// evidence_ids is the ordered union of event ids from active events then
// outages; affected zones prefer event/outage zones, then the resolved
// zone, then the top-risk zones.
func synthesize(intent models.Intent, zoneID string, ev *evidence) models.ScenarioResult {
	var evidenceIDs []string
	seen := map[string]bool{}
	addID := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			evidenceIDs = append(evidenceIDs, id)
		}
	}
	for _, e := range ev.events {
		addID(e.EventID)
	}
	for _, out := range ev.outages {
		addID(out.EventID)
	}

	var zones []string
	zoneSeen := map[string]bool{}
	addZone := func(z string) {
		if z != "" && !zoneSeen[z] {
			zoneSeen[z] = true
			zones = append(zones, z)
		}
	}
	for _, e := range ev.events {
		addZone(e.ZoneID)
	}
	for _, out := range ev.outages {
		addZone(out.ZoneID)
	}
	if len(zones) == 0 {
		if zoneID != "" {
			zones = []string{zoneID}
		} else {
			zones = topRiskZones(ev.snapshots, maxAffectedZones)
		}
	}

	actions := make([]models.RecommendedAction, 0, len(ev.playbooks))
	for _, p := range ev.playbooks {
		actions = append(actions, models.RecommendedAction{
			ActionID:     p.ActionID,
			Name:         p.Name,
			Description:  p.Description,
			ETAMinutes:   p.ETAMinutes,
			CostEstimate: p.CostEstimate,
		})
	}

	return models.ScenarioResult{
		Intent:             intent,
		AffectedZones:      zones,
		EvidenceIDs:        evidenceIDs,
		Hypotheses:         []models.Hypothesis{hypothesis(intent, zones, evidenceIDs)},
		RecommendedActions: actions,
	}
}

// hypothesis states the probable situation; confidence reflects whether any
// grounding evidence backs it.
func hypothesis(intent models.Intent, zones, evidenceIDs []string) models.Hypothesis {
	confidence := 0.5
	if len(evidenceIDs) > 0 {
		confidence = 0.85
	}

	area := "the city"
	if len(zones) > 0 {
		area = strings.Join(zones, ", ")
	}

	var statement string
	switch intent {
	case models.IntentPowerOutage:
		statement = fmt.Sprintf("A power outage is affecting %s.", area)
	case models.IntentAQISpike:
		statement = fmt.Sprintf("Air quality is degraded in %s.", area)
	case models.IntentRoadClosure:
		statement = fmt.Sprintf("A road closure is disrupting %s.", area)
	case models.IntentFailure:
		statement = fmt.Sprintf("An infrastructure failure is suspected in %s.", area)
	default:
		statement = fmt.Sprintf("Current conditions in %s are within normal ranges.", area)
	}
	return models.Hypothesis{Statement: statement, Confidence: confidence}
}

// renderReply assembles the assistant reply from the structured result.
// Deterministic templating only.
func renderReply(intent models.Intent, cityID string, result models.ScenarioResult, ev *evidence) string {
	var b strings.Builder

	if len(result.Hypotheses) > 0 {
		b.WriteString(result.Hypotheses[0].Statement)
	}

	if len(result.EvidenceIDs) > 0 {
		fmt.Fprintf(&b, " Supporting events: %s.", strings.Join(result.EvidenceIDs, ", "))
	} else {
		b.WriteString(" No matching events are on record.")
	}

	if len(ev.outages) > 0 {
		out := ev.outages[0]
		fmt.Fprintf(&b, " %s service in %s is %.0f%% affected, restoration estimated by %s.",
			capitalize(out.ServiceType), out.ZoneID, out.PctAffected,
			out.ETATS.Format("15:04 MST"))
	}

	if len(result.RecommendedActions) > 0 {
		names := make([]string, 0, len(result.RecommendedActions))
		for _, a := range result.RecommendedActions {
			names = append(names, fmt.Sprintf("%s (~%d min)", a.Name, a.ETAMinutes))
		}
		fmt.Fprintf(&b, " Recommended actions: %s.", strings.Join(names, "; "))
	}

	b.WriteString(" See the Scenario panel for live zone detail.")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// persistRun appends the exchange to the agent-run and scenario-run logs.
func (o *Orchestrator) persistRun(sessionID, cityID, zoneID, message string, ex *Exchange) {
	run := models.AgentRun{
		ID:             ulid.Make().String(),
		SessionID:      sessionID,
		CityID:         cityID,
		ZoneID:         zoneID,
		TS:             o.now().UTC(),
		UserMessage:    message,
		AssistantReply: ex.Reply,
		Result:         ex.Result,
		Trace:          ex.Trace,
	}
	ex.RunID = run.ID

	if err := o.store.AppendAgentRun(run); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Agent run persist failed")
	}
	if err := o.store.InsertScenarioRun(run.ID, sessionID, run.TS, run); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Scenario run persist failed")
	}
}
