package models

import "time"

// Intent is the classified purpose of a scenario message.
type Intent string

const (
	IntentPowerOutage Intent = "power_outage"
	IntentAQISpike    Intent = "aqi_spike"
	IntentRoadClosure Intent = "road_closure"
	IntentFailure     Intent = "failure"
	IntentGeneral     Intent = "general"
)

// TraceEntry records one tool invocation inside a scenario run.
type TraceEntry struct {
	Tool       string    `json:"tool"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	Summary    string    `json:"summary,omitempty"`
}

// Hypothesis is a structured statement about the probable situation.
type Hypothesis struct {
	Statement  string  `json:"statement"`
	Confidence float64 `json:"confidence"` // 0-1
}

// RecommendedAction is a playbook entry selected for the scenario.
type RecommendedAction struct {
	ActionID     string  `json:"action_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	ETAMinutes   int     `json:"eta_minutes"`
	CostEstimate float64 `json:"cost_estimate"`
}

// ScenarioResult is the evidence-first structured output of the orchestrator.
type ScenarioResult struct {
	Intent             Intent              `json:"intent"`
	ClarifyingQuestion bool                `json:"clarifying_question"`
	AffectedZones      []string            `json:"affected_zones"`
	EvidenceIDs        []string            `json:"evidence_ids"`
	Hypotheses         []Hypothesis        `json:"hypotheses"`
	RecommendedActions []RecommendedAction `json:"recommended_actions"`
}

// AgentRun persists one orchestrator exchange for observability and replay.
// Append-only.
type AgentRun struct {
	ID             string         `json:"id"` // ulid, sortable by creation
	SessionID      string         `json:"session_id"`
	CityID         string         `json:"city_id"`
	ZoneID         string         `json:"zone_id,omitempty"`
	TS             time.Time      `json:"ts"`
	UserMessage    string         `json:"user_message"`
	AssistantReply string         `json:"assistant_reply"`
	Result         ScenarioResult `json:"result"`
	Trace          []TraceEntry   `json:"trace"`
}
