package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// InsertScenario records the start of a scenario session. Append-only.
func (s *Store) InsertScenario(id string, ts time.Time, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	return s.execRetry(`INSERT INTO scenarios (id, ts, payload) VALUES (?, ?, ?)`,
		id, unix(ts), string(b))
}

// InsertScenarioRun records one evaluated exchange within a scenario.
// Append-only.
func (s *Store) InsertScenarioRun(id, scenarioID string, ts time.Time, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal scenario run: %w", err)
	}
	return s.execRetry(`INSERT INTO scenario_runs (id, scenario_id, ts, payload) VALUES (?, ?, ?, ?)`,
		id, scenarioID, unix(ts), string(b))
}

// ScenarioRunCount reports how many exchanges a scenario has recorded.
func (s *Store) ScenarioRunCount(scenarioID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM scenario_runs WHERE scenario_id = ?`, scenarioID).Scan(&n)
	return n, err
}
