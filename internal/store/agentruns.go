package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// AppendAgentRun persists one orchestrator exchange. Append-only.
func (s *Store) AppendAgentRun(run models.AgentRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal agent run: %w", err)
	}
	return s.execRetry(`
		INSERT INTO agent_runs (id, session_id, city_id, ts, payload)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.CityID, unix(run.TS), string(payload))
}

// ListAgentRuns returns runs newest first, optionally filtered by session.
// Limit defaults to 50.
func (s *Store) ListAgentRuns(sessionID string, limit int) ([]models.AgentRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT payload FROM agent_runs WHERE 1=1`
	var args []any
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agent runs: %w", err)
	}
	defer rows.Close()

	var runs []models.AgentRun
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var run models.AgentRun
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetAgentRun fetches a single run by id; nil when absent.
func (s *Store) GetAgentRun(id string) (*models.AgentRun, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM agent_runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query agent run: %w", err)
	}
	var run models.AgentRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("decode agent run: %w", err)
	}
	return &run, nil
}
