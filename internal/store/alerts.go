package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/telemetry"
)

// InsertAlerts appends a batch of alerts in one transaction.
func (s *Store) InsertAlerts(alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin alert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO alerts (id, city_id, zone_id, ts, level, type, message, details, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare alert insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		var details any
		if len(a.Details) > 0 {
			b, err := json.Marshal(a.Details)
			if err != nil {
				return fmt.Errorf("marshal alert details: %w", err)
			}
			details = string(b)
		}
		if _, err := stmt.Exec(a.ID, a.CityID, a.ZoneID, unix(a.TS),
			string(a.Level), string(a.Type), a.Message, details, a.Source); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
		telemetry.AlertsEmitted.WithLabelValues(string(a.Level)).Inc()
	}

	return tx.Commit()
}

// AlertFilter narrows QueryAlerts. Zero values mean no constraint.
type AlertFilter struct {
	CityID string
	ZoneID string
	Level  models.AlertLevel
	Since  time.Time
	Limit  int
}

// QueryAlerts returns alerts newest first, optionally filtered by city,
// zone, and level. Limit defaults to 100.
func (s *Store) QueryAlerts(f AlertFilter) ([]models.Alert, error) {
	query := `SELECT id, city_id, zone_id, ts, level, type, message, details, source
		FROM alerts WHERE 1=1`
	var args []any
	if f.CityID != "" {
		query += ` AND city_id = ?`
		args = append(args, f.CityID)
	}
	if f.ZoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, f.ZoneID)
	}
	if f.Level != "" {
		query += ` AND level = ?`
		args = append(args, string(f.Level))
	}
	if !f.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, unix(f.Since))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var (
			a       models.Alert
			ts      int64
			details *string
		)
		if err := rows.Scan(&a.ID, &a.CityID, &a.ZoneID, &ts,
			&a.Level, &a.Type, &a.Message, &details, &a.Source); err != nil {
			return nil, err
		}
		a.TS = fromUnix(ts)
		if details != nil && *details != "" {
			_ = json.Unmarshal([]byte(*details), &a.Details)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
