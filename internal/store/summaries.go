package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// WriteProcessingSummary appends one per-run summary.
func (s *Store) WriteProcessingSummary(sum models.ProcessingSummary) error {
	var zones any
	if len(sum.Zones) > 0 {
		b, err := json.Marshal(sum.Zones)
		if err != nil {
			return fmt.Errorf("marshal zone statuses: %w", err)
		}
		zones = string(b)
	}
	return s.execRetry(`
		INSERT INTO summaries (city_id, ts, total, successful, failed, zones)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sum.CityID, unix(sum.Timestamp), sum.Total, sum.Successful, sum.Failed, zones)
}

// LatestSummary returns the most recent run summary for a city, or nil when
// the city has never been processed.
func (s *Store) LatestSummary(cityID string) (*models.ProcessingSummary, error) {
	var (
		sum   models.ProcessingSummary
		ts    int64
		zones *string
	)
	err := s.db.QueryRow(`
		SELECT city_id, ts, total, successful, failed, zones
		FROM summaries WHERE city_id = ?
		ORDER BY ts DESC, id DESC LIMIT 1`, cityID).
		Scan(&sum.CityID, &ts, &sum.Total, &sum.Successful, &sum.Failed, &zones)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest summary: %w", err)
	}
	sum.Timestamp = fromUnix(ts)
	if zones != nil && *zones != "" {
		_ = json.Unmarshal([]byte(*zones), &sum.Zones)
	}
	return &sum, nil
}
