package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// WriteSnapshot appends one per-zone snapshot. History is never overwritten.
func (s *Store) WriteSnapshot(snap models.ZoneSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.execRetry(
		`INSERT INTO snapshots (city_id, zone_id, ts, payload) VALUES (?, ?, ?, ?)`,
		snap.CityID, snap.ZoneID, unix(snap.Timestamp), string(payload),
	)
}

// LatestSnapshots returns the maximum-timestamp snapshot for every zone of
// a city, ordered by zone id. This is a derived view over append-only
// history; insert order breaks timestamp ties, so an out-of-order write of
// an older snapshot never displaces a newer one.
func (s *Store) LatestSnapshots(cityID string) ([]models.ZoneSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT payload FROM snapshots AS s
		WHERE s.city_id = ?
		  AND s.id = (
			SELECT id FROM snapshots
			WHERE city_id = s.city_id AND zone_id = s.zone_id
			ORDER BY ts DESC, id DESC
			LIMIT 1
		  )`, cityID)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.ZoneSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var snap models.ZoneSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable snapshot row")
			continue
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ZoneID < snaps[j].ZoneID })
	return snaps, nil
}

// DemandHistory returns up to limit prior demand forecasts for a zone,
// oldest first. Used as the baseline series for anomaly detection.
func (s *Store) DemandHistory(cityID, zoneID string, limit int) ([]float64, error) {
	rows, err := s.db.Query(`
		SELECT payload FROM snapshots
		WHERE city_id = ? AND zone_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`, cityID, zoneID, limit)
	if err != nil {
		return nil, fmt.Errorf("query demand history: %w", err)
	}
	defer rows.Close()

	var history []float64
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var snap models.ZoneSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			continue
		}
		history = append(history, snap.Analytics.DemandForecast.NextHourKWH)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// SnapshotCount reports how many snapshots exist for a city.
func (s *Store) SnapshotCount(cityID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE city_id = ?`, cityID).Scan(&n)
	return n, err
}
