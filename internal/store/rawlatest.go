package store

import (
	"encoding/json"
	"fmt"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// UpsertRawLatest replaces the per-(city, zone) latest record for a topic.
// Last write wins by arrival order regardless of payload timestamps.
func (s *Store) UpsertRawLatest(topic Topic, rec models.RawLatest) error {
	if !validTopic(topic) {
		return fmt.Errorf("unknown raw topic %q", topic)
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal raw payload: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (city_id, zone_id, ts, ingested_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(city_id, zone_id) DO UPDATE SET
			ts = excluded.ts,
			ingested_at = excluded.ingested_at,
			payload = excluded.payload`, topic)
	return s.execRetry(query, rec.CityID, rec.ZoneID, unix(rec.TS), unix(rec.IngestedAt), string(payload))
}

// ReadRawLatest returns every latest record for a topic within a city,
// ordered by zone id. Payloads pass through the read-path sanitizer.
func (s *Store) ReadRawLatest(topic Topic, cityID string) ([]models.RawLatest, error) {
	if !validTopic(topic) {
		return nil, fmt.Errorf("unknown raw topic %q", topic)
	}
	query := fmt.Sprintf(`
		SELECT city_id, zone_id, ts, ingested_at, payload
		FROM %s WHERE city_id = ? ORDER BY zone_id`, topic)
	rows, err := s.db.Query(query, cityID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", topic, err)
	}
	defer rows.Close()

	var recs []models.RawLatest
	for rows.Next() {
		var (
			rec        models.RawLatest
			ts, ingest int64
			payload    string
		)
		if err := rows.Scan(&rec.CityID, &rec.ZoneID, &ts, &ingest, &payload); err != nil {
			return nil, err
		}
		rec.Topic = string(topic)
		rec.TS = fromUnix(ts)
		rec.IngestedAt = fromUnix(ingest)
		var raw map[string]any
		if err := json.Unmarshal([]byte(payload), &raw); err == nil {
			rec.Payload = Sanitize(raw)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendLiveFeed appends a batch of ingested messages in one transaction.
// The feed is an unbounded audit trail of everything that arrived.
func (s *Store) AppendLiveFeed(recs []models.RawLatest) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin live-feed batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO live_feed (topic, city_id, zone_id, ts, ingested_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare live-feed insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshal live-feed payload: %w", err)
		}
		if _, err := stmt.Exec(rec.Topic, rec.CityID, rec.ZoneID,
			unix(rec.TS), unix(rec.IngestedAt), string(payload)); err != nil {
			return fmt.Errorf("insert live-feed row: %w", err)
		}
	}

	return tx.Commit()
}

// LiveFeedCount reports how many messages have been recorded for a topic.
func (s *Store) LiveFeedCount(topic string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM live_feed WHERE topic = ?`, topic).Scan(&n)
	return n, err
}
