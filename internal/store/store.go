// Package store is the durable state layer: per-zone snapshots, alerts,
// raw-topic latest records, live feed, processing summaries, agent runs,
// and the grounding catalog tables. Backed by SQLite for durability across
// restarts; all operations are safe for concurrent use.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Topic names the raw-latest collections.
type Topic string

const (
	TopicWeather     Topic = "raw_weather"
	TopicAQI         Topic = "raw_aqi"
	TopicTraffic     Topic = "raw_traffic"
	TopicPowerDemand Topic = "raw_power_demand"
	TopicGridAlerts  Topic = "raw_grid_alerts"
	Topic311         Topic = "raw_311"
)

// RawTopics lists every raw-latest collection.
var RawTopics = []Topic{
	TopicWeather, TopicAQI, TopicTraffic,
	TopicPowerDemand, TopicGridAlerts, Topic311,
}

func validTopic(t Topic) bool {
	for _, known := range RawTopics {
		if t == known {
			return true
		}
	}
	return false
}

// Store provides typed access to the state collections.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the state database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	// Pragmas in the DSN so every pool connection is configured.
	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("State store opened")
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			city_id TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_lookup
		ON snapshots(city_id, zone_id, ts DESC);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			city_id TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			level TEXT NOT NULL,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT,
			source TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_lookup
		ON alerts(city_id, ts DESC);

		CREATE TABLE IF NOT EXISTS live_feed (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic TEXT NOT NULL,
			city_id TEXT,
			zone_id TEXT,
			ts INTEGER NOT NULL,
			ingested_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_live_feed_topic
		ON live_feed(topic, ingested_at DESC);

		CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			city_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			total INTEGER NOT NULL,
			successful INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			zones TEXT
		);

		CREATE TABLE IF NOT EXISTS agent_runs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			city_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scenarios (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scenario_runs (
			id TEXT PRIMARY KEY,
			scenario_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS assets (
			asset_id TEXT PRIMARY KEY,
			city_id TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS active_events (
			event_id TEXT PRIMARY KEY,
			city_id TEXT NOT NULL,
			type TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			ts INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS service_outages (
			event_id TEXT PRIMARY KEY,
			city_id TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			service_type TEXT NOT NULL,
			pct_affected REAL NOT NULL,
			start_ts INTEGER NOT NULL,
			eta_ts INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS playbooks (
			event_type TEXT NOT NULL,
			action_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			eta_minutes INTEGER NOT NULL,
			cost_estimate REAL NOT NULL,
			UNIQUE(event_type, action_id)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// One table per raw topic; (city_id, zone_id) is the only uniqueness
	// the store enforces anywhere.
	for _, topic := range RawTopics {
		raw := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				city_id TEXT NOT NULL,
				zone_id TEXT NOT NULL,
				ts INTEGER NOT NULL,
				ingested_at INTEGER NOT NULL,
				payload TEXT NOT NULL,
				UNIQUE(city_id, zone_id)
			);
		`, topic)
		if _, err := s.db.Exec(raw); err != nil {
			return fmt.Errorf("create %s: %w", topic, err)
		}
	}

	log.Debug().Msg("State schema initialized")
	return nil
}

// execRetry runs a statement, retrying on SQLITE_BUSY with backoff.
func (s *Store) execRetry(query string, args ...any) error {
	var err error
	for i := 0; i < 5; i++ {
		_, err = s.db.Exec(query, args...)
		if err == nil {
			return nil
		}
		if i < 4 && isBusy(err) {
			time.Sleep(time.Duration(100*(i+1)) * time.Millisecond)
			continue
		}
		return err
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// unix converts a time to the integer representation stored in SQLite.
// Millisecond precision survives the round trip.
func unix(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromUnix(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
