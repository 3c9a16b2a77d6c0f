package store

import (
	"fmt"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// Assets lists registered infrastructure for a city, optionally narrowed to
// one zone.
func (s *Store) Assets(cityID, zoneID string) ([]models.Asset, error) {
	query := `SELECT asset_id, city_id, zone_id, type, name FROM assets WHERE city_id = ?`
	args := []any{cityID}
	if zoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, zoneID)
	}
	query += ` ORDER BY asset_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.AssetID, &a.CityID, &a.ZoneID, &a.Type, &a.Name); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// ActiveEvents lists operational events currently in effect for a city,
// newest first.
func (s *Store) ActiveEvents(cityID string) ([]models.ActiveEvent, error) {
	rows, err := s.db.Query(`
		SELECT event_id, city_id, type, zone_id, severity, ts
		FROM active_events WHERE city_id = ?
		ORDER BY ts DESC, event_id`, cityID)
	if err != nil {
		return nil, fmt.Errorf("query active events: %w", err)
	}
	defer rows.Close()

	var events []models.ActiveEvent
	for rows.Next() {
		var (
			e  models.ActiveEvent
			ts int64
		)
		if err := rows.Scan(&e.EventID, &e.CityID, &e.Type, &e.ZoneID, &e.Severity, &ts); err != nil {
			return nil, err
		}
		e.TS = fromUnix(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertActiveEvent registers an operational event.
func (s *Store) InsertActiveEvent(e models.ActiveEvent) error {
	return s.execRetry(`
		INSERT INTO active_events (event_id, city_id, type, zone_id, severity, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.EventID, e.CityID, e.Type, e.ZoneID, e.Severity, unix(e.TS))
}

// ServiceOutages lists service interruptions for a city, newest first.
func (s *Store) ServiceOutages(cityID string) ([]models.ServiceOutage, error) {
	rows, err := s.db.Query(`
		SELECT event_id, city_id, zone_id, service_type, pct_affected, start_ts, eta_ts
		FROM service_outages WHERE city_id = ?
		ORDER BY start_ts DESC, event_id`, cityID)
	if err != nil {
		return nil, fmt.Errorf("query service outages: %w", err)
	}
	defer rows.Close()

	var outages []models.ServiceOutage
	for rows.Next() {
		var (
			o          models.ServiceOutage
			start, eta int64
		)
		if err := rows.Scan(&o.EventID, &o.CityID, &o.ZoneID, &o.ServiceType,
			&o.PctAffected, &start, &eta); err != nil {
			return nil, err
		}
		o.StartTS = fromUnix(start)
		o.ETATS = fromUnix(eta)
		outages = append(outages, o)
	}
	return outages, rows.Err()
}

// InsertServiceOutage registers a service interruption.
func (s *Store) InsertServiceOutage(o models.ServiceOutage) error {
	return s.execRetry(`
		INSERT INTO service_outages (event_id, city_id, zone_id, service_type, pct_affected, start_ts, eta_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.EventID, o.CityID, o.ZoneID, o.ServiceType, o.PctAffected,
		unix(o.StartTS), unix(o.ETATS))
}

// InsertAsset registers a piece of infrastructure.
func (s *Store) InsertAsset(a models.Asset) error {
	return s.execRetry(`
		INSERT INTO assets (asset_id, city_id, zone_id, type, name)
		VALUES (?, ?, ?, ?, ?)`,
		a.AssetID, a.CityID, a.ZoneID, a.Type, a.Name)
}

// Playbooks lists remedial actions for an event type, ordered by action id.
func (s *Store) Playbooks(eventType string) ([]models.Playbook, error) {
	rows, err := s.db.Query(`
		SELECT event_type, action_id, name, description, eta_minutes, cost_estimate
		FROM playbooks WHERE event_type = ?
		ORDER BY action_id`, eventType)
	if err != nil {
		return nil, fmt.Errorf("query playbooks: %w", err)
	}
	defer rows.Close()

	var books []models.Playbook
	for rows.Next() {
		var p models.Playbook
		if err := rows.Scan(&p.EventType, &p.ActionID, &p.Name, &p.Description,
			&p.ETAMinutes, &p.CostEstimate); err != nil {
			return nil, err
		}
		books = append(books, p)
	}
	return books, rows.Err()
}

// PlaybookCount reports the number of playbook rows.
func (s *Store) PlaybookCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM playbooks`).Scan(&n)
	return n, err
}

// SeedPlaybooks inserts the given playbooks, ignoring duplicates.
func (s *Store) SeedPlaybooks(books []models.Playbook) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin playbook seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO playbooks (event_type, action_id, name, description, eta_minutes, cost_estimate)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare playbook seed: %w", err)
	}
	defer stmt.Close()

	for _, p := range books {
		if _, err := stmt.Exec(p.EventType, p.ActionID, p.Name, p.Description,
			p.ETAMinutes, p.CostEstimate); err != nil {
			return fmt.Errorf("seed playbook %s/%s: %w", p.EventType, p.ActionID, err)
		}
	}
	return tx.Commit()
}
