package models

import "time"

// Asset is a registered piece of grid infrastructure within a zone.
type Asset struct {
	AssetID string `json:"asset_id"`
	CityID  string `json:"city_id"`
	ZoneID  string `json:"zone_id"`
	Type    string `json:"type"` // substation, feeder, sensor, ...
	Name    string `json:"name"`
}

// ActiveEvent is an operational event currently in effect. The orchestrator
// forms evidence IDs from EventID.
type ActiveEvent struct {
	EventID  string    `json:"event_id"`
	CityID   string    `json:"city_id"`
	Type     string    `json:"type"` // outage, aqi_spike, road_closure, failure
	ZoneID   string    `json:"zone"`
	Severity string    `json:"severity"`
	TS       time.Time `json:"ts"`
}

// ServiceOutage describes a service interruption in a zone.
type ServiceOutage struct {
	EventID     string    `json:"event_id"`
	CityID      string    `json:"city_id"`
	ZoneID      string    `json:"zone"`
	ServiceType string    `json:"service_type"`
	PctAffected float64   `json:"pct_affected"`
	StartTS     time.Time `json:"start_ts"`
	ETATS       time.Time `json:"eta_ts"`
}

// Playbook is a pre-defined remedial action indexed by event type.
type Playbook struct {
	EventType    string  `json:"event_type"`
	ActionID     string  `json:"action_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	ETAMinutes   int     `json:"eta_minutes"`
	CostEstimate float64 `json:"cost_estimate"`
}
