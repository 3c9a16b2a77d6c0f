// Package models defines the shared data model for gridpulse: cities and
// their derived zone grids, per-zone fused snapshots, alerts, raw-latest
// records, processing summaries, and the grounding catalog entities the
// scenario orchestrator cites as evidence.
package models

import (
	"time"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox delimits a rectangular area (south-west to north-east).
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// City is a static catalog entry. Immutable at runtime.
type City struct {
	ID        string      `json:"id"` // lowercased slug
	Name      string      `json:"name"`
	Region    string      `json:"region"` // administrative region / state
	Center    Coordinate  `json:"center"`
	Bounds    BoundingBox `json:"bounds"`
	ZoneCount int         `json:"zone_count"`
}

// Zone is one cell of the regular grid dividing a city's bounding box.
// Derived deterministically from (city, zone count); never the source of truth.
type Zone struct {
	ID     string      `json:"id"` // Z_### unique within a city
	Center Coordinate  `json:"center"`
	Bounds BoundingBox `json:"bounds"`
	Row    int         `json:"row"`
	Col    int         `json:"col"`
}

// Congestion classifies traffic flow.
type Congestion string

const (
	CongestionFree     Congestion = "free"
	CongestionModerate Congestion = "moderate"
	CongestionHeavy    Congestion = "heavy"
	CongestionSevere   Congestion = "severe"
	CongestionUnknown  Congestion = "unknown"
)

// WeatherSignal is the fused weather sub-record of a snapshot.
type WeatherSignal struct {
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"` // celsius
	Humidity    float64   `json:"humidity"`    // percent
	WindSpeed   float64   `json:"wind_speed"`  // m/s
	Description string    `json:"description,omitempty"`
}

// AirQualitySignal is the fused air-quality sub-record of a snapshot.
type AirQualitySignal struct {
	Source     string             `json:"source"`
	Timestamp  time.Time          `json:"timestamp"`
	AQI        float64            `json:"aqi"` // 0-500
	Components map[string]float64 `json:"components,omitempty"`
}

// TrafficSignal is the fused traffic sub-record of a snapshot.
type TrafficSignal struct {
	Source        string     `json:"source"`
	Timestamp     time.Time  `json:"timestamp"`
	CurrentSpeed  float64    `json:"current_speed"`
	FreeFlowSpeed float64    `json:"free_flow_speed"`
	Congestion    Congestion `json:"congestion"`
}

// RawRecord groups the fused external signals plus the derived grid priority.
type RawRecord struct {
	Weather      *WeatherSignal    `json:"weather,omitempty"`
	AQI          *AirQualitySignal `json:"aqi,omitempty"`
	Traffic      *TrafficSignal    `json:"traffic,omitempty"`
	GridPriority int               `json:"grid_priority"` // 1..5
}

// DemandForecast is the analytics demand sub-record.
type DemandForecast struct {
	NextHourKWH float64  `json:"next_hour_kwh"`
	Confidence  float64  `json:"confidence"`
	Model       string   `json:"model"`
	Factors     []string `json:"factors,omitempty"`
}

// AnomalyDetection is the analytics anomaly sub-record.
type AnomalyDetection struct {
	IsAnomaly     bool    `json:"is_anomaly"`
	AnomalyScore  float64 `json:"anomaly_score"`
	CurrentDemand float64 `json:"current_demand"`
	BaselineMean  float64 `json:"baseline_mean"`
	Threshold     float64 `json:"threshold"`
}

// ScoreLevel partitions score ranges.
type ScoreLevel string

const (
	LevelLow    ScoreLevel = "low"
	LevelMedium ScoreLevel = "medium"
	LevelHigh   ScoreLevel = "high"
)

// RiskScore is the analytics composite-risk sub-record.
type RiskScore struct {
	Score   float64    `json:"score"` // 0-100
	Level   ScoreLevel `json:"level"`
	Factors []string   `json:"factors,omitempty"`
}

// ResilienceScore mirrors RiskScore: resilience = 100 - risk.
type ResilienceScore struct {
	Score float64    `json:"score"` // 0-100
	Level ScoreLevel `json:"level"`
}

// AQIPrediction is the analytics AQI projection sub-record.
type AQIPrediction struct {
	NextHourAQI float64  `json:"next_hour_aqi"`
	Factors     []string `json:"factors,omitempty"`
}

// Analytics bundles the deterministic kernel outputs.
type Analytics struct {
	DemandForecast   DemandForecast   `json:"demand_forecast"`
	AnomalyDetection AnomalyDetection `json:"anomaly_detection"`
	RiskScore        RiskScore        `json:"risk_score"`
	ResilienceScore  ResilienceScore  `json:"resilience_score"`
	AQIPrediction    AQIPrediction    `json:"aqi_prediction"`
}

// Recommendation is a human-readable operator suggestion.
type Recommendation struct {
	Priority    int    `json:"priority"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Urgency     string `json:"urgency"`
}

// ZoneSnapshot is the fused, analysed per-zone record produced by one
// processing run. Snapshots are append-only history; "latest per zone" is a
// derived view, never a keyed overwrite.
type ZoneSnapshot struct {
	CityID          string           `json:"city_id"`
	ZoneID          string           `json:"zone_id"`
	Timestamp       time.Time        `json:"timestamp"`
	Raw             RawRecord        `json:"raw"`
	Analytics       Analytics        `json:"analytics"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelInfo      AlertLevel = "info"
	AlertLevelWatch     AlertLevel = "watch"
	AlertLevelWarning   AlertLevel = "warning"
	AlertLevelAlert     AlertLevel = "alert"
	AlertLevelEmergency AlertLevel = "emergency"
)

// AlertType categorises what tripped the alert.
type AlertType string

const (
	AlertTypeAnomaly            AlertType = "anomaly"
	AlertTypeHighRisk           AlertType = "high_risk"
	AlertTypeAQI                AlertType = "aqi"
	AlertTypeDemandSpike        AlertType = "demand_spike"
	AlertTypeProcessingComplete AlertType = "processing_complete"
)

// SystemZone is the sentinel zone_id for city-scoped alerts.
const SystemZone = "system"

// Alert is emitted by the processing engine. Append-only after insert.
type Alert struct {
	ID      string            `json:"id"`
	CityID  string            `json:"city_id"`
	ZoneID  string            `json:"zone_id"` // zone id or "system"
	TS      time.Time         `json:"ts"`
	Level   AlertLevel        `json:"level"`
	Type    AlertType         `json:"type"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Source  string            `json:"source"`
}

// RawLatest is the most recent payload per (city, zone) for a topic,
// maintained by the streaming ingester. Last write wins by arrival order.
type RawLatest struct {
	CityID     string         `json:"city_id"`
	ZoneID     string         `json:"zone_id"`
	Topic      string         `json:"topic"`
	TS         time.Time      `json:"ts"`
	IngestedAt time.Time      `json:"ingested_at"`
	Payload    map[string]any `json:"payload"`
}

// ZoneStatus records a single zone's outcome within a processing run.
type ZoneStatus struct {
	ZoneID string `json:"zone_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// ProcessingSummary is written once per city run. Append-only.
type ProcessingSummary struct {
	CityID     string       `json:"city_id"`
	Timestamp  time.Time    `json:"timestamp"`
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Zones      []ZoneStatus `json:"zones,omitempty"`
}
