package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/urbanmesh/gridpulse/internal/models"
)

const alertSource = "engine"

// zoneAlerts derives threshold alerts from one fused snapshot.
func zoneAlerts(snap models.ZoneSnapshot, ts time.Time) []models.Alert {
	var alerts []models.Alert
	add := func(level models.AlertLevel, typ models.AlertType, msg string, details map[string]string) {
		alerts = append(alerts, models.Alert{
			ID:      uuid.NewString(),
			CityID:  snap.CityID,
			ZoneID:  snap.ZoneID,
			TS:      ts,
			Level:   level,
			Type:    typ,
			Message: msg,
			Details: details,
			Source:  alertSource,
		})
	}

	if snap.Analytics.AnomalyDetection.IsAnomaly {
		add(models.AlertLevelAlert, models.AlertTypeAnomaly,
			fmt.Sprintf("Demand anomaly detected in %s", snap.ZoneID),
			map[string]string{
				"score": fmt.Sprintf("%.2f", snap.Analytics.AnomalyDetection.AnomalyScore),
			})
	}

	if snap.Analytics.RiskScore.Level == models.LevelHigh {
		add(models.AlertLevelWarning, models.AlertTypeHighRisk,
			fmt.Sprintf("Composite risk is high in %s", snap.ZoneID),
			map[string]string{
				"risk": fmt.Sprintf("%.0f", snap.Analytics.RiskScore.Score),
			})
	}

	if snap.Raw.AQI != nil {
		aqi := snap.Raw.AQI.AQI
		details := map[string]string{"aqi": fmt.Sprintf("%.0f", aqi)}
		switch {
		case aqi > 200:
			add(models.AlertLevelEmergency, models.AlertTypeAQI,
				fmt.Sprintf("Very unhealthy air quality in %s", snap.ZoneID), details)
		case aqi > 150:
			add(models.AlertLevelAlert, models.AlertTypeAQI,
				fmt.Sprintf("Unhealthy air quality in %s", snap.ZoneID), details)
		case aqi > 100:
			add(models.AlertLevelWatch, models.AlertTypeAQI,
				fmt.Sprintf("Elevated air quality index in %s", snap.ZoneID), details)
		}
	}

	if snap.Analytics.DemandForecast.NextHourKWH > 1000 {
		add(models.AlertLevelWarning, models.AlertTypeDemandSpike,
			fmt.Sprintf("Demand forecast above 1000 kWh in %s", snap.ZoneID),
			map[string]string{
				"forecast_kwh": fmt.Sprintf("%.0f", snap.Analytics.DemandForecast.NextHourKWH),
			})
	}

	return alerts
}

// completionAlert announces a finished city run on the system zone.
func completionAlert(cityID string, summary models.ProcessingSummary, ts time.Time) models.Alert {
	return models.Alert{
		ID:      uuid.NewString(),
		CityID:  cityID,
		ZoneID:  models.SystemZone,
		TS:      ts,
		Level:   models.AlertLevelInfo,
		Type:    models.AlertTypeProcessingComplete,
		Message: fmt.Sprintf("Processed %d/%d zones for %s", summary.Successful, summary.Total, cityID),
		Details: map[string]string{
			"successful": fmt.Sprintf("%d", summary.Successful),
			"failed":     fmt.Sprintf("%d", summary.Failed),
		},
		Source: alertSource,
	}
}

// recommendations turns threshold crossings into operator suggestions,
// highest priority first.
func recommendations(snap models.ZoneSnapshot) []models.Recommendation {
	var recs []models.Recommendation

	if snap.Raw.AQI != nil && snap.Raw.AQI.AQI > 150 {
		recs = append(recs, models.Recommendation{
			Priority: 5, Type: "air_quality", Urgency: "high",
			Title:       "Issue air-quality advisory",
			Description: fmt.Sprintf("AQI %.0f in %s; advise sensitive groups to stay indoors.", snap.Raw.AQI.AQI, snap.ZoneID),
		})
	}

	if snap.Analytics.RiskScore.Level == models.LevelHigh {
		recs = append(recs, models.Recommendation{
			Priority: 5, Type: "risk", Urgency: "high",
			Title:       "Review zone risk drivers",
			Description: fmt.Sprintf("Composite risk %.0f in %s; check contributing factors.", snap.Analytics.RiskScore.Score, snap.ZoneID),
		})
	}

	if snap.Analytics.AnomalyDetection.IsAnomaly {
		recs = append(recs, models.Recommendation{
			Priority: 4, Type: "anomaly", Urgency: "medium",
			Title:       "Investigate demand anomaly",
			Description: fmt.Sprintf("Demand deviates from baseline in %s (score %.2f).", snap.ZoneID, snap.Analytics.AnomalyDetection.AnomalyScore),
		})
	}

	if snap.Analytics.DemandForecast.NextHourKWH > 1000 {
		recs = append(recs, models.Recommendation{
			Priority: 4, Type: "demand", Urgency: "medium",
			Title:       "Prepare for demand peak",
			Description: fmt.Sprintf("Forecast %.0f kWh next hour in %s; confirm spare capacity.", snap.Analytics.DemandForecast.NextHourKWH, snap.ZoneID),
		})
	}

	if snap.Raw.Traffic != nil && snap.Raw.Traffic.Congestion == models.CongestionSevere {
		recs = append(recs, models.Recommendation{
			Priority: 3, Type: "traffic", Urgency: "medium",
			Title:       "Stage crews outside congested area",
			Description: fmt.Sprintf("Severe congestion in %s will slow field response.", snap.ZoneID),
		})
	}

	return recs
}
