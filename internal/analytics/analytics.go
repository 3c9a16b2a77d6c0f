// Package analytics is the deterministic kernel of the zone-processing
// engine. Every function is pure: identical inputs produce bit-identical
// outputs, which the engine relies on when re-running zones.
package analytics

import (
	"math"

	"github.com/urbanmesh/gridpulse/internal/models"
)

const (
	// ZScoreThreshold is the |z| above which a demand reading is anomalous.
	ZScoreThreshold = 2.0

	// SyntheticDemandSpike is the forecast above which the risk kernel
	// counts a demand spike when no demand history exists.
	SyntheticDemandSpike = 1200.0

	// ModelHistoryMean identifies the history-backed demand model.
	ModelHistoryMean = "history_mean_v1"
	// ModelTemperature identifies the temperature-only fallback model.
	ModelTemperature = "temperature_bracket_v1"
)

// DemandForecast estimates next-hour demand in kWh. With at least one hour
// of recent demand history it scales the historical mean by a temperature
// factor; otherwise it estimates from temperature alone.
func DemandForecast(weather *models.WeatherSignal, history []float64) models.DemandForecast {
	temp := 20.0
	if weather != nil {
		temp = weather.Temperature
	}

	if len(history) > 0 {
		mean := mean(history)
		factor := 1 + ((temp-20)/20)*0.3
		return models.DemandForecast{
			NextHourKWH: round2(mean * factor),
			Confidence:  0.75,
			Model:       ModelHistoryMean,
			Factors:     []string{"history_mean", "temperature"},
		}
	}

	var estimate float64
	switch {
	case temp > 25:
		estimate = 800 + 20*(temp-25)
	case temp < 15:
		estimate = 800 + 30*(15-temp)
	default:
		estimate = 600 + 10*(temp-20)
	}
	return models.DemandForecast{
		NextHourKWH: round2(estimate),
		Confidence:  0.60,
		Model:       ModelTemperature,
		Factors:     []string{"temperature"},
	}
}

// DetectAnomaly flags unusual zone conditions. With demand history it
// z-scores the current demand against the historical mean; without history
// it falls back to raw AQI and congestion thresholds.
func DetectAnomaly(current float64, history []float64, aqi *models.AirQualitySignal, traffic *models.TrafficSignal) models.AnomalyDetection {
	if len(history) > 1 {
		m := mean(history)
		sd := stddev(history, m)
		z := 0.0
		if sd > 0 {
			z = (current - m) / sd
		}
		return models.AnomalyDetection{
			IsAnomaly:     math.Abs(z) > ZScoreThreshold,
			AnomalyScore:  round2(math.Abs(z)),
			CurrentDemand: round2(current),
			BaselineMean:  round2(m),
			Threshold:     ZScoreThreshold,
		}
	}

	aqiVal := 0.0
	if aqi != nil {
		aqiVal = aqi.AQI
	}
	severe := traffic != nil && traffic.Congestion == models.CongestionSevere

	score := 0.0
	if aqiVal > 150 {
		score = (aqiVal - 150) / 50
	}
	if severe && 2.5 > score {
		score = 2.5
	}
	return models.AnomalyDetection{
		IsAnomaly:     aqiVal > 150 || severe,
		AnomalyScore:  round2(score),
		CurrentDemand: round2(current),
		BaselineMean:  0,
		Threshold:     ZScoreThreshold,
	}
}

// RiskScore composes AQI, congestion, and demand contributions into a
// single 0-100 score. The same weights apply on the live-pull and bus-fed
// paths.
func RiskScore(aqi *models.AirQualitySignal, traffic *models.TrafficSignal, forecast models.DemandForecast, history []float64) models.RiskScore {
	score := 0.0
	var factors []string

	aqiVal := 0.0
	if aqi != nil {
		aqiVal = aqi.AQI
	}
	switch {
	case aqiVal > 150:
		score += 30
		factors = append(factors, "aqi_unhealthy")
	case aqiVal > 100:
		score += 15
		factors = append(factors, "aqi_elevated")
	}

	if traffic != nil {
		switch traffic.Congestion {
		case models.CongestionSevere:
			score += 20
			factors = append(factors, "congestion_severe")
		case models.CongestionHeavy:
			score += 10
			factors = append(factors, "congestion_heavy")
		}
	}

	if demandSpike(forecast.NextHourKWH, history) {
		score += 25
		factors = append(factors, "demand_spike")
	}

	score = clamp(score, 0, 100)
	return models.RiskScore{
		Score:   score,
		Level:   riskLevel(score),
		Factors: factors,
	}
}

func demandSpike(forecast float64, history []float64) bool {
	if len(history) > 0 {
		return forecast > 1.5*mean(history)
	}
	return forecast > SyntheticDemandSpike
}

func riskLevel(score float64) models.ScoreLevel {
	switch {
	case score >= 60:
		return models.LevelHigh
	case score >= 35:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// ResilienceScore is the complement of risk: resilience + risk = 100.
func ResilienceScore(risk models.RiskScore) models.ResilienceScore {
	score := clamp(100-risk.Score, 0, 100)
	var level models.ScoreLevel
	switch {
	case score >= 70:
		level = models.LevelHigh
	case score >= 40:
		level = models.LevelMedium
	default:
		level = models.LevelLow
	}
	return models.ResilienceScore{Score: score, Level: level}
}

// ProjectAQI estimates next-hour AQI from wind dispersion and congestion
// load, clamped to the 0-500 index range.
func ProjectAQI(aqi *models.AirQualitySignal, weather *models.WeatherSignal, traffic *models.TrafficSignal) models.AQIPrediction {
	current := 0.0
	if aqi != nil {
		current = aqi.AQI
	}
	wind := 0.0
	if weather != nil {
		wind = weather.WindSpeed
	}

	congestionWeight := 0.5
	var factors []string
	if traffic != nil && (traffic.Congestion == models.CongestionHeavy || traffic.Congestion == models.CongestionSevere) {
		congestionWeight = 1.0
		factors = append(factors, "congestion")
	}
	if wind > 0 {
		factors = append(factors, "wind_dispersion")
	}

	next := current * (1 - wind*0.05) * (1 + congestionWeight*0.1)
	return models.AQIPrediction{
		NextHourAQI: round2(clamp(next, 0, 500)),
		Factors:     factors,
	}
}

// GridPriority derives the 1-5 dispatch priority for a zone from its risk
// tier plus anomaly, AQI, and demand bonuses.
func GridPriority(risk models.RiskScore, anomaly models.AnomalyDetection, aqi *models.AirQualitySignal, forecast models.DemandForecast) int {
	var base float64
	switch {
	case risk.Score >= 60:
		base = 5
	case risk.Score >= 35:
		base = 4
	case risk.Score >= 20:
		base = 3
	default:
		base = 2
	}

	if anomaly.IsAnomaly {
		base++
	}

	aqiVal := 0.0
	if aqi != nil {
		aqiVal = aqi.AQI
	}
	switch {
	case aqiVal > 200:
		base++
	case aqiVal > 150:
		base += 0.5
	}

	if forecast.NextHourKWH > 1000 {
		base += 0.5
	}

	priority := int(math.Round(base))
	if priority < 1 {
		priority = 1
	}
	if priority > 5 {
		priority = 5
	}
	return priority
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
