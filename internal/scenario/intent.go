package scenario

import (
	"regexp"
	"strings"

	"github.com/urbanmesh/gridpulse/internal/models"
)

// intentKeywords maps lowercase trigger phrases to intents. First match in
// table order wins; longer, more specific phrases come first.
var intentKeywords = []struct {
	intent   models.Intent
	keywords []string
}{
	{models.IntentPowerOutage, []string{"power outage", "blackout", "power cut", "no power", "lost power", "power is out", "outage"}},
	{models.IntentAQISpike, []string{"aqi", "air quality", "smog", "pollution", "smoke"}},
	{models.IntentRoadClosure, []string{"road closure", "road closed", "street closed", "closure", "blocked road"}},
	{models.IntentFailure, []string{"failure", "failed", "fault", "malfunction", "broken", "down"}},
}

// ClassifyIntent maps a free-text message to an intent by keyword lookup.
func ClassifyIntent(message string) models.Intent {
	msg := strings.ToLower(message)
	for _, row := range intentKeywords {
		for _, kw := range row.keywords {
			if strings.Contains(msg, kw) {
				return row.intent
			}
		}
	}
	return models.IntentGeneral
}

// requiresZone reports whether an intent is zone-scoped: without a resolved
// zone the orchestrator asks a clarifying question instead of running tools.
func requiresZone(intent models.Intent) bool {
	switch intent {
	case models.IntentPowerOutage, models.IntentRoadClosure, models.IntentFailure:
		return true
	default:
		return false
	}
}

// eventTypeFor maps an intent to the catalog event type its tools filter by.
// General messages have no event type and therefore no playbooks.
func eventTypeFor(intent models.Intent) string {
	switch intent {
	case models.IntentPowerOutage:
		return "outage"
	case models.IntentAQISpike:
		return "aqi_spike"
	case models.IntentRoadClosure:
		return "road_closure"
	case models.IntentFailure:
		return "failure"
	default:
		return ""
	}
}

var zonePattern = regexp.MustCompile(`(?i)\bZ_\d{3}\b`)

// extractZone pulls an explicit zone id out of a message, if present.
func extractZone(message string) string {
	return strings.ToUpper(zonePattern.FindString(message))
}
