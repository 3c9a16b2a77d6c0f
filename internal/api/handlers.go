package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/urbanmesh/gridpulse/internal/cities"
	"github.com/urbanmesh/gridpulse/internal/models"
	"github.com/urbanmesh/gridpulse/internal/store"
)

func (r *Router) handleCities(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]any{"cities": cities.List()})
}

func (r *Router) handleSelectCity(w http.ResponseWriter, req *http.Request) {
	var body struct {
		CityID string `json:"city_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.CityID == "" {
		writeError(w, http.StatusBadRequest, "city_id is required")
		return
	}
	city, err := cities.Get(body.CityID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.scheduler.Running() {
		r.scheduler.UpdateCity(city)
	} else {
		r.scheduler.Start(city, 0)
	}
	writeJSON(w, map[string]any{"city": city})
}

func (r *Router) handleCurrentCity(w http.ResponseWriter, req *http.Request) {
	city := r.scheduler.City()
	if city == nil {
		writeJSON(w, map[string]any{"city": nil, "error": "no city selected"})
		return
	}
	writeJSON(w, map[string]any{"city": city})
}

func (r *Router) handleZones(w http.ResponseWriter, req *http.Request) {
	city, err := cities.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"city_id": city.ID, "zones": cities.Zones(city)})
}

func (r *Router) handleProcess(w http.ResponseWriter, req *http.Request) {
	city, err := cities.Get(req.PathValue("city"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := r.engine.ProcessCity(req.Context(), city)
	if err != nil {
		degraded(w, err, "processing interrupted")
		return
	}
	writeJSON(w, map[string]any{"summary": summary})
}

func (r *Router) handleProcessStream(w http.ResponseWriter, req *http.Request) {
	city, err := cities.Get(req.PathValue("city"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := r.engine.ProcessCityFromStream(req.Context(), city)
	if err != nil {
		degraded(w, err, "stream processing failed")
		return
	}
	writeJSON(w, map[string]any{"summary": summary})
}

func (r *Router) handleSnapshots(w http.ResponseWriter, req *http.Request) {
	cityID := cities.Normalize(req.URL.Query().Get("city"))
	if cityID == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	if _, err := cities.Get(cityID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snaps, err := r.store.LatestSnapshots(cityID)
	if err != nil {
		degraded(w, err, "snapshot query failed")
		return
	}

	if zone := req.URL.Query().Get("zone"); zone != "" {
		filtered := snaps[:0]
		for _, s := range snaps {
			if s.ZoneID == zone {
				filtered = append(filtered, s)
			}
		}
		snaps = filtered
	}
	if limit := queryLimit(req, 0); limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	if snaps == nil {
		snaps = []models.ZoneSnapshot{}
	}
	writeJSON(w, map[string]any{"city_id": cityID, "snapshots": snaps})
}

func (r *Router) handleAlerts(w http.ResponseWriter, req *http.Request) {
	filter := store.AlertFilter{
		CityID: cities.Normalize(req.URL.Query().Get("city")),
		ZoneID: req.URL.Query().Get("zone"),
		Level:  models.AlertLevel(req.URL.Query().Get("level")),
		Limit:  queryLimit(req, 100),
	}
	if since := req.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC-3339")
			return
		}
		filter.Since = ts
	}

	alerts, err := r.store.QueryAlerts(filter)
	if err != nil {
		degraded(w, err, "alert query failed")
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, map[string]any{"alerts": alerts})
}

func (r *Router) handleCosts(w http.ResponseWriter, req *http.Request) {
	city, err := cities.Get(req.URL.Query().Get("city"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := r.costs.Summarize(req.Context(), city)
	if err != nil {
		degraded(w, err, "cost aggregation failed")
		return
	}
	writeJSON(w, map[string]any{"costs": summary})
}

func (r *Router) handleScenarioStart(w http.ResponseWriter, req *http.Request) {
	var body struct {
		CityID string `json:"city_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.CityID == "" {
		writeError(w, http.StatusBadRequest, "city_id is required")
		return
	}
	city, err := cities.Get(body.CityID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID, err := r.orchestrator.StartSession(city.ID)
	if err != nil {
		degraded(w, err, "session start failed")
		return
	}
	writeJSON(w, map[string]any{"session_id": sessionID})
}

func (r *Router) handleScenarioMessage(w http.ResponseWriter, req *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		CityID    string `json:"city_id"`
		ZoneID    string `json:"zone_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil ||
		body.SessionID == "" || body.Message == "" {
		writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}
	cityID := cities.Normalize(body.CityID)
	if cityID != "" {
		if _, err := cities.Get(cityID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ex, err := r.orchestrator.HandleMessage(req.Context(), body.SessionID, cityID, body.ZoneID, body.Message)
	if err != nil {
		degraded(w, err, "scenario exchange failed")
		return
	}
	writeJSON(w, ex)
}

func (r *Router) handleAgentRuns(w http.ResponseWriter, req *http.Request) {
	runs, err := r.store.ListAgentRuns(req.URL.Query().Get("session"), queryLimit(req, 50))
	if err != nil {
		degraded(w, err, "agent run query failed")
		return
	}
	if runs == nil {
		runs = []models.AgentRun{}
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (r *Router) handleAgentRun(w http.ResponseWriter, req *http.Request) {
	run, err := r.store.GetAgentRun(req.PathValue("id"))
	if err != nil {
		degraded(w, err, "agent run query failed")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "agent run not found")
		return
	}
	writeJSON(w, map[string]any{"run": run})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]any{
		"status":            "ok",
		"scheduler_running": r.scheduler.Running(),
		"ws_clients":        r.hub.ClientCount(),
		"time":              time.Now().UTC().Format(time.RFC3339),
	})
}
