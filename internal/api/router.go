// Package api serves the HTTP surface: city selection, processing triggers,
// state queries, cost rollups, the scenario agent, and the websocket feed.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/urbanmesh/gridpulse/internal/costs"
	"github.com/urbanmesh/gridpulse/internal/engine"
	"github.com/urbanmesh/gridpulse/internal/scenario"
	"github.com/urbanmesh/gridpulse/internal/scheduler"
	"github.com/urbanmesh/gridpulse/internal/store"
	"github.com/urbanmesh/gridpulse/internal/websocket"
)

// Router wires handlers onto a ServeMux.
type Router struct {
	mux *http.ServeMux

	store        *store.Store
	engine       *engine.Engine
	orchestrator *scenario.Orchestrator
	costs        *costs.Aggregator
	scheduler    *scheduler.Scheduler
	hub          *websocket.Hub
}

// Config wires a Router.
type Config struct {
	Store        *store.Store
	Engine       *engine.Engine
	Orchestrator *scenario.Orchestrator
	Costs        *costs.Aggregator
	Scheduler    *scheduler.Scheduler
	Hub          *websocket.Hub
}

// New builds the Router and registers all routes.
func New(cfg Config) *Router {
	r := &Router{
		mux:          http.NewServeMux(),
		store:        cfg.Store,
		engine:       cfg.Engine,
		orchestrator: cfg.Orchestrator,
		costs:        cfg.Costs,
		scheduler:    cfg.Scheduler,
		hub:          cfg.Hub,
	}

	r.mux.HandleFunc("GET /api/cities", r.handleCities)
	r.mux.HandleFunc("POST /api/cities/select", r.handleSelectCity)
	r.mux.HandleFunc("GET /api/cities/current", r.handleCurrentCity)
	r.mux.HandleFunc("GET /api/cities/{id}/zones", r.handleZones)

	r.mux.HandleFunc("POST /api/process/{city}", r.handleProcess)
	r.mux.HandleFunc("POST /api/process/{city}/stream", r.handleProcessStream)

	r.mux.HandleFunc("GET /api/snapshots", r.handleSnapshots)
	r.mux.HandleFunc("GET /api/alerts", r.handleAlerts)
	r.mux.HandleFunc("GET /api/costs", r.handleCosts)

	r.mux.HandleFunc("POST /api/scenario/start", r.handleScenarioStart)
	r.mux.HandleFunc("POST /api/scenario/message", r.handleScenarioMessage)

	r.mux.HandleFunc("GET /api/agent-runs", r.handleAgentRuns)
	r.mux.HandleFunc("GET /api/agent-runs/{id}", r.handleAgentRun)

	r.mux.HandleFunc("GET /api/health", r.handleHealth)
	r.mux.Handle("GET /metrics", promhttp.Handler())
	if r.hub != nil {
		r.mux.Handle("GET /ws", r.hub)
	}

	return r
}

// ServeHTTP implements http.Handler with request logging.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	r.mux.ServeHTTP(w, req)
	log.Debug().Str("method", req.Method).Str("path", req.URL.Path).
		Dur("duration", time.Since(start)).Msg("Request handled")
}

// writeJSON emits a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Response encode failed")
	}
}

// writeError emits a JSON object with an explicit error field. Validation
// failures get 4xx; everything else (datastore outages included) stays 200
// so callers distinguish by the error field.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// degraded reports a non-client failure as a 200 with an error field.
func degraded(w http.ResponseWriter, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	writeError(w, http.StatusOK, msg)
}

func queryLimit(req *http.Request, fallback int) int {
	v := req.URL.Query().Get("limit")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
