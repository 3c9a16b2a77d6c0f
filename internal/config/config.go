// Package config loads gridpulse configuration from the environment, with an
// optional .env file layered underneath via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Producer-side hard cap on zones per cycle.
const MaxZonesHardCap = 5

// Config holds all application configuration.
type Config struct {
	// Server
	Port int

	// State store
	DBPath string

	// Message bus
	BusBrokers    []string
	BusGroupID    string
	CityScopeName string // logical database name scoping city collections

	// Processing
	DefaultCity   string
	CycleInterval time.Duration
	MaxZones      int

	// Fallback datasets
	DatasetDir string

	// External signal APIs (empty base URL disables the API tier)
	WeatherAPIURL string
	WeatherAPIKey string
	AQIAPIURL     string
	AQIAPIKey     string
	TrafficAPIURL string
	TrafficAPIKey string
	TariffAPIURL  string

	// Cost tuning
	CarbonPricePerTon float64
	DefaultPriceKWH   float64
	AQIPointPrice     float64
	IncidentPrice     float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. envFile, when non-empty, is
// loaded first; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Debug().Str("file", envFile).Err(err).Msg("No env file loaded")
		}
	} else if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env from working directory")
	}

	cfg := &Config{
		Port:              7700,
		DBPath:            "gridpulse.db",
		BusBrokers:        []string{"localhost:9092"},
		BusGroupID:        "gridpulse-ingest",
		CityScopeName:     "citydata",
		DefaultCity:       "nyc",
		CycleInterval:     300 * time.Second,
		MaxZones:          MaxZonesHardCap,
		DatasetDir:        "datasets",
		CarbonPricePerTon: 50,
		DefaultPriceKWH:   0.12,
		AQIPointPrice:     0.5,
		IncidentPrice:     50,
		LogLevel:          "info",
		LogFormat:         "auto",
	}

	if v := os.Getenv("GRIDPULSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid GRIDPULSE_PORT %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("GRIDPULSE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GRIDPULSE_BUS_BROKERS"); v != "" {
		cfg.BusBrokers = splitList(v)
	}
	if v := os.Getenv("GRIDPULSE_BUS_GROUP"); v != "" {
		cfg.BusGroupID = v
	}
	if v := os.Getenv("GRIDPULSE_CITY_SCOPE"); v != "" {
		cfg.CityScopeName = v
	}
	if v := os.Getenv("GRIDPULSE_DEFAULT_CITY"); v != "" {
		cfg.DefaultCity = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("GRIDPULSE_CYCLE_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 1 {
			return nil, fmt.Errorf("invalid GRIDPULSE_CYCLE_INTERVAL %q", v)
		}
		cfg.CycleInterval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("GRIDPULSE_MAX_ZONES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid GRIDPULSE_MAX_ZONES %q", v)
		}
		if n > MaxZonesHardCap {
			log.Warn().Int("requested", n).Int("cap", MaxZonesHardCap).
				Msg("GRIDPULSE_MAX_ZONES above hard cap; clamping")
			n = MaxZonesHardCap
		}
		cfg.MaxZones = n
	}
	if v := os.Getenv("GRIDPULSE_DATASET_DIR"); v != "" {
		cfg.DatasetDir = v
	}

	cfg.WeatherAPIURL = os.Getenv("GRIDPULSE_WEATHER_API_URL")
	cfg.WeatherAPIKey = os.Getenv("GRIDPULSE_WEATHER_API_KEY")
	cfg.AQIAPIURL = os.Getenv("GRIDPULSE_AQI_API_URL")
	cfg.AQIAPIKey = os.Getenv("GRIDPULSE_AQI_API_KEY")
	cfg.TrafficAPIURL = os.Getenv("GRIDPULSE_TRAFFIC_API_URL")
	cfg.TrafficAPIKey = os.Getenv("GRIDPULSE_TRAFFIC_API_KEY")
	cfg.TariffAPIURL = os.Getenv("GRIDPULSE_TARIFF_API_URL")

	var err error
	if cfg.CarbonPricePerTon, err = floatEnv("GRIDPULSE_CARBON_PRICE", cfg.CarbonPricePerTon); err != nil {
		return nil, err
	}
	if cfg.DefaultPriceKWH, err = floatEnv("GRIDPULSE_PRICE_PER_KWH", cfg.DefaultPriceKWH); err != nil {
		return nil, err
	}
	if cfg.AQIPointPrice, err = floatEnv("GRIDPULSE_AQI_POINT_PRICE", cfg.AQIPointPrice); err != nil {
		return nil, err
	}
	if cfg.IncidentPrice, err = floatEnv("GRIDPULSE_INCIDENT_PRICE", cfg.IncidentPrice); err != nil {
		return nil, err
	}

	if v := os.Getenv("GRIDPULSE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GRIDPULSE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
