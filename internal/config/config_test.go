package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7700, cfg.Port)
	assert.Equal(t, "gridpulse.db", cfg.DBPath)
	assert.Equal(t, []string{"localhost:9092"}, cfg.BusBrokers)
	assert.Equal(t, "nyc", cfg.DefaultCity)
	assert.Equal(t, 300*time.Second, cfg.CycleInterval)
	assert.Equal(t, MaxZonesHardCap, cfg.MaxZones)
	assert.Equal(t, 0.12, cfg.DefaultPriceKWH)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GRIDPULSE_PORT", "8080")
	t.Setenv("GRIDPULSE_BUS_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("GRIDPULSE_DEFAULT_CITY", " Phoenix ")
	t.Setenv("GRIDPULSE_CYCLE_INTERVAL", "60")
	t.Setenv("GRIDPULSE_CARBON_PRICE", "75.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.BusBrokers)
	assert.Equal(t, "phoenix", cfg.DefaultCity)
	assert.Equal(t, time.Minute, cfg.CycleInterval)
	assert.Equal(t, 75.5, cfg.CarbonPricePerTon)
}

func TestLoad_MaxZonesClampedToHardCap(t *testing.T) {
	t.Setenv("GRIDPULSE_MAX_ZONES", "50")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, MaxZonesHardCap, cfg.MaxZones)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"GRIDPULSE_PORT", "not-a-port"},
		{"GRIDPULSE_PORT", "70000"},
		{"GRIDPULSE_CYCLE_INTERVAL", "0"},
		{"GRIDPULSE_MAX_ZONES", "-1"},
		{"GRIDPULSE_CARBON_PRICE", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
