package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanmesh/gridpulse/internal/models"
)

func writeDataset(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testDatasets(t *testing.T) *Datasets {
	t.Helper()
	dir := t.TempDir()
	writeDataset(t, dir, aqiDatasetFile,
		"lat,lon,aqi,pm2.5,city\n40.71,-74.00,85,12.5,New York\n34.05,-118.24,110,20.1,Los Angeles\n")
	writeDataset(t, dir, monthlyMeansFile,
		"city,month,temp_c,humidity,wind_ms\nnyc,1,2.5,60,4\nnyc,8,27.0,65,3\n")
	writeDataset(t, dir, tariffDatasetFile,
		"state,price_per_kwh\nny,0.21\nca,0.27\n")
	return LoadDatasets(dir)
}

func TestCongestion_Bands(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		freeFlow float64
		want     models.Congestion
	}{
		{"free", 95, 100, models.CongestionFree},
		{"moderate", 75, 100, models.CongestionModerate},
		{"heavy", 55, 100, models.CongestionHeavy},
		{"severe", 20, 100, models.CongestionSevere},
		{"unknown when free-flow zero", 50, 0, models.CongestionUnknown},
		{"boundary 0.9", 90, 100, models.CongestionFree},
		{"boundary 0.7", 70, 100, models.CongestionModerate},
		{"boundary 0.5", 50, 100, models.CongestionHeavy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Congestion(tt.current, tt.freeFlow))
		})
	}
}

func TestDatasets_NearestStation(t *testing.T) {
	ds := testDatasets(t)

	station, ok := ds.NearestStation(40.73, -73.99)
	require.True(t, ok)
	assert.Equal(t, 85.0, station.AQI)

	// mid-Atlantic: nothing within 50 km
	_, ok = ds.NearestStation(30.0, -40.0)
	assert.False(t, ok)
}

func TestDatasets_MissingFilesNotFatal(t *testing.T) {
	ds := LoadDatasets(filepath.Join(t.TempDir(), "nope"))

	_, ok := ds.NearestStation(40, -74)
	assert.False(t, ok)
	_, ok = ds.MonthlyMeanFor("nyc", 1)
	assert.False(t, ok)
	_, ok = ds.TariffFor("ny")
	assert.False(t, ok)
}

func TestWeather_APITier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temperature":28.5,"humidity":55,"wind_speed":4.2,"description":"clear"}`))
	}))
	defer srv.Close()

	w := NewWeather(srv.URL, "k", nil)
	sig := w.Fetch(context.Background(), 40.7, -74.0, "nyc")
	require.NotNil(t, sig)
	assert.Equal(t, SourceWeatherAPI, sig.Source)
	assert.Equal(t, 28.5, sig.Temperature)
}

func TestWeather_FallsBackToMonthlyMeans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWeather(srv.URL, "", testDatasets(t))
	w.now = func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }

	sig := w.Fetch(context.Background(), 40.7, -74.0, "nyc")
	require.NotNil(t, sig)
	assert.Equal(t, SourceWeatherFallback, sig.Source)
	assert.Equal(t, 27.0, sig.Temperature)
}

func TestWeather_SyntheticOfLastResort(t *testing.T) {
	w := NewWeather("", "", nil)
	w.ForceTier(TierSynthetic)

	sig := w.Fetch(context.Background(), 0, 0, "unknown-city")
	require.NotNil(t, sig)
	assert.Equal(t, SourceWeatherFallback, sig.Source)
	assert.Equal(t, 20.0, sig.Temperature)
}

func TestAirQuality_DatasetTier(t *testing.T) {
	a := NewAirQuality("", "", testDatasets(t))
	a.ForceTier(TierDataset)

	sig := a.Fetch(context.Background(), 34.06, -118.25, "la")
	require.NotNil(t, sig)
	assert.Equal(t, SourceAQIDataset, sig.Source)
	assert.Equal(t, 110.0, sig.AQI)
	assert.Equal(t, 20.1, sig.Components["pm2_5"])
}

func TestAirQuality_SyntheticWhenOutOfRange(t *testing.T) {
	a := NewAirQuality("", "", testDatasets(t))

	// nowhere near any station
	sig := a.Fetch(context.Background(), 0, 0, "nyc")
	require.NotNil(t, sig)
	assert.Equal(t, SourceSynthetic, sig.Source)
	assert.Equal(t, syntheticAQI, sig.AQI)
}

func TestAirQuality_RejectsBadAPIValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"aqi":9000}`))
	}))
	defer srv.Close()

	a := NewAirQuality(srv.URL, "", nil)
	sig := a.Fetch(context.Background(), 0, 0, "nyc")
	require.NotNil(t, sig)
	assert.Equal(t, SourceSynthetic, sig.Source)
}

func TestTraffic_DerivesCongestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current_speed":30,"free_flow_speed":60}`))
	}))
	defer srv.Close()

	tp := NewTraffic(srv.URL, "")
	sig := tp.Fetch(context.Background(), 40.7, -74.0, "nyc")
	require.NotNil(t, sig)
	assert.Equal(t, models.CongestionHeavy, sig.Congestion)
}

func TestTraffic_SyntheticUnknown(t *testing.T) {
	tp := NewTraffic("", "")
	sig := tp.Fetch(context.Background(), 40.7, -74.0, "nyc")
	require.NotNil(t, sig)
	assert.Equal(t, models.CongestionUnknown, sig.Congestion)
	assert.Equal(t, SourceTrafficSynthetic, sig.Source)
}

func TestElectricity_Chain(t *testing.T) {
	ds := testDatasets(t)

	e := NewElectricity("", ds, 0.12)
	price, source := e.PriceFor(context.Background(), "NY")
	assert.Equal(t, 0.21, price)
	assert.Equal(t, SourceTariffDataset, source)

	price, source = e.PriceFor(context.Background(), "tx")
	assert.Equal(t, 0.12, price)
	assert.Equal(t, SourceTariffDefault, source)
}

func TestDatasets_Reload(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, tariffDatasetFile, "state,price_per_kwh\nny,0.21\n")
	ds := LoadDatasets(dir)

	price, ok := ds.TariffFor("ny")
	require.True(t, ok)
	assert.Equal(t, 0.21, price)

	writeDataset(t, dir, tariffDatasetFile, "state,price_per_kwh\nny,0.30\n")
	ds.Reload()

	price, ok = ds.TariffFor("ny")
	require.True(t, ok)
	assert.Equal(t, 0.30, price)
}
