package providers

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	aqiDatasetFile     = "aqi_stations.csv"
	monthlyMeansFile   = "monthly_means.csv"
	tariffDatasetFile  = "tariffs.csv"
	maxStationDistance = 50.0 // km
)

// AQIStation is one row of the local air-quality dataset.
type AQIStation struct {
	Lat    float64
	Lon    float64
	AQI    float64
	PM25   float64
	City   string
}

// MonthlyMean is the climate fallback for one (city, month).
type MonthlyMean struct {
	Temperature float64
	Humidity    float64
	WindSpeed   float64
}

// Datasets is the in-memory view of the fallback dataset directory. All
// lookups are safe for concurrent use; Reload swaps the tables atomically.
// Missing files are not fatal: the corresponding lookups simply miss.
type Datasets struct {
	dir string

	mu       sync.RWMutex
	stations []AQIStation
	monthly  map[string][12]MonthlyMean // keyed by lowercased city
	tariffs  map[string]float64         // keyed by lowercased state/region
}

// LoadDatasets reads the fallback CSVs under dir. An unreadable directory
// yields an empty dataset, never an error.
func LoadDatasets(dir string) *Datasets {
	d := &Datasets{dir: dir}
	d.Reload()
	return d
}

// Reload re-reads all dataset files and swaps the tables in one step.
func (d *Datasets) Reload() {
	stations := loadStations(filepath.Join(d.dir, aqiDatasetFile))
	monthly := loadMonthlyMeans(filepath.Join(d.dir, monthlyMeansFile))
	tariffs := loadTariffs(filepath.Join(d.dir, tariffDatasetFile))

	d.mu.Lock()
	d.stations = stations
	d.monthly = monthly
	d.tariffs = tariffs
	d.mu.Unlock()

	log.Info().
		Int("stations", len(stations)).
		Int("cities", len(monthly)).
		Int("tariffs", len(tariffs)).
		Str("dir", d.dir).
		Msg("Fallback datasets loaded")
}

// NearestStation returns the closest station within maxStationDistance km,
// or false when the dataset has no station in range.
func (d *Datasets) NearestStation(lat, lon float64) (AQIStation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	best := AQIStation{}
	bestDist := math.MaxFloat64
	for _, s := range d.stations {
		dist := haversineKM(lat, lon, s.Lat, s.Lon)
		if dist < bestDist {
			best, bestDist = s, dist
		}
	}
	if bestDist > maxStationDistance {
		return AQIStation{}, false
	}
	return best, true
}

// MonthlyMeanFor returns the climate mean for a city and month (1-12).
func (d *Datasets) MonthlyMeanFor(cityID string, month int) (MonthlyMean, bool) {
	if month < 1 || month > 12 {
		return MonthlyMean{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	means, ok := d.monthly[strings.ToLower(cityID)]
	if !ok {
		return MonthlyMean{}, false
	}
	return means[month-1], true
}

// TariffFor returns the retail $/kWh for a state/region.
func (d *Datasets) TariffFor(region string) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	price, ok := d.tariffs[strings.ToLower(region)]
	return price, ok
}

func loadStations(path string) []AQIStation {
	rows, header := readCSV(path)
	if rows == nil {
		return nil
	}
	latIdx, lonIdx := headerIndex(header, "lat"), headerIndex(header, "lon")
	aqiIdx, pmIdx := headerIndex(header, "aqi"), headerIndex(header, "pm2.5")
	cityIdx := headerIndex(header, "city")
	if latIdx < 0 || lonIdx < 0 || aqiIdx < 0 {
		log.Warn().Str("path", path).Msg("AQI dataset missing required columns")
		return nil
	}

	stations := make([]AQIStation, 0, len(rows))
	for _, row := range rows {
		lat, err1 := parseField(row, latIdx)
		lon, err2 := parseField(row, lonIdx)
		aqi, err3 := parseField(row, aqiIdx)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		s := AQIStation{Lat: lat, Lon: lon, AQI: aqi}
		if pmIdx >= 0 {
			s.PM25, _ = parseField(row, pmIdx)
		}
		if cityIdx >= 0 && cityIdx < len(row) {
			s.City = row[cityIdx]
		}
		stations = append(stations, s)
	}
	return stations
}

func loadMonthlyMeans(path string) map[string][12]MonthlyMean {
	rows, header := readCSV(path)
	if rows == nil {
		return nil
	}
	cityIdx := headerIndex(header, "city")
	monthIdx := headerIndex(header, "month")
	tempIdx := headerIndex(header, "temp_c")
	humIdx := headerIndex(header, "humidity")
	windIdx := headerIndex(header, "wind_ms")
	if cityIdx < 0 || monthIdx < 0 || tempIdx < 0 {
		log.Warn().Str("path", path).Msg("Monthly means dataset missing required columns")
		return nil
	}

	out := make(map[string][12]MonthlyMean)
	for _, row := range rows {
		if cityIdx >= len(row) {
			continue
		}
		monthF, err := parseField(row, monthIdx)
		if err != nil {
			continue
		}
		month := int(monthF)
		if month < 1 || month > 12 {
			continue
		}
		temp, err := parseField(row, tempIdx)
		if err != nil {
			continue
		}
		mean := MonthlyMean{Temperature: temp}
		if humIdx >= 0 {
			mean.Humidity, _ = parseField(row, humIdx)
		}
		if windIdx >= 0 {
			mean.WindSpeed, _ = parseField(row, windIdx)
		}

		city := strings.ToLower(row[cityIdx])
		means := out[city]
		means[month-1] = mean
		out[city] = means
	}
	return out
}

func loadTariffs(path string) map[string]float64 {
	rows, header := readCSV(path)
	if rows == nil {
		return nil
	}
	stateIdx := headerIndex(header, "state")
	priceIdx := headerIndex(header, "price_per_kwh")
	if stateIdx < 0 || priceIdx < 0 {
		log.Warn().Str("path", path).Msg("Tariff dataset missing required columns")
		return nil
	}

	out := make(map[string]float64)
	for _, row := range rows {
		if stateIdx >= len(row) {
			continue
		}
		price, err := parseField(row, priceIdx)
		if err != nil {
			continue
		}
		out[strings.ToLower(row[stateIdx])] = price
	}
	return out
}

func readCSV(path string) (rows [][]string, header []string) {
	f, err := os.Open(path)
	if err != nil {
		log.Debug().Str("path", path).Err(err).Msg("Dataset file not available")
		return nil, nil
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	all, err := reader.ReadAll()
	if err != nil || len(all) < 1 {
		log.Warn().Str("path", path).Err(err).Msg("Dataset file unreadable")
		return nil, nil
	}
	header = make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return all[1:], header
}

func headerIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func parseField(row []string, idx int) (float64, error) {
	if idx < 0 || idx >= len(row) {
		return 0, fmt.Errorf("column %d out of range", idx)
	}
	return strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
}

// haversineKM is the great-circle distance between two points in km.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
