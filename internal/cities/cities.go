// Package cities holds the static city registry and derives the regular
// zone grid for each city. Zones are recomputed on demand and never treated
// as a persisted source of truth.
package cities

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/urbanmesh/gridpulse/internal/models"
)

var registry = map[string]models.City{
	"nyc": {
		ID:     "nyc",
		Name:   "New York City",
		Region: "NY",
		Center: models.Coordinate{Lat: 40.7128, Lon: -74.0060},
		Bounds: models.BoundingBox{
			MinLat: 40.4774, MinLon: -74.2591,
			MaxLat: 40.9176, MaxLon: -73.7004,
		},
		ZoneCount: 25,
	},
	"la": {
		ID:     "la",
		Name:   "Los Angeles",
		Region: "CA",
		Center: models.Coordinate{Lat: 34.0522, Lon: -118.2437},
		Bounds: models.BoundingBox{
			MinLat: 33.7037, MinLon: -118.6682,
			MaxLat: 34.3373, MaxLon: -118.1553,
		},
		ZoneCount: 25,
	},
	"chicago": {
		ID:     "chicago",
		Name:   "Chicago",
		Region: "IL",
		Center: models.Coordinate{Lat: 41.8781, Lon: -87.6298},
		Bounds: models.BoundingBox{
			MinLat: 41.6445, MinLon: -87.9401,
			MaxLat: 42.0230, MaxLon: -87.5237,
		},
		ZoneCount: 16,
	},
	"houston": {
		ID:     "houston",
		Name:   "Houston",
		Region: "TX",
		Center: models.Coordinate{Lat: 29.7604, Lon: -95.3698},
		Bounds: models.BoundingBox{
			MinLat: 29.5370, MinLon: -95.9097,
			MaxLat: 30.1107, MaxLon: -95.0120,
		},
		ZoneCount: 16,
	},
	"phoenix": {
		ID:     "phoenix",
		Name:   "Phoenix",
		Region: "AZ",
		Center: models.Coordinate{Lat: 33.4484, Lon: -112.0740},
		Bounds: models.BoundingBox{
			MinLat: 33.2903, MinLon: -112.3240,
			MaxLat: 33.9204, MaxLon: -111.9255,
		},
		ZoneCount: 9,
	},
}

// Get returns the city for a case-insensitive slug.
func Get(id string) (models.City, error) {
	city, ok := registry[Normalize(id)]
	if !ok {
		return models.City{}, fmt.Errorf("unknown city %q", id)
	}
	return city, nil
}

// List returns all cities ordered by slug.
func List() []models.City {
	out := make([]models.City, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Normalize lowercases and trims a city slug.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Zones derives the regular grid for a city. The grid is the squarest
// rows x cols factorisation that covers the requested zone count; ids are
// Z_001..Z_NNN in row-major order, so the derivation is deterministic.
func Zones(city models.City) []models.Zone {
	count := city.ZoneCount
	if count < 1 {
		count = 1
	}

	cols := int(math.Ceil(math.Sqrt(float64(count))))
	rows := int(math.Ceil(float64(count) / float64(cols)))

	latStep := (city.Bounds.MaxLat - city.Bounds.MinLat) / float64(rows)
	lonStep := (city.Bounds.MaxLon - city.Bounds.MinLon) / float64(cols)

	zones := make([]models.Zone, 0, count)
	for i := 0; i < count; i++ {
		row := i / cols
		col := i % cols
		minLat := city.Bounds.MinLat + float64(row)*latStep
		minLon := city.Bounds.MinLon + float64(col)*lonStep
		zones = append(zones, models.Zone{
			ID: fmt.Sprintf("Z_%03d", i+1),
			Center: models.Coordinate{
				Lat: minLat + latStep/2,
				Lon: minLon + lonStep/2,
			},
			Bounds: models.BoundingBox{
				MinLat: minLat, MinLon: minLon,
				MaxLat: minLat + latStep, MaxLon: minLon + lonStep,
			},
			Row: row,
			Col: col,
		})
	}
	return zones
}
