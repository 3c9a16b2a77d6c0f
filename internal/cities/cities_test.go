package cities

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_CaseInsensitive(t *testing.T) {
	city, err := Get("  NYC ")
	require.NoError(t, err)
	assert.Equal(t, "nyc", city.ID)

	_, err = Get("gotham")
	assert.Error(t, err)
}

func TestList_OrderedBySlug(t *testing.T) {
	list := List()
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestZones_DeterministicGrid(t *testing.T) {
	city, err := Get("phoenix")
	require.NoError(t, err)

	zones := Zones(city)
	require.Len(t, zones, 9)

	// row-major ids, repeatable across calls
	for i, z := range zones {
		assert.Equal(t, fmt.Sprintf("Z_%03d", i+1), z.ID)
	}
	assert.Equal(t, zones, Zones(city))

	// 9 zones factorise as 3x3
	assert.Equal(t, 2, zones[len(zones)-1].Row)
	assert.Equal(t, 2, zones[len(zones)-1].Col)
}

func TestZones_WithinCityBounds(t *testing.T) {
	for _, city := range List() {
		for _, z := range Zones(city) {
			assert.GreaterOrEqual(t, z.Bounds.MinLat, city.Bounds.MinLat, "%s/%s", city.ID, z.ID)
			assert.GreaterOrEqual(t, z.Bounds.MinLon, city.Bounds.MinLon, "%s/%s", city.ID, z.ID)
			assert.LessOrEqual(t, z.Bounds.MaxLat, city.Bounds.MaxLat+1e-9, "%s/%s", city.ID, z.ID)
			assert.LessOrEqual(t, z.Bounds.MaxLon, city.Bounds.MaxLon+1e-9, "%s/%s", city.ID, z.ID)
			assert.InDelta(t, (z.Bounds.MinLat+z.Bounds.MaxLat)/2, z.Center.Lat, 1e-9)
			assert.InDelta(t, (z.Bounds.MinLon+z.Bounds.MaxLon)/2, z.Center.Lon, 1e-9)
		}
	}
}

func TestZones_NonSquareCount(t *testing.T) {
	city, err := Get("nyc")
	require.NoError(t, err)
	city.ZoneCount = 7

	zones := Zones(city)
	require.Len(t, zones, 7)
	// 7 zones over a 3-wide grid: last zone sits on row 2, col 0
	assert.Equal(t, 2, zones[6].Row)
	assert.Equal(t, 0, zones[6].Col)
}
