// Package geo holds the city-centroid reference table and great-circle math
// shared by the validation engine and the centroid fallback stage.
package geo

import (
	"math"
	"strings"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

const earthRadiusKM = 6371

// HaversineKM returns the great-circle distance in kilometers between two
// lat/lng points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dlat := rad(lat2 - lat1)
	dlon := rad(lon2 - lon1)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// CentroidTable maps (city, county) pairs to approximate center coordinates.
// Lookups are case-insensitive.
type CentroidTable struct {
	centroids map[string]model.Coordinates
}

// NewCentroidTable creates an empty table.
func NewCentroidTable() *CentroidTable {
	return &CentroidTable{centroids: make(map[string]model.Coordinates)}
}

// DefaultCentroids returns the table for the west Texas service area.
func DefaultCentroids() *CentroidTable {
	t := NewCentroidTable()
	for _, c := range []struct {
		city, county string
		lat, lng     float64
	}{
		{"KERMIT", "WINKLER", 31.8576, -103.0930},
		{"PYOTE", "WARD", 31.5401, -103.1293},
		{"BARSTOW", "WARD", 31.4596, -103.3954},
		{"MONAHANS", "WARD", 31.5943, -102.8929},
		{"ANDREWS", "ANDREWS", 32.3185, -102.5457},
		{"GARDENDALE", "ANDREWS", 32.0165, -102.3779},
		{"COYANOSA", "WARD", 31.2693, -103.0324},
		{"WICKETT", "WARD", 31.5768, -103.0010},
		{"THORNTONVILLE", "WARD", 31.4446, -103.1079},
	} {
		t.Register(c.city, c.county, model.Coordinates{Latitude: c.lat, Longitude: c.lng})
	}
	return t
}

func centroidKey(city, county string) string {
	return strings.ToUpper(strings.TrimSpace(city)) + "|" + strings.ToUpper(strings.TrimSpace(county))
}

// Register adds or replaces a centroid for a city/county pair.
func (t *CentroidTable) Register(city, county string, coords model.Coordinates) {
	t.centroids[centroidKey(city, county)] = coords
}

// Lookup returns the centroid for a city/county pair, if registered.
func (t *CentroidTable) Lookup(city, county string) (model.Coordinates, bool) {
	c, ok := t.centroids[centroidKey(city, county)]
	return c, ok
}

// Len returns the number of registered centroids.
func (t *CentroidTable) Len() int {
	return len(t.centroids)
}
