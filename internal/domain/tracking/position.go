package tracking

import (
	"fmt"
	"math"
)

// GeoPosition is a single fix reported by a position source.
type GeoPosition struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// NewGeoPosition builds a GeoPosition without validating it.
func NewGeoPosition(lat, lng float64) GeoPosition {
	return GeoPosition{Latitude: lat, Longitude: lng}
}

// Validate reports whether the position lies on the globe.
// Callers use it for diagnostics; fixes are never dropped because of it.
func (p GeoPosition) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return fmt.Errorf("coordinates must be numbers, got (%f, %f)", p.Latitude, p.Longitude)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %f", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %f", p.Longitude)
	}
	return nil
}

// LatLng returns the position in [lat, lng] order, as map SDKs expect centers.
func (p GeoPosition) LatLng() [2]float64 {
	return [2]float64{p.Latitude, p.Longitude}
}

func (p GeoPosition) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Latitude, p.Longitude)
}
