// Package station holds the read-only list of train stations and answers
// "is this point within the radius of a station" queries.
package station

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean earth radius used for distance conversion.
const EarthRadiusMeters = 6371008.8

// DefaultRadiusMeters is the proximity radius used when none is configured.
const DefaultRadiusMeters = 70.0

// Station is a named point. Names are not unique: the same station name
// appears once per operating line.
type Station struct {
	Name string  `yaml:"name" json:"name"`
	Line string  `yaml:"line,omitempty" json:"line,omitempty"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
}

// LatLng returns the station position as an s2.LatLng.
func (s Station) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(s.Lat, s.Lon)
}

// DistanceMeters returns the spherical distance between two coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}
