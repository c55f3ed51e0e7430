package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/solalog/solalog-server/internal/weather"
)

// Point is a WGS84 coordinate reported by a client. Pointers distinguish a
// missing coordinate from a zero one.
type Point struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// NewPoint builds a Point from plain coordinates.
func NewPoint(lat, lon float64) Point {
	return Point{Latitude: &lat, Longitude: &lon}
}

// Lat returns the latitude, or 0 when missing. Call Validate first.
func (p Point) Lat() float64 {
	if p.Latitude == nil {
		return 0
	}
	return *p.Latitude
}

// Lon returns the longitude, or 0 when missing. Call Validate first.
func (p Point) Lon() float64 {
	if p.Longitude == nil {
		return 0
	}
	return *p.Longitude
}

// Validate checks that both coordinates are present, finite and in range.
func (p Point) Validate() error {
	if p.Latitude == nil || p.Longitude == nil {
		return eris.New("latitude and longitude are required")
	}
	lat, lon := *p.Latitude, *p.Longitude
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return eris.New("latitude and longitude must be finite")
	}
	if lat < -90 || lat > 90 {
		return eris.Errorf("latitude %v out of range", lat)
	}
	if lon < -180 || lon > 180 {
		return eris.Errorf("longitude %v out of range", lon)
	}
	return nil
}

// LocationRecord is one append-only location log entry.
type LocationRecord struct {
	ID         int64            `json:"id"`
	UserID     string           `json:"user_id"`
	Latitude   float64          `json:"latitude"`
	Longitude  float64          `json:"longitude"`
	Weather    weather.Category `json:"weather"`
	PlaceName  string           `json:"place_name,omitempty"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// UserLocation is a user's most recent location, as shown on the live map.
type UserLocation struct {
	ID         string           `json:"id"`
	Username   string           `json:"username"`
	Latitude   float64          `json:"latitude"`
	Longitude  float64          `json:"longitude"`
	Weather    weather.Category `json:"weather"`
	RecordedAt time.Time        `json:"recordedAt"`
}
