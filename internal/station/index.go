package station

import (
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// maxCellLevel is the finest bucket level. Level 15 cells are roughly 300 m
// across, which keeps a 70 m cap within a handful of cells.
const maxCellLevel = 15

// Index answers proximity queries over an ordered station list. It is
// immutable after construction and safe for concurrent use.
type Index struct {
	stations []Station
	radius   float64
	level    int
	cells    map[s2.CellID][]int
}

// NewIndex buckets stations by S2 cell. The load order of stations is
// preserved and decides which station wins when several are in range.
// A non-positive radius falls back to DefaultRadiusMeters.
func NewIndex(stations []Station, radiusMeters float64) *Index {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}

	// Pick a level whose cells are at least as wide as the query cap, so a
	// covering stays small regardless of the configured radius.
	level := s2.MinWidthMetric.MaxLevel(2 * radiusMeters / EarthRadiusMeters)
	if level > maxCellLevel {
		level = maxCellLevel
	}

	idx := &Index{
		stations: append([]Station(nil), stations...),
		radius:   radiusMeters,
		level:    level,
		cells:    make(map[s2.CellID][]int),
	}
	for i, s := range idx.stations {
		id := s2.CellIDFromLatLng(s.LatLng()).Parent(level)
		idx.cells[id] = append(idx.cells[id], i)
	}
	return idx
}

// FindNearby returns the first station, in load order, whose distance to
// (lat, lon) is within the radius. It is not necessarily the nearest one.
func (idx *Index) FindNearby(lat, lon float64) (Station, bool) {
	for _, i := range idx.candidates(lat, lon) {
		s := idx.stations[i]
		if DistanceMeters(lat, lon, s.Lat, s.Lon) <= idx.radius {
			return s, true
		}
	}
	return Station{}, false
}

// candidates returns the indices of stations in cells touching the query
// cap, ascending.
func (idx *Index) candidates(lat, lon float64) []int {
	if len(idx.stations) == 0 {
		return nil
	}

	// Pad the cap slightly so stations sitting exactly on the radius are
	// not lost to covering round-off. The exact check happens afterwards.
	angle := s1.Angle((idx.radius + 1) / EarthRadiusMeters)
	region := s2.CapFromCenterAngle(s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon)), angle)
	coverer := &s2.RegionCoverer{MinLevel: idx.level, MaxLevel: idx.level, LevelMod: 1, MaxCells: 8}

	var out []int
	for _, id := range coverer.Covering(region) {
		out = append(out, idx.cells[id]...)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of indexed stations.
func (idx *Index) Len() int { return len(idx.stations) }

// Radius returns the proximity radius in meters.
func (idx *Index) Radius() float64 { return idx.radius }

// Stations returns a copy of the stations in load order.
func (idx *Index) Stations() []Station {
	return append([]Station(nil), idx.stations...)
}
