package station

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offsetNorth moves a point north by meters.
func offsetNorth(lat, lon, meters float64) (float64, float64) {
	return lat + meters/111195.0, lon
}

func linearFind(stations []Station, radius, lat, lon float64) (Station, bool) {
	for _, s := range stations {
		if DistanceMeters(lat, lon, s.Lat, s.Lon) <= radius {
			return s, true
		}
	}
	return Station{}, false
}

func TestFindNearby_LowestIndexWins(t *testing.T) {
	// Query point sits 10 m from B and 50 m from A; A is loaded first.
	qLat, qLon := 35.681236, 139.767125
	aLat, aLon := offsetNorth(qLat, qLon, 50)
	bLat, bLon := offsetNorth(qLat, qLon, -10)

	idx := NewIndex([]Station{
		{Name: "A", Lat: aLat, Lon: aLon},
		{Name: "B", Lat: bLat, Lon: bLon},
	}, 70)

	got, ok := idx.FindNearby(qLat, qLon)
	require.True(t, ok)
	assert.Equal(t, "A", got.Name)
}

func TestFindNearby_NoneWhenAllFarther(t *testing.T) {
	qLat, qLon := 35.0, 139.0
	farLat, farLon := offsetNorth(qLat, qLon, 100)
	idx := NewIndex([]Station{{Name: "far", Lat: farLat, Lon: farLon}}, 70)

	_, ok := idx.FindNearby(qLat, qLon)
	assert.False(t, ok)

	nearLat, nearLon := offsetNorth(qLat, qLon, 60)
	idx = NewIndex([]Station{
		{Name: "far", Lat: farLat, Lon: farLon},
		{Name: "near", Lat: nearLat, Lon: nearLon},
	}, 70)
	got, ok := idx.FindNearby(qLat, qLon)
	require.True(t, ok)
	assert.Equal(t, "near", got.Name)
}

func TestFindNearby_Empty(t *testing.T) {
	idx := NewIndex(nil, 70)
	_, ok := idx.FindNearby(35, 139)
	assert.False(t, ok)
	assert.Equal(t, 0, idx.Len())
}

func TestFindNearby_DuplicateNamesCheckedIndependently(t *testing.T) {
	qLat, qLon := 35.69, 139.70
	farLat, farLon := offsetNorth(qLat, qLon, 500)
	nearLat, nearLon := offsetNorth(qLat, qLon, 30)

	idx := NewIndex([]Station{
		{Name: "新宿", Line: "far", Lat: farLat, Lon: farLon},
		{Name: "新宿", Line: "near", Lat: nearLat, Lon: nearLon},
	}, 70)

	got, ok := idx.FindNearby(qLat, qLon)
	require.True(t, ok)
	assert.Equal(t, "near", got.Line)
}

func TestFindNearby_MatchesLinearScan(t *testing.T) {
	stations, err := Load()
	require.NoError(t, err)

	for _, radius := range []float64{70, 250, 2000} {
		idx := NewIndex(stations, radius)
		r := rand.New(rand.NewPCG(1, uint64(radius)))
		for i := 0; i < 5000; i++ {
			lat := 35.60 + r.Float64()*0.16
			lon := 139.68 + r.Float64()*0.12
			want, wantOK := linearFind(stations, radius, lat, lon)
			got, gotOK := idx.FindNearby(lat, lon)
			require.Equal(t, wantOK, gotOK, "radius=%v point=(%v,%v)", radius, lat, lon)
			require.Equal(t, want, got, "radius=%v point=(%v,%v)", radius, lat, lon)
		}
	}
}

func TestFindNearby_OnStation(t *testing.T) {
	stations, err := Load()
	require.NoError(t, err)
	idx := NewIndex(stations, DefaultRadiusMeters)

	got, ok := idx.FindNearby(35.681236, 139.767125)
	require.True(t, ok)
	assert.Equal(t, "東京", got.Name)
	assert.Equal(t, "JR山手線", got.Line)
}

func TestNewIndex_DefaultRadius(t *testing.T) {
	idx := NewIndex(nil, 0)
	assert.Equal(t, DefaultRadiusMeters, idx.Radius())
}

func TestStations_ReturnsCopy(t *testing.T) {
	idx := NewIndex([]Station{{Name: "A"}}, 70)
	s := idx.Stations()
	s[0].Name = "changed"
	assert.Equal(t, "A", idx.Stations()[0].Name)
}

func TestDistanceMeters(t *testing.T) {
	assert.InDelta(t, 0, DistanceMeters(35, 139, 35, 139), 1e-9)
	// One degree of latitude is about 111.2 km.
	assert.InDelta(t, 111195, DistanceMeters(0, 0, 1, 0), 50)
}

func TestLoad_Embedded(t *testing.T) {
	stations, err := Load()
	require.NoError(t, err)
	assert.Greater(t, len(stations), 30)

	names := map[string]int{}
	for _, s := range stations {
		names[s.Name]++
	}
	assert.Greater(t, names["新宿"], 1)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stations:\n  - {name: X, lat: 1.5, lon: 2.5}\n"), 0o644))

	stations, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Station{{Name: "X", Lat: 1.5, Lon: 2.5}}, stations)
}

func TestLoadFile_EmptyPathUsesEmbedded(t *testing.T) {
	stations, err := LoadFile("")
	require.NoError(t, err)
	assert.NotEmpty(t, stations)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("stations: ["))
	assert.Error(t, err)

	_, err = Parse([]byte("stations:\n  - {lat: 1, lon: 2}\n"))
	assert.ErrorContains(t, err, "no name")

	_, err = Parse([]byte("stations:\n  - {name: X, lat: 91, lon: 2}\n"))
	assert.ErrorContains(t, err, "invalid coordinates")
}
