package station

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed stations.yaml
var defaultStations []byte

type stationFile struct {
	Stations []Station `yaml:"stations"`
}

// Load returns the built-in station list.
func Load() ([]Station, error) {
	return Parse(defaultStations)
}

// LoadFile reads a station list from a YAML file. An empty path returns the
// built-in list.
func LoadFile(path string) ([]Station, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "station: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML station list and validates each entry.
func Parse(data []byte) ([]Station, error) {
	var f stationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "station: parse yaml")
	}
	for i, s := range f.Stations {
		if s.Name == "" {
			return nil, eris.Errorf("station: entry %d has no name", i)
		}
		if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
			return nil, eris.Errorf("station: %s has invalid coordinates (%v, %v)", s.Name, s.Lat, s.Lon)
		}
	}
	return f.Stations, nil
}
