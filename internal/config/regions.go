package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Region is one study region: a hex grid and the sample points to aggregate
// onto it. Hexes and Points accept local paths, http(s) or ftp URLs, and
// "archive.zip#member" references.
type Region struct {
	Name   string `yaml:"name"`
	Hexes  string `yaml:"hexes"`
	Points string `yaml:"points"`
}

type regionFile struct {
	Regions []Region `yaml:"regions"`
}

// LoadRegions parses a study-region file.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read regions file %s", path)
	}

	var rf regionFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, eris.Wrapf(err, "config: parse regions file %s", path)
	}
	if len(rf.Regions) == 0 {
		return nil, eris.Errorf("config: regions file %s lists no regions", path)
	}

	seen := make(map[string]bool, len(rf.Regions))
	for i, r := range rf.Regions {
		switch {
		case r.Name == "":
			return nil, eris.Errorf("config: region %d has no name", i+1)
		case r.Hexes == "" || r.Points == "":
			return nil, eris.Errorf("config: region %q needs both hexes and points", r.Name)
		case seen[r.Name]:
			return nil, eris.Errorf("config: region %q listed twice", r.Name)
		}
		seen[r.Name] = true
	}
	return rf.Regions, nil
}
