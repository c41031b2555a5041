package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegions(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRegions(t *testing.T) {
	path := writeRegions(t, `
regions:
  - name: odense
    hexes: data/odense_hex.geojson
    points: data/odense.zip#urban_sample_points.csv
  - name: aarhus
    hexes: https://example.org/aarhus_hex.geojson
    points: ftp://ftp.example.org/aarhus_points.shp
`)

	regions, err := LoadRegions(path)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, Region{
		Name:   "odense",
		Hexes:  "data/odense_hex.geojson",
		Points: "data/odense.zip#urban_sample_points.csv",
	}, regions[0])
	assert.Equal(t, "aarhus", regions[1].Name)
}

func TestLoadRegions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "empty", body: "regions: []", wantErr: "lists no regions"},
		{name: "bad yaml", body: "regions: [", wantErr: "parse regions file"},
		{name: "no name", body: "regions:\n  - hexes: a\n    points: b\n", wantErr: "has no name"},
		{name: "no points", body: "regions:\n  - name: x\n    hexes: a\n", wantErr: "needs both hexes and points"},
		{
			name:    "duplicate",
			body:    "regions:\n  - {name: x, hexes: a, points: b}\n  - {name: x, hexes: c, points: d}\n",
			wantErr: "listed twice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegions(writeRegions(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegions_MissingFile(t *testing.T) {
	_, err := LoadRegions(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read regions file")
}
