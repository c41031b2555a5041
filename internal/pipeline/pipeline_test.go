package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/config"
	"github.com/sells-group/indicators-cli/internal/fetcher"
	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/indicators"
	"github.com/sells-group/indicators-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func hexFeature(index int, x0, pop float64) string {
	return fmt.Sprintf(`{"type":"Feature","properties":{"index":%d,"pop_est":%g},
	  "geometry":{"type":"Polygon","coordinates":[[[%g,0],[%g,1],[%g,1],[%g,0],[%g,0]]]}}`,
		index, pop, x0, x0, x0+1, x0+1, x0)
}

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testRegions(t *testing.T) []config.Region {
	t.Helper()
	dir := t.TempDir()

	odenseHex := writeFixture(t, dir, "odense_hex.geojson", `{"type":"FeatureCollection","features":[`+
		hexFeature(1, 0, 100)+","+hexFeature(2, 1, 300)+","+hexFeature(3, 2, 50)+`]}`)
	odensePts := writeFixture(t, dir, "odense_points.csv", "hex_id,lon,lat,walk,access\n"+
		"1,0.5,0.5,1,1\n"+
		"1,0.5,0.5,3,0\n"+
		"2,1.5,0.5,4,1\n"+
		",1.5,0.5,6,1\n")

	aarhusHex := writeFixture(t, dir, "aarhus_hex.geojson", `{"type":"FeatureCollection","features":[`+
		hexFeature(1, 10, 200)+`]}`)
	aarhusPts := writeFixture(t, dir, "aarhus_points.csv", "hex_id,walk,access\n1,8,0\n")

	return []config.Region{
		{Name: "Odense", Hexes: odenseHex, Points: odensePts},
		{Name: "Aarhus", Hexes: aarhusHex, Points: aarhusPts},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	out := t.TempDir()
	cfg := &config.Config{}
	cfg.Pipeline.Concurrency = 2
	cfg.Aggregate = config.AggregateConfig{
		IndexField:      "index",
		HexIDField:      "hex_id",
		CountField:      "urban_sample_point_count",
		PopulationField: "pop_est",
		Fields: []hexagg.FieldMapping{
			{Source: "access", Destination: "pct_access"},
			{Source: "walk", Destination: "local_walk"},
		},
		PercentFields: []string{"pct_access"},
		Columns:       []string{"index", "study_region", "urban_sample_point_count", "pct_access", "local_walk", "geometry"},
	}
	cfg.Cities = config.CitiesConfig{
		ZScores:          []hexagg.FieldMapping{{Source: "local_walk", Destination: "z_walk"}},
		WalkabilityField: "all_walk",
		Rollup:           []hexagg.FieldMapping{{Source: "local_walk", Destination: "pop_walk"}},
		CityZScores:      []hexagg.FieldMapping{{Source: "pop_walk", Destination: "z_pop_walk"}},
	}
	cfg.Output.Dir = out
	cfg.Output.XLSX = filepath.Join(out, "indicators.xlsx")
	return cfg
}

type recordingSink struct {
	mu      sync.Mutex
	regions []string
	cities  int
}

func (s *recordingSink) WriteHexes(_ context.Context, region string, l hexagg.HexLayer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = append(s.regions, region)
	return int64(l.Len()), nil
}

func (s *recordingSink) WriteCities(_ context.Context, cities []indicators.CityIndicators) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cities = len(cities)
	return int64(len(cities)), nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func cellByIndex(t *testing.T, l hexagg.HexLayer, index string) hexagg.HexCell {
	t.Helper()
	for _, c := range l.Cells {
		if c.Index == index {
			return c
		}
	}
	t.Fatalf("cell %s not found", index)
	return hexagg.HexCell{}
}

func TestPipeline_Run(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)
	sink := &recordingSink{}
	p := New(cfg, st, &fetcher.Resolver{TempDir: t.TempDir()}, sink)

	res, err := p.Run(context.Background(), testRegions(t))
	require.NoError(t, err)
	require.Len(t, res.Regions, 2)

	odense := res.Regions[0]
	assert.Equal(t, "Odense", odense.Region)
	// Hex 3 has no sample points and is dropped by the count join.
	require.Equal(t, 2, odense.Layer.Len())

	h1 := cellByIndex(t, odense.Layer, "1")
	assert.Equal(t, "Odense", h1.StudyRegion)
	assert.Equal(t, hexagg.Some(2), h1.Measures["urban_sample_point_count"])
	assert.InDelta(t, 50, h1.Measures["pct_access"].Value, 1e-9)
	assert.InDelta(t, 2, h1.Measures["local_walk"].Value, 1e-9)
	assert.InDelta(t, -1, h1.Measures["z_walk"].Value, 1e-9)
	_, hasPop := h1.Measures["pop_est"]
	assert.False(t, hasPop, "pop_est is not an output column")

	// The unlabelled point at (1.5, 0.5) is assigned to hex 2.
	h2 := cellByIndex(t, odense.Layer, "2")
	assert.Equal(t, hexagg.Some(2), h2.Measures["urban_sample_point_count"])
	assert.InDelta(t, 100, h2.Measures["pct_access"].Value, 1e-9)
	assert.InDelta(t, 5, h2.Measures["local_walk"].Value, 1e-9)
	assert.InDelta(t, 0, h2.Measures["z_walk"].Value, 1e-9)

	aarhus := cellByIndex(t, res.Regions[1].Layer, "1")
	assert.InDelta(t, 1, aarhus.Measures["z_walk"].Value, 1e-9)
	assert.InDelta(t, 1, aarhus.Measures["all_walk"].Value, 1e-9)

	require.Len(t, res.Cities, 2)
	assert.InDelta(t, 4.25, res.Cities[0].Value("pop_walk").Value, 1e-9)
	assert.InDelta(t, 4, res.Cities[0].Value("urban_sample_point_count").Value, 1e-9)
	assert.InDelta(t, 8, res.Cities[1].Value("pop_walk").Value, 1e-9)
	assert.InDelta(t, -0.70710678, res.Cities[0].Value("z_pop_walk").Value, 1e-6)

	assert.ElementsMatch(t, []string{
		filepath.Join(cfg.Output.Dir, "odense_hex.geojson"),
		filepath.Join(cfg.Output.Dir, "aarhus_hex.geojson"),
		filepath.Join(cfg.Output.Dir, CitiesFile),
		cfg.Output.XLSX,
	}, res.Files)
	for _, f := range res.Files {
		assert.FileExists(t, f)
	}

	assert.ElementsMatch(t, []string{"Odense", "Aarhus"}, sink.regions)
	assert.Equal(t, 2, sink.cities)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	tasks := make([]string, 0, len(runs))
	for _, r := range runs {
		assert.Equal(t, store.RunStatusComplete, r.Status, r.Task)
		tasks = append(tasks, r.Task)
	}
	assert.ElementsMatch(t, []string{
		"aggregate Odense", "aggregate Aarhus",
		"all cities z-scores", "city rollup",
		"write geojson", "write xlsx",
		"write postgis Odense", "write postgis Aarhus", "write postgis cities",
	}, tasks)
}

func TestPipeline_Run_SchemaError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregate.Fields = append(cfg.Aggregate.Fields, hexagg.FieldMapping{Source: "missing", Destination: "x"})
	st := newTestStore(t)

	_, err := New(cfg, st, &fetcher.Resolver{TempDir: t.TempDir()}, nil).Run(context.Background(), testRegions(t))
	require.Error(t, err)

	var schemaErr *hexagg.InputSchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "missing", schemaErr.Field)

	failed, err := st.ListRuns(context.Background(), store.RunFilter{Status: store.RunStatusFailed})
	require.NoError(t, err)
	assert.NotEmpty(t, failed)
}

func TestPipeline_Run_NoRegions(t *testing.T) {
	_, err := New(testConfig(t), nil, nil, nil).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no regions")
}

func TestPipeline_Run_CollidingFileNames(t *testing.T) {
	regions := []config.Region{
		{Name: "Odense", Hexes: "/does/not/exist.geojson", Points: "/nope.csv"},
		{Name: "odense!", Hexes: "/does/not/exist.geojson", Points: "/nope.csv"},
	}
	_, err := New(testConfig(t), nil, &fetcher.Resolver{TempDir: t.TempDir()}, nil).Run(context.Background(), regions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `regions "Odense" and "odense!" share output file odense_hex.geojson`)
}

func TestPipeline_Run_MissingInput(t *testing.T) {
	regions := []config.Region{{Name: "ghost", Hexes: "/does/not/exist.geojson", Points: "/nope.csv"}}
	_, err := New(testConfig(t), nil, &fetcher.Resolver{TempDir: t.TempDir()}, nil).Run(context.Background(), regions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve hexes for ghost")
}

func TestPipeline_Run_MissingPopulation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregate.PopulationField = "pop_ghs_2015"

	_, err := New(cfg, nil, &fetcher.Resolver{TempDir: t.TempDir()}, nil).Run(context.Background(), testRegions(t))
	var schemaErr *hexagg.InputSchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "city rollup", schemaErr.Operation)
}

func TestNeedsAssignment(t *testing.T) {
	assert.False(t, needsAssignment(hexagg.SampleSet{Points: []hexagg.SamplePoint{{HexID: "1"}, {}}}))
}
