package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/hexagg"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "indicators.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 300, cfg.Fetch.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.Fetch.RatePerSec, 0.001)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.False(t, cfg.Output.PostGIS)

	assert.Equal(t, "index", cfg.Aggregate.IndexField)
	assert.Equal(t, "hex_id", cfg.Aggregate.HexIDField)
	assert.Equal(t, "urban_sample_point_count", cfg.Aggregate.CountField)
	assert.Equal(t, "pop_est", cfg.Aggregate.PopulationField)
	require.Len(t, cfg.Aggregate.Fields, 8)
	assert.Equal(t, hexagg.FieldMapping{
		Source:      "sp_nearest_node_supermarket_binary",
		Destination: "pct_access_500m_supermarkets",
	}, cfg.Aggregate.Fields[0])
	assert.Len(t, cfg.Aggregate.PercentFields, 4)
	assert.Equal(t, "index", cfg.Aggregate.Columns[0])
	assert.Equal(t, "geometry", cfg.Aggregate.Columns[len(cfg.Aggregate.Columns)-1])

	assert.Len(t, cfg.Cities.ZScores, 3)
	assert.Equal(t, "all_cities_walkability", cfg.Cities.WalkabilityField)
	assert.Len(t, cfg.Cities.Rollup, 8)
	assert.Len(t, cfg.Cities.CityZScores, 3)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/indicators
log:
  level: debug
  format: console
pipeline:
  concurrency: 2
aggregate:
  fields:
    - source: score
      destination: avg_score
  columns: [index, avg_score]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, []hexagg.FieldMapping{{Source: "score", Destination: "avg_score"}}, cfg.Aggregate.Fields)
	assert.Equal(t, []string{"index", "avg_score"}, cfg.Aggregate.Columns)
	// Defaults still apply for unset values
	assert.Equal(t, "pop_est", cfg.Aggregate.PopulationField)
	assert.Equal(t, "postgres://localhost/indicators", cfg.PostGISURL())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("INDICATORS_STORE_DRIVER", "postgres")
	t.Setenv("INDICATORS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INDICATORS_SERVER_PORT", "3000")
	t.Setenv("INDICATORS_AGGREGATE_POPULATION_FIELD", "pop_ghs_2015")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "pop_ghs_2015", cfg.Aggregate.PopulationField)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the required settings populated.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "indicators.db"
	cfg.Aggregate.IndexField = "index"
	cfg.Aggregate.HexIDField = "hex_id"
	cfg.Pipeline.Concurrency = 1
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: "unknown store driver"},
		{name: "missing database url", mutate: func(c *Config) { c.Store.DatabaseURL = "" }, wantErr: "store.database_url"},
		{name: "missing index field", mutate: func(c *Config) { c.Aggregate.IndexField = "" }, wantErr: "aggregate.index_field"},
		{name: "postgis without url", mutate: func(c *Config) { c.Output.PostGIS = true }, wantErr: "output.database_url"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Pipeline.Concurrency = 0 }, wantErr: "pipeline.concurrency"},
		{
			name:    "incomplete mapping",
			mutate:  func(c *Config) { c.Aggregate.Fields = []hexagg.FieldMapping{{Source: "score"}} },
			wantErr: "needs both source and destination",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostGISURL(t *testing.T) {
	cfg := validDefaults()
	assert.Empty(t, cfg.PostGISURL())

	cfg.Output.DatabaseURL = "postgres://sink"
	assert.Equal(t, "postgres://sink", cfg.PostGISURL())
}
