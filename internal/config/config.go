package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/indicators-cli/internal/hexagg"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Cities    CitiesConfig    `yaml:"cities" mapstructure:"cities"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AggregateConfig configures the per-region hex aggregation.
type AggregateConfig struct {
	IndexField      string                `yaml:"index_field" mapstructure:"index_field"`
	HexIDField      string                `yaml:"hex_id_field" mapstructure:"hex_id_field"`
	CountField      string                `yaml:"count_field" mapstructure:"count_field"`
	PopulationField string                `yaml:"population_field" mapstructure:"population_field"`
	Fields          []hexagg.FieldMapping `yaml:"fields" mapstructure:"fields"`
	PercentFields   []string              `yaml:"percent_fields" mapstructure:"percent_fields"`
	Columns         []string              `yaml:"columns" mapstructure:"columns"`
}

// CitiesConfig configures the cross-city z-scores and the city rollup.
type CitiesConfig struct {
	ZScores              []hexagg.FieldMapping `yaml:"z_scores" mapstructure:"z_scores"`
	WalkabilityField     string                `yaml:"walkability_field" mapstructure:"walkability_field"`
	Rollup               []hexagg.FieldMapping `yaml:"rollup" mapstructure:"rollup"`
	CityZScores          []hexagg.FieldMapping `yaml:"city_z_scores" mapstructure:"city_z_scores"`
	CityWalkabilityField string                `yaml:"city_walkability_field" mapstructure:"city_walkability_field"`
}

// FetchConfig configures remote input downloads.
type FetchConfig struct {
	TempDir     string  `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// PipelineConfig configures orchestration.
type PipelineConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	Script      string `yaml:"script" mapstructure:"script"`
}

// OutputConfig selects the sinks written after a run.
type OutputConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	XLSX        string `yaml:"xlsx" mapstructure:"xlsx"`
	PostGIS     bool   `yaml:"postgis" mapstructure:"postgis"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the layer server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func mappingDefault(pairs ...string) []map[string]string {
	out := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]string{"source": pairs[i], "destination": pairs[i+1]})
	}
	return out
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INDICATORS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "indicators.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.script", "indicators-cli")
	v.SetDefault("fetch.temp_dir", "/tmp/indicators")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("fetch.burst", 5)
	v.SetDefault("output.dir", "output")

	v.SetDefault("aggregate.index_field", "index")
	v.SetDefault("aggregate.hex_id_field", "hex_id")
	v.SetDefault("aggregate.count_field", "urban_sample_point_count")
	v.SetDefault("aggregate.population_field", "pop_est")
	v.SetDefault("aggregate.fields", mappingDefault(
		"sp_nearest_node_supermarket_binary", "pct_access_500m_supermarkets",
		"sp_nearest_node_convenience_binary", "pct_access_500m_convenience",
		"sp_nearest_node_pt_binary", "pct_access_500m_pt_any",
		"sp_nearest_node_pos_binary", "pct_access_500m_public_open_space",
		"sp_local_nh_avg_pop_density", "local_nh_population_density",
		"sp_local_nh_avg_intersection_density", "local_nh_intersection_density",
		"sp_daily_living_score", "local_daily_living",
		"sp_walkability_index", "local_walkability",
	))
	v.SetDefault("aggregate.percent_fields", []string{
		"pct_access_500m_supermarkets",
		"pct_access_500m_convenience",
		"pct_access_500m_pt_any",
		"pct_access_500m_public_open_space",
	})
	v.SetDefault("aggregate.columns", []string{
		"index",
		"study_region",
		"urban_sample_point_count",
		"pct_access_500m_supermarkets",
		"pct_access_500m_convenience",
		"pct_access_500m_pt_any",
		"pct_access_500m_public_open_space",
		"local_nh_population_density",
		"local_nh_intersection_density",
		"local_daily_living",
		"local_walkability",
		"all_cities_z_nh_population_density",
		"all_cities_z_nh_intersection_density",
		"all_cities_z_daily_living",
		"all_cities_walkability",
		"geometry",
	})

	v.SetDefault("cities.z_scores", mappingDefault(
		"local_nh_population_density", "all_cities_z_nh_population_density",
		"local_nh_intersection_density", "all_cities_z_nh_intersection_density",
		"local_daily_living", "all_cities_z_daily_living",
	))
	v.SetDefault("cities.walkability_field", "all_cities_walkability")
	v.SetDefault("cities.rollup", mappingDefault(
		"pct_access_500m_supermarkets", "pop_pct_access_500m_supermarkets",
		"pct_access_500m_convenience", "pop_pct_access_500m_convenience",
		"pct_access_500m_pt_any", "pop_pct_access_500m_pt_any",
		"pct_access_500m_public_open_space", "pop_pct_access_500m_public_open_space",
		"local_nh_population_density", "pop_nh_pop_density",
		"local_nh_intersection_density", "pop_nh_intersection_density",
		"local_daily_living", "pop_daily_living",
		"local_walkability", "pop_walkability",
	))
	v.SetDefault("cities.city_z_scores", mappingDefault(
		"pop_nh_pop_density", "all_cities_pop_z_nh_population_density",
		"pop_nh_intersection_density", "all_cities_pop_z_nh_intersection_density",
		"pop_daily_living", "all_cities_pop_z_daily_living",
	))
	v.SetDefault("cities.city_walkability_field", "all_cities_walkability")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a pipeline run depends on.
func (c *Config) Validate() error {
	var missing []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}
	if c.Aggregate.IndexField == "" {
		missing = append(missing, "aggregate.index_field")
	}
	if c.Aggregate.HexIDField == "" {
		missing = append(missing, "aggregate.hex_id_field")
	}
	if c.Output.PostGIS && c.Output.DatabaseURL == "" && c.Store.Driver != "postgres" {
		missing = append(missing, "output.database_url")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}

	if c.Pipeline.Concurrency < 1 {
		return eris.Errorf("config: pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	for _, m := range c.Aggregate.Fields {
		if m.Source == "" || m.Destination == "" {
			return eris.Errorf("config: aggregate.fields entry %+v needs both source and destination", m)
		}
	}
	return nil
}

// PostGISURL returns the connection string used for the PostGIS sink.
func (c *Config) PostGISURL() string {
	if c.Output.DatabaseURL != "" {
		return c.Output.DatabaseURL
	}
	if c.Store.Driver == "postgres" {
		return c.Store.DatabaseURL
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
