package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	LandCover LandCoverConfig `yaml:"landcover" mapstructure:"landcover"`
	Sensors   SensorsConfig   `yaml:"sensors" mapstructure:"sensors"`
	Factors   FactorsConfig   `yaml:"factors" mapstructure:"factors"`
	Risk      RiskConfig      `yaml:"risk" mapstructure:"risk"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the evaluation history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RulesConfig locates the conservation practice table. An empty path selects
// the embedded ICAR table 4.1.
type RulesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LandCoverConfig configures land-cover tiles and their bootstrap sources.
type LandCoverConfig struct {
	Dir         string  `yaml:"dir" mapstructure:"dir"`
	Shapefile   string  `yaml:"shapefile" mapstructure:"shapefile"`
	ClassField  string  `yaml:"class_field" mapstructure:"class_field"`
	CellDegrees float64 `yaml:"cell_degrees" mapstructure:"cell_degrees"`
	ReleaseAPI  string  `yaml:"release_api" mapstructure:"release_api"`
	FTPURL      string  `yaml:"ftp_url" mapstructure:"ftp_url"`
	GitHubToken string  `yaml:"github_token" mapstructure:"github_token"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SensorsConfig configures the rainfall and slope sensor clients.
type SensorsConfig struct {
	RainfallURL       string  `yaml:"rainfall_url" mapstructure:"rainfall_url"`
	TerrainURL        string  `yaml:"terrain_url" mapstructure:"terrain_url"`
	TerrainToken      string  `yaml:"terrain_token" mapstructure:"terrain_token"`
	Zoom              int     `yaml:"zoom" mapstructure:"zoom"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit         float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RetryAttempts     int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerFailures   int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	FallbackRainfall  float64 `yaml:"fallback_rainfall_mm" mapstructure:"fallback_rainfall_mm"`
	FallbackSlope     float64 `yaml:"fallback_slope_percent" mapstructure:"fallback_slope_percent"`
	TerrainCacheTiles int     `yaml:"terrain_cache_tiles" mapstructure:"terrain_cache_tiles"`
}

// FactorsConfig configures the factor aggregation cache.
type FactorsConfig struct {
	CacheEntries    int `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
}

// RiskConfig holds the erosion risk factor weights.
type RiskConfig struct {
	RainfallWeight float64 `yaml:"rainfall_weight" mapstructure:"rainfall_weight"`
	SlopeWeight    float64 `yaml:"slope_weight" mapstructure:"slope_weight"`
	SoilWeight     float64 `yaml:"soil_weight" mapstructure:"soil_weight"`
	DrainageWeight float64 `yaml:"drainage_weight" mapstructure:"drainage_weight"`
}

// LoadOptions selects an explicit config file and command-line overrides.
type LoadOptions struct {
	// File replaces the ./config.yaml lookup. A missing File is an error.
	File string

	// Flags binds the flags named in FlagKeys that were set on the command
	// line. They take precedence over the environment and the file.
	Flags *pflag.FlagSet
}

// FlagKeys maps persistent flag names to config keys.
var FlagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"landcover-dir": "landcover.dir",
	"database-url":  "store.database_url",
}

// Load reads configuration from ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadWith(LoadOptions{})
}

// LoadWith reads configuration from file, environment and flags.
func LoadWith(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Config file
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, eris.Wrapf(err, "config: bind flag %s", name)
				}
			}
		}
	}

	// Environment
	v.SetEnvPrefix("SWC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "swc.db")
	v.SetDefault("rules.path", "")
	v.SetDefault("landcover.dir", "data/landcover")
	v.SetDefault("landcover.shapefile", "")
	v.SetDefault("landcover.class_field", "class")
	v.SetDefault("landcover.cell_degrees", 0.0001)
	v.SetDefault("landcover.release_api", "")
	v.SetDefault("landcover.ftp_url", "")
	v.SetDefault("landcover.github_token", "")
	v.SetDefault("landcover.timeout_secs", 120)
	v.SetDefault("sensors.rainfall_url", "https://power.larc.nasa.gov/api/temporal/climatology/point")
	v.SetDefault("sensors.terrain_url", "https://api.mapbox.com/v4/mapbox.terrain-rgb")
	v.SetDefault("sensors.terrain_token", "")
	v.SetDefault("sensors.zoom", 12)
	v.SetDefault("sensors.timeout_secs", 20)
	v.SetDefault("sensors.rate_limit", 5.0)
	v.SetDefault("sensors.retry_attempts", 3)
	v.SetDefault("sensors.breaker_failures", 5)
	v.SetDefault("sensors.breaker_reset_secs", 30)
	v.SetDefault("sensors.fallback_rainfall_mm", 1200.0)
	v.SetDefault("sensors.fallback_slope_percent", 5.0)
	v.SetDefault("sensors.terrain_cache_tiles", 256)
	v.SetDefault("factors.cache_entries", 1024)
	v.SetDefault("factors.cache_ttl_minutes", 60)
	v.SetDefault("risk.rainfall_weight", 0.35)
	v.SetDefault("risk.slope_weight", 0.35)
	v.SetDefault("risk.soil_weight", 0.15)
	v.SetDefault("risk.drainage_weight", 0.15)

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

// Validate checks the fields required by the given run mode ("serve",
// "analyze" or "bootstrap").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "analyze":
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
		sum := c.Risk.RainfallWeight + c.Risk.SlopeWeight + c.Risk.SoilWeight + c.Risk.DrainageWeight
		if math.Abs(sum-1) > 0.001 {
			errs = append(errs, fmt.Sprintf("risk weights should sum to 1, got %.3f", sum))
		}
		if c.Sensors.Zoom < 0 || c.Sensors.Zoom > 15 {
			errs = append(errs, "sensors.zoom must be between 0 and 15")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	case "bootstrap":
		if c.LandCover.Dir == "" {
			errs = append(errs, "landcover.dir is required")
		}
		if c.LandCover.ReleaseAPI == "" && c.LandCover.FTPURL == "" {
			errs = append(errs, "landcover.release_api or landcover.ftp_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
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
