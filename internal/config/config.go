package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dcl-forecast/internal/data"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/features"
	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/pipeline"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Timezone string         `yaml:"timezone"`
	NESO     NESOConfig     `yaml:"neso"`
	Cache    CacheConfig    `yaml:"cache"`
	Sources  SourcesConfig  `yaml:"sources"`
	Features FeaturesConfig `yaml:"features"`
	Training TrainingConfig `yaml:"training"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Log      logger.Options `yaml:"log"`
}

type NESOConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"max_retries"`
	Backoff           time.Duration `yaml:"backoff"`
	// FixturesDir serves saved responses instead of calling the API.
	FixturesDir string `yaml:"fixtures_dir"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend"` // none, memory, redis
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SourcesConfig struct {
	MarginColumns     []string      `yaml:"margin_columns"`
	PublishLag        time.Duration `yaml:"publish_lag"`
	NearestPublishLag bool          `yaml:"nearest_publish_lag"`
	DemandStats       []string      `yaml:"demand_stats"`
	BRStats           []string      `yaml:"br_stats"`
	BRProducts        []string      `yaml:"br_products"`
	IncludeBRVolume   bool          `yaml:"include_br_volume"`
	FRProducts        []string      `yaml:"fr_products"`
}

type FeaturesConfig struct {
	Lags         map[string][]int `yaml:"lags"`
	Temporal     []string         `yaml:"temporal"`
	AllowMissing bool             `yaml:"allow_missing"`
	Sequential   bool             `yaml:"sequential"`
}

type TrainingConfig struct {
	LookbackDays int    `yaml:"lookback_days"`
	Floor        string `yaml:"floor"`
	Target       string `yaml:"target"`
}

type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration the DCL model was built with.
func Default() *Config {
	src := data.DefaultSourceOptions()
	return &Config{
		Timezone: efa.DefaultZone,
		NESO: NESOConfig{
			BaseURL:           data.DefaultBaseURL,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2,
			Burst:             1,
			MaxRetries:        3,
			Backoff:           500 * time.Millisecond,
		},
		Cache: CacheConfig{Backend: "none", TTL: time.Hour, Redis: RedisConfig{Prefix: "neso:"}},
		Sources: SourcesConfig{
			MarginColumns: src.MarginColumns,
			PublishLag:    src.PublishLag,
			DemandStats:   statNames(src.DemandStats),
			BRStats:       statNames(src.BRStats),
			BRProducts:    src.BRProducts,
			FRProducts:    src.FRProducts,
		},
		Features: FeaturesConfig{
			Lags:     features.DefaultLagSpec(),
			Temporal: append([]string(nil), features.DefaultTemporalFeatures...),
		},
		Training: TrainingConfig{
			LookbackDays: pipeline.DefaultLookbackDays,
			Floor:        pipeline.DefaultFloor.Format(efa.DateLayout),
			Target:       pipeline.DefaultTarget,
		},
		API: APIConfig{Port: 8080, AllowedOrigins: []string{"*"}},
		Log: logger.Options{Level: "info", Format: "json"},
	}
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked layers the file at path (if any) and the environment over the
// defaults, but does not validate. Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		// yaml merges into existing maps; a lags section in the file replaces the default set.
		defaultLags := c.Features.Lags
		c.Features.Lags = nil
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, err
		}
		if c.Features.Lags == nil {
			c.Features.Lags = defaultLags
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides fields from NESO_BASE_URL, REDIS_ADDR, DATABASE_URL,
// API_PORT and LOG_LEVEL. Setting REDIS_ADDR also selects the redis cache.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("NESO_BASE_URL"); v != "" {
		c.NESO.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Backend = "redis"
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("API_PORT: %w", err)
		}
		c.API.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := efa.NewClock(c.Timezone); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "", "none", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q must be none, memory or redis", c.Cache.Backend)
	}
	if c.NESO.MaxRetries < 0 {
		return errors.New("neso.max_retries must be >= 0")
	}
	if len(c.Sources.MarginColumns) == 0 {
		return errors.New("sources.margin_columns is required")
	}
	if c.Sources.PublishLag < 0 {
		return errors.New("sources.publish_lag must be >= 0")
	}
	if _, err := c.SourceOptions(); err != nil {
		return fmt.Errorf("sources config invalid: %w", err)
	}
	if _, err := c.PipelineOptions(); err != nil {
		return fmt.Errorf("features config invalid: %w", err)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	return nil
}

// Clock builds the civil-time utility for the configured zone.
func (c *Config) Clock() (*efa.Clock, error) {
	return efa.NewClock(c.Timezone)
}

// SourceOptions converts the sources section.
func (c *Config) SourceOptions() (data.SourceOptions, error) {
	demand, err := features.ParseStats(c.Sources.DemandStats)
	if err != nil {
		return data.SourceOptions{}, fmt.Errorf("demand_stats: %w", err)
	}
	br, err := features.ParseStats(c.Sources.BRStats)
	if err != nil {
		return data.SourceOptions{}, fmt.Errorf("br_stats: %w", err)
	}
	return data.SourceOptions{
		MarginColumns:     c.Sources.MarginColumns,
		PublishLag:        c.Sources.PublishLag,
		NearestPublishLag: c.Sources.NearestPublishLag,
		DemandStats:       demand,
		BRStats:           br,
		BRProducts:        c.Sources.BRProducts,
		IncludeBRVolume:   c.Sources.IncludeBRVolume,
		FRProducts:        c.Sources.FRProducts,
	}, nil
}

// PipelineOptions converts the features and training sections.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	lags := features.LagSpec(c.Features.Lags)
	if err := lags.Validate(); err != nil {
		return pipeline.Options{}, err
	}
	if _, err := features.TemporalFeatures(nil, c.Features.Temporal); err != nil {
		return pipeline.Options{}, err
	}
	var floor time.Time
	if c.Training.Floor != "" {
		f, err := efa.ParseDate(c.Training.Floor)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("training.floor: %w", err)
		}
		floor = f
	}
	return pipeline.Options{
		Lags:         lags,
		Temporal:     c.Features.Temporal,
		AllowMissing: c.Features.AllowMissing,
		Sequential:   c.Features.Sequential,
		Target:       c.Training.Target,
		LookbackDays: c.Training.LookbackDays,
		Floor:        floor,
	}, nil
}

// ClientOptions converts the neso section.
func (c *Config) ClientOptions() data.ClientOptions {
	return data.ClientOptions{
		BaseURL:           c.NESO.BaseURL,
		Timeout:           c.NESO.Timeout,
		RequestsPerSecond: c.NESO.RequestsPerSecond,
		Burst:             c.NESO.Burst,
		MaxRetries:        c.NESO.MaxRetries,
		Backoff:           c.NESO.Backoff,
	}
}

// MergeFeatures overlays non-zero fields from override onto base.
// This is used when a request carries its own feature settings.
func MergeFeatures(base, override FeaturesConfig) FeaturesConfig {
	out := base
	if len(override.Lags) > 0 {
		out.Lags = override.Lags
	}
	if len(override.Temporal) > 0 {
		out.Temporal = override.Temporal
	}
	// Booleans can only be switched on by an override.
	if override.AllowMissing {
		out.AllowMissing = true
	}
	if override.Sequential {
		out.Sequential = true
	}
	return out
}

func statNames(stats []features.Stat) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = string(s)
	}
	return out
}
