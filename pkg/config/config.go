package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Index      IndexConfig      `yaml:"index"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Compaction CompactionConfig `yaml:"compaction"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AuthSecret      string        `yaml:"auth_secret"` // empty disables JWT auth
	RateLimit       float64       `yaml:"rate_limit"`  // requests per second, 0 disables
	RateBurst       int           `yaml:"rate_burst"`
}

// IndexConfig holds the defaults applied when a collection is created
// without explicit parameters.
type IndexConfig struct {
	M               int    `yaml:"m"`
	EfConstruction  int    `yaml:"ef_construction"`
	DefaultEfSearch int    `yaml:"default_ef_search"`
	Precision       string `yaml:"precision"`
}

// SnapshotConfig holds persistence configuration.
type SnapshotConfig struct {
	Dir      string        `yaml:"dir"` // empty disables snapshots
	Interval time.Duration `yaml:"interval"`
}

// CompactionConfig holds background compaction configuration.
type CompactionConfig struct {
	Interval           time.Duration `yaml:"interval"` // 0 disables the ticker
	MinDeletedFraction float64       `yaml:"min_deleted_fraction"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       0,
			RateBurst:       100,
		},
		Index: IndexConfig{
			M:               16,
			EfConstruction:  200,
			DefaultEfSearch: 50,
			Precision:       "float32",
		},
		Snapshot: SnapshotConfig{
			Dir:      "",
			Interval: 5 * time.Minute,
		},
		Compaction: CompactionConfig{
			Interval:           10 * time.Minute,
			MinDeletedFraction: 0.2,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file,
// then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from defaults plus environment
// variables, without a file.
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	if host := os.Getenv("VEXDB_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("VEXDB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if secret := os.Getenv("VEXDB_AUTH_SECRET"); secret != "" {
		c.Server.AuthSecret = secret
	}
	if rate := os.Getenv("VEXDB_RATE_LIMIT"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			c.Server.RateLimit = r
		}
	}
	if m := os.Getenv("VEXDB_HNSW_M"); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			c.Index.M = v
		}
	}
	if ef := os.Getenv("VEXDB_HNSW_EF_CONSTRUCTION"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			c.Index.EfConstruction = v
		}
	}
	if ef := os.Getenv("VEXDB_DEFAULT_EF_SEARCH"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			c.Index.DefaultEfSearch = v
		}
	}
	if p := os.Getenv("VEXDB_PRECISION"); p != "" {
		c.Index.Precision = p
	}
	if dir := os.Getenv("VEXDB_SNAPSHOT_DIR"); dir != "" {
		c.Snapshot.Dir = dir
	}
	if iv := os.Getenv("VEXDB_SNAPSHOT_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			c.Snapshot.Interval = d
		}
	}
	if iv := os.Getenv("VEXDB_COMPACTION_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			c.Compaction.Interval = d
		}
	}
	if level := os.Getenv("VEXDB_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %f (must be >= 0)", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("invalid rate burst: %d (must be > 0)", c.Server.RateBurst)
	}
	if c.Index.M < 2 || c.Index.M > 100 {
		return fmt.Errorf("invalid M: %d (must be 2-100)", c.Index.M)
	}
	if c.Index.EfConstruction < 10 {
		return fmt.Errorf("invalid efConstruction: %d (must be >= 10)", c.Index.EfConstruction)
	}
	if c.Index.DefaultEfSearch < 1 {
		return fmt.Errorf("invalid default efSearch: %d (must be > 0)", c.Index.DefaultEfSearch)
	}
	switch c.Index.Precision {
	case "float32", "float16":
	default:
		return fmt.Errorf("invalid precision: %q", c.Index.Precision)
	}
	if c.Compaction.MinDeletedFraction < 0 || c.Compaction.MinDeletedFraction > 1 {
		return fmt.Errorf("invalid min deleted fraction: %f (must be 0-1)", c.Compaction.MinDeletedFraction)
	}
	return nil
}

// Address returns the server address (host:port).
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
