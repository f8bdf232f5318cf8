package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Crypto     CryptoConfig     `yaml:"crypto"`
	Auth       AuthConfig       `yaml:"auth"`
	Worker     WorkerConfig     `yaml:"worker"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OracleConfig contains analysis oracle settings.
type OracleConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// CryptoConfig contains key derivation settings.
type CryptoConfig struct {
	// Iterations is the PBKDF2 iteration count. High by default so deriving
	// the key from ciphertext alone stays costly.
	Iterations int `yaml:"iterations"`
}

// AuthConfig contains service authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	AnalysisRetryInterval    Duration `yaml:"analysis_retry_interval"`
	AnalysisRetryMaxAttempts int      `yaml:"analysis_retry_max_attempts"`
}

// ClusteringConfig contains clustering run settings.
type ClusteringConfig struct {
	DefaultClusterCount int      `yaml:"default_cluster_count"`
	Timeout             Duration `yaml:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("MINDMIRROR_CONFIG_PATH", "config/mindmirror.yaml")

	// Missing file is not an error; defaults plus env are enough.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/mindmirror.db",
		},
		Oracle: OracleConfig{
			BaseURL: "http://localhost:5000",
			Timeout: Duration(30 * time.Second),
		},
		Crypto: CryptoConfig{
			Iterations: 150000,
		},
		Worker: WorkerConfig{
			AnalysisRetryInterval:    Duration(2 * time.Minute),
			AnalysisRetryMaxAttempts: 5,
		},
		Clustering: ClusteringConfig{
			DefaultClusterCount: 5,
			Timeout:             Duration(60 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("MINDMIRROR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MINDMIRROR_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("MINDMIRROR_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("MINDMIRROR_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("MINDMIRROR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Oracle
	if v := os.Getenv("MINDMIRROR_ORACLE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("MINDMIRROR_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Oracle.Timeout = Duration(d)
		}
	}

	// Crypto
	if v := os.Getenv("MINDMIRROR_KDF_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crypto.Iterations = n
		}
	}

	// Auth
	if v := os.Getenv("MINDMIRROR_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Worker
	if v := os.Getenv("MINDMIRROR_ANALYSIS_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.AnalysisRetryInterval = Duration(d)
		}
	}
	if v := os.Getenv("MINDMIRROR_ANALYSIS_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.AnalysisRetryMaxAttempts = n
		}
	}

	// Clustering
	if v := os.Getenv("MINDMIRROR_DEFAULT_CLUSTER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Clustering.DefaultClusterCount = n
		}
	}
	if v := os.Getenv("MINDMIRROR_CLUSTERING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clustering.Timeout = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("MINDMIRROR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MINDMIRROR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (MINDMIRROR_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if c.Crypto.Iterations < 1000 {
		return fmt.Errorf("crypto.iterations must be at least 1000, got %d", c.Crypto.Iterations)
	}
	if c.Oracle.BaseURL == "" {
		return errors.New("oracle.base_url is required")
	}

	if os.Getenv("MINDMIRROR_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("MINDMIRROR_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
