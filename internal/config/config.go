// Package config provides configuration loading and structs for the bunrui server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vectorizer VectorizerConfig `yaml:"vectorizer"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Search     SearchConfig     `yaml:"search"`
	Upload     UploadConfig     `yaml:"upload"`
	Watch      WatchConfig      `yaml:"watch"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects the snapshot backend and where artifacts live.
type StorageConfig struct {
	Backend      string `yaml:"backend"` // file, sqlite, postgres or memory
	SnapshotPath string `yaml:"snapshot_path"`
	DatabasePath string `yaml:"database_path"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	ModelDir     string `yaml:"model_dir"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // hash, onnx or http
	ModelPath         string        `yaml:"model_path"`
	OutputName        string        `yaml:"output_name"` // ONNX pooled output, default "output"
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	CacheSize         int           `yaml:"cache_size"`
	Cache             string        `yaml:"cache"` // memory, redis or none
	RedisAddr         string        `yaml:"redis_addr"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BatchConcurrency  int           `yaml:"batch_concurrency"`
}

// VectorizerConfig selects and tunes the corpus vectorizer.
type VectorizerConfig struct {
	Strategy    string  `yaml:"strategy"` // tfidf or dense
	MinDF       int     `yaml:"min_df"`
	MaxDF       float64 `yaml:"max_df"`
	MaxFeatures int     `yaml:"max_features"`
	Norm        string  `yaml:"norm"` // l2 or none
}

// ClusteringConfig holds k-means parameters.
type ClusteringConfig struct {
	DefaultClusters int     `yaml:"default_clusters"`
	MaxIterations   int     `yaml:"max_iterations"`
	Tolerance       float64 `yaml:"tolerance"`
	Seed            int64   `yaml:"seed"`
	NInit           int     `yaml:"n_init"`
}

// SearchConfig holds semantic search settings.
type SearchConfig struct {
	DefaultLimit  int `yaml:"default_limit"`
	MaxLimit      int `yaml:"max_limit"`
	SnippetLength int `yaml:"snippet_length"`
}

// UploadConfig limits what the ingest endpoint accepts.
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxFileBytes      int64    `yaml:"max_file_bytes"`
}

// EventsConfig configures corpus event publishing. Empty Brokers disables it.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault reports whether metrics are exposed; defaults to true when unset.
func (m *MetricsConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Environment overrides are applied after the file and before defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.ModelDir = expandPath(cfg.Storage.ModelDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that no component can run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case "hash", "onnx", "http":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Vectorizer.Strategy {
	case "tfidf", "dense":
	default:
		return fmt.Errorf("unknown vectorizer strategy %q", c.Vectorizer.Strategy)
	}
	if c.Vectorizer.MaxDF <= 0 || c.Vectorizer.MaxDF > 1 {
		return fmt.Errorf("vectorizer.max_df must be in (0, 1], got %v", c.Vectorizer.MaxDF)
	}
	if c.Clustering.DefaultClusters < 1 {
		return fmt.Errorf("clustering.default_clusters must be positive")
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
