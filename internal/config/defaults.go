package config

import "time"

// Default returns a configuration with every default applied, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 5 * time.Minute
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "/usr/local/var/bunrui/data/documents.json"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/bunrui/data/documents.db"
	}
	if cfg.Storage.ModelDir == "" {
		cfg.Storage.ModelDir = "/usr/local/var/bunrui/data/models"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/bunrui/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Cache == "" {
		cfg.Embedding.Cache = "memory"
	}
	if cfg.Embedding.RedisAddr == "" {
		cfg.Embedding.RedisAddr = "localhost:6379"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.BatchConcurrency == 0 {
		cfg.Embedding.BatchConcurrency = 4
	}
	if cfg.Vectorizer.Strategy == "" {
		cfg.Vectorizer.Strategy = "tfidf"
	}
	if cfg.Vectorizer.MinDF == 0 {
		cfg.Vectorizer.MinDF = 1
	}
	if cfg.Vectorizer.MaxDF == 0 {
		cfg.Vectorizer.MaxDF = 1.0
	}
	if cfg.Vectorizer.Norm == "" {
		cfg.Vectorizer.Norm = "l2"
	}
	if cfg.Clustering.DefaultClusters == 0 {
		cfg.Clustering.DefaultClusters = 4
	}
	if cfg.Clustering.MaxIterations == 0 {
		cfg.Clustering.MaxIterations = 2000
	}
	if cfg.Clustering.Tolerance == 0 {
		cfg.Clustering.Tolerance = 1e-8
	}
	if cfg.Clustering.Seed == 0 {
		cfg.Clustering.Seed = 42
	}
	if cfg.Clustering.NInit == 0 {
		cfg.Clustering.NInit = 1
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 200
	}
	if cfg.Upload.AllowedExtensions == nil {
		cfg.Upload.AllowedExtensions = []string{".pdf", ".docx", ".txt"}
	}
	if cfg.Upload.MaxFileBytes == 0 {
		cfg.Upload.MaxFileBytes = 32 << 20
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = "bunrui.corpus"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
