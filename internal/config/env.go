package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with BUNRUI_* environment variables.
func ApplyEnv(cfg *Config) error {
	var err error
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %w", key, perr)
				return
			}
			*dst = d
		}
	}
	setList := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*dst = out
		}
	}

	if v, ok := os.LookupEnv("BUNRUI_DEBUG"); ok {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return fmt.Errorf("invalid BUNRUI_DEBUG: %w", perr)
		}
		cfg.Debug = b
	}
	setString("BUNRUI_HOST", &cfg.Server.Host)
	setInt("BUNRUI_PORT", &cfg.Server.Port)
	setDuration("BUNRUI_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	setString("BUNRUI_STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("BUNRUI_SNAPSHOT_PATH", &cfg.Storage.SnapshotPath)
	setString("BUNRUI_DATABASE_PATH", &cfg.Storage.DatabasePath)
	setString("BUNRUI_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	setString("BUNRUI_MODEL_DIR", &cfg.Storage.ModelDir)
	setString("BUNRUI_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	setString("BUNRUI_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("BUNRUI_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	setString("BUNRUI_EMBEDDING_CACHE", &cfg.Embedding.Cache)
	setString("BUNRUI_REDIS_ADDR", &cfg.Embedding.RedisAddr)
	setString("BUNRUI_VECTORIZER", &cfg.Vectorizer.Strategy)
	setInt("BUNRUI_DEFAULT_CLUSTERS", &cfg.Clustering.DefaultClusters)
	setList("BUNRUI_KAFKA_BROKERS", &cfg.Events.Brokers)
	setString("BUNRUI_KAFKA_TOPIC", &cfg.Events.Topic)
	setList("BUNRUI_WATCH_DIRS", &cfg.Watch.Directories)
	return err
}
