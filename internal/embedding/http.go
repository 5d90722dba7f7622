package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/bunrui/pkg/utils"
)

// HTTPConfig configures an OpenAI-compatible /embeddings client (OpenAI, Ollama's /v1, vLLM, ...).
type HTTPConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimensions        int // 0 means learn from the first response
	Timeout           time.Duration
	RequestsPerSecond float64
	BatchSize         int
	Concurrency       int
	MaxAttempts       int
	InitialBackoff    time.Duration
}

// HTTPEmbedder calls a remote embeddings endpoint with rate limiting and retry.
type HTTPEmbedder struct {
	cfg        HTTPConfig
	client     *http.Client
	limiter    *rate.Limiter
	dimensions atomic.Int64
	logger     *zap.Logger
}

// retryableError marks failures worth another attempt (network errors, 429, 5xx).
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// NewHTTPEmbedder validates cfg and returns a client.
func NewHTTPEmbedder(cfg HTTPConfig, logger *zap.Logger) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	e := &HTTPEmbedder{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Concurrency),
		logger:  utils.OrNop(logger),
	}
	e.dimensions.Store(int64(cfg.Dimensions))
	return e, nil
}

// Embed returns the embedding of a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch splits texts into requests of BatchSize and runs them concurrently.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		start := start
		end := min(start+e.cfg.BatchSize, len(texts))
		g.Go(func() error {
			embs, err := e.embedWithRetry(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], embs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the configured or learned embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *HTTPEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}
		out, err := e.embed(ctx, texts)
		if err == nil {
			return out, nil
		}
		lastErr = err
		var re *retryableError
		if !errors.As(err, &re) || attempt == e.cfg.MaxAttempts {
			break
		}
		delay := backoff(e.cfg.InitialBackoff, attempt)
		e.logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("next_delay", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("embedding retry aborted: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("embedding request failed: %w", lastErr)
}

func backoff(initial time.Duration, attempt int) time.Duration {
	d := initial << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	return d + jitter
}

func (e *HTTPEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: texts, Model: e.cfg.Model})
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("embeddings endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &retryableError{err}
		}
		return nil, err
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response has %d vectors for %d inputs", len(out.Data), len(texts))
	}
	result := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embeddings response has invalid entry at index %d", d.Index)
		}
		if err := e.checkDimensions(len(d.Embedding)); err != nil {
			return nil, err
		}
		utils.NormalizeL2(d.Embedding)
		result[d.Index] = d.Embedding
	}
	for i, v := range result {
		if v == nil {
			return nil, fmt.Errorf("embeddings response missing index %d", i)
		}
	}
	return result, nil
}

func (e *HTTPEmbedder) checkDimensions(n int) error {
	if e.dimensions.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := e.dimensions.Load(); want != int64(n) {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", n, want)
	}
	return nil
}
