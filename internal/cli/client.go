// Package cli holds the HTTP client and output formatting used by the bunrui command.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Reason     string `json:"reason"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running bunrui server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SearchResponse is the body of POST /semantic-search.
type SearchResponse struct {
	Query   string             `json:"query"`
	Results []corpus.SearchHit `json:"results"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	corpus.Status
	Config map[string]interface{} `json:"config"`
}

// Upload sends files as one multipart request.
func (c *Client) Upload(ctx context.Context, paths []string) ([]corpus.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		part, err := mw.CreateFormFile("files", filepath.Base(p))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var out struct {
		Files []corpus.UploadResult `json:"files"`
	}
	err := c.do(ctx, http.MethodPost, "/upload", mw.FormDataContentType(), &buf, &out)
	return out.Files, err
}

// Cluster runs a clustering pass. k <= 0 uses the server default.
func (c *Client) Cluster(ctx context.Context, k int) (*corpus.ClusterSummary, error) {
	body := map[string]int{}
	if k > 0 {
		body["num_clusters"] = k
	}
	var out corpus.ClusterSummary
	if err := c.doJSON(ctx, http.MethodPost, "/cluster", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search ranks documents against query.
func (c *Client) Search(ctx context.Context, query string, topK int) (*SearchResponse, error) {
	var out SearchResponse
	req := map[string]interface{}{"query": query, "top_k": topK}
	if err := c.doJSON(ctx, http.MethodPost, "/semantic-search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict returns the cluster the server assigns to text.
func (c *Client) Predict(ctx context.Context, text string) (int, error) {
	var out struct {
		Cluster int `json:"cluster"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/predict", map[string]string{"text": text}, &out)
	return out.Cluster, err
}

// List returns every document summary.
func (c *Client) List(ctx context.Context) ([]models.DocumentSummary, error) {
	var out []models.DocumentSummary
	err := c.doJSON(ctx, http.MethodGet, "/documents", nil, &out)
	return out, err
}

// Get returns one document.
func (c *Client) Get(ctx context.Context, id string) (*models.DocumentView, error) {
	var out models.DocumentView
	if err := c.doJSON(ctx, http.MethodGet, "/document/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update changes the mutable fields of one document and returns it.
func (c *Client) Update(ctx context.Context, id string, fields map[string]interface{}) (*models.DocumentView, error) {
	var out models.DocumentView
	if err := c.doJSON(ctx, http.MethodPatch, "/document/"+url.PathEscape(id), fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes one document.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/document/"+url.PathEscape(id), nil, nil)
}

// Clear removes every document.
func (c *Client) Clear(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents", nil, nil)
}

// ClusterContents returns documents grouped by cluster label.
func (c *Client) ClusterContents(ctx context.Context) (map[int][]models.DocumentSummary, error) {
	var out map[int][]models.DocumentSummary
	err := c.doJSON(ctx, http.MethodGet, "/cluster-contents", nil, &out)
	return out, err
}

// Status returns corpus and model status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchDirectories lists inbox directories.
func (c *Client) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/watch/directories", nil, &out)
	return out.Directories, err
}

// AddWatchDirectory adds an inbox directory and ingests the files already in it.
func (c *Client) AddWatchDirectory(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodPost, "/watch/directories", map[string]interface{}{"path": path, "sync": true}, nil)
}

// RemoveWatchDirectory stops watching an inbox directory.
func (c *Client) RemoveWatchDirectory(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, "/watch/directories?path="+url.QueryEscape(path), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
