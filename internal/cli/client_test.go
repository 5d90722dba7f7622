package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/bunrui/internal/corpus"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestClient_UploadMultipart(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(a, []byte("alpha"), 0600); err != nil {
		t.Fatal(err)
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 1 || files[0].Filename != "a.txt" {
			t.Errorf("files = %+v", files)
			return
		}
		f, _ := files[0].Open()
		b, _ := io.ReadAll(f)
		f.Close()
		if string(b) != "alpha" {
			t.Errorf("content = %q", b)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"files": []corpus.UploadResult{{Filename: "a.txt", DocID: "doc-1"}},
		})
	})
	res, err := c.Upload(context.Background(), []string{a})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].DocID != "doc-1" {
		t.Errorf("results = %+v", res)
	}
}

func TestClient_UploadMissingFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.Upload(context.Background(), []string{filepath.Join(t.TempDir(), "nope.txt")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestClient_ClusterSendsCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		json.NewDecoder(r.Body).Decode(&body)
		if body["num_clusters"] != 3 {
			t.Errorf("num_clusters = %d", body["num_clusters"])
		}
		json.NewEncoder(w).Encode(corpus.ClusterSummary{NumDocuments: 6, NumClusters: 3, ClusterDistribution: map[int]int{0: 2, 1: 2, 2: 2}})
	})
	s, err := c.Cluster(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if s.NumClusters != 3 || s.ClusterDistribution[2] != 2 {
		t.Errorf("summary = %+v", s)
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"document not found: x","reason":"document_not_found"}`))
	})
	err := c.Delete(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Reason != "document_not_found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := c.List(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "boom" {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_SearchAndStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/semantic-search":
			var req map[string]interface{}
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(SearchResponse{Query: req["query"].(string), Results: []corpus.SearchHit{{DocID: "d", Similarity: 0.5}}})
		case "/status":
			w.Write([]byte(`{"documents":4,"vectorizer":"tfidf","config":{"storage_backend":"sqlite"}}`))
		default:
			http.NotFound(w, r)
		}
	})
	resp, err := c.Search(context.Background(), "hello", 5)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Query != "hello" || len(resp.Results) != 1 {
		t.Errorf("search = %+v", resp)
	}
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 4 || st.Vectorizer != "tfidf" || st.Config["storage_backend"] != "sqlite" {
		t.Errorf("status = %+v", st)
	}
}

func TestClient_UpdateSendsFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/document/doc-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["cluster"] != float64(4) {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "doc-1", "cluster": 4})
	})
	doc, err := c.Update(context.Background(), "doc-1", map[string]interface{}{"cluster": 4})
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != "doc-1" || doc.Cluster == nil || *doc.Cluster != 4 {
		t.Errorf("doc = %+v", doc)
	}
}
