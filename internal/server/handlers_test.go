package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperjump/bunrui/internal/cluster"
	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/embedding"
	"github.com/hyperjump/bunrui/internal/extract"
	"github.com/hyperjump/bunrui/internal/metrics"
	"github.com/hyperjump/bunrui/internal/preprocess"
	"github.com/hyperjump/bunrui/internal/search"
	"github.com/hyperjump/bunrui/internal/store"
	"github.com/hyperjump/bunrui/internal/vectorize"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	pre, err := preprocess.New()
	if err != nil {
		t.Fatalf("preprocess.New: %v", err)
	}
	modelDir := filepath.Join(t.TempDir(), "models")
	copts := cluster.DefaultOptions()
	copts.NInit = 10
	svc := corpus.New(corpus.Deps{
		Store:        store.New(context.Background(), store.MemorySnapshotter{}),
		Preprocessor: pre,
		Vectorizer:   vectorize.NewTFIDF(vectorize.DefaultTFIDFOptions()),
		Clusterer:    cluster.New(copts, cluster.WithModelPath(filepath.Join(modelDir, "kmeans.bin"))),
		Search:       search.NewEngine(embedding.NewHashEmbedder(64)),
		Extractor:    extract.NewExtractor(),
	}, corpus.WithModelDir(modelDir), corpus.WithUploadPolicy([]string{".pdf", ".docx", ".txt"}, 1<<20))
	cfg := config.Default()
	cfg.Clustering.DefaultClusters = 2
	s := NewServer(svc, cfg, opts...)
	return s, s.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

type uploadResponse struct {
	Files []corpus.UploadResult `json:"files"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func uploadTexts(t *testing.T, h http.Handler, docs ...textDocument) []corpus.UploadResult {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/upload", uploadRequest{Documents: docs})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	decode(t, rec, &resp)
	return resp.Files
}

var sampleDocs = []textDocument{
	{Filename: "fruit1.txt", RawText: "apple banana orchard fruit apple banana"},
	{Filename: "car1.txt", RawText: "engine wheel garage car engine wheel"},
	{Filename: "fruit2.txt", RawText: "banana apple smoothie fruit banana apple"},
	{Filename: "car2.txt", RawText: "car engine wheel motorway engine car"},
}

func TestUploadListGetDelete(t *testing.T) {
	_, h := newTestServer(t)
	files := uploadTexts(t, h, sampleDocs[0], sampleDocs[1])
	if len(files) != 2 {
		t.Fatalf("expected 2 results, got %d", len(files))
	}
	for _, f := range files {
		if f.DocID == "" || f.Error != "" {
			t.Fatalf("unexpected result %+v", f)
		}
	}

	rec := do(t, h, http.MethodGet, "/documents", nil)
	var list []struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Status   string `json:"status"`
	}
	decode(t, rec, &list)
	if len(list) != 2 || list[0].Filename != "fruit1.txt" || list[1].Filename != "car1.txt" {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/document/"+files[0].DocID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	var view struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Text     string `json:"text"`
	}
	decode(t, rec, &view)
	if view.ID != files[0].DocID || view.Text != sampleDocs[0].RawText {
		t.Fatalf("unexpected view %+v", view)
	}

	rec = do(t, h, http.MethodDelete, "/document/"+files[0].DocID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/document/"+files[0].DocID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", rec.Code)
	}
	var er errorResponse
	decode(t, rec, &er)
	if er.Reason != "document_not_found" {
		t.Errorf("reason = %q", er.Reason)
	}
	rec = do(t, h, http.MethodDelete, "/document/"+files[0].DocID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status %d", rec.Code)
	}
}

func TestUploadMultipart(t *testing.T) {
	_, h := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range []struct{ name, content string }{
		{"notes.txt", "plain text notes about gardening"},
		{"image.png", "not a document"},
	} {
		part, err := mw.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(f.content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	decode(t, rec, &resp)
	if len(resp.Files) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Files))
	}
	if resp.Files[0].DocID == "" {
		t.Errorf("notes.txt not ingested: %+v", resp.Files[0])
	}
	if resp.Files[1].DocID != "" || resp.Files[1].Reason != "unsupported_file_type" {
		t.Errorf("image.png should be rejected: %+v", resp.Files[1])
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/upload", uploadRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestClusterAndContents(t *testing.T) {
	_, h := newTestServer(t)
	uploadTexts(t, h, sampleDocs...)

	rec := do(t, h, http.MethodPost, "/cluster", map[string]int{"num_clusters": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("cluster: status %d body %s", rec.Code, rec.Body.String())
	}
	var summary corpus.ClusterSummary
	decode(t, rec, &summary)
	if summary.NumDocuments != 4 || summary.NumClusters != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.ClusterDistribution[0]+summary.ClusterDistribution[1] != 4 {
		t.Errorf("distribution %v does not cover the corpus", summary.ClusterDistribution)
	}

	rec = do(t, h, http.MethodGet, "/cluster-contents", nil)
	var contents map[string][]struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	decode(t, rec, &contents)
	if len(contents) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(contents))
	}
	group := func(name string) string {
		for label, docs := range contents {
			for _, d := range docs {
				if d.Filename == name {
					return label
				}
			}
		}
		return ""
	}
	if group("fruit1.txt") != group("fruit2.txt") || group("car1.txt") != group("car2.txt") {
		t.Errorf("topics split across clusters: %+v", contents)
	}
	if group("fruit1.txt") == group("car1.txt") {
		t.Errorf("fruit and car documents share a cluster")
	}

	rec = do(t, h, http.MethodPost, "/predict", predictRequest{Text: "a banana and an apple"})
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: status %d body %s", rec.Code, rec.Body.String())
	}
	var pred map[string]int
	decode(t, rec, &pred)
	if got := strconv.Itoa(pred["cluster"]); got != group("fruit1.txt") {
		t.Errorf("predicted cluster %s for fruit text, fruit documents are in %s", got, group("fruit1.txt"))
	}

	rec = do(t, h, http.MethodGet, "/projection", nil)
	var proj struct {
		Points []corpus.ProjectedPoint `json:"points"`
	}
	decode(t, rec, &proj)
	if len(proj.Points) != 4 {
		t.Errorf("expected 4 projected points, got %d", len(proj.Points))
	}
}

func TestClusterInvalidCount(t *testing.T) {
	_, h := newTestServer(t)
	uploadTexts(t, h, sampleDocs[0], sampleDocs[1])
	rec := do(t, h, http.MethodPost, "/cluster", map[string]int{"num_clusters": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	var er errorResponse
	decode(t, rec, &er)
	if er.Reason != "invalid_cluster_count" {
		t.Errorf("reason = %q", er.Reason)
	}
}

func TestClusterEmptyCorpus(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/cluster", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestPredictBeforeFit(t *testing.T) {
	_, h := newTestServer(t)
	uploadTexts(t, h, sampleDocs[0])
	rec := do(t, h, http.MethodPost, "/predict", predictRequest{Text: "apple"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var er errorResponse
	decode(t, rec, &er)
	if er.Reason != "model_not_fit" {
		t.Errorf("reason = %q", er.Reason)
	}
}

func TestSemanticSearch(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/semantic-search", searchRequest{Query: "apple"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("search on empty corpus: status %d", rec.Code)
	}

	files := uploadTexts(t, h, sampleDocs...)
	rec = do(t, h, http.MethodPost, "/semantic-search", searchRequest{Query: "engine wheel", TopK: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Query   string             `json:"query"`
		Results []corpus.SearchHit `json:"results"`
	}
	decode(t, rec, &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(resp.Results))
	}
	for _, hit := range resp.Results {
		if !strings.HasPrefix(hit.Filename, "car") {
			t.Errorf("unexpected hit %+v", hit)
		}
	}
	if resp.Results[0].Similarity < resp.Results[1].Similarity {
		t.Errorf("results not ranked: %+v", resp.Results)
	}

	rec = do(t, h, http.MethodPost, "/semantic-search", searchRequest{Query: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query: status %d", rec.Code)
	}
	if files[0].DocID == "" {
		t.Fatal("missing doc id")
	}
}

func TestClearDocuments(t *testing.T) {
	_, h := newTestServer(t)
	uploadTexts(t, h, sampleDocs...)
	if rec := do(t, h, http.MethodPost, "/cluster", nil); rec.Code != http.StatusOK {
		t.Fatalf("cluster: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/documents", nil); rec.Code != http.StatusOK {
		t.Fatalf("clear: status %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/documents", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("documents after clear = %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/predict", predictRequest{Text: "apple"}); rec.Code != http.StatusConflict {
		t.Errorf("predict after clear: status %d", rec.Code)
	}
}

func TestUpdateDocument(t *testing.T) {
	_, h := newTestServer(t)
	files := uploadTexts(t, h, sampleDocs[0])
	path := "/document/" + files[0].DocID

	rec := do(t, h, http.MethodPatch, path, map[string]interface{}{"cluster": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Cluster *int   `json:"cluster"`
		Text    string `json:"text"`
	}
	decode(t, rec, &view)
	if view.Cluster == nil || *view.Cluster != 3 || view.Text != sampleDocs[0].RawText {
		t.Fatalf("unexpected view %+v", view)
	}

	for _, body := range []map[string]interface{}{
		{"raw_text": "rewritten"},
		{"colour": "blue"},
		{"cluster": 1.5},
	} {
		rec = do(t, h, http.MethodPatch, path, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("patch %v: status %d", body, rec.Code)
			continue
		}
		var er errorResponse
		decode(t, rec, &er)
		if er.Reason != "invalid_field" {
			t.Errorf("patch %v: reason %q", body, er.Reason)
		}
	}

	rec = do(t, h, http.MethodPatch, "/document/missing", map[string]interface{}{"cluster": 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("patch missing: status %d", rec.Code)
	}
}

func TestHealthAndStatus(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	uploadTexts(t, h, sampleDocs[0], sampleDocs[1])

	rec = do(t, h, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var st struct {
		Documents  int                    `json:"documents"`
		Vectorizer string                 `json:"vectorizer"`
		Config     map[string]interface{} `json:"config"`
	}
	decode(t, rec, &st)
	if st.Documents != 2 || st.Vectorizer != "tfidf" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Config["storage_backend"] != "file" {
		t.Errorf("config = %+v", st.Config)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	_, h := newTestServer(t, WithMetrics(m))
	do(t, h, http.MethodGet, "/health", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `bunrui_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("health request not counted:\n%s", rec.Body.String())
	}
}

func TestMetricsDisabledWithoutCollector(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestWatchDirectoriesDisabled(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/watch/directories", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestWatchDirectoriesAddListRemove(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	inbox := filepath.Join(dir, "inbox")
	if err := os.MkdirAll(inbox, 0755); err != nil {
		t.Fatal(err)
	}
	watch := &mockWatchService{}
	_, h := newTestServer(t, WithWatch(watch, configPath))

	rec := do(t, h, http.MethodPost, "/watch/directories", watchAddRequest{Path: inbox})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/watch/directories", nil)
	var list struct {
		Directories []string `json:"directories"`
	}
	decode(t, rec, &list)
	if len(list.Directories) != 1 || list.Directories[0] != inbox {
		t.Fatalf("directories = %v", list.Directories)
	}
	saved, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config not persisted: %v", err)
	}
	if !strings.Contains(string(saved), inbox) {
		t.Errorf("persisted config missing inbox:\n%s", saved)
	}

	rec = do(t, h, http.MethodPost, "/watch/directories", watchAddRequest{Path: filepath.Join(dir, "missing")})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing dir: status %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/watch/directories?path="+inbox, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: status %d", rec.Code)
	}
	if len(watch.Directories()) != 0 {
		t.Errorf("directories after remove = %v", watch.Directories())
	}
}
