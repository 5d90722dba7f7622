package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/models"
)

const maxMultipartMemory = 32 << 20

type textDocument struct {
	Filename string `json:"filename"`
	RawText  string `json:"raw_text"`
}

type uploadRequest struct {
	Documents []textDocument `json:"documents"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var (
		uploads []corpus.Upload
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		uploads, err = s.readMultipart(r)
	} else {
		uploads, err = readTextUploads(r)
	}
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if len(uploads) == 0 {
		s.respondFailure(w, fmt.Errorf("%w: no files provided", models.ErrInvalidInput))
		return
	}
	s.logger.Debug("upload request", zap.Int("files", len(uploads)))
	results, err := s.corpus.Ingest(r.Context(), uploads)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"files": results})
}

// readMultipart reads every part named "files" (or "file"). Each file is read
// one byte past the size limit so oversized files are reported per file.
func (s *Server) readMultipart(r *http.Request) ([]corpus.Upload, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, fmt.Errorf("%w: malformed multipart body: %v", models.ErrInvalidInput, err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	limit := s.config.Upload.MaxFileBytes
	uploads := make([]corpus.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
		}
		var src io.Reader = f
		if limit > 0 {
			src = io.LimitReader(f, limit+1)
		}
		content, err := io.ReadAll(src)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %q: %w", fh.Filename, err)
		}
		uploads = append(uploads, corpus.Upload{Filename: filepath.Base(fh.Filename), Content: content})
	}
	return uploads, nil
}

func readTextUploads(r *http.Request) ([]corpus.Upload, error) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: invalid request body", models.ErrInvalidInput)
	}
	uploads := make([]corpus.Upload, 0, len(req.Documents))
	for _, d := range req.Documents {
		text := d.RawText
		uploads = append(uploads, corpus.Upload{Filename: d.Filename, Text: &text})
	}
	return uploads, nil
}

type clusterRequest struct {
	NumClusters *int `json:"num_clusters"`
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req clusterRequest
	if err := decodeOptional(r, &req); err != nil {
		s.respondFailure(w, err)
		return
	}
	k := s.config.Clustering.DefaultClusters
	if req.NumClusters != nil {
		k = *req.NumClusters
	}
	if q := r.URL.Query().Get("num_clusters"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			s.respondFailure(w, fmt.Errorf("%w: num_clusters must be an integer", models.ErrInvalidClusterCount))
			return
		}
		k = n
	}
	s.logger.Debug("cluster request", zap.Int("k", k))
	summary, err := s.corpus.Cluster(r.Context(), k)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

type predictRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	label, err := s.corpus.PredictCluster(r.Context(), req.Text)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"cluster": label})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	hits, err := s.corpus.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if hits == nil {
		hits = []corpus.SearchHit{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": req.Query, "results": hits})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.corpus.List()
	if docs == nil {
		docs = []models.DocumentSummary{}
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	if err := s.corpus.Clear(r.Context()); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	view, err := s.corpus.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	view, err := s.corpus.Update(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.corpus.Delete(r.Context(), id); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "doc_id": id})
}

func (s *Server) handleClusterContents(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.corpus.ClusterContents())
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	points, err := s.corpus.Projection(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if points == nil {
		points = []corpus.ProjectedPoint{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	*corpus.Status
	Config map[string]interface{} `json:"config"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.config
	info := map[string]interface{}{
		"storage_backend":     cfg.Storage.Backend,
		"model_dir":           cfg.Storage.ModelDir,
		"embedding_provider":  cfg.Embedding.Provider,
		"vectorizer_strategy": cfg.Vectorizer.Strategy,
		"default_clusters":    cfg.Clustering.DefaultClusters,
		"events_enabled":      len(cfg.Events.Brokers) > 0,
	}
	if s.watch != nil {
		info["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, statusResponse{Status: s.corpus.Status(), Config: info})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch_disabled", "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch_disabled", "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory_not_found", "directory not found")
			return
		}
		s.respondFailure(w, err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch_disabled", "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_input", "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body", models.ErrInvalidInput)
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, reason, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "reason": reason})
}

// respondFailure maps err onto its status code and reason.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status := models.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, models.Reason(err), err.Error())
}
