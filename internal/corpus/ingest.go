package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/bunrui/internal/events"
	"github.com/hyperjump/bunrui/internal/extract"
	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/internal/preprocess"
	"github.com/hyperjump/bunrui/internal/store"
)

// Upload is one file submitted for ingest. When Text is set the file is
// taken as already extracted and Content is ignored.
type Upload struct {
	Filename string
	Content  []byte
	Text     *string
}

// UploadResult reports the outcome for one upload, in input order.
type UploadResult struct {
	Filename string `json:"filename"`
	DocID    string `json:"doc_id,omitempty"`
	Error    string `json:"error,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Ingest extracts, preprocesses and stores every acceptable upload, then
// re-vectorizes the corpus. A bad file only fails its own entry. The returned
// error is reserved for failures of the whole batch (cancellation, persistence).
func (s *Service) Ingest(ctx context.Context, uploads []Upload) ([]UploadResult, error) {
	results := make([]UploadResult, len(uploads))
	texts := make([]string, len(uploads))
	extracted := make([]bool, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, up := range uploads {
		results[i].Filename = up.Filename
		g.Go(func() error {
			text, err := s.extractOne(gctx, up)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				results[i].Error = err.Error()
				results[i].Reason = models.Reason(err)
				s.metrics.IngestFailed(results[i].Reason)
				s.logger.Info("upload rejected", zap.String("filename", up.Filename), zap.Error(err))
				return nil
			}
			texts[i] = text
			extracted[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		batch []store.NewDocument
		index []int
	)
	for i, ok := range extracted {
		if !ok {
			continue
		}
		pre := preprocess.TokensToString(s.pre.NormalizeOrEmpty(texts[i]))
		batch = append(batch, store.NewDocument{
			Filename:         uploads[i].Filename,
			FileType:         extract.FileType(uploads[i].Filename),
			RawText:          texts[i],
			PreprocessedText: &pre,
		})
		index = append(index, i)
	}
	if len(batch) == 0 {
		return results, nil
	}

	created, err := s.store.CreateBatch(ctx, batch)
	if err != nil {
		for _, i := range index {
			results[i].Error = err.Error()
			results[i].Reason = models.Reason(err)
		}
		return results, err
	}
	evs := make([]events.Event, 0, len(created))
	for j, doc := range created {
		results[index[j]].DocID = doc.ID
		evs = append(evs, events.Event{
			Type:       events.DocumentIngested,
			DocumentID: doc.ID,
			Time:       doc.UploadedAt,
			Data:       map[string]any{"filename": doc.Filename, "file_type": doc.FileType},
		})
	}
	s.metrics.Ingested(len(created))
	s.metrics.SetCorpusSize(s.store.Len())
	s.publish(ctx, evs...)
	s.logger.Info("documents ingested", zap.Int("stored", len(created)), zap.Int("rejected", len(uploads)-len(created)))

	if err := s.Vectorize(ctx); err != nil {
		s.logger.Warn("corpus vectorization after ingest failed", zap.Error(err))
	}
	return results, nil
}

func (s *Service) extractOne(ctx context.Context, up Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := strings.TrimSpace(up.Filename)
	if name == "" {
		return "", fmt.Errorf("%w: filename is required", models.ErrInvalidInput)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !s.allowed[ext] || !extract.Supported(ext) {
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFileType, ext)
	}
	if up.Text != nil {
		return *up.Text, nil
	}
	if s.maxFileBytes > 0 && int64(len(up.Content)) > s.maxFileBytes {
		return "", fmt.Errorf("%w: file is %d bytes, limit is %d", models.ErrInvalidInput, len(up.Content), s.maxFileBytes)
	}
	return s.extractor.ExtractBytes(up.Content, ext)
}

// Vectorize recomputes the vector of every document in one pass and commits
// them together. The fitted vectorizer model is not installed here: the
// installed model stays paired with the cluster model used by PredictCluster.
func (s *Service) Vectorize(ctx context.Context) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	docs := s.store.List()
	if len(docs) == 0 {
		return nil
	}
	texts, patches := s.corpusTexts(docs)
	fitting, err := s.vec.Fit(ctx, texts)
	if err != nil {
		return err
	}
	for i, d := range docs {
		p := patches[d.ID]
		p.Vector = fitting.Vectors[i]
		patches[d.ID] = p
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = s.store.ApplyBatch(ctx, patches)
	return err
}

// corpusTexts returns the preprocessed text of each document, preprocessing
// documents that lack it. The returned patches carry that text back.
func (s *Service) corpusTexts(docs []*models.Document) ([]string, map[string]models.DocumentPatch) {
	texts := make([]string, len(docs))
	patches := make(map[string]models.DocumentPatch, len(docs))
	for i, d := range docs {
		var p models.DocumentPatch
		if d.PreprocessedText != nil {
			texts[i] = *d.PreprocessedText
		} else {
			pre := preprocess.TokensToString(s.pre.NormalizeOrEmpty(d.RawText))
			texts[i] = pre
			p.PreprocessedText = &pre
		}
		patches[d.ID] = p
	}
	return texts, patches
}
