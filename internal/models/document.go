// Package models defines core data structures for documents, clustering, and search results.
package models

import (
	"fmt"
	"time"
)

// Stage is the processing stage a document has reached.
type Stage string

const (
	StageUploaded     Stage = "uploaded"
	StagePreprocessed Stage = "preprocessed"
	StageVectorized   Stage = "vectorized"
	StageClustered    Stage = "clustered"
)

// Document is the system-of-record entry for one ingested file.
// PreprocessedText, Vector and Cluster are nil until the matching pass has run.
type Document struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	FileType         string    `json:"file_type"`
	RawText          string    `json:"raw_text"`
	PreprocessedText *string   `json:"preprocessed_text"`
	Vector           []float64 `json:"vector"`
	Cluster          *int      `json:"cluster"`
	Seq              uint64    `json:"seq"`
	UploadedAt       time.Time `json:"upload_timestamp"`
}

// Stage reports the furthest processing stage reached by d.
func (d *Document) Stage() Stage {
	switch {
	case d.Cluster != nil:
		return StageClustered
	case d.Vector != nil:
		return StageVectorized
	case d.PreprocessedText != nil:
		return StagePreprocessed
	default:
		return StageUploaded
	}
}

// SearchText returns the preprocessed text when available, otherwise the raw text.
func (d *Document) SearchText() string {
	if d.PreprocessedText != nil && *d.PreprocessedText != "" {
		return *d.PreprocessedText
	}
	return d.RawText
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (d *Document) Clone() *Document {
	c := *d
	if d.PreprocessedText != nil {
		s := *d.PreprocessedText
		c.PreprocessedText = &s
	}
	if d.Vector != nil {
		c.Vector = append([]float64(nil), d.Vector...)
	}
	if d.Cluster != nil {
		k := *d.Cluster
		c.Cluster = &k
	}
	return &c
}

// DocumentPatch is a partial update of the mutable, stage-owned fields.
// Nil fields are left unchanged; ClearVector and ClearCluster reset to absent.
type DocumentPatch struct {
	PreprocessedText *string
	Vector           []float64
	Cluster          *int
	ClearVector      bool
	ClearCluster     bool
}

// Apply writes the patch onto d.
func (p DocumentPatch) Apply(d *Document) {
	if p.PreprocessedText != nil {
		s := *p.PreprocessedText
		d.PreprocessedText = &s
	}
	if p.ClearVector {
		d.Vector = nil
	} else if p.Vector != nil {
		d.Vector = append([]float64(nil), p.Vector...)
	}
	if p.ClearCluster {
		d.Cluster = nil
	} else if p.Cluster != nil {
		k := *p.Cluster
		d.Cluster = &k
	}
}

// PatchFromFields builds a patch from loosely typed field values (e.g. decoded JSON).
// Unknown keys and immutable fields are rejected with ErrInvalidField.
func PatchFromFields(fields map[string]interface{}) (DocumentPatch, error) {
	var p DocumentPatch
	for key, v := range fields {
		switch key {
		case "preprocessed_text":
			if v == nil {
				return p, fmt.Errorf("%w: preprocessed_text cannot be cleared", ErrInvalidField)
			}
			s, ok := v.(string)
			if !ok {
				return p, fmt.Errorf("%w: preprocessed_text must be a string", ErrInvalidField)
			}
			p.PreprocessedText = &s
		case "vector":
			if v == nil {
				p.ClearVector = true
				continue
			}
			vec, err := toFloatSlice(v)
			if err != nil {
				return p, err
			}
			p.Vector = vec
		case "cluster":
			if v == nil {
				p.ClearCluster = true
				continue
			}
			k, err := toInt(v)
			if err != nil {
				return p, err
			}
			p.Cluster = &k
		case "id", "filename", "file_type", "raw_text", "seq", "upload_timestamp":
			return p, fmt.Errorf("%w: %s is immutable", ErrInvalidField, key)
		default:
			return p, fmt.Errorf("%w: unknown field %q", ErrInvalidField, key)
		}
	}
	return p, nil
}

func toFloatSlice(v interface{}) ([]float64, error) {
	switch vec := v.(type) {
	case []float64:
		return vec, nil
	case []interface{}:
		out := make([]float64, len(vec))
		for i, x := range vec {
			f, ok := x.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: vector[%d] is not a number", ErrInvalidField, i)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: vector must be a list of numbers", ErrInvalidField)
	}
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%w: cluster must be an integer", ErrInvalidField)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: cluster must be an integer", ErrInvalidField)
	}
}

// DocumentSummary is the listing view of a document.
type DocumentSummary struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   Stage  `json:"status"`
	Snippet  string `json:"snippet,omitempty"`
}

// DocumentView is the detail view returned for a single document.
type DocumentView struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	FileType         string    `json:"file_type"`
	Text             string    `json:"text"`
	PreprocessedText *string   `json:"preprocessed_text,omitempty"`
	Cluster          *int      `json:"cluster"`
	Status           Stage     `json:"status"`
	UploadedAt       time.Time `json:"upload_timestamp"`
}

// View builds the detail view of d.
func (d *Document) View() *DocumentView {
	return &DocumentView{
		ID:               d.ID,
		Filename:         d.Filename,
		FileType:         d.FileType,
		Text:             d.RawText,
		PreprocessedText: d.PreprocessedText,
		Cluster:          d.Cluster,
		Status:           d.Stage(),
		UploadedAt:       d.UploadedAt,
	}
}
