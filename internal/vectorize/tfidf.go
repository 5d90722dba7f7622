package vectorize

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// TFIDFOptions bound the vocabulary built by each fit.
type TFIDFOptions struct {
	MinDF       int     // drop terms present in fewer documents
	MaxDF       float64 // drop terms present in more than this fraction of documents
	MaxFeatures int     // keep only the most frequent terms; 0 means unlimited
	Norm        string  // "l2" or "none"
}

// DefaultTFIDFOptions keeps every term and L2-normalizes rows.
func DefaultTFIDFOptions() TFIDFOptions {
	return TFIDFOptions{MinDF: 1, MaxDF: 1.0, Norm: "l2"}
}

type tfidfModel struct {
	vocabulary map[string]int
	terms      []string
	idf        []float64
}

// TFIDF is a sparse term-weighted vectorizer over whitespace-separated tokens.
// Weights are raw term counts times smoothed inverse document frequency.
type TFIDF struct {
	opts  TFIDFOptions
	model atomic.Pointer[tfidfModel]
}

// NewTFIDF returns an unfitted TF-IDF vectorizer.
func NewTFIDF(opts TFIDFOptions) *TFIDF {
	if opts.MinDF < 1 {
		opts.MinDF = 1
	}
	if opts.MaxDF <= 0 || opts.MaxDF > 1 {
		opts.MaxDF = 1.0
	}
	if opts.Norm == "" {
		opts.Norm = "l2"
	}
	return &TFIDF{opts: opts}
}

// Name returns "tfidf".
func (v *TFIDF) Name() string { return "tfidf" }

// Fitted reports whether a vocabulary is installed.
func (v *TFIDF) Fitted() bool { return v.model.Load() != nil }

// Reset drops the installed vocabulary.
func (v *TFIDF) Reset() { v.model.Store(nil) }

// Vocabulary returns the terms of the installed model in column order.
func (v *TFIDF) Vocabulary() []string {
	m := v.model.Load()
	if m == nil {
		return nil
	}
	return append([]string(nil), m.terms...)
}

// FitTransform builds a fresh vocabulary from corpus, installs it and returns one vector per document.
func (v *TFIDF) FitTransform(ctx context.Context, corpus []string) ([][]float64, error) {
	return fitTransform(ctx, v, corpus)
}

// Fit builds a fresh vocabulary from corpus. The previous vocabulary stays in use until Install.
func (v *TFIDF) Fit(ctx context.Context, corpus []string) (*Fitting, error) {
	if len(corpus) == 0 {
		return nil, fmt.Errorf("tfidf fit: %w", models.ErrNoDocumentsAvailable)
	}

	docs := make([][]string, len(corpus))
	df := make(map[string]int)
	freq := make(map[string]int)
	for i, text := range corpus {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs[i] = strings.Fields(text)
		seen := make(map[string]struct{}, len(docs[i]))
		for _, tok := range docs[i] {
			freq[tok]++
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	n := len(corpus)
	maxDocCount := int(math.Floor(v.opts.MaxDF * float64(n)))
	if v.opts.MaxDF >= 1 {
		maxDocCount = n
	}
	terms := make([]string, 0, len(df))
	for term, count := range df {
		if count < v.opts.MinDF || count > maxDocCount {
			continue
		}
		terms = append(terms, term)
	}
	if v.opts.MaxFeatures > 0 && len(terms) > v.opts.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if freq[terms[i]] != freq[terms[j]] {
				return freq[terms[i]] > freq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.opts.MaxFeatures]
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("tfidf fit: no terms remain after pruning: %w", models.ErrNoDocumentsAvailable)
	}
	sort.Strings(terms)

	m := &tfidfModel{
		vocabulary: make(map[string]int, len(terms)),
		terms:      terms,
		idf:        make([]float64, len(terms)),
	}
	for i, term := range terms {
		m.vocabulary[term] = i
		m.idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1.0
	}

	out := make([][]float64, n)
	for i, tokens := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = v.weigh(m, tokens)
	}
	return &Fitting{
		Vectors: out,
		install: func() { v.model.Store(m) },
		state:   fittedState{Strategy: v.Name(), Terms: m.terms, IDF: m.idf},
	}, nil
}

// Transform weighs text against the installed vocabulary. Unknown terms are ignored.
func (v *TFIDF) Transform(ctx context.Context, text string) ([]float64, error) {
	m := v.model.Load()
	if m == nil {
		return nil, fmt.Errorf("tfidf transform: %w", models.ErrModelNotFit)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.weigh(m, strings.Fields(text)), nil
}

func (v *TFIDF) weigh(m *tfidfModel, tokens []string) []float64 {
	vec := make([]float64, len(m.terms))
	for _, tok := range tokens {
		if idx, ok := m.vocabulary[tok]; ok {
			vec[idx]++
		}
	}
	for i := range vec {
		vec[i] *= m.idf[i]
	}
	if v.opts.Norm == "l2" {
		utils.NormalizeL2F64(vec)
	}
	return vec
}
