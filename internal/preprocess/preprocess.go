// Package preprocess normalizes raw document text into a canonical token sequence.
package preprocess

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	regexptokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/pkg/utils"
)

// wordPattern matches runs of letters, digits and underscores; everything else separates tokens.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Preprocessor lower-cases, tokenizes, removes English stop words and lemmatizes text.
// It is safe for concurrent use.
type Preprocessor struct {
	tokenizer *regexptokenizer.RegexpTokenizer
	stopWords analysis.TokenMap
	stopper   *stop.StopTokensFilter
	logger    *zap.Logger
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Preprocessor) {
		p.logger = l
	}
}

// WithExtraStopWords adds words to the English stop list.
func WithExtraStopWords(words ...string) Option {
	return func(p *Preprocessor) {
		for _, w := range words {
			p.stopWords.AddToken(strings.ToLower(w))
		}
	}
}

// New builds a Preprocessor using bleve's English stop list.
func New(opts ...Option) (*Preprocessor, error) {
	sw := analysis.NewTokenMap()
	if err := sw.LoadBytes(en.EnglishStopWords); err != nil {
		return nil, fmt.Errorf("failed to load stop words: %w", err)
	}
	p := &Preprocessor{
		tokenizer: regexptokenizer.NewRegexpTokenizer(wordPattern),
		stopWords: sw,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stopper = stop.NewStopTokensFilter(p.stopWords)
	p.logger = utils.OrNop(p.logger)
	return p, nil
}

// Normalize returns the canonical tokens of text in input order.
// Empty input yields an empty slice. A failure inside the analysis chain is
// returned as an error; callers decide whether to degrade to an empty result.
func (p *Preprocessor) Normalize(text string) (tokens []string, err error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			tokens = nil
			err = fmt.Errorf("preprocess: %v", r)
		}
	}()

	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, " ")
	}
	stream := p.tokenizer.Tokenize([]byte(strings.ToLower(text)))
	stream = p.stopper.Filter(stream)

	tokens = make([]string, 0, len(stream))
	for _, tok := range stream {
		term := strings.TrimSpace(string(tok.Term))
		if term == "" {
			continue
		}
		lemma := Lemmatize(term)
		if lemma == "" || p.stopWords[lemma] {
			continue
		}
		tokens = append(tokens, lemma)
	}
	return tokens, nil
}

// NormalizeOrEmpty is Normalize with failures logged and degraded to no tokens.
func (p *Preprocessor) NormalizeOrEmpty(text string) []string {
	tokens, err := p.Normalize(text)
	if err != nil {
		p.logger.Warn("preprocessing failed, using empty token list", zap.Error(err))
		return []string{}
	}
	return tokens
}

// Process normalizes text and joins the tokens for downstream consumers.
func (p *Preprocessor) Process(text string) (string, error) {
	tokens, err := p.Normalize(text)
	if err != nil {
		return "", err
	}
	return TokensToString(tokens), nil
}

// TokensToString joins tokens with single spaces.
func TokensToString(tokens []string) string {
	return strings.Join(tokens, " ")
}
