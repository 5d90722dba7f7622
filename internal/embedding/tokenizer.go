package embedding

import "hash/fnv"

// BERT special token ids and the id range words are hashed into.
const (
	clsTokenID    = 101
	sepTokenID    = 102
	firstWordID   = 1000
	wordIDBuckets = 29000
	defaultMaxLen = 256
)

// Tokenizer produces the three BERT-style model inputs for one text.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer maps each word to a hashed id instead of a WordPiece
// vocabulary lookup. Output is [CLS] words... [SEP] padded with zeros.
type SimpleTokenizer struct {
	// Split overrides word splitting; nil uses SplitWords.
	Split func(string) []string
}

// Tokenize encodes text into exactly maxTokens positions, truncating words
// that do not fit between [CLS] and [SEP].
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = defaultMaxLen
	}
	split := t.Split
	if split == nil {
		split = SplitWords
	}

	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	n := 0
	put := func(id int64) {
		inputIDs[n] = id
		attentionMask[n] = 1
		n++
	}
	put(clsTokenID)
	for _, w := range split(text) {
		if n == maxTokens-1 {
			break
		}
		put(int64(HashString(w)%wordIDBuckets) + firstWordID)
	}
	put(sepTokenID)
	return inputIDs, attentionMask, tokenTypeIDs
}

// HashString returns a deterministic non-negative 32-bit FNV-1a hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
