package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// ProcessQuery trims query and resolves topK: 0 selects defaultLimit and values above maxLimit are capped.
func ProcessQuery(query string, topK, defaultLimit, maxLimit int) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, fmt.Errorf("query is required: %w", models.ErrInvalidInput)
	}
	if topK < 0 {
		return "", 0, fmt.Errorf("top_k must not be negative: %w", models.ErrInvalidInput)
	}
	if topK == 0 {
		topK = defaultLimit
	}
	if maxLimit > 0 && topK > maxLimit {
		topK = maxLimit
	}
	return query, topK, nil
}

// Snippet returns a whitespace-collapsed preview of content of at most maxLen runes.
func Snippet(content string, maxLen int) string {
	return utils.Snippet(content, maxLen)
}
