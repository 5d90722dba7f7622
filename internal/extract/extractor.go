// Package extract turns uploaded files into plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/bunrui/internal/models"
)

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) has a text extractor.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".xlsx", ".txt", ".md", ".rst":
		return true
	}
	return false
}

// FileType returns the lowercase extension of name without the dot ("pdf").
func FileType(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(ext) {
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFileType, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read file: %w", models.ErrExtractionFailure, err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions fail
// with ErrUnsupportedFileType and decoding errors wrap ErrExtractionFailure.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".xlsx":
		text, err = extractExcel(content)
	case ".txt", ".md", ".rst":
		text = extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFileType, ext)
	}
	if err != nil {
		if errors.Is(err, models.ErrExtractionFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", models.ErrExtractionFailure, err)
	}
	return text, nil
}
