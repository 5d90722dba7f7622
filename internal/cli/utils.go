package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/models"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// Write prints v as indented JSON, or calls text for the text format.
func Write(w io.Writer, format OutputFormat, v interface{}, text func(io.Writer)) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// WriteSearchResults prints ranked hits.
func WriteSearchResults(w io.Writer, resp *SearchResponse, format OutputFormat) error {
	return Write(w, format, resp, func(w io.Writer) {
		fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(resp.Results), resp.Query)
		for i, hit := range resp.Results {
			fmt.Fprintf(w, "%d. %s  (similarity %.4f)\n", i+1, hit.Filename, hit.Similarity)
			fmt.Fprintf(w, "   id: %s\n", hit.DocID)
			if hit.Snippet != "" {
				fmt.Fprintf(w, "   %s\n", Truncate(strings.Join(strings.Fields(hit.Snippet), " "), 200))
			}
			fmt.Fprintln(w)
		}
	})
}

// WriteUploadResults prints one line per uploaded file.
func WriteUploadResults(w io.Writer, results []corpus.UploadResult, format OutputFormat) error {
	return Write(w, format, results, func(w io.Writer) {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "FAIL  %s: %s\n", r.Filename, r.Error)
				continue
			}
			fmt.Fprintf(w, "OK    %s -> %s\n", r.Filename, r.DocID)
		}
	})
}

// WriteClusterSummary prints cluster sizes in label order.
func WriteClusterSummary(w io.Writer, s *corpus.ClusterSummary, format OutputFormat) error {
	return Write(w, format, s, func(w io.Writer) {
		fmt.Fprintf(w, "Clustered %d documents into %d clusters (inertia %.4f, %d iterations)\n",
			s.NumDocuments, s.NumClusters, s.Inertia, s.Iterations)
		for _, label := range sortedLabels(s.ClusterDistribution) {
			fmt.Fprintf(w, "  cluster %d: %d\n", label, s.ClusterDistribution[label])
		}
	})
}

// WriteDocuments prints document summaries as a table.
func WriteDocuments(w io.Writer, docs []models.DocumentSummary, format OutputFormat) error {
	return Write(w, format, docs, func(w io.Writer) {
		if len(docs) == 0 {
			fmt.Fprintln(w, "No documents.")
			return
		}
		for _, d := range docs {
			fmt.Fprintf(w, "%-36s  %-12s  %s\n", d.ID, d.Status, d.Filename)
		}
	})
}

// WriteClusterContents prints each cluster followed by its documents.
func WriteClusterContents(w io.Writer, groups map[int][]models.DocumentSummary, format OutputFormat) error {
	return Write(w, format, groups, func(w io.Writer) {
		counts := make(map[int]int, len(groups))
		for label, docs := range groups {
			counts[label] = len(docs)
		}
		for _, label := range sortedLabels(counts) {
			fmt.Fprintf(w, "cluster %d (%d documents)\n", label, counts[label])
			for _, d := range groups[label] {
				fmt.Fprintf(w, "  %s  %s\n", d.ID, d.Filename)
			}
		}
	})
}

// WriteStatus prints corpus and model status.
func WriteStatus(w io.Writer, st *StatusResponse, format OutputFormat) error {
	return Write(w, format, st, func(w io.Writer) {
		fmt.Fprintf(w, "documents:          %d\n", st.Documents)
		for _, stage := range []models.Stage{models.StageUploaded, models.StagePreprocessed, models.StageVectorized, models.StageClustered} {
			if n := st.Stages[stage]; n > 0 {
				fmt.Fprintf(w, "  %-16s  %d\n", stage+":", n)
			}
		}
		fmt.Fprintf(w, "vectorizer:         %s (fitted: %t)\n", st.Vectorizer, st.VectorizerFitted)
		if m := st.ClusterModel; m != nil {
			fmt.Fprintf(w, "cluster_model:      k=%d dims=%d inertia=%.4f fitted_at=%s\n",
				m.Clusters, m.Dimensions, m.Inertia, m.FittedAt.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Fprintln(w, "cluster_model:      none")
		}
		fmt.Fprintf(w, "search_index_size:  %d\n", st.SearchIndexSize)
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", st.DiskUsageBytes)
		if len(st.Config) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "# configuration")
			keys := make([]string, 0, len(st.Config))
			for k := range st.Config {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%-20s %v\n", k+":", st.Config[k])
			}
		}
	})
}

func sortedLabels(m map[int]int) []int {
	labels := make([]int, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// Truncate truncates s to maxLen bytes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
