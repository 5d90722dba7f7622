package vectorize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fittedState is the on-disk form of a fitted model. Generation ties it to
// the cluster model fitted in the same pass.
type fittedState struct {
	Strategy   string    `json:"strategy"`
	Generation int64     `json:"generation"`
	Terms      []string  `json:"terms,omitempty"`
	IDF        []float64 `json:"idf,omitempty"`
}

// Save writes the fitted model to path (temp file + rename) without
// installing it, so a pass can persist everything before swapping models in.
func (f *Fitting) Save(path string, generation int64) error {
	if f == nil || f.state.Strategy == "" {
		return fmt.Errorf("save vectorizer state: nothing fitted")
	}
	st := f.state
	st.Generation = generation
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadState installs the model saved at path into v and returns its
// generation. The strategy must match.
func LoadState(path string, v Vectorizer) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var st fittedState
	if err := json.Unmarshal(data, &st); err != nil {
		return 0, fmt.Errorf("decode vectorizer state: %w", err)
	}
	if st.Strategy != v.Name() {
		return 0, fmt.Errorf("vectorizer state is %q, configured strategy is %q", st.Strategy, v.Name())
	}
	switch vz := v.(type) {
	case *TFIDF:
		if len(st.Terms) == 0 || len(st.Terms) != len(st.IDF) {
			return 0, fmt.Errorf("vectorizer state: %d terms with %d weights", len(st.Terms), len(st.IDF))
		}
		m := &tfidfModel{vocabulary: make(map[string]int, len(st.Terms)), terms: st.Terms, idf: st.IDF}
		for i, term := range st.Terms {
			m.vocabulary[term] = i
		}
		vz.model.Store(m)
	case *Dense:
		vz.fitted.Store(true)
	default:
		return 0, fmt.Errorf("load state: unsupported vectorizer %s", v.Name())
	}
	return st.Generation, nil
}
