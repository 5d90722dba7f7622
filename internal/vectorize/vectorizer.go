// Package vectorize turns preprocessed corpus text into numeric feature vectors.
package vectorize

import "context"

// Vectorizer fits a representation over a whole corpus and reuses it for single texts.
type Vectorizer interface {
	// Fit computes vectors for corpus without touching the installed model.
	Fit(ctx context.Context, corpus []string) (*Fitting, error)
	// FitTransform is Fit followed by Install.
	FitTransform(ctx context.Context, corpus []string) ([][]float64, error)
	Transform(ctx context.Context, text string) ([]float64, error)
	Fitted() bool
	// Reset drops the installed model; Transform fails with ErrModelNotFit until the next Install.
	Reset()
	Name() string
}

// Fitting holds the output of a fit that has not been installed yet.
type Fitting struct {
	Vectors [][]float64
	install func()
	state   fittedState
}

// Install makes the fitted model the one used by Transform.
func (f *Fitting) Install() {
	if f != nil && f.install != nil {
		f.install()
	}
}

func fitTransform(ctx context.Context, v Vectorizer, corpus []string) ([][]float64, error) {
	f, err := v.Fit(ctx, corpus)
	if err != nil {
		return nil, err
	}
	f.Install()
	return f.Vectors, nil
}
