// Package classify - The classifier boundary: frozen per-pixel models that
// turn a window of band reflectances into sargassum probabilities.
//
// Backends differ in where the model lives (analytic formula, JSON weights,
// ONNX file) but share one contract: band-major float32 input, one
// probability in [0,1] per pixel out, and no learning at run time.
package classify

import (
	"context"
	"fmt"
)

// Classifier scores every pixel of a band-major window.
//
// Predict receives len(bands)*h*w samples laid out plane by plane, the same
// layout raster.Stack.Window produces. Implementations must be safe for
// concurrent calls; backends whose runtime is not reentrant serialize
// internally so the tiling layer never has to care.
type Classifier interface {
	// Name identifies the model in artifact names and diagnostics.
	Name() string
	// Bands returns the channel identifiers the model consumes, in input
	// order. The caller loads and stacks exactly these.
	Bands() []string
	// Predict scores one window and returns h*w probabilities in row-major
	// order.
	Predict(ctx context.Context, window []float32, bands, h, w int) ([]float32, error)
	// Close releases model resources. Safe to call more than once.
	Close() error
}

// ModelInputError reports a window whose shape does not match what the model
// was built for. The model is frozen and the window layout is fixed at
// configuration time, so this never heals on retry and callers must abort.
type ModelInputError struct {
	// Model is the classifier name.
	Model string
	// Want and Got describe a count mismatch, e.g. channels. Both zero for
	// mismatches that are not countable, with Detail carrying the full story.
	Want, Got int
	// Detail names the mismatched dimension.
	Detail string
}

func (e *ModelInputError) Error() string {
	if e.Want == 0 && e.Got == 0 {
		return fmt.Sprintf("model %s: %s", e.Model, e.Detail)
	}
	return fmt.Sprintf("model %s: expected %d %s, got %d", e.Model, e.Want, e.Detail, e.Got)
}

// Kind selects a classifier backend.
type Kind string

const (
	// KindAFAI is the analytic floating-algae index with logistic calibration.
	KindAFAI Kind = "afai"
	// KindMLP is a dense network loaded from a JSON weights file.
	KindMLP Kind = "mlp"
	// KindONNX runs an exported model through the ONNX runtime.
	KindONNX Kind = "onnx"
)

// Options configures New.
type Options struct {
	// Kind selects the backend.
	Kind Kind
	// ModelPath points at the weights file: JSON for KindMLP, an .onnx file
	// for KindONNX. Unused by KindAFAI.
	ModelPath string
	// Bands sets the channel order for backends whose model file carries no
	// band metadata (KindONNX). MLP weights name their own bands.
	Bands []string
	// Pivot is the afai score mapped to probability 0.5. Zero selects the
	// published detection threshold.
	Pivot float32
	// Gain is the afai logistic steepness. Zero selects the default.
	Gain float32
	// LibraryPath locates the onnxruntime shared library. Empty selects
	// $SARGASSUM_ORT_LIB.
	LibraryPath string
	// InputName and OutputName are the ONNX graph tensor names. Empty
	// selects "input" and "output".
	InputName  string
	OutputName string
}

// New creates a classifier backend.
//
// Arguments:
//   - opts: Backend selection and model location.
//
// Returns:
//   - Classifier: A ready backend. ONNX sessions materialize lazily on the
//     first Predict, so construction stays cheap.
//   - error: When the kind is unknown or the backend configuration is invalid.
func New(opts Options) (Classifier, error) {
	switch opts.Kind {
	case KindAFAI:
		return NewAFAI(opts.Pivot, opts.Gain), nil
	case KindMLP:
		return NewMLP(opts.ModelPath)
	case KindONNX:
		return NewONNX(opts)
	default:
		return nil, fmt.Errorf("unsupported classifier kind: %q", opts.Kind)
	}
}
