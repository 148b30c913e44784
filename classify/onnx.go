package classify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ortLibEnv names the environment variable pointing at the onnxruntime
// shared library.
const ortLibEnv = "SARGASSUM_ORT_LIB"

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime loads the native runtime once per process. The first library
// path wins; onnxruntime cannot be re-pointed after initialization.
func initRuntime(libPath string) error {
	ortInitOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Shutdown releases the process-wide ONNX runtime environment. Call once at
// exit, after every classifier is closed. A process that never built an ONNX
// classifier may call it freely.
func Shutdown() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// ONNX runs an exported per-pixel model through onnxruntime. The session
// binds fixed NCHW tensors of shape (1, bands, h, w), so it materializes on
// the first Predict when the window shape is known and is rebuilt if the
// shape ever changes. Run is serialized on a mutex; the bound tensors are
// shared state.
type ONNX struct {
	name    string
	bands   []string
	path    string
	libPath string
	inName  string
	outName string

	mu      sync.Mutex
	h, w    int
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNX validates the configuration without touching the native runtime.
//
// Arguments:
//   - opts: ModelPath, Bands and LibraryPath are required; ONNX files carry
//     no band metadata, so the channel order must come from configuration.
//
// Returns:
//   - *ONNX: A classifier whose session materializes on first use.
//   - error: When the model file is absent or the configuration is incomplete.
func NewONNX(opts Options) (*ONNX, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("onnx classifier: no model path")
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, errors.Wrap(err, "onnx classifier: model file")
	}
	if len(opts.Bands) == 0 {
		return nil, fmt.Errorf("onnx classifier: no band order configured for %s", opts.ModelPath)
	}

	libPath := opts.LibraryPath
	if libPath == "" {
		libPath = os.Getenv(ortLibEnv)
	}
	if libPath == "" {
		return nil, fmt.Errorf("onnx classifier: runtime library not set, use %s or the library option", ortLibEnv)
	}

	inName := opts.InputName
	if inName == "" {
		inName = "input"
	}
	outName := opts.OutputName
	if outName == "" {
		outName = "output"
	}

	return &ONNX{
		name:    strings.TrimSuffix(filepath.Base(opts.ModelPath), ".onnx"),
		bands:   opts.Bands,
		path:    opts.ModelPath,
		libPath: libPath,
		inName:  inName,
		outName: outName,
	}, nil
}

// Name implements Classifier.
func (o *ONNX) Name() string { return o.name }

// Bands implements Classifier.
func (o *ONNX) Bands() []string { return o.bands }

// build creates the session and its bound tensors for one window shape.
// Callers hold mu.
func (o *ONNX) build(h, w int) error {
	if err := initRuntime(o.libPath); err != nil {
		return errors.Wrap(err, "initializing onnx runtime")
	}
	o.destroySession()

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(o.bands)), int64(h), int64(w)))
	if err != nil {
		return errors.Wrap(err, "creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, int64(h), int64(w)))
	if err != nil {
		input.Destroy()
		return errors.Wrap(err, "creating output tensor")
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return errors.Wrap(err, "creating session options")
	}
	defer sessOpts.Destroy()
	if err := sessOpts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		input.Destroy()
		output.Destroy()
		return errors.Wrap(err, "configuring session options")
	}

	session, err := ort.NewAdvancedSession(
		o.path,
		[]string{o.inName},
		[]string{o.outName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		sessOpts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return errors.Wrapf(err, "creating session for %s", o.path)
	}

	o.session = session
	o.input = input
	o.output = output
	o.h, o.w = h, w
	return nil
}

// Predict implements Classifier.
func (o *ONNX) Predict(ctx context.Context, window []float32, bands, h, w int) ([]float32, error) {
	if bands != len(o.bands) {
		return nil, &ModelInputError{Model: o.name, Want: len(o.bands), Got: bands, Detail: "channels"}
	}
	n := h * w
	if len(window) != bands*n {
		return nil, &ModelInputError{Model: o.name, Want: bands * n, Got: len(window), Detail: "samples"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || o.h != h || o.w != w {
		if err := o.build(h, w); err != nil {
			return nil, err
		}
	}

	// The window is already NCHW-contiguous for batch 1.
	copy(o.input.GetData(), window)

	if err := o.session.Run(); err != nil {
		return nil, errors.Wrap(err, "onnx run")
	}

	data := o.output.GetData()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = clamp01(data[i])
	}
	return out, nil
}

// Close implements Classifier.
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.destroySession()
	return nil
}

// destroySession releases native resources in tensor-last order. Callers
// hold mu.
func (o *ONNX) destroySession() {
	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	if o.input != nil {
		o.input.Destroy()
		o.input = nil
	}
	if o.output != nil {
		o.output.Destroy()
		o.output = nil
	}
}
