package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlpSpec is the on-disk weights schema: named input bands plus a chain of
// dense layers ending in one value per pixel.
type mlpSpec struct {
	Name   string     `json:"name"`
	Bands  []string   `json:"bands"`
	Layers []mlpLayer `json:"layers"`
}

type mlpLayer struct {
	// Weights is the [inputs][outputs] kernel.
	Weights [][]float32 `json:"weights"`
	// Bias has one entry per output.
	Bias []float32 `json:"bias"`
	// Activation is relu, sigmoid or linear. Empty means linear.
	Activation string `json:"activation"`
}

func (s *mlpSpec) validate() error {
	if len(s.Bands) == 0 {
		return fmt.Errorf("no input bands")
	}
	if len(s.Layers) == 0 {
		return fmt.Errorf("no layers")
	}
	in := len(s.Bands)
	for i, layer := range s.Layers {
		if len(layer.Weights) != in {
			return fmt.Errorf("layer %d: %d weight rows for %d inputs", i, len(layer.Weights), in)
		}
		out := len(layer.Bias)
		if out == 0 {
			return fmt.Errorf("layer %d: empty bias", i)
		}
		for r, row := range layer.Weights {
			if len(row) != out {
				return fmt.Errorf("layer %d: weight row %d has %d columns, bias has %d", i, r, len(row), out)
			}
		}
		switch layer.Activation {
		case "relu", "sigmoid", "linear", "":
		default:
			return fmt.Errorf("layer %d: unknown activation %q", i, layer.Activation)
		}
		in = out
	}
	if in != 1 {
		return fmt.Errorf("final layer emits %d values per pixel, want 1", in)
	}
	return nil
}

// MLP scores pixels through a dense network compiled into a gorgonia graph.
// The graph is specialized to a fixed batch size (the window pixel count) and
// rebuilt if the tiler ever changes window shape. The tape machine is not
// reentrant, so Predict serializes on a mutex; window extraction and
// stitching continue in parallel around it.
type MLP struct {
	name  string
	bands []string
	spec  mlpSpec

	mu    sync.Mutex
	batch int
	vm    G.VM
	graph *G.ExprGraph
	x     *G.Node
	out   *G.Node
	xT    *tensor.Dense
}

// NewMLP loads and validates a JSON weights file.
//
// Arguments:
//   - path: Weights file. The file names its own input bands, so no band
//     configuration is needed.
//
// Returns:
//   - *MLP: A classifier ready for Predict. Graph compilation is deferred to
//     the first window so the batch size can come from the tiler.
//   - error: When the file is unreadable or the layer dimensions do not chain.
func NewMLP(path string) (*MLP, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading model weights")
	}
	var spec mlpSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, errors.Wrap(err, "parsing model weights")
	}
	if err := spec.validate(); err != nil {
		return nil, errors.Wrapf(err, "model weights %s", path)
	}
	name := spec.Name
	if name == "" {
		name = "mlp"
	}
	return &MLP{name: name, bands: spec.Bands, spec: spec}, nil
}

// Name implements Classifier.
func (m *MLP) Name() string { return m.name }

// Bands implements Classifier.
func (m *MLP) Bands() []string { return m.bands }

// build compiles the forward graph for a batch of n pixels. Callers hold mu.
func (m *MLP) build(n int) error {
	if m.vm != nil {
		m.vm.Close()
		m.vm = nil
	}

	g := G.NewGraph()
	x := G.NewMatrix(g, tensor.Float32, G.WithShape(n, len(m.bands)), G.WithName("x"))

	h := x
	for i, layer := range m.spec.Layers {
		in := len(layer.Weights)
		out := len(layer.Bias)

		wBack := make([]float32, in*out)
		for r, row := range layer.Weights {
			copy(wBack[r*out:(r+1)*out], row)
		}
		w := G.NewMatrix(g, tensor.Float32,
			G.WithShape(in, out),
			G.WithName(fmt.Sprintf("w%d", i)),
			G.WithValue(tensor.New(tensor.WithShape(in, out), tensor.WithBacking(wBack))),
		)

		bBack := make([]float32, out)
		copy(bBack, layer.Bias)
		b := G.NewMatrix(g, tensor.Float32,
			G.WithShape(1, out),
			G.WithName(fmt.Sprintf("b%d", i)),
			G.WithValue(tensor.New(tensor.WithShape(1, out), tensor.WithBacking(bBack))),
		)

		xw, err := G.Mul(h, w)
		if err != nil {
			return errors.Wrapf(err, "layer %d matmul", i)
		}
		z, err := G.BroadcastAdd(xw, b, nil, []byte{0})
		if err != nil {
			return errors.Wrapf(err, "layer %d bias", i)
		}
		h, err = activate(z, layer.Activation)
		if err != nil {
			return errors.Wrapf(err, "layer %d", i)
		}
	}

	m.graph = g
	m.x = x
	m.out = h
	m.vm = G.NewTapeMachine(g)
	m.batch = n
	m.xT = tensor.New(
		tensor.WithShape(n, len(m.bands)),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(make([]float32, n*len(m.bands))),
	)
	return nil
}

func activate(z *G.Node, name string) (*G.Node, error) {
	switch name {
	case "relu":
		return G.Rectify(z)
	case "sigmoid":
		return G.Sigmoid(z)
	default: // linear
		return z, nil
	}
}

// Predict implements Classifier.
func (m *MLP) Predict(ctx context.Context, window []float32, bands, h, w int) ([]float32, error) {
	if bands != len(m.bands) {
		return nil, &ModelInputError{Model: m.name, Want: len(m.bands), Got: bands, Detail: "channels"}
	}
	n := h * w
	if len(window) != bands*n {
		return nil, &ModelInputError{Model: m.name, Want: bands * n, Got: len(window), Detail: "samples"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.vm == nil || m.batch != n {
		if err := m.build(n); err != nil {
			return nil, err
		}
	}

	// Band-major window to a (pixel, band) design matrix.
	xs := m.xT.Float32s()
	for b := 0; b < bands; b++ {
		plane := window[b*n : (b+1)*n]
		for i, v := range plane {
			xs[i*bands+b] = v
		}
	}

	if err := G.Let(m.x, m.xT); err != nil {
		return nil, errors.Wrap(err, "binding input")
	}
	if err := m.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "forward pass")
	}

	data := m.out.Value().Data().([]float32)
	out := make([]float32, n)
	for i, v := range data {
		out[i] = clamp01(v)
	}
	m.vm.Reset()
	return out, nil
}

// Close implements Classifier.
func (m *MLP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vm != nil {
		m.vm.Close()
		m.vm = nil
	}
	return nil
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
