package inference

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceansat-ai/go-sargassum/classify"
	"github.com/oceansat-ai/go-sargassum/raster"
)

// meanStub scores each pixel with the mean of its channels. Pixel-local, so
// tiled and untiled runs must agree bit for bit.
type meanStub struct {
	bands []string
}

func (s *meanStub) Name() string    { return "mean-stub" }
func (s *meanStub) Bands() []string { return s.bands }
func (s *meanStub) Close() error    { return nil }

func (s *meanStub) Predict(_ context.Context, window []float32, bands, h, w int) ([]float32, error) {
	n := h * w
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for b := 0; b < bands; b++ {
			sum += window[b*n+i]
		}
		out[i] = sum / float32(bands)
	}
	return out, nil
}

// shapeRecorder records every window shape it sees.
type shapeRecorder struct {
	meanStub
	mu     sync.Mutex
	shapes [][2]int
}

func (s *shapeRecorder) Predict(ctx context.Context, window []float32, bands, h, w int) ([]float32, error) {
	s.mu.Lock()
	s.shapes = append(s.shapes, [2]int{h, w})
	s.mu.Unlock()
	return s.meanStub.Predict(ctx, window, bands, h, w)
}

// failStub fails every prediction.
type failStub struct {
	meanStub
}

func (s *failStub) Predict(context.Context, []float32, int, int, int) ([]float32, error) {
	return nil, &classify.ModelInputError{Model: "fail-stub", Want: 9, Got: 1, Detail: "channels"}
}

func testStack(t *testing.T, bands []string, rows, cols int) *raster.Stack {
	t.Helper()
	ref := raster.GeoRef{
		Transform:  [6]float64{399960, 10, 0, 2100000, 0, -10},
		Projection: "+proj=utm +zone=16 +datum=WGS84 +units=m +no_defs",
	}
	s := raster.NewStack(bands, rows, cols, ref)
	for bi := range bands {
		g := raster.NewGrid(bands[bi], rows, cols, ref)
		for i := range g.Data {
			// Deterministic, varied, and different per band.
			g.Data[i] = float32((i*7+bi*13)%101) / 101
		}
		require.NoError(t, s.SetBand(bi, g))
	}
	return s
}

func TestRunMatchesUntiledInference(t *testing.T) {
	cls := &meanStub{bands: []string{"a", "b", "c"}}
	stack := testStack(t, cls.bands, 37, 23)

	for _, opt := range []Options{
		{TileSize: 8, Margin: 0, Workers: 4},
		{TileSize: 8, Margin: 3, Workers: 4},
		{TileSize: 16, Margin: 5, Workers: 2},
		{TileSize: 64, Margin: 32, Workers: 1}, // single tile larger than the scene
	} {
		t.Run(fmt.Sprintf("tile%d_margin%d", opt.TileSize, opt.Margin), func(t *testing.T) {
			eng, err := New(cls, opt)
			require.NoError(t, err)

			tiled, stats, err := eng.Run(context.Background(), stack)
			require.NoError(t, err)
			assert.Equal(t, len(Partition(37, 23, opt.TileSize)), stats.Tiles)

			// Reference: one window covering the whole extent, no padding in play.
			full := stack.Window(nil, 0, 0, 37, 23, 0)
			want, err := cls.Predict(context.Background(), full, 3, 37, 23)
			require.NoError(t, err)

			assert.Equal(t, want, tiled.Data, "tiling must be invisible in the output")
		})
	}
}

func TestRunPresentsUniformWindows(t *testing.T) {
	rec := &shapeRecorder{meanStub: meanStub{bands: []string{"a"}}}
	stack := testStack(t, []string{"a"}, 10, 7)

	eng, err := New(rec, Options{TileSize: 4, Margin: 2, Workers: 3})
	require.NoError(t, err)

	_, stats, err := eng.Run(context.Background(), stack)
	require.NoError(t, err)

	require.Equal(t, 6, stats.Tiles)
	assert.Equal(t, 8, stats.WindowSize)
	require.Len(t, rec.shapes, 6)
	for _, shape := range rec.shapes {
		assert.Equal(t, [2]int{8, 8}, shape, "edge tiles are padded, not shrunk")
	}
}

func TestRunOutputCarriesGridAndName(t *testing.T) {
	cls := &meanStub{bands: []string{"a"}}
	stack := testStack(t, []string{"a"}, 6, 5)

	eng, err := New(cls, Options{TileSize: 4, Workers: 1})
	require.NoError(t, err)

	out, _, err := eng.Run(context.Background(), stack)
	require.NoError(t, err)

	assert.Equal(t, "mean-stub", out.Band)
	assert.Equal(t, 6, out.Rows)
	assert.Equal(t, 5, out.Cols)
	assert.Equal(t, stack.Ref(), out.Ref, "the probability grid inherits the stack georeference")
}

func TestRunRejectsChannelCountMismatch(t *testing.T) {
	cls := &meanStub{bands: []string{"a", "b"}}
	stack := testStack(t, []string{"a"}, 4, 4)

	eng, err := New(cls, Options{TileSize: 4})
	require.NoError(t, err)

	_, _, err = eng.Run(context.Background(), stack)
	var mie *classify.ModelInputError
	require.ErrorAs(t, err, &mie)
	assert.Equal(t, 2, mie.Want)
	assert.Equal(t, 1, mie.Got)
}

func TestRunRejectsBandOrderMismatch(t *testing.T) {
	cls := &meanStub{bands: []string{"a", "b"}}
	stack := testStack(t, []string{"b", "a"}, 4, 4)

	eng, err := New(cls, Options{TileSize: 4})
	require.NoError(t, err)

	_, _, err = eng.Run(context.Background(), stack)
	var mie *classify.ModelInputError
	require.ErrorAs(t, err, &mie)
	assert.Contains(t, mie.Error(), "band 0")
}

func TestRunPropagatesTileFailure(t *testing.T) {
	cls := &failStub{meanStub{bands: []string{"a"}}}
	stack := testStack(t, []string{"a"}, 8, 8)

	eng, err := New(cls, Options{TileSize: 4, Workers: 2})
	require.NoError(t, err)

	_, _, err = eng.Run(context.Background(), stack)
	require.Error(t, err)

	var mie *classify.ModelInputError
	assert.ErrorAs(t, err, &mie, "the classifier failure survives wrapping")
	assert.Contains(t, err.Error(), "tile (", "the failing tile is named")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	cls := &meanStub{bands: []string{"a"}}
	stack := testStack(t, []string{"a"}, 8, 8)

	eng, err := New(cls, Options{TileSize: 4})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = eng.Run(ctx, stack)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewValidation(t *testing.T) {
	cls := &meanStub{bands: []string{"a"}}

	_, err := New(nil, Options{})
	require.Error(t, err)

	_, err = New(cls, Options{Margin: -1})
	require.Error(t, err)

	_, err = New(cls, Options{Workers: -2})
	require.Error(t, err)

	eng, err := New(cls, Options{})
	require.NoError(t, err)
	assert.Equal(t, 512, eng.opts.TileSize, "tile size defaults")
	assert.Positive(t, eng.opts.Workers, "worker count defaults to the CPU count")
}
