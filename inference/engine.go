package inference

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/oceansat-ai/go-sargassum/classify"
	"github.com/oceansat-ai/go-sargassum/raster"
)

// Options configures the engine.
type Options struct {
	// TileSize is the interior edge length in pixels. Zero selects 512.
	TileSize int
	// Margin is the context border carried around every interior so the
	// classifier sees its neighborhood. Interiors alone are stitched; the
	// margin is computed twice by adjacent tiles and discarded. Zero keeps
	// zero (per-pixel models need no context).
	Margin int
	// Workers bounds concurrently scored windows. Zero selects NumCPU.
	Workers int
	// Fill is the sample value presented outside the scene extent.
	Fill float32
}

// Stats describes one engine run.
type Stats struct {
	// Tiles is the number of interiors scored.
	Tiles int
	// Workers is the concurrency bound used.
	Workers int
	// WindowSize is the uniform window edge presented to the classifier.
	WindowSize int
}

// Engine drives a classifier over a stack tile by tile. Every window handed
// to the classifier has the identical (bands, size+2*margin, size+2*margin)
// shape, padded with Fill where it reaches past the extent, so fixed-shape
// backends compile exactly one graph.
type Engine struct {
	cls  classify.Classifier
	opts Options
}

// New validates the options and binds the engine to a classifier.
func New(cls classify.Classifier, opts Options) (*Engine, error) {
	if cls == nil {
		return nil, fmt.Errorf("inference engine: no classifier")
	}
	if opts.TileSize == 0 {
		opts.TileSize = 512
	}
	if opts.TileSize < 0 {
		return nil, fmt.Errorf("inference engine: tile size %d", opts.TileSize)
	}
	if opts.Margin < 0 {
		return nil, fmt.Errorf("inference engine: negative margin %d", opts.Margin)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("inference engine: negative worker count %d", opts.Workers)
	}
	return &Engine{cls: cls, opts: opts}, nil
}

// Run scores every pixel of the stack and assembles one probability grid on
// the stack's grid. Tiles are scored in parallel into disjoint regions of a
// single preallocated output; the call returns only after every worker has
// finished, so the grid is complete or the error says why not.
//
// Arguments:
//   - ctx: Cancels between tiles. Windows already being scored run out.
//   - stack: Aligned bands in exactly the classifier's band order.
//
// Returns:
//   - *raster.Grid: Probabilities named after the classifier, on the stack grid.
//   - Stats: Tile count and concurrency actually used.
//   - error: *classify.ModelInputError when the stack does not match the
//     model's channels; the first tile failure otherwise.
func (e *Engine) Run(ctx context.Context, stack *raster.Stack) (*raster.Grid, Stats, error) {
	want := e.cls.Bands()
	got := stack.Bands()
	if len(got) != len(want) {
		return nil, Stats{}, &classify.ModelInputError{
			Model: e.cls.Name(), Want: len(want), Got: len(got), Detail: "channels",
		}
	}
	for i := range want {
		if got[i] != want[i] {
			return nil, Stats{}, &classify.ModelInputError{
				Model:  e.cls.Name(),
				Detail: fmt.Sprintf("band %d is %s, model wants %s", i, got[i], want[i]),
			}
		}
	}

	rows, cols := stack.Rows(), stack.Cols()
	if rows == 0 || cols == 0 {
		return nil, Stats{}, fmt.Errorf("inference engine: empty stack")
	}

	tiles := Partition(rows, cols, e.opts.TileSize)
	winSize := e.opts.TileSize + 2*e.opts.Margin
	stats := Stats{Tiles: len(tiles), Workers: e.opts.Workers, WindowSize: winSize}

	out := raster.NewGrid(e.cls.Name(), rows, cols, stack.Ref())

	bands := len(want)
	pool := sync.Pool{
		New: func() interface{} { return make([]float32, bands*winSize*winSize) },
	}

	tileErrs := make([]error, len(tiles))
	sem := make(chan struct{}, e.opts.Workers)
	var wg sync.WaitGroup
	var done atomic.Int64

	for i, t := range tiles {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(idx int, t Tile) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				tileErrs[idx] = err
				return
			}

			buf := pool.Get().([]float32)
			window := stack.Window(buf, t.Row-e.opts.Margin, t.Col-e.opts.Margin, winSize, winSize, e.opts.Fill)
			probs, err := e.cls.Predict(ctx, window, bands, winSize, winSize)
			pool.Put(window)
			if err != nil {
				tileErrs[idx] = errors.Wrapf(err, "tile (%d,%d)", t.Row, t.Col)
				return
			}

			// Keep the interior, drop the margin. Interiors are disjoint, so
			// no write here races another tile's.
			for r := 0; r < t.Height; r++ {
				src := probs[(e.opts.Margin+r)*winSize+e.opts.Margin:]
				dst := out.Data[(t.Row+r)*cols+t.Col:]
				copy(dst[:t.Width], src[:t.Width])
			}
			done.Add(1)
		}(i, t)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	for _, err := range tileErrs {
		if err != nil {
			return nil, stats, err
		}
	}
	stats.Tiles = int(done.Load())
	return out, stats, nil
}
