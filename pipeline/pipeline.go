// Package pipeline - Runs the full detection sequence over one Sentinel-2
// scene: open the product, load the classifier's bands, align them onto a
// common grid, score every pixel, apply the scene-class mask and threshold,
// and export the requested artifacts.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/oceansat-ai/go-sargassum/classify"
	"github.com/oceansat-ai/go-sargassum/export"
	"github.com/oceansat-ai/go-sargassum/inference"
	"github.com/oceansat-ai/go-sargassum/postprocess"
	"github.com/oceansat-ai/go-sargassum/profiler"
	"github.com/oceansat-ai/go-sargassum/raster"
	"github.com/oceansat-ai/go-sargassum/resample"
	"github.com/oceansat-ai/go-sargassum/scene"
)

// Stage names, in execution order.
const (
	StageModel       = "model"
	StageScene       = "scene"
	StageBands       = "bands"
	StageAlign       = "align"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageExport      = "export"
)

// StageError names the first stage that failed and carries its cause.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Config describes one detection run. Run never mutates it, so a Config can
// be built once and reused across scenes.
type Config struct {
	// ScenePath is the .SAFE product directory.
	ScenePath string
	// Resolution selects the R{res}m image directory. Zero selects 20.
	Resolution int
	// Quantification divides digital numbers into reflectance. Zero selects
	// the standard L2A value.
	Quantification float32

	// Classifier selects and configures the model backend.
	Classifier classify.Options

	// TileSize, TileMargin and Workers shape the inference pass. Zero
	// values select the engine defaults.
	TileSize   int
	TileMargin int
	Workers    int

	// ApplyMask blanks pixels whose scene classification is not in
	// KeepClasses. KeepClasses nil selects water plus thin cirrus.
	ApplyMask   bool
	KeepClasses []uint8
	// Threshold binarizes probabilities into the ternary class raster.
	// Nil exports the continuous probabilities.
	Threshold *float32

	// Formats lists the artifacts to write. Empty selects geotiff.
	Formats []export.Kind
	// OutDir receives the artifacts. Empty selects the working directory.
	OutDir string

	// Verbose enables per-stage progress logging.
	Verbose bool
	// Logger receives progress lines when Verbose. Nil selects the default
	// logger.
	Logger *log.Logger
}

// Summary is the diagnostic record of a completed run.
type Summary struct {
	// RunID tags log lines and artifact provenance for this run.
	RunID uuid.UUID
	// Scene identifies the product that was processed.
	Scene scene.Info
	// Classifier is the model name used in artifact names.
	Classifier string
	// Bands lists the channels fed to the model, in model order.
	Bands []string
	// Rows, Cols and GroundResolution describe the common grid.
	Rows, Cols       int
	GroundResolution float64
	// Tiles, Workers and WindowSize describe the inference pass.
	Tiles      int
	Workers    int
	WindowSize int
	// ValidPixels counts non-NaN probabilities before masking, and the
	// Prob* statistics summarize their distribution.
	ValidPixels                         int
	ProbMin, ProbMax, ProbMean, ProbStd float64
	// MaskedPixels and PositivePixels come from the mask and threshold
	// pass. PositivePixels stays zero for continuous runs.
	MaskedPixels   int
	PositivePixels int
	// Thresholded is true when the artifacts carry ternary classes.
	Thresholded bool
	// Stages holds per-stage wall time and allocation.
	Stages []profiler.StageTiming
	// Artifacts records every requested export with its outcome.
	Artifacts []export.Artifact
	// Duration is the end-to-end wall time.
	Duration time.Duration
}

// Run executes the detection sequence.
//
// Arguments:
//   - ctx: Cancels the run between tiles and between stages.
//   - cfg: The run description. Zero values select defaults throughout.
//
// Returns:
//   - *Summary: Diagnostics for the completed run, including per-format
//     export outcomes. Export failures for individual formats are recorded
//     there, not returned as errors.
//   - error: *StageError naming the first failing stage.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	start := time.Now()
	clock := profiler.NewStageClock()
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logf := func(format string, args ...interface{}) {
		if cfg.Verbose {
			logger.Printf(format, args...)
		}
	}

	summary := &Summary{RunID: uuid.New()}
	logf("run %s: scene %s", summary.RunID, cfg.ScenePath)

	var cls classify.Classifier
	if err := runStage(ctx, clock, StageModel, func() error {
		var err error
		cls, err = classify.New(cfg.Classifier)
		return err
	}); err != nil {
		return nil, err
	}
	defer cls.Close()
	summary.Classifier = cls.Name()
	summary.Bands = cls.Bands()
	logf("model %s wants bands %v", cls.Name(), cls.Bands())

	var prod *scene.Scene
	if err := runStage(ctx, clock, StageScene, func() error {
		var err error
		prod, err = scene.Open(cfg.ScenePath, scene.Options{
			Resolution:     cfg.Resolution,
			Quantification: cfg.Quantification,
		})
		return err
	}); err != nil {
		return nil, err
	}
	summary.Scene = prod.Info
	logf("product S%s tile %s sensed %s, reading R%dm",
		prod.Info.Satellite, prod.Info.Tile, prod.Info.Date(), prod.Resolution)

	var bands []*raster.Grid
	var classes *raster.ClassGrid
	if err := runStage(ctx, clock, StageBands, func() error {
		var err error
		bands, err = prod.Bands(cls.Bands())
		if err != nil {
			return err
		}
		if cfg.ApplyMask {
			classes, err = prod.ClassLayer()
		}
		return err
	}); err != nil {
		return nil, err
	}
	for _, b := range bands {
		logf("band %s: %dx%d at %.0fm", b.Band, b.Rows, b.Cols, b.Ref.Resolution())
	}

	var stack *raster.Stack
	if err := runStage(ctx, clock, StageAlign, func() error {
		var err error
		stack, classes, err = resample.Align(bands, classes, resample.Options{})
		return err
	}); err != nil {
		return nil, err
	}
	summary.Rows, summary.Cols = stack.Rows(), stack.Cols()
	summary.GroundResolution = stack.Ref().Resolution()
	logf("aligned %d bands onto %dx%d at %.0fm",
		stack.NumBands(), stack.Rows(), stack.Cols(), stack.Ref().Resolution())

	var prob *raster.Grid
	if err := runStage(ctx, clock, StageInference, func() error {
		engine, err := inference.New(cls, inference.Options{
			TileSize: cfg.TileSize,
			Margin:   cfg.TileMargin,
			Workers:  cfg.Workers,
		})
		if err != nil {
			return err
		}
		var stats inference.Stats
		prob, stats, err = engine.Run(ctx, stack)
		summary.Tiles = stats.Tiles
		summary.Workers = stats.Workers
		summary.WindowSize = stats.WindowSize
		return err
	}); err != nil {
		return nil, err
	}
	logf("scored %d tiles with %d workers, window %dpx",
		summary.Tiles, summary.Workers, summary.WindowSize)

	var res *postprocess.Result
	if err := runStage(ctx, clock, StagePostprocess, func() error {
		summarizeProbabilities(summary, prob)
		keep := cfg.KeepClasses
		if keep == nil {
			keep = scene.DefaultKeepClasses
		}
		var err error
		res, err = postprocess.Apply(prob, classes, postprocess.Options{
			Threshold:   cfg.Threshold,
			ApplyMask:   cfg.ApplyMask,
			KeepClasses: keep,
		})
		return err
	}); err != nil {
		return nil, err
	}
	summary.Thresholded = res.Thresholded
	summary.MaskedPixels = res.MaskedPixels
	summary.PositivePixels = res.PositivePixels
	if cfg.ApplyMask {
		total := summary.Rows * summary.Cols
		logf("mask blanked %d of %d pixels (%.1f%%)",
			res.MaskedPixels, total, 100*float64(res.MaskedPixels)/float64(total))
	}
	if res.Thresholded {
		logf("%d positive pixels at threshold %.3f", res.PositivePixels, *cfg.Threshold)
	}

	if err := runStage(ctx, clock, StageExport, func() error {
		formats := cfg.Formats
		if len(formats) == 0 {
			formats = []export.Kind{export.KindGeoTIFF}
		}
		outDir := cfg.OutDir
		if outDir == "" {
			outDir = "."
		}
		artifacts, err := export.Write(res, export.Request{
			OutDir:   outDir,
			BaseName: fmt.Sprintf("%s_%s_%s", prod.Info.Tile, prod.Info.Date(), cls.Name()),
			Kinds:    formats,
		})
		summary.Artifacts = artifacts
		return err
	}); err != nil {
		return nil, err
	}
	for _, a := range summary.Artifacts {
		if a.Err != nil {
			logf("export %s failed: %v", a.Kind, a.Err)
		} else {
			logf("wrote %s", a.Path)
		}
	}

	summary.Stages = clock.Timings()
	summary.Duration = time.Since(start)
	logf("run %s done in %v", summary.RunID, summary.Duration.Truncate(time.Millisecond))
	return summary, nil
}

// runStage wraps one stage: skipped when the context is already dead, timed
// otherwise, and any failure is tagged with the stage name.
func runStage(ctx context.Context, clock *profiler.StageClock, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	if err := clock.Time(name, fn); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// summarizeProbabilities fills the distribution fields from the raw
// probability grid, before masking.
func summarizeProbabilities(s *Summary, prob *raster.Grid) {
	valid := make([]float64, 0, len(prob.Data))
	for _, v := range prob.Data {
		if !math32.IsNaN(v) {
			valid = append(valid, float64(v))
		}
	}
	s.ValidPixels = len(valid)
	if len(valid) == 0 {
		return
	}
	s.ProbMin = floats.Min(valid)
	s.ProbMax = floats.Max(valid)
	s.ProbMean, s.ProbStd = stat.MeanStdDev(valid, nil)
}
