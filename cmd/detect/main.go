// Command detect runs sargassum detection over one Sentinel-2 L2A scene and
// writes the requested artifacts.
//
// Flags cover the whole configuration surface; a .env file can preload the
// SARGASSUM_* defaults for the model path, output directory and ONNX runtime
// library.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oceansat-ai/go-sargassum/classify"
	"github.com/oceansat-ai/go-sargassum/export"
	"github.com/oceansat-ai/go-sargassum/pipeline"
	"github.com/oceansat-ai/go-sargassum/profiler"
	"github.com/oceansat-ai/go-sargassum/scene"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flag defaults come from the environment, optionally preloaded from a
	// .env file next to the binary.
	_ = godotenv.Load()

	var (
		scenePath  = flag.String("scene", "", "Path to the .SAFE product directory (required)")
		resolution = flag.Int("resolution", 20, "Image directory resolution in meters: 10, 20 or 60")
		classifier = flag.String("classifier", "afai", "Classifier backend: afai, mlp or onnx")
		modelPath  = flag.String("model", envOr("SARGASSUM_MODEL", ""), "Model weights file for mlp/onnx backends")
		ortLib     = flag.String("ort-lib", "", "onnxruntime shared library (defaults to $SARGASSUM_ORT_LIB)")
		outDir     = flag.String("out", envOr("SARGASSUM_OUT", "."), "Output directory for artifacts")
		tileSize   = flag.Int("tile-size", 0, "Tile interior edge in pixels (0 = 512)")
		margin     = flag.Int("margin", 0, "Context border around each tile in pixels")
		workers    = flag.Int("workers", 0, "Concurrent tile workers (0 = all CPUs)")
		threshold  = flag.Float64("threshold", 0.5, "Probability cutoff for the ternary raster; negative keeps continuous probabilities")
		applyMask  = flag.Bool("mask", true, "Blank pixels outside the kept scene classes")
		keep       = flag.String("keep", "6,10", "Comma-separated scene classification codes to keep when masking")
		saveTIFF   = flag.Bool("geotiff", true, "Write the GeoTIFF artifact")
		saveNPY    = flag.Bool("npy", false, "Write the raw numpy array artifact")
		saveJP2    = flag.Bool("jp2", false, "Write the JPEG2000 artifact (thresholded runs only)")
		quant      = flag.Float64("quant", float64(scene.QuantL2A), "Digital number divisor (65535 for full-scale models)")
		verbose    = flag.Bool("verbose", false, "Log per-stage progress and timings")
	)
	flag.Parse()

	if *scenePath == "" {
		flag.Usage()
		return fmt.Errorf("missing -scene")
	}

	keepClasses, err := parseKeepClasses(*keep)
	if err != nil {
		return err
	}

	var formats []export.Kind
	if *saveTIFF {
		formats = append(formats, export.KindGeoTIFF)
	}
	if *saveNPY {
		formats = append(formats, export.KindNPY)
	}
	if *saveJP2 {
		formats = append(formats, export.KindJP2)
	}
	if len(formats) == 0 {
		return fmt.Errorf("all output formats disabled, nothing to do")
	}

	var thr *float32
	if *threshold >= 0 {
		v := float32(*threshold)
		thr = &v
	}

	cfg := pipeline.Config{
		ScenePath:      *scenePath,
		Resolution:     *resolution,
		Quantification: float32(*quant),
		Classifier: classify.Options{
			Kind:        classify.Kind(*classifier),
			ModelPath:   *modelPath,
			LibraryPath: *ortLib,
		},
		TileSize:    *tileSize,
		TileMargin:  *margin,
		Workers:     *workers,
		ApplyMask:   *applyMask,
		KeepClasses: keepClasses,
		Threshold:   thr,
		Formats:     formats,
		OutDir:      *outDir,
		Verbose:     *verbose,
	}

	fmt.Printf("\n🛰️  Sargassum Detection Pipeline\n")
	fmt.Printf("=====================================\n")
	fmt.Printf("⚙️  Configuration:\n")
	fmt.Printf("   📂 Scene: %s\n", *scenePath)
	fmt.Printf("   🔬 Classifier: %s\n", *classifier)
	if *modelPath != "" {
		fmt.Printf("   🎯 Model: %s\n", *modelPath)
	}
	fmt.Printf("   📐 Resolution: %dm (quantification %.0f)\n", *resolution, *quant)
	fmt.Printf("   🧩 Tiling: size %s, margin %d, workers %s\n",
		orAuto(*tileSize), *margin, orAuto(*workers))
	if *applyMask {
		fmt.Printf("   🎭 Mask: keep classes %s\n", *keep)
	} else {
		fmt.Printf("   🎭 Mask: disabled\n")
	}
	if thr != nil {
		fmt.Printf("   🌿 Threshold: %.3f\n", *thr)
	} else {
		fmt.Printf("   🌿 Threshold: none (continuous probabilities)\n")
	}
	fmt.Printf("   💾 Formats: %s → %s\n", formatList(formats), *outDir)
	fmt.Printf("=====================================\n\n")

	// ONNX runtime state is global; tear it down after the run.
	defer classify.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Run %s complete in %v\n", summary.RunID, summary.Duration.Truncate(time.Millisecond))
	fmt.Printf("   🗺️  Grid: %dx%d at %.0fm, %d tiles\n",
		summary.Rows, summary.Cols, summary.GroundResolution, summary.Tiles)
	fmt.Printf("   📊 Probability: min %.3f, max %.3f, mean %.3f, std %.3f\n",
		summary.ProbMin, summary.ProbMax, summary.ProbMean, summary.ProbStd)
	if cfg.ApplyMask {
		total := summary.Rows * summary.Cols
		fmt.Printf("   🎭 Masked: %d of %d pixels (%.1f%%)\n",
			summary.MaskedPixels, total, 100*float64(summary.MaskedPixels)/float64(total))
	}
	if summary.Thresholded {
		fmt.Printf("   🌿 Positive: %d pixels\n", summary.PositivePixels)
	}
	for _, a := range summary.Artifacts {
		if a.Err != nil {
			fmt.Printf("   ❌ %s: %v\n", a.Kind, a.Err)
		} else {
			fmt.Printf("   💾 %s\n", a.Path)
		}
	}

	if *verbose {
		fmt.Printf("\n⏱️  Stage timings:\n")
		for _, st := range summary.Stages {
			fmt.Printf("   %-12s %10v  alloc=%s\n",
				st.Stage, st.Duration.Truncate(time.Microsecond), profiler.FormatBytes(st.Allocated))
		}
	}
	return nil
}

// parseKeepClasses converts "6,10" into class codes.
func parseKeepClasses(s string) ([]uint8, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint8, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("keep class %q: not a scene classification code", p)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

func formatList(kinds []export.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func orAuto(v int) string {
	if v == 0 {
		return "auto"
	}
	return strconv.Itoa(v)
}
