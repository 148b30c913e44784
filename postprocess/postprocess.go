// Package postprocess - Mask and threshold policy applied to probability
// grids after inference. Transforms are pure: inputs are never mutated, and
// re-applying the same options to an output changes nothing.
package postprocess

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/oceansat-ai/go-sargassum/raster"
)

// Ternary class codes emitted by thresholded runs.
const (
	// ClassNegative marks pixels below the threshold.
	ClassNegative uint8 = 0
	// ClassPositive marks pixels at or above the threshold.
	ClassPositive uint8 = 1
	// ClassMasked marks pixels excluded by the scene-class mask. Kept
	// distinct from ClassNegative so consumers can tell "no sargassum" from
	// "could not look".
	ClassMasked uint8 = 2
)

// Options selects the transforms.
type Options struct {
	// Threshold binarizes probabilities: p >= *Threshold scores positive.
	// Nil keeps the continuous values.
	Threshold *float32
	// ApplyMask blanks pixels whose scene class is not in KeepClasses.
	ApplyMask bool
	// KeepClasses are the scene classification codes to keep when masking.
	KeepClasses []uint8
}

// Result is the outcome of Apply. Exactly one of Float and Class is set.
type Result struct {
	// Float is the continuous grid. Masked pixels carry NaN.
	Float *raster.Grid
	// Class is the ternary grid for thresholded runs.
	Class *raster.ClassGrid
	// Thresholded is true when Class holds the result.
	Thresholded bool
	// MaskedPixels counts pixels blanked by the mask, including pixels that
	// arrived already blanked.
	MaskedPixels int
	// PositivePixels counts detections, thresholded runs only.
	PositivePixels int
}

// Rows returns the result shape, whichever representation is live.
func (r *Result) Rows() int {
	if r.Thresholded {
		return r.Class.Rows
	}
	return r.Float.Rows
}

// Cols returns the result shape, whichever representation is live.
func (r *Result) Cols() int {
	if r.Thresholded {
		return r.Class.Cols
	}
	return r.Float.Cols
}

// Ref returns the result georeference.
func (r *Result) Ref() raster.GeoRef {
	if r.Thresholded {
		return r.Class.Ref
	}
	return r.Float.Ref
}

// Apply runs the mask and threshold policy over a probability grid.
//
// Masking wins over everything: a pixel outside the keep set is blanked no
// matter what the classifier said. Probabilities that arrive as NaN are
// treated as blanked upstream and stay blanked, which makes Apply idempotent
// in both representations.
//
// Arguments:
//   - prob: Probability grid from the inference engine. Not mutated.
//   - classes: Scene classification on the same grid. Required when masking,
//     ignored otherwise to keep mask-free runs independent of the layer.
//   - opts: Transform selection.
//
// Returns:
//   - *Result: Continuous grid (threshold nil) or ternary classes, plus
//     pixel accounting for diagnostics.
//   - error: When masking is requested without a usable class layer.
func Apply(prob *raster.Grid, classes *raster.ClassGrid, opts Options) (*Result, error) {
	if opts.ApplyMask {
		if classes == nil {
			return nil, fmt.Errorf("masking requested but no class layer given")
		}
		if classes.Rows != prob.Rows || classes.Cols != prob.Cols {
			return nil, fmt.Errorf("class layer is %dx%d, probabilities are %dx%d",
				classes.Rows, classes.Cols, prob.Rows, prob.Cols)
		}
		if len(opts.KeepClasses) == 0 {
			return nil, fmt.Errorf("masking requested with an empty keep set")
		}
	}

	var keep [256]bool
	for _, c := range opts.KeepClasses {
		keep[c] = true
	}
	masked := func(i int) bool {
		return opts.ApplyMask && !keep[classes.Data[i]]
	}

	if opts.Threshold == nil {
		out := raster.NewGrid(prob.Band, prob.Rows, prob.Cols, prob.Ref)
		copy(out.Data, prob.Data)

		res := &Result{Float: out}
		for i, v := range out.Data {
			if masked(i) {
				out.Data[i] = math32.NaN()
				res.MaskedPixels++
			} else if math32.IsNaN(v) {
				res.MaskedPixels++
			}
		}
		return res, nil
	}

	t := *opts.Threshold
	out := raster.NewClassGrid(prob.Band, prob.Rows, prob.Cols, prob.Ref)
	res := &Result{Class: out, Thresholded: true}
	for i, v := range prob.Data {
		switch {
		case masked(i) || math32.IsNaN(v):
			out.Data[i] = ClassMasked
			res.MaskedPixels++
		case v >= t:
			out.Data[i] = ClassPositive
			res.PositivePixels++
		default:
			out.Data[i] = ClassNegative
		}
	}
	return res, nil
}
