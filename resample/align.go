package resample

import (
	"fmt"
	"math"

	"github.com/oceansat-ai/go-sargassum/raster"
)

// defaultOriginTol is the ground-unit slack allowed when comparing grid
// origins. Product tiles are cut on exact UTM boundaries, so anything beyond
// float noise means the inputs come from different tilings.
const defaultOriginTol = 1e-3

// AlignmentError reports inputs that cannot share a grid without shifting or
// cropping pixels, which would silently corrupt every downstream coordinate.
type AlignmentError struct {
	Reason string
}

func (e *AlignmentError) Error() string {
	return "alignment: " + e.Reason
}

// Options configures Align.
type Options struct {
	// TargetResolution in ground units. Zero selects the finest native band
	// resolution.
	TargetResolution float64
	// Method interpolates continuous bands. The categorical layer always
	// uses nearest neighbor.
	Method Method
	// OriginTolerance in ground units. Zero selects a sub-millimeter default.
	OriginTolerance float64
}

// Align resamples every band and the optional categorical layer onto one
// common grid.
//
// Arguments:
//   - bands: Continuous bands, any mix of native resolutions.
//   - classes: Categorical layer, may be nil when no masking is planned.
//   - opts: Target resolution and interpolation, zero values for defaults.
//
// Returns:
//   - *raster.Stack: Bands on the common grid, in input order.
//   - *raster.ClassGrid: The categorical layer on the same grid, nil when
//     classes was nil.
//   - error: *AlignmentError when the inputs do not describe the same ground
//     footprint.
func Align(bands []*raster.Grid, classes *raster.ClassGrid, opts Options) (*raster.Stack, *raster.ClassGrid, error) {
	if len(bands) == 0 {
		return nil, nil, &AlignmentError{Reason: "no bands to align"}
	}

	tol := opts.OriginTolerance
	if tol == 0 {
		tol = defaultOriginTol
	}

	// The finest band defines the reference footprint.
	ref := bands[0]
	for _, b := range bands[1:] {
		if b.Ref.Resolution() < ref.Ref.Resolution() {
			ref = b
		}
	}
	target := opts.TargetResolution
	if target == 0 {
		target = ref.Ref.Resolution()
	}

	refW, refH := extent(ref.Rows, ref.Cols, ref.Ref)
	for _, b := range bands {
		if err := checkFootprint(b.Band, b.Rows, b.Cols, b.Ref, ref, refW, refH, tol, target); err != nil {
			return nil, nil, err
		}
	}
	if classes != nil {
		if err := checkFootprint(classes.Band, classes.Rows, classes.Cols, classes.Ref, ref, refW, refH, tol, target); err != nil {
			return nil, nil, err
		}
	}

	rows := int(math.Round(refH / target))
	cols := int(math.Round(refW / target))

	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = b.Band
	}
	stack := raster.NewStack(names, rows, cols, ref.Ref.WithResolution(target))

	for i, b := range bands {
		rg, err := Grid(b, target, opts.Method)
		if err != nil {
			return nil, nil, err
		}
		if rg.Rows != rows || rg.Cols != cols {
			return nil, nil, &AlignmentError{
				Reason: fmt.Sprintf("band %s resampled to %dx%d, grid is %dx%d", b.Band, rg.Rows, rg.Cols, rows, cols),
			}
		}
		if err := stack.SetBand(i, rg); err != nil {
			return nil, nil, &AlignmentError{Reason: err.Error()}
		}
	}

	if classes == nil {
		return stack, nil, nil
	}
	scl, err := Classes(classes, target)
	if err != nil {
		return nil, nil, err
	}
	if scl.Rows != rows || scl.Cols != cols {
		return nil, nil, &AlignmentError{
			Reason: fmt.Sprintf("class layer resampled to %dx%d, grid is %dx%d", scl.Rows, scl.Cols, rows, cols),
		}
	}
	return stack, scl, nil
}

// extent returns the ground footprint of a grid in x and y.
func extent(rows, cols int, ref raster.GeoRef) (w, h float64) {
	psx, psy := ref.PixelSize()
	return float64(cols) * psx, float64(rows) * psy
}

// checkFootprint verifies one input against the reference band. Extent slack
// is half a target pixel: a grid that disagrees by more does not tile the
// same ground area.
func checkFootprint(band string, rows, cols int, got raster.GeoRef, ref *raster.Grid, refW, refH, tol, target float64) error {
	if got.Projection != ref.Ref.Projection {
		return &AlignmentError{
			Reason: fmt.Sprintf("band %s projection differs from %s", band, ref.Band),
		}
	}
	if !got.SameOrigin(ref.Ref, tol) {
		gx, gy := got.Origin()
		rx, ry := ref.Ref.Origin()
		return &AlignmentError{
			Reason: fmt.Sprintf("band %s origin (%.3f,%.3f) shifted from %s origin (%.3f,%.3f)", band, gx, gy, ref.Band, rx, ry),
		}
	}
	w, h := extent(rows, cols, got)
	if math.Abs(w-refW) > target/2 || math.Abs(h-refH) > target/2 {
		return &AlignmentError{
			Reason: fmt.Sprintf("band %s covers %.0fx%.0f ground units, %s covers %.0fx%.0f", band, w, h, ref.Band, refW, refH),
		}
	}
	return nil
}
