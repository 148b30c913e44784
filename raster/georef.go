// Package raster - Georeferenced grid primitives shared by every pipeline stage.
package raster

import "math"

// GeoRef ties a pixel grid to ground coordinates. It is carried unchanged from
// the band files through resampling, inference, and export so that output
// rasters land on exactly the grid the inputs were measured on.
type GeoRef struct {
	// Transform holds the six affine coefficients in GDAL order:
	// [originX, pixelWidth, rowRotation, originY, colRotation, pixelHeight].
	// pixelHeight is negative for north-up rasters.
	Transform [6]float64

	// Projection is the coordinate reference system as WKT, verbatim from the
	// source dataset.
	Projection string
}

// Origin returns the ground coordinate of the upper-left corner of pixel (0,0).
func (g GeoRef) Origin() (x, y float64) {
	return g.Transform[0], g.Transform[3]
}

// Resolution returns the pixel size in ground units. Square pixels are assumed
// for the scalar form; PixelSize exposes both axes.
func (g GeoRef) Resolution() float64 {
	return math.Abs(g.Transform[1])
}

// PixelSize returns the absolute pixel extent along x and y.
func (g GeoRef) PixelSize() (x, y float64) {
	return math.Abs(g.Transform[1]), math.Abs(g.Transform[5])
}

// Ground maps a pixel index to the ground coordinate of its upper-left corner.
//
// Arguments:
//   - row: Zero-based row index (north to south for north-up rasters).
//   - col: Zero-based column index.
//
// Returns:
//   - x, y: Ground coordinates in the units of Projection.
func (g GeoRef) Ground(row, col int) (x, y float64) {
	x = g.Transform[0] + float64(col)*g.Transform[1] + float64(row)*g.Transform[2]
	y = g.Transform[3] + float64(col)*g.Transform[4] + float64(row)*g.Transform[5]
	return x, y
}

// WithResolution returns a copy of the reference rescaled to the given pixel
// size. The origin and projection are untouched and the axis signs are kept,
// so a north-up raster stays north-up.
func (g GeoRef) WithResolution(res float64) GeoRef {
	out := g
	out.Transform[1] = math.Copysign(res, g.Transform[1])
	out.Transform[5] = math.Copysign(res, g.Transform[5])
	return out
}

// SameOrigin reports whether two references share pixel (0,0)'s ground
// coordinate within tol ground units. Resampling between grids that fail this
// check would shift every pixel, so callers treat a mismatch as fatal.
func (g GeoRef) SameOrigin(o GeoRef, tol float64) bool {
	return math.Abs(g.Transform[0]-o.Transform[0]) <= tol &&
		math.Abs(g.Transform[3]-o.Transform[3]) <= tol
}
