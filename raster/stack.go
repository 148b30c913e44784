package raster

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Stack is a set of bands resampled onto one common grid, stored as a dense
// (bands, rows, cols) float32 tensor. Every plane shares the same shape and
// georeference; the aligner is the only producer, so the invariant holds by
// construction.
type Stack struct {
	bands []string
	data  *tensor.Dense
	rows  int
	cols  int
	ref   GeoRef
}

// NewStack allocates a zeroed stack for the named bands at the given shape.
func NewStack(bands []string, rows, cols int, ref GeoRef) *Stack {
	backing := make([]float32, len(bands)*rows*cols)
	return &Stack{
		bands: bands,
		data: tensor.New(
			tensor.WithShape(len(bands), rows, cols),
			tensor.Of(tensor.Float32),
			tensor.WithBacking(backing),
		),
		rows: rows,
		cols: cols,
		ref:  ref,
	}
}

// NumBands returns the number of planes.
func (s *Stack) NumBands() int { return len(s.bands) }

// Rows returns the grid height.
func (s *Stack) Rows() int { return s.rows }

// Cols returns the grid width.
func (s *Stack) Cols() int { return s.cols }

// Ref returns the common georeference.
func (s *Stack) Ref() GeoRef { return s.ref }

// Bands returns the plane names in storage order. Callers must not modify the
// returned slice.
func (s *Stack) Bands() []string { return s.bands }

// Tensor exposes the (bands, rows, cols) backing tensor for numeric interop.
func (s *Stack) Tensor() *tensor.Dense { return s.data }

// BandIndex returns the plane index for a band name.
func (s *Stack) BandIndex(name string) (int, bool) {
	for i, b := range s.bands {
		if b == name {
			return i, true
		}
	}
	return 0, false
}

// Plane returns the row-major samples of one band as a view into the backing
// store. Writes through the returned slice are visible to later readers.
func (s *Stack) Plane(i int) []float32 {
	base := i * s.rows * s.cols
	return s.data.Float32s()[base : base+s.rows*s.cols]
}

// SetBand copies a grid into plane i. The grid shape must match the stack.
func (s *Stack) SetBand(i int, g *Grid) error {
	if g.Rows != s.rows || g.Cols != s.cols {
		return fmt.Errorf("band %s is %dx%d, stack is %dx%d", g.Band, g.Rows, g.Cols, s.rows, s.cols)
	}
	copy(s.Plane(i), g.Data)
	return nil
}

// Window extracts a (bands, h, w) block anchored at (row0, col0) into dst,
// padding with fill wherever the block reaches outside the stack extent. The
// anchor may be negative. dst is grown if its capacity is short; the filled
// slice is returned so callers can pool buffers across extractions.
//
// Arguments:
//   - dst: Reusable destination buffer, may be nil.
//   - row0, col0: Upper-left corner of the block in stack coordinates.
//   - h, w: Block shape per band.
//   - fill: Value written outside the stack extent.
//
// Returns:
//   - []float32: len(bands)*h*w samples, band-major then row-major.
func (s *Stack) Window(dst []float32, row0, col0, h, w int, fill float32) []float32 {
	n := len(s.bands) * h * w
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = fill
	}

	// Intersect the requested block with the stack extent; everything else
	// keeps the fill value.
	r0 := max(row0, 0)
	r1 := min(row0+h, s.rows)
	c0 := max(col0, 0)
	c1 := min(col0+w, s.cols)
	if r0 >= r1 || c0 >= c1 {
		return dst
	}

	backing := s.data.Float32s()
	for b := range s.bands {
		src := backing[b*s.rows*s.cols:]
		out := dst[b*h*w:]
		for r := r0; r < r1; r++ {
			srcRow := src[r*s.cols+c0 : r*s.cols+c1]
			dstOff := (r-row0)*w + (c0 - col0)
			copy(out[dstOff:dstOff+len(srcRow)], srcRow)
		}
	}
	return dst
}
