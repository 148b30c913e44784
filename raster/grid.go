package raster

import "github.com/chewxy/math32"

// Grid is a single continuous band: row-major float32 samples plus the
// georeference they were measured on.
type Grid struct {
	// Band identifies the source channel, e.g. "B04" or "afai".
	Band string
	// Data holds Rows*Cols samples in row-major order.
	Data []float32
	// Rows and Cols are the grid shape.
	Rows, Cols int
	// Ref locates the grid on the ground.
	Ref GeoRef
}

// NewGrid allocates a zeroed grid of the given shape.
func NewGrid(band string, rows, cols int, ref GeoRef) *Grid {
	return &Grid{
		Band: band,
		Data: make([]float32, rows*cols),
		Rows: rows,
		Cols: cols,
		Ref:  ref,
	}
}

// At returns the sample at (row, col). Indices are not range-checked.
func (g *Grid) At(row, col int) float32 {
	return g.Data[row*g.Cols+col]
}

// Set stores a sample at (row, col). Indices are not range-checked.
func (g *Grid) Set(row, col int, v float32) {
	g.Data[row*g.Cols+col] = v
}

// Len returns the number of samples.
func (g *Grid) Len() int {
	return g.Rows * g.Cols
}

// ValidCount returns the number of non-NaN samples. NaN is the masked-pixel
// sentinel, so this is the population size for any statistic over the grid.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Data {
		if !math32.IsNaN(v) {
			n++
		}
	}
	return n
}

// ClassGrid is a single categorical band, such as the scene classification
// layer, with uint8 class codes instead of continuous samples.
type ClassGrid struct {
	// Band identifies the source layer, e.g. "SCL".
	Band string
	// Data holds Rows*Cols class codes in row-major order.
	Data []uint8
	// Rows and Cols are the grid shape.
	Rows, Cols int
	// Ref locates the grid on the ground.
	Ref GeoRef
}

// NewClassGrid allocates a zeroed categorical grid of the given shape.
func NewClassGrid(band string, rows, cols int, ref GeoRef) *ClassGrid {
	return &ClassGrid{
		Band: band,
		Data: make([]uint8, rows*cols),
		Rows: rows,
		Cols: cols,
		Ref:  ref,
	}
}

// At returns the class code at (row, col). Indices are not range-checked.
func (c *ClassGrid) At(row, col int) uint8 {
	return c.Data[row*c.Cols+col]
}

// Set stores a class code at (row, col). Indices are not range-checked.
func (c *ClassGrid) Set(row, col int, v uint8) {
	c.Data[row*c.Cols+col] = v
}

// Len returns the number of samples.
func (c *ClassGrid) Len() int {
	return c.Rows * c.Cols
}
