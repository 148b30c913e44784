// Package resample - Brings heterogeneous-resolution bands onto one common
// grid. Continuous bands are interpolated, categorical layers use nearest
// neighbor so class codes are never blended into meaningless averages.
package resample

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/oceansat-ai/go-sargassum/raster"
)

// Method selects the interpolation for continuous bands.
type Method int

const (
	// Bilinear is the default and matches the product's own resampling.
	Bilinear Method = iota
	// Cubic trades ringing for sharper gradients.
	Cubic
	// Nearest replicates samples. Categorical layers always use this
	// regardless of the configured method.
	Nearest
)

func (m Method) flag() gocv.InterpolationFlags {
	switch m {
	case Cubic:
		return gocv.InterpolationCubic
	case Nearest:
		return gocv.InterpolationNearestNeighbor
	default:
		return gocv.InterpolationLinear
	}
}

func (m Method) String() string {
	switch m {
	case Cubic:
		return "cubic"
	case Nearest:
		return "nearest"
	default:
		return "bilinear"
	}
}

// Grid resamples a continuous band onto a res-unit grid covering the same
// ground extent. The output georeference keeps the input origin and
// projection; only the pixel size changes, so pixel (0,0) maps to the same
// ground coordinate before and after.
func Grid(g *raster.Grid, res float64, method Method) (*raster.Grid, error) {
	rows, cols := targetShape(g.Rows, g.Cols, g.Ref, res)
	if rows == g.Rows && cols == g.Cols {
		out := raster.NewGrid(g.Band, rows, cols, g.Ref.WithResolution(res))
		copy(out.Data, g.Data)
		return out, nil
	}

	data, err := resizeFloat32(g.Data, g.Rows, g.Cols, rows, cols, method.flag())
	if err != nil {
		return nil, err
	}
	out := &raster.Grid{
		Band: g.Band,
		Data: data,
		Rows: rows,
		Cols: cols,
		Ref:  g.Ref.WithResolution(res),
	}
	return out, nil
}

// Classes resamples a categorical layer with nearest neighbor.
func Classes(c *raster.ClassGrid, res float64) (*raster.ClassGrid, error) {
	rows, cols := targetShape(c.Rows, c.Cols, c.Ref, res)
	if rows == c.Rows && cols == c.Cols {
		out := raster.NewClassGrid(c.Band, rows, cols, c.Ref.WithResolution(res))
		copy(out.Data, c.Data)
		return out, nil
	}

	data, err := resizeUint8(c.Data, c.Rows, c.Cols, rows, cols)
	if err != nil {
		return nil, err
	}
	out := &raster.ClassGrid{
		Band: c.Band,
		Data: data,
		Rows: rows,
		Cols: cols,
		Ref:  c.Ref.WithResolution(res),
	}
	return out, nil
}

// targetShape computes the pixel shape covering the grid's ground extent at
// the requested resolution.
func targetShape(rows, cols int, ref raster.GeoRef, res float64) (int, int) {
	psx, psy := ref.PixelSize()
	outRows := int(math.Round(float64(rows) * psy / res))
	outCols := int(math.Round(float64(cols) * psx / res))
	return outRows, outCols
}

// resizeFloat32 runs an OpenCV resize over a row-major float32 grid.
func resizeFloat32(src []float32, rows, cols, dstRows, dstCols int, interp gocv.InterpolationFlags) ([]float32, error) {
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)
	defer mat.Close()
	buf, err := mat.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	copy(buf, src)

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(mat, &dst, image.Pt(dstCols, dstRows), 0, 0, interp)

	dbuf, err := dst.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	out := make([]float32, dstRows*dstCols)
	copy(out, dbuf)
	return out, nil
}

// resizeUint8 runs a nearest-neighbor OpenCV resize over a row-major uint8 grid.
func resizeUint8(src []uint8, rows, cols, dstRows, dstCols int) ([]uint8, error) {
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	defer mat.Close()
	buf, err := mat.DataPtrUint8()
	if err != nil {
		return nil, err
	}
	copy(buf, src)

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(mat, &dst, image.Pt(dstCols, dstRows), 0, 0, gocv.InterpolationNearestNeighbor)

	dbuf, err := dst.DataPtrUint8()
	if err != nil {
		return nil, err
	}
	out := make([]uint8, dstRows*dstCols)
	copy(out, dbuf)
	return out, nil
}
