package export

import (
	"math"

	"github.com/airbusgeo/godal"
	"github.com/pkg/errors"

	"github.com/oceansat-ai/go-sargassum/postprocess"
	"github.com/oceansat-ai/go-sargassum/raster"
)

// writeGeoTIFF encodes the result as a tiled, deflate-compressed GeoTIFF.
// Continuous results become a Float32 band with NaN nodata, ternary results a
// Byte band with the masked class as nodata.
func writeGeoTIFF(res *postprocess.Result, path string) error {
	registerDrivers()

	rows, cols := res.Rows(), res.Cols()
	dtype := godal.Float32
	if res.Thresholded {
		dtype = godal.Byte
	}

	ds, err := godal.Create(godal.GTiff, path, 1, dtype, cols, rows,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return &WriteError{Kind: KindGeoTIFF, Path: path, Err: err}
	}

	if err := applyGeoref(ds, res.Ref(), res.Thresholded); err != nil {
		ds.Close()
		return &WriteError{Kind: KindGeoTIFF, Path: path, Err: err}
	}

	band := ds.Bands()[0]
	if res.Thresholded {
		err = band.Write(0, 0, res.Class.Data, cols, rows)
	} else {
		err = band.Write(0, 0, res.Float.Data, cols, rows)
	}
	if err != nil {
		ds.Close()
		return &WriteError{Kind: KindGeoTIFF, Path: path, Err: errors.Wrap(err, "raster write")}
	}

	// Deflate blocks are flushed on close, so a full disk surfaces here.
	if err := ds.Close(); err != nil {
		return &WriteError{Kind: KindGeoTIFF, Path: path, Err: err}
	}
	return nil
}

// applyGeoref stamps the grid georeferencing and nodata onto a freshly
// created dataset.
func applyGeoref(ds *godal.Dataset, ref raster.GeoRef, ternary bool) error {
	if err := ds.SetGeoTransform(ref.Transform); err != nil {
		return errors.Wrap(err, "geotransform")
	}
	if ref.Projection != "" {
		if err := ds.SetProjection(ref.Projection); err != nil {
			return errors.Wrap(err, "projection")
		}
	}
	nodata := math.NaN()
	if ternary {
		nodata = float64(postprocess.ClassMasked)
	}
	if err := ds.Bands()[0].SetNoData(nodata); err != nil {
		return errors.Wrap(err, "nodata")
	}
	return nil
}
