package export

import (
	"github.com/airbusgeo/godal"
	"github.com/pkg/errors"

	"github.com/oceansat-ai/go-sargassum/postprocess"
)

// writeJP2 encodes a ternary result as a lossless JPEG2000 raster. The
// JP2OpenJPEG driver cannot create datasets directly, so the classes are
// staged in an in-memory dataset and translated out.
//
// Continuous results are refused: the 8-bit codestream would quantize the
// probabilities into garbage, and silently degrading them helps nobody.
func writeJP2(res *postprocess.Result, path string) error {
	if !res.Thresholded {
		return &UnsupportedFormatError{
			Kind:   KindJP2,
			Reason: "continuous probabilities need a float raster, jp2 carries byte-coded classes only",
		}
	}
	registerDrivers()

	rows, cols := res.Rows(), res.Cols()
	mem, err := godal.Create(godal.Memory, "classes", 1, godal.Byte, cols, rows)
	if err != nil {
		return &WriteError{Kind: KindJP2, Path: path, Err: errors.Wrap(err, "staging dataset")}
	}
	defer mem.Close()

	if err := applyGeoref(mem, res.Ref(), true); err != nil {
		return &WriteError{Kind: KindJP2, Path: path, Err: err}
	}
	if err := mem.Bands()[0].Write(0, 0, res.Class.Data, cols, rows); err != nil {
		return &WriteError{Kind: KindJP2, Path: path, Err: errors.Wrap(err, "raster write")}
	}

	// REVERSIBLE keeps the wavelet transform lossless so class codes
	// survive the round trip exactly.
	out, err := mem.Translate(path, []string{"-of", "JP2OpenJPEG", "-co", "REVERSIBLE=YES"})
	if err != nil {
		return &WriteError{Kind: KindJP2, Path: path, Err: err}
	}
	if err := out.Close(); err != nil {
		return &WriteError{Kind: KindJP2, Path: path, Err: err}
	}
	return nil
}
