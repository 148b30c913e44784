package export

import (
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/oceansat-ai/go-sargassum/postprocess"
)

// writeNPY dumps the result grid as a 2-D numpy array, shape (rows, cols).
// Values are widened to float64, which round-trips both probabilities (NaN
// included) and class codes exactly.
func writeNPY(res *postprocess.Result, path string) error {
	rows, cols := res.Rows(), res.Cols()
	data := make([]float64, rows*cols)
	if res.Thresholded {
		for i, v := range res.Class.Data {
			data[i] = float64(v)
		}
	} else {
		for i, v := range res.Float.Data {
			data[i] = float64(v)
		}
	}
	m := mat.NewDense(rows, cols, data)

	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Kind: KindNPY, Path: path, Err: err}
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return &WriteError{Kind: KindNPY, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Kind: KindNPY, Path: path, Err: err}
	}
	return nil
}
