package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProduct = "S2A_MSIL2A_20190706T160839_N0213_R140_T16QEJ_20190706T221941.SAFE"
	testProj    = "+proj=utm +zone=16 +datum=WGS84 +units=m +no_defs"
)

// writeBandFixture writes a georeferenced uint16 raster. GDAL identifies
// drivers by content, not extension, so the fixtures are plain GeoTIFFs
// behind the JP2 file names the product layout prescribes.
func writeBandFixture(t *testing.T, path string, cols, rows int, res float64, dn []uint16) {
	t.Helper()
	registerDrivers()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.UInt16, cols, rows)
	require.NoError(t, err, "creating fixture %s", path)
	require.NoError(t, ds.SetGeoTransform([6]float64{399960, res, 0, 2100000, 0, -res}))
	require.NoError(t, ds.SetProjection(testProj))
	require.NoError(t, ds.Bands()[0].Write(0, 0, dn, cols, rows))
	require.NoError(t, ds.Close())
}

// writeSAFE builds a minimal product tree with the given bands in R20m and
// returns the product root.
func writeSAFE(t *testing.T, bands map[string][]uint16, cols, rows int) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), testProduct)
	imgDir := filepath.Join(root, "GRANULE", "L2A_T16QEJ_A021042_20190706T161042", "IMG_DATA", "R20m")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))

	for name, dn := range bands {
		file := filepath.Join(imgDir, fmt.Sprintf("T16QEJ_20190706T160839_%s_20m.jp2", name))
		writeBandFixture(t, file, cols, rows, 20, dn)
	}
	return root
}

func TestOpenDefaults(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {1000, 2000, 3000, 4000}}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	assert.Equal(t, 20, s.Resolution, "default resolution should be 20m")
	assert.Equal(t, QuantL2A, s.Quant, "default quantification should be the L2A value")
	assert.Equal(t, "16QEJ", s.Info.Tile)
	assert.Equal(t, "2A", s.Info.Satellite)
}

func TestOpenRejectsUnknownResolution(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {0, 0, 0, 0}}, 2, 2)

	_, err := Open(root, Options{Resolution: 30})
	require.Error(t, err, "30m is not a product resolution")
}

func TestOpenRejectsMissingGranule(t *testing.T) {
	root := filepath.Join(t.TempDir(), testProduct)
	require.NoError(t, os.MkdirAll(root, 0o755))

	_, err := Open(root, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRANULE")
}

func TestBandQuantifiesDigitalNumbers(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {0, 2500, 5000, 10000}}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	g, err := s.Band("B04")
	require.NoError(t, err)

	assert.Equal(t, 2, g.Rows)
	assert.Equal(t, 2, g.Cols)
	assert.Equal(t, "B04", g.Band)
	assert.InDeltaSlice(t, []float32{0, 0.25, 0.5, 1.0}, g.Data, 1e-6,
		"digital numbers should be divided by the quantification value")

	assert.Equal(t, 20.0, g.Ref.Resolution())
	ox, oy := g.Ref.Origin()
	assert.Equal(t, 399960.0, ox)
	assert.Equal(t, 2100000.0, oy)
	assert.Contains(t, g.Ref.Projection, "UTM zone 16N")
}

func TestBandFullScaleQuantification(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {65535, 0, 0, 0}}, 2, 2)

	s, err := Open(root, Options{Quantification: QuantFullScale})
	require.NoError(t, err)

	g, err := s.Band("B04")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g.Data[0], 1e-6, "a full-scale count should map to reflectance 1")
}

func TestBandMissing(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {0, 0, 0, 0}}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	_, err = s.Band("B8A")
	var missing *MissingBandError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "B8A", missing.Band)
}

func TestBandCorruptFile(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {0, 0, 0, 0}}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	bad := filepath.Join(s.ImageDir(), "T16QEJ_20190706T160839_B05_20m.jp2")
	require.NoError(t, os.WriteFile(bad, []byte("not a raster"), 0o644))

	_, err = s.Band("B05")
	var corrupt *CorruptDataError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, bad, corrupt.Path)
}

func TestBandsAbortOnFirstFailure(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {0, 0, 0, 0}}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	_, err = s.Bands([]string{"B04", "B06", "B8A"})
	var missing *MissingBandError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "B06", missing.Band, "loading stops at the first absent band")
}

func TestClassLayerAtSceneResolution(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{
		"B04": {0, 0, 0, 0},
		"SCL": {6, 6, 4, 10},
	}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	scl, err := s.ClassLayer()
	require.NoError(t, err)
	assert.Equal(t, []uint8{6, 6, 4, 10}, scl.Data, "class codes must pass through unquantified")
}

func TestClassLayerFallsBackToCoarser(t *testing.T) {
	// SCL only exists in R60m; a 20m scene should still find it.
	root := writeSAFE(t, map[string][]uint16{"B04": {0, 0, 0, 0}}, 2, 2)

	r60 := filepath.Join(filepath.Dir(findImgDir(t, root)), "R60m")
	require.NoError(t, os.MkdirAll(r60, 0o755))
	writeBandFixture(t, filepath.Join(r60, "T16QEJ_20190706T160839_SCL_60m.jp2"), 1, 1, 60, []uint16{6})

	s, err := Open(root, Options{})
	require.NoError(t, err)

	scl, err := s.ClassLayer()
	require.NoError(t, err)
	assert.Equal(t, []uint8{6}, scl.Data)
	assert.Equal(t, 60.0, scl.Ref.Resolution(), "the fallback layer keeps its native resolution")
}

func TestClassLayerMissingEverywhere(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {0, 0, 0, 0}}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	_, err = s.ClassLayer()
	var missing *MissingBandError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "SCL", missing.Band)
}

// findImgDir resolves the R20m image directory of a fixture product.
func findImgDir(t *testing.T, root string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, "GRANULE", "L2A*", "IMG_DATA", "R20m"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestGridStatisticsOnLoad(t *testing.T) {
	root := writeSAFE(t, map[string][]uint16{"B04": {100, 200, 300, 400}}, 2, 2)

	s, err := Open(root, Options{})
	require.NoError(t, err)

	g, err := s.Band("B04")
	require.NoError(t, err)
	assert.Equal(t, 4, g.ValidCount(), "freshly loaded grids have no masked samples")
}
