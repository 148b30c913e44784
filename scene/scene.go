// Package scene - Sentinel-2 L2A product access: band discovery and decoding
// into georeferenced grids at native resolution.
package scene

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/pkg/errors"

	"github.com/oceansat-ai/go-sargassum/raster"
)

var registerOnce sync.Once

// registerDrivers makes GDAL's raster drivers available. Safe to call from
// any package; the underlying registration is process-wide.
func registerDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// Resolutions lists the image directories an L2A product ships, in meters.
var Resolutions = []int{10, 20, 60}

// Options configures product access.
type Options struct {
	// Resolution selects the R{res}m image directory: 10, 20 or 60.
	// Zero selects 20.
	Resolution int
	// Quantification divides raw digital numbers into reflectance.
	// Zero selects QuantL2A.
	Quantification float32
}

// Scene is an opened L2A product. All reads go through fresh dataset handles,
// so a Scene holds no resources and needs no Close.
type Scene struct {
	// Root is the .SAFE directory.
	Root string
	// Resolution is the selected image directory resolution in meters.
	Resolution int
	// Quant is the digital-number divisor applied to every continuous band.
	Quant float32
	// Info is parsed from the product name.
	Info Info

	imgDir string
}

// Open validates the .SAFE layout and locates the image directory for the
// requested resolution.
//
// Arguments:
//   - root: Path to the .SAFE product directory.
//   - opts: Resolution and quantification, zero values for defaults.
//
// Returns:
//   - *Scene: Handle for band access.
//   - error: When the layout is not an L2A product or the resolution is unknown.
func Open(root string, opts Options) (*Scene, error) {
	registerDrivers()

	if opts.Resolution == 0 {
		opts.Resolution = 20
	}
	if opts.Quantification == 0 {
		opts.Quantification = QuantL2A
	}
	valid := false
	for _, r := range Resolutions {
		if r == opts.Resolution {
			valid = true
		}
	}
	if !valid {
		return nil, fmt.Errorf("resolution %dm: product ships 10, 20 and 60m only", opts.Resolution)
	}

	info, err := ParseName(root)
	if err != nil {
		return nil, err
	}

	granules, err := filepath.Glob(filepath.Join(root, "GRANULE", "L2A*"))
	if err != nil {
		return nil, errors.Wrap(err, "scanning GRANULE")
	}
	if len(granules) == 0 {
		return nil, fmt.Errorf("%s: no L2A granule under GRANULE/", root)
	}

	imgDir := filepath.Join(granules[0], "IMG_DATA", fmt.Sprintf("R%dm", opts.Resolution))
	if m, _ := filepath.Glob(filepath.Join(imgDir, "*.jp2")); len(m) == 0 {
		return nil, fmt.Errorf("%s: no JP2 files, is the product complete?", imgDir)
	}

	return &Scene{
		Root:       root,
		Resolution: opts.Resolution,
		Quant:      opts.Quantification,
		Info:       info,
		imgDir:     imgDir,
	}, nil
}

// ImageDir returns the selected R{res}m directory, mostly for diagnostics.
func (s *Scene) ImageDir() string { return s.imgDir }

// Band loads one channel at its native resolution and converts digital
// numbers to reflectance with the scene's quantification value.
//
// Arguments:
//   - name: Channel identifier as it appears in the JP2 file name, e.g. "B04".
//
// Returns:
//   - *raster.Grid: Reflectance grid tagged with the band's own georeference.
//   - error: *MissingBandError when no file matches, *CorruptDataError when
//     the file cannot be decoded.
func (s *Scene) Band(name string) (*raster.Grid, error) {
	path, err := s.locate(s.imgDir, name)
	if err != nil {
		return nil, err
	}

	grid, err := readFloatGrid(path, name, s.Quant)
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// Bands loads the named channels in order. The first failure aborts the load;
// a model cannot run on a partial band set.
func (s *Scene) Bands(names []string) ([]*raster.Grid, error) {
	grids := make([]*raster.Grid, 0, len(names))
	for _, name := range names {
		g, err := s.Band(name)
		if err != nil {
			return nil, err
		}
		grids = append(grids, g)
	}
	return grids, nil
}

// ClassLayer loads the scene classification layer. SCL is produced at 20 and
// 60m only, so when the selected resolution directory has no SCL file the
// search falls through to the coarser directories in order.
func (s *Scene) ClassLayer() (*raster.ClassGrid, error) {
	dirs := []string{s.imgDir}
	for _, r := range Resolutions {
		if r > s.Resolution {
			dirs = append(dirs, filepath.Join(filepath.Dir(s.imgDir), fmt.Sprintf("R%dm", r)))
		}
	}

	var firstErr error
	for _, dir := range dirs {
		path, err := s.locate(dir, "SCL")
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return readClassGrid(path, "SCL")
	}
	return nil, firstErr
}

// locate resolves the single JP2 file for a channel inside dir.
func (s *Scene) locate(dir, name string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("*_%s_*.jp2", name)))
	if err != nil {
		return "", errors.Wrapf(err, "scanning for band %s", name)
	}
	if len(matches) == 0 {
		return "", &MissingBandError{Band: name, Dir: dir}
	}
	return matches[0], nil
}

// readFloatGrid decodes a JP2 into reflectance floats.
func readFloatGrid(path, band string, quant float32) (*raster.Grid, error) {
	ds, ref, cols, rows, err := openRaster(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	g := raster.NewGrid(band, rows, cols, ref)
	if err := ds.Bands()[0].Read(0, 0, g.Data, cols, rows); err != nil {
		return nil, &CorruptDataError{Path: path, Err: err}
	}
	for i, v := range g.Data {
		g.Data[i] = v / quant
	}
	return g, nil
}

// readClassGrid decodes a categorical JP2 without quantification.
func readClassGrid(path, band string) (*raster.ClassGrid, error) {
	ds, ref, cols, rows, err := openRaster(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	g := raster.NewClassGrid(band, rows, cols, ref)
	if err := ds.Bands()[0].Read(0, 0, g.Data, cols, rows); err != nil {
		return nil, &CorruptDataError{Path: path, Err: err}
	}
	return g, nil
}

// openRaster opens a dataset and pulls out the pieces every read needs.
func openRaster(path string) (*godal.Dataset, raster.GeoRef, int, int, error) {
	registerDrivers()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, raster.GeoRef{}, 0, 0, &CorruptDataError{Path: path, Err: err}
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		ds.Close()
		return nil, raster.GeoRef{}, 0, 0, &CorruptDataError{Path: path, Err: fmt.Errorf("no raster bands")}
	}

	st := bands[0].Structure()
	if st.SizeX <= 0 || st.SizeY <= 0 {
		ds.Close()
		return nil, raster.GeoRef{}, 0, 0, &CorruptDataError{Path: path, Err: fmt.Errorf("empty raster (%dx%d)", st.SizeX, st.SizeY)}
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, raster.GeoRef{}, 0, 0, &CorruptDataError{Path: path, Err: errors.Wrap(err, "no geotransform")}
	}

	ref := raster.GeoRef{Transform: gt, Projection: ds.Projection()}
	return ds, ref, st.SizeX, st.SizeY, nil
}
