// Package export - Encodes pipeline results into the requested artifact
// formats. Formats are written independently: one encoder failing leaves the
// other artifacts on disk, and the failure travels in the artifact record
// instead of aborting the run.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/pkg/errors"

	"github.com/oceansat-ai/go-sargassum/postprocess"
)

var registerOnce sync.Once

func registerDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// Kind is an output format.
type Kind string

const (
	// KindGeoTIFF is the primary georeferenced artifact, always writable.
	KindGeoTIFF Kind = "geotiff"
	// KindJP2 is a JPEG2000 class raster. Byte-coded results only.
	KindJP2 Kind = "jp2"
	// KindNPY is a raw numpy array dump with no georeferencing, for
	// downstream numeric tooling.
	KindNPY Kind = "npy"
)

// Ext returns the file extension including the dot.
func (k Kind) Ext() string {
	switch k {
	case KindGeoTIFF:
		return ".tif"
	case KindJP2:
		return ".jp2"
	case KindNPY:
		return ".npy"
	default:
		return "." + string(k)
	}
}

// UnsupportedFormatError reports a format that cannot represent the result it
// was asked to encode.
type UnsupportedFormatError struct {
	Kind   Kind
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// WriteError reports an encoder or filesystem failure for one artifact.
type WriteError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Request names the artifacts to produce.
type Request struct {
	// OutDir receives the artifacts. Created if absent.
	OutDir string
	// BaseName is the artifact stem, e.g. "16QEJ_20190706_asi".
	BaseName string
	// Kinds lists the formats to write.
	Kinds []Kind
}

// Artifact is the immutable outcome for one requested format.
type Artifact struct {
	// Kind is the format.
	Kind Kind
	// Path is where the artifact was (or would have been) written.
	Path string
	// Err is nil on success, or the per-format failure.
	Err error
}

// Write encodes the result into every requested format.
//
// Arguments:
//   - res: Postprocessed result, continuous or ternary.
//   - req: Output directory, artifact stem and format list.
//
// Returns:
//   - []Artifact: One record per requested kind, in request order, each with
//     its own success or failure.
//   - error: Only for request-level problems that doom every format, such as
//     an uncreatable output directory.
func Write(res *postprocess.Result, req Request) ([]Artifact, error) {
	if res == nil {
		return nil, fmt.Errorf("nothing to export")
	}
	if req.BaseName == "" {
		return nil, fmt.Errorf("no artifact base name")
	}
	if len(req.Kinds) == 0 {
		return nil, fmt.Errorf("no output formats requested")
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}

	artifacts := make([]Artifact, 0, len(req.Kinds))
	for _, kind := range req.Kinds {
		path := filepath.Join(req.OutDir, req.BaseName+kind.Ext())
		var err error
		switch kind {
		case KindGeoTIFF:
			err = writeGeoTIFF(res, path)
		case KindJP2:
			err = writeJP2(res, path)
		case KindNPY:
			err = writeNPY(res, path)
		default:
			err = &UnsupportedFormatError{Kind: kind, Reason: "unknown format"}
		}
		artifacts = append(artifacts, Artifact{Kind: kind, Path: path, Err: err})
	}
	return artifacts, nil
}

// Failed returns the artifacts that did not make it to disk.
func Failed(artifacts []Artifact) []Artifact {
	var failed []Artifact
	for _, a := range artifacts {
		if a.Err != nil {
			failed = append(failed, a)
		}
	}
	return failed
}
