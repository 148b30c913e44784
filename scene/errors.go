package scene

import "fmt"

// MissingBandError reports a band identifier with no matching JP2 file in the
// scene's image directory. Band loading is all-or-nothing, so callers treat
// this as fatal for the run.
type MissingBandError struct {
	// Band is the requested channel identifier, e.g. "B8A".
	Band string
	// Dir is the image directory that was searched.
	Dir string
}

func (e *MissingBandError) Error() string {
	return fmt.Sprintf("band %s: no JP2 file under %s", e.Band, e.Dir)
}

// CorruptDataError reports a band file that exists but cannot be opened or
// decoded into a grid.
type CorruptDataError struct {
	// Path is the offending file.
	Path string
	// Err is the decoder failure.
	Err error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt raster %s: %v", e.Path, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }
