package scene

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Info holds the fields of a Sentinel-2 product name that downstream stages
// care about, e.g. S2A_MSIL2A_20190706T160839_N0213_R140_T16QEJ_20190706T221941.
type Info struct {
	// Satellite is the platform unit, "2A" or "2B".
	Satellite string
	// Tile is the MGRS tile, e.g. "16QEJ".
	Tile string
	// SensingTime is the datatake sensing start.
	SensingTime time.Time
}

// Date returns the sensing day as yyyymmdd, the form used in artifact names.
func (i Info) Date() string {
	return i.SensingTime.Format("20060102")
}

// ParseName extracts Info from a product directory name. A trailing .SAFE
// suffix and any leading path are ignored, so both a bare product name and a
// full dataset path parse.
//
// Arguments:
//   - name: Product name or path, e.g. ".../S2A_MSIL2A_..._T16QEJ_....SAFE".
//
// Returns:
//   - Info: Parsed satellite, tile and sensing time.
//   - error: When the name does not have the MSI L2A shape.
func ParseName(name string) (Info, error) {
	base := strings.TrimSuffix(filepath.Base(name), ".SAFE")

	parts := strings.Split(base, "_")
	if len(parts) < 6 {
		return Info{}, fmt.Errorf("product name %q: expected at least 6 underscore fields, got %d", base, len(parts))
	}
	if !strings.HasPrefix(parts[0], "S2") {
		return Info{}, fmt.Errorf("product name %q: not a Sentinel-2 product", base)
	}
	if !strings.HasPrefix(parts[1], "MSIL2A") {
		return Info{}, fmt.Errorf("product name %q: not an L2A product (level %s)", base, parts[1])
	}
	if len(parts[5]) != 6 || parts[5][0] != 'T' {
		return Info{}, fmt.Errorf("product name %q: malformed tile field %q", base, parts[5])
	}

	sensed, err := time.Parse("20060102T150405", parts[2])
	if err != nil {
		return Info{}, fmt.Errorf("product name %q: bad sensing time: %w", base, err)
	}

	return Info{
		Satellite:   strings.TrimPrefix(parts[0], "S"),
		Tile:        parts[5][1:],
		SensingTime: sensed,
	}, nil
}
