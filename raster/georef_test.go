package raster

import (
	"math"
	"testing"
)

// TestGround_AffineMapping validates pixel-to-ground mapping against known
// geotransforms.
func TestGround_AffineMapping(t *testing.T) {
	tests := []struct {
		name     string
		ref      GeoRef
		row, col int
		wantX    float64
		wantY    float64
	}{
		{
			name:  "Origin pixel",
			ref:   GeoRef{Transform: [6]float64{399960, 10, 0, 2100000, 0, -10}},
			row:   0,
			col:   0,
			wantX: 399960,
			wantY: 2100000,
		},
		{
			name:  "North-up raster moves south with rows",
			ref:   GeoRef{Transform: [6]float64{399960, 10, 0, 2100000, 0, -10}},
			row:   100,
			col:   0,
			wantX: 399960,
			wantY: 2099000,
		},
		{
			name:  "East with columns",
			ref:   GeoRef{Transform: [6]float64{399960, 20, 0, 2100000, 0, -20}},
			row:   0,
			col:   50,
			wantX: 400960,
			wantY: 2100000,
		},
		{
			name:  "Rotated grid uses cross terms",
			ref:   GeoRef{Transform: [6]float64{0, 1, 0.5, 0, 0.25, -1}},
			row:   2,
			col:   4,
			wantX: 5,    // 0 + 4*1 + 2*0.5
			wantY: -1,   // 0 + 4*0.25 + 2*-1
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := tt.ref.Ground(tt.row, tt.col)
			if math.Abs(x-tt.wantX) > 1e-9 || math.Abs(y-tt.wantY) > 1e-9 {
				t.Errorf("Ground(%d,%d) = (%v,%v), expected (%v,%v)", tt.row, tt.col, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

// TestWithResolution_PreservesOrientation checks that rescaling keeps the axis
// signs, so a north-up raster never flips.
func TestWithResolution_PreservesOrientation(t *testing.T) {
	ref := GeoRef{Transform: [6]float64{399960, 20, 0, 2100000, 0, -20}, Projection: "EPSG:32616"}
	out := ref.WithResolution(10)

	if out.Transform[1] != 10 {
		t.Errorf("pixel width = %v, expected 10", out.Transform[1])
	}
	if out.Transform[5] != -10 {
		t.Errorf("pixel height = %v, expected -10 (north-up preserved)", out.Transform[5])
	}
	if ox, oy := out.Origin(); ox != 399960 || oy != 2100000 {
		t.Errorf("origin moved to (%v,%v)", ox, oy)
	}
	if out.Projection != ref.Projection {
		t.Errorf("projection changed to %q", out.Projection)
	}
}

// TestSameOrigin_Tolerance exercises the sub-pixel origin comparison used to
// reject shifted grids.
func TestSameOrigin_Tolerance(t *testing.T) {
	base := GeoRef{Transform: [6]float64{399960, 10, 0, 2100000, 0, -10}}

	tests := []struct {
		name  string
		other GeoRef
		tol   float64
		want  bool
	}{
		{"Identical", base, 0.001, true},
		{"Within tolerance", GeoRef{Transform: [6]float64{399960.0005, 10, 0, 2100000, 0, -10}}, 0.001, true},
		{"Shifted east", GeoRef{Transform: [6]float64{399970, 10, 0, 2100000, 0, -10}}, 0.001, false},
		{"Shifted north", GeoRef{Transform: [6]float64{399960, 10, 0, 2100010, 0, -10}}, 0.001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.SameOrigin(tt.other, tt.tol); got != tt.want {
				t.Errorf("SameOrigin = %v, expected %v", got, tt.want)
			}
		})
	}
}
