package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRef() GeoRef {
	return GeoRef{
		Transform:  [6]float64{399960, 10, 0, 2100000, 0, -10},
		Projection: `PROJCS["WGS 84 / UTM zone 16N"]`,
	}
}

// sequentialGrid builds a rows x cols grid whose sample at (r,c) is
// base + r*cols + c, which makes copy errors easy to localize.
func sequentialGrid(band string, rows, cols int, base float32) *Grid {
	g := NewGrid(band, rows, cols, testRef())
	for i := range g.Data {
		g.Data[i] = base + float32(i)
	}
	return g
}

func TestStackSetBandRoundTrip(t *testing.T) {
	s := NewStack([]string{"B04", "B06"}, 3, 4, testRef())

	require.NoError(t, s.SetBand(0, sequentialGrid("B04", 3, 4, 0)))
	require.NoError(t, s.SetBand(1, sequentialGrid("B06", 3, 4, 100)))

	assert.Equal(t, 2, s.NumBands())
	assert.Equal(t, 3, s.Rows())
	assert.Equal(t, 4, s.Cols())

	assert.Equal(t, float32(5), s.Plane(0)[1*4+1], "plane 0 should hold the first band")
	assert.Equal(t, float32(105), s.Plane(1)[1*4+1], "plane 1 should hold the second band")

	shape := s.Tensor().Shape()
	assert.Equal(t, []int{2, 3, 4}, []int(shape), "backing tensor should be (bands, rows, cols)")
}

func TestStackSetBandRejectsShapeMismatch(t *testing.T) {
	s := NewStack([]string{"B04"}, 3, 4, testRef())
	err := s.SetBand(0, sequentialGrid("B04", 4, 3, 0))
	require.Error(t, err, "a transposed grid must not be accepted")
}

func TestStackBandIndex(t *testing.T) {
	s := NewStack([]string{"B02", "B03", "B04"}, 1, 1, testRef())

	i, ok := s.BandIndex("B03")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = s.BandIndex("B11")
	assert.False(t, ok, "missing bands must not resolve")
}

func TestWindowInteriorMatchesPlanes(t *testing.T) {
	s := NewStack([]string{"a", "b"}, 5, 6, testRef())
	require.NoError(t, s.SetBand(0, sequentialGrid("a", 5, 6, 0)))
	require.NoError(t, s.SetBand(1, sequentialGrid("b", 5, 6, 1000)))

	// A fully interior window must reproduce the source samples untouched.
	w := s.Window(nil, 1, 2, 3, 3, -1)
	require.Len(t, w, 2*3*3)

	for b := 0; b < 2; b++ {
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				want := s.Plane(b)[(1+r)*6+(2+c)]
				got := w[b*9+r*3+c]
				assert.Equal(t, want, got, "band %d window (%d,%d)", b, r, c)
			}
		}
	}
}

func TestWindowPadsOutsideExtent(t *testing.T) {
	s := NewStack([]string{"a"}, 2, 2, testRef())
	require.NoError(t, s.SetBand(0, sequentialGrid("a", 2, 2, 1))) // samples 1..4

	// Anchor above and left of the raster: only the lower-right quadrant of
	// the window overlaps data.
	w := s.Window(nil, -1, -1, 3, 3, 0)
	want := []float32{
		0, 0, 0,
		0, 1, 2,
		0, 3, 4,
	}
	assert.Equal(t, want, w)

	// Window hanging past the bottom-right corner.
	w = s.Window(w, 1, 1, 3, 3, -9)
	want = []float32{
		4, -9, -9,
		-9, -9, -9,
		-9, -9, -9,
	}
	assert.Equal(t, want, w)

	// Fully outside: nothing but fill.
	w = s.Window(w, 10, 10, 2, 2, 7)
	assert.Equal(t, []float32{7, 7, 7, 7}, w)
}

func TestWindowReusesBuffer(t *testing.T) {
	s := NewStack([]string{"a"}, 4, 4, testRef())
	require.NoError(t, s.SetBand(0, sequentialGrid("a", 4, 4, 0)))

	buf := make([]float32, 0, 64)
	w := s.Window(buf, 0, 0, 2, 2, 0)
	assert.Equal(t, 4, len(w))
	assert.Equal(t, 64, cap(w), "a large enough buffer must be reused, not reallocated")
}
