// Package inference - Memory-bounded tiled execution of a classifier over a
// full scene. The scene is cut into fixed interiors, every interior is scored
// inside a larger context window, and only interiors are stitched back, so
// the tiling is invisible in the output.
package inference

// Tile is one interior rectangle of the partition, in stack coordinates.
type Tile struct {
	// Row, Col anchor the interior's upper-left pixel.
	Row, Col int
	// Height, Width are the interior shape. Edge tiles are clipped to the
	// extent instead of running past it.
	Height, Width int
}

// Partition cuts a rows x cols extent into size-edged interiors. Interiors
// cover every pixel exactly once, row-major, with the last tile of each row
// and column clipped.
func Partition(rows, cols, size int) []Tile {
	if rows <= 0 || cols <= 0 || size <= 0 {
		return nil
	}
	nr := (rows + size - 1) / size
	nc := (cols + size - 1) / size
	tiles := make([]Tile, 0, nr*nc)
	for r := 0; r < rows; r += size {
		h := min(size, rows-r)
		for c := 0; c < cols; c += size {
			tiles = append(tiles, Tile{
				Row:    r,
				Col:    c,
				Height: h,
				Width:  min(size, cols-c),
			})
		}
	}
	return tiles
}
