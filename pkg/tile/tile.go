package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level accepted for a tile address
const MaxZoom = 24

// DefaultSize is the edge length in pixels of a standard XYZ tile
const DefaultSize = 256

// Tile is an XYZ slippy-map tile address
type Tile struct {
	Z, X, Y uint32
}

// New creates a tile address
func New(z, x, y uint32) Tile {
	return Tile{Z: z, X: x, Y: y}
}

// FromMapTile converts an orb map tile
func FromMapTile(t maptile.Tile) Tile {
	return Tile{Z: uint32(t.Z), X: t.X, Y: t.Y}
}

// Parse reads a "z/x/y" path, with or without an image extension
func Parse(s string) (Tile, error) {
	s = strings.TrimPrefix(s, "/")
	if i := strings.LastIndex(s, "."); i != -1 {
		s = s[:i]
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Tile{}, fmt.Errorf("tile path must be z/x/y, got %q", s)
	}

	var v [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Tile{}, fmt.Errorf("invalid tile coordinate %q: %v", p, err)
		}
		v[i] = uint32(n)
	}

	t := New(v[0], v[1], v[2])
	if err := t.Validate(); err != nil {
		return Tile{}, err
	}
	return t, nil
}

// Validate checks that the tile exists at its zoom level
func (t Tile) Validate() error {
	if t.Z > MaxZoom {
		return fmt.Errorf("zoom must be between 0 and %d, got %d", MaxZoom, t.Z)
	}

	n := uint64(1) << t.Z
	if uint64(t.X) >= n || uint64(t.Y) >= n {
		return fmt.Errorf("tile %d/%d/%d is outside the zoom %d grid", t.Z, t.X, t.Y, t.Z)
	}
	return nil
}

// MapTile returns the equivalent orb map tile
func (t Tile) MapTile() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}

// Bound returns the geographic extent of the tile
func (t Tile) Bound() orb.Bound {
	return t.MapTile().Bound()
}

// FlipY returns the TMS row index used by MBTiles
func (t Tile) FlipY() uint32 {
	return (1 << t.Z) - t.Y - 1
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Range returns the tiles at zoom z covering the bound
func Range(b orb.Bound, z uint32) []Tile {
	x1, y1, x2, y2, ok := corners(b, z)
	if !ok {
		return nil
	}

	tiles := make([]Tile, 0, int(x2-x1+1)*int(y2-y1+1))
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			tiles = append(tiles, New(z, x, y))
		}
	}
	return tiles
}

// Count returns the number of tiles covering the bound at zoom z
func Count(b orb.Bound, z uint32) int {
	x1, y1, x2, y2, ok := corners(b, z)
	if !ok {
		return 0
	}
	return int(x2-x1+1) * int(y2-y1+1)
}

func corners(b orb.Bound, z uint32) (x1, y1, x2, y2 uint32, ok bool) {
	zoom := maptile.Zoom(z)

	// Top-left and bottom-right corners
	tl := maptile.At(orb.Point{b.Min[0], b.Max[1]}, zoom)
	br := maptile.At(orb.Point{b.Max[0], b.Min[1]}, zoom)

	// The east and south edges of the world fall one past the last tile
	last := uint32((uint64(1) << z) - 1)
	x1, y1 = min(tl.X, last), min(tl.Y, last)
	x2, y2 = min(br.X, last), min(br.Y, last)

	return x1, y1, x2, y2, x2 >= x1 && y2 >= y1
}
