package tile

import (
	"fmt"
	"image"
)

// Size is the side length in pixels of a world tile.
const Size = 1000

// Coord identifies a tile in the world grid.
type Coord struct {
	X, Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

// Origin returns the world position of the tile's top-left pixel for tiles
// of the given size.
func (c Coord) Origin(size int) image.Point {
	return image.Pt(c.X*size, c.Y*size)
}

// Anchor is a world position expressed as a tile plus an offset within it.
type Anchor struct {
	Tile  Coord
	Pixel image.Point
}

// World returns the absolute world position of the anchor for tiles of the
// given size.
func (a Anchor) World(size int) image.Point {
	return a.Tile.Origin(size).Add(a.Pixel)
}

// Place returns where a w by h image anchored at a, moved by offset, lands
// relative to the origin of tile t.
func Place(a Anchor, offset image.Point, t Coord, size, w, h int) image.Rectangle {
	min := a.World(size).Add(offset).Sub(t.Origin(size))
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(w, h))}
}
