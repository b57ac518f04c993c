/*
Package tile implements the Wplace world tile coordinate scheme.

The world is a grid of square tiles, Size pixels to a side, addressed by
their column and row. Tile images are served from paths ending in
/{x}/{y}.png and a single pixel is addressed by its tile plus an offset
within the tile, which is how overlays are anchored to the world.
*/
package tile
