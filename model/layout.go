// Package model is the single source of truth for tile geometry: the
// process-wide constants every other package (atlas, document, brush,
// frameplan) derives its coordinate math from.
package model

// Tile geometry. All tile coordinates are in multiples of ImageSide; all
// atlas slot origins are in multiples of TileStride.
const (
	// TileStride is the full edge length of one atlas slot in texels,
	// including the gutter on both sides.
	TileStride = 128

	// TileGutter is the one-texel border replicated around each tile's
	// usable image area so filtered sampling never bleeds across tiles.
	TileGutter = 1

	// ImageSide is the usable (non-gutter) edge length of one tile.
	ImageSide = TileStride - 2*TileGutter
)

// TileCoord identifies a tile within a TileImage, in units of ImageSide.
type TileCoord struct {
	X, Y int32
}

// SlotOrigin returns the top-left texel of the usable image area within a
// TileStride x TileStride atlas slot (i.e. past the gutter).
func SlotOrigin() (x, y int) {
	return TileGutter, TileGutter
}

// CanvasToTileCoord converts a canvas-space pixel to the tile coordinate
// that contains it.
func CanvasToTileCoord(px, py int) TileCoord {
	return TileCoord{
		X: int32(floorDiv(px, ImageSide)),
		Y: int32(floorDiv(py, ImageSide)),
	}
}

// TileOrigin returns the canvas-space top-left pixel of a tile coordinate.
func TileOrigin(c TileCoord) (x, y int) {
	return int(c.X) * ImageSide, int(c.Y) * ImageSide
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
