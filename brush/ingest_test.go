package brush

import (
	"image"
	"image/color"
	"testing"

	"github.com/SunastanS/glaphica/model"
)

func TestExtractGutteredTileReplicatesEdges(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, model.ImageSide, model.ImageSide))
	for y := 0; y < model.ImageSide; y++ {
		for x := 0; x < model.ImageSide; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0, A: 255})
		}
	}

	origin := model.TileCoord{}
	buf := extractGutteredTile(img, model.TileCoord{X: 0, Y: 0}, origin)
	if len(buf) != model.TileStride*model.TileStride*4 {
		t.Fatalf("buffer len = %d, want %d", len(buf), model.TileStride*model.TileStride*4)
	}

	// The gutter texel at (0,0) must replicate the source's (0,0) texel.
	gutterOff := 0
	interiorOff := ((model.TileGutter)*model.TileStride + model.TileGutter) * 4
	for i := 0; i < 4; i++ {
		if buf[gutterOff+i] != buf[interiorOff+i] {
			t.Fatalf("gutter corner byte %d = %d, want %d (replicated from interior origin)", i, buf[gutterOff+i], buf[interiorOff+i])
		}
	}
}

func TestIngestTilesAllocatesOneTilePerSlice(t *testing.T) {
	store := newFakeStore()
	img := image.NewRGBA(image.Rect(0, 0, model.ImageSide*2, model.ImageSide))

	g := NewIngester()
	defer g.Close()

	out, err := g.IngestTiles(store, img, model.TileCoord{})
	if err != nil {
		t.Fatalf("IngestTiles: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("IngestTiles produced %d tile entries, want 2", len(out))
	}
}
