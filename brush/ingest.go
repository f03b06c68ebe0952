package brush

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/internal/cache"
	"github.com/SunastanS/glaphica/internal/workerpool"
	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
	ximage "golang.org/x/image/draw"
)

// decodedImageCache memoizes the flattened RGBA8 form of a reference image
// keyed by its source bytes' cache key, so repeatedly painting from the
// same stamp/texture brush source does not re-decode or re-flatten on
// every dab. Each entry holds the whole flattened source image.
var decodedImageCache = cache.NewSharded[string, *image.RGBA](512, cache.StringHasher)

// Ingester decodes reference images (PNG/JPEG brush textures and pasted
// content) into premultiplied RGBA8 tile payloads ready for
// Store.EnqueueUpload, replicating each tile's edge texels into its
// one-texel gutter so filtered sampling never bleeds across tile
// boundaries. Gutter replication only applies to RGBA8 payloads; the
// brush execution pipeline's own R32Float dab rasterization writes its
// own tiles directly and never goes through Ingester.
type Ingester struct {
	pool *workerpool.WorkerPool
}

// NewIngester constructs an ingester backed by a worker pool sized to
// GOMAXPROCS, used to parallelize per-tile gutter extension across a
// multi-tile source image.
func NewIngester() *Ingester {
	return &Ingester{pool: workerpool.NewWorkerPool(0)}
}

// Close releases the ingester's worker pool.
func (g *Ingester) Close() { g.pool.Close() }

// DecodeFlatten decodes a PNG or JPEG byte stream and flattens it to
// premultiplied RGBA8, caching the result under cacheKey so a brush texture
// referenced by many dabs decodes only once.
func (g *Ingester) DecodeFlatten(cacheKey string, data []byte) (*image.RGBA, error) {
	if cached, ok := decodedImageCache.Get(cacheKey); ok {
		return cached, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("brush: decode image %q: %w", cacheKey, err)
	}

	rgba := image.NewRGBA(src.Bounds())
	ximage.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, ximage.Src)

	decodedImageCache.Set(cacheKey, rgba)
	return rgba, nil
}

// IngestTiles slices img into ImageSide x ImageSide tiles starting at
// origin, builds each tile's TileStride x TileStride gutter-extended RGBA8
// byte buffer in parallel, allocates a fresh atlas tile per slice, and
// stages an upload for each. It returns the coordinate-to-key mapping of
// every tile written, relative to origin.
func (g *Ingester) IngestTiles(store *atlas.Store, img *image.RGBA, origin model.TileCoord) (map[model.TileCoord]protocol.TileKey, error) {
	b := img.Bounds()
	tilesX := (b.Dx() + model.ImageSide - 1) / model.ImageSide
	tilesY := (b.Dy() + model.ImageSide - 1) / model.ImageSide

	type slice struct {
		coord model.TileCoord
		bytes []byte
	}
	slices := make([]slice, 0, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			slices = append(slices, slice{coord: model.TileCoord{X: origin.X + int32(tx), Y: origin.Y + int32(ty)}})
		}
	}

	work := make([]func(), len(slices))
	for i := range slices {
		i := i
		work[i] = func() {
			slices[i].bytes = extractGutteredTile(img, slices[i].coord, origin)
		}
	}
	g.pool.ExecuteAll(work)

	out := make(map[model.TileCoord]protocol.TileKey, len(slices))
	for _, sl := range slices {
		key, err := store.Allocate()
		if err != nil {
			return out, err
		}
		if err := store.EnqueueUpload(key, sl.bytes); err != nil {
			return out, err
		}
		out[sl.coord] = key
	}
	return out, nil
}

// extractGutteredTile reads the ImageSide x ImageSide region of img
// corresponding to coord (relative to origin) and writes it into a
// TileStride x TileStride RGBA8 buffer, replicating the outermost row and
// column of source texels into the one-texel gutter on every edge so a
// bilinear sampler straddling the tile boundary reads continuation of the
// source content rather than an unrelated neighbor tile's pixels.
func extractGutteredTile(img *image.RGBA, coord, origin model.TileCoord) []byte {
	const stride = model.TileStride
	buf := make([]byte, stride*stride*4)

	baseX := int(coord.X-origin.X) * model.ImageSide
	baseY := int(coord.Y-origin.Y) * model.ImageSide
	bounds := img.Bounds()

	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}

	for row := 0; row < stride; row++ {
		srcY := clamp(bounds.Min.Y+baseY+row-model.TileGutter, bounds.Min.Y, bounds.Max.Y-1)
		for col := 0; col < stride; col++ {
			srcX := clamp(bounds.Min.X+baseX+col-model.TileGutter, bounds.Min.X, bounds.Max.X-1)
			r, g2, b2, a := img.At(srcX, srcY).RGBA()
			off := (row*stride + col) * 4
			buf[off+0] = byte(r >> 8)
			buf[off+1] = byte(g2 >> 8)
			buf[off+2] = byte(b2 >> 8)
			buf[off+3] = byte(a >> 8)
		}
	}
	return buf
}
