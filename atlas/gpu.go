package atlas

import (
	"fmt"

	"github.com/SunastanS/glaphica/model"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// GPUQueue is the subset of hal.Queue the atlas drain path needs. Kept
// narrow so tests can substitute a fake queue without pulling in a real
// GPU device.
type GPUQueue interface {
	WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D)
}

// GPUTextureArrayLayer is the per-page handle into one layer of a
// texture-array-backed atlas. It knows how to write one tile-sized
// sub-rectangle (gutter included) at a time. Binding a page's texture view
// for sampling (e.g. by the frame planner's composite pass) goes through
// the separate TextureViewer interface, which only the hardware-backed
// implementation satisfies -- tests may substitute a minimal fake here
// without pulling in a real hal device.
type GPUTextureArrayLayer interface {
	UploadTile(gpu GPUQueue, slot uint32, rgbaOrFloatBytes []byte) error
	ClearTile(gpu GPUQueue, slot uint32) error
}

// TextureViewer is implemented by hardware-backed atlas pages, exposing
// the underlying hal resources for binding into a render pass.
type TextureViewer interface {
	Texture() hal.Texture
	View() hal.TextureView
}

func formatFor(backend interface{ String() string }) gputypes.TextureFormat {
	switch backend.String() {
	case "R32Float":
		return gputypes.TextureFormatR32Float
	case "R8Uint":
		return gputypes.TextureFormatR8Uint
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func bytesPerTexel(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatR32Float:
		return 4
	case gputypes.TextureFormatR8Uint:
		return 1
	default:
		return 4
	}
}

// hwPage is the concrete GPUTextureArrayLayer backed by a single hal
// texture-array layer sized SlotsPerPageSide*TileStride on each edge. All
// slots of a page share one texture and one view; individual tiles are
// addressed by pixel-rectangle offset within WriteTexture.
type hwPage struct {
	device  hal.Device
	tex     hal.Texture
	view    hal.TextureView
	format  gputypes.TextureFormat
	texel   uint32
	edge    uint32 // SlotsPerPageSide * model.TileStride
	cleared []byte // one zeroed tile's worth of bytes, reused for clears
}

// NewHardwarePage creates one atlas page's backing texture-array layer on
// device, sized to hold SlotsPerPage tiles of model.TileStride texels
// each, in the pixel format appropriate for backend.
func NewHardwarePage(device hal.Device, label string, backend interface{ String() string }) (GPUTextureArrayLayer, error) {
	format := formatFor(backend)
	edge := uint32(SlotsPerPageSide * model.TileStride)

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: edge, Height: edge, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("atlas: create page texture %q: %w", label, err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("atlas: create page texture view %q: %w", label, err)
	}

	texel := bytesPerTexel(format)
	return &hwPage{
		device:  device,
		tex:     tex,
		view:    view,
		format:  format,
		texel:   texel,
		edge:    edge,
		cleared: make([]byte, model.TileStride*model.TileStride*texel),
	}, nil
}

func (h *hwPage) Texture() hal.Texture  { return h.tex }
func (h *hwPage) View() hal.TextureView { return h.view }

func (h *hwPage) tileOrigin(slot uint32) (x, y uint32) {
	return slotOrigin(slot)
}

// UploadTile writes rgbaOrFloatBytes (tightly packed, TileStride x
// TileStride texels, gutter included) into the slot's sub-rectangle of the
// page's texture-array layer.
func (h *hwPage) UploadTile(gpu GPUQueue, slot uint32, data []byte) error {
	x, y := h.tileOrigin(slot)
	wantLen := int(model.TileStride) * int(model.TileStride) * int(h.texel)
	if len(data) != wantLen {
		return fmt.Errorf("atlas: upload slot %d: expected %d bytes, got %d", slot, wantLen, len(data))
	}
	gpu.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  h.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: x, Y: y, Z: 0},
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(model.TileStride) * h.texel,
			RowsPerImage: uint32(model.TileStride),
		},
		&hal.Extent3D{Width: uint32(model.TileStride), Height: uint32(model.TileStride), DepthOrArrayLayers: 1},
	)
	return nil
}

// ClearTile writes zero bytes over the slot's sub-rectangle so a reused
// slot never exposes a previous occupant's content.
func (h *hwPage) ClearTile(gpu GPUQueue, slot uint32) error {
	x, y := h.tileOrigin(slot)
	gpu.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  h.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: x, Y: y, Z: 0},
		},
		h.cleared,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(model.TileStride) * h.texel,
			RowsPerImage: uint32(model.TileStride),
		},
		&hal.Extent3D{Width: uint32(model.TileStride), Height: uint32(model.TileStride), DepthOrArrayLayers: 1},
	)
	return nil
}
