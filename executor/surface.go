package executor

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// PresentFunc hands a freshly composited frame to the windowing layer
// (swap-chain present, or an on-screen blit) -- out of this module's scope
// to implement directly since it depends on the host window system, the
// same reason atlas.NewHardwarePage takes a pre-built hal.Device rather
// than constructing one.
type PresentFunc func(frame hal.Texture) error

// HardwareSurface is a hal-backed Surface: a render-target texture sized
// to the current output dimensions, reallocated on Configure, with
// presentation delegated to a host-supplied PresentFunc.
type HardwareSurface struct {
	device  hal.Device
	present PresentFunc

	width, height uint32
	tex           hal.Texture
	view          hal.TextureView
}

// NewHardwareSurface constructs a surface that allocates its render target
// on device and hands completed frames to present.
func NewHardwareSurface(device hal.Device, present PresentFunc) *HardwareSurface {
	return &HardwareSurface{device: device, present: present}
}

// Configure (re)allocates the surface's render target at width x height,
// destroying any previously allocated texture first.
func (s *HardwareSurface) Configure(width, height uint32) error {
	if s.tex != nil {
		s.device.DestroyTexture(s.tex)
		s.tex = nil
		s.view = nil
	}

	tex, err := s.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "present_surface",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("executor: configure surface %dx%d: %w", width, height, err)
	}
	view, err := s.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "present_surface_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		s.device.DestroyTexture(tex)
		return fmt.Errorf("executor: configure surface view %dx%d: %w", width, height, err)
	}

	s.width, s.height = width, height
	s.tex, s.view = tex, view
	return nil
}

// AcquireNextTexture returns the surface's current render target. Unlike a
// real swap-chain, this surface has no back-buffer rotation: the composite
// pass always renders into the same texture, and Present hands that same
// texture to the host.
func (s *HardwareSurface) AcquireNextTexture() (hal.Texture, error) {
	if s.tex == nil {
		return nil, fmt.Errorf("executor: acquire: surface not configured")
	}
	return s.tex, nil
}

// Present hands the current render target to the host-supplied present
// function.
func (s *HardwareSurface) Present() error {
	if s.tex == nil {
		return fmt.Errorf("executor: present: surface not configured")
	}
	if s.present == nil {
		return nil
	}
	return s.present(s.tex)
}

// View returns the surface's current texture view, for binding as a
// render-pass color attachment.
func (s *HardwareSurface) View() hal.TextureView { return s.view }
