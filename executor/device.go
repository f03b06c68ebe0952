// Package executor implements the GPU executor: the main-thread component
// that receives dispatched Commands from the runtime fabric, drives the
// frame planner's dirty-propagation walk, submits GPU work through a
// hazard-checked per-submission arena, and reports back via Receipts.
package executor

import (
	"time"

	"github.com/gogpu/wgpu/hal"
)

// Device is the narrow subset of hal.Device the executor drives directly.
// Kept narrow, the way atlas.GPUQueue is, so tests substitute a fake device
// without pulling in a real GPU backend.
type Device interface {
	CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (CommandEncoder, error)
	CreateFence() (hal.Fence, error)
	DestroyFence(fence hal.Fence)
	FreeCommandBuffer(buf hal.CommandBuffer)
	Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error)
}

// Queue is the narrow subset of hal.Queue the executor submits batches
// through. It also satisfies atlas.GPUQueue so the same queue handle
// drains staged atlas uploads and clears.
type Queue interface {
	Submit(buffers []hal.CommandBuffer, fence hal.Fence, value uint64) error
	ReadBuffer(buf hal.Buffer, offset uint64, dst []byte) error
	WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D)
}

// CommandEncoder is the narrow subset of hal's command encoder the
// executor records compute and copy work against.
type CommandEncoder interface {
	BeginEncoding(label string) error
	BeginComputePass(desc *hal.ComputePassDescriptor) (ComputePassEncoder, error)
	CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy)
	EndEncoding() (hal.CommandBuffer, error)
}

// ComputePassEncoder is the narrow subset of hal's compute pass the
// composite and brush-dab pipelines record against.
type ComputePassEncoder interface {
	SetPipeline(pipeline hal.ComputePipeline)
	SetBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32)
	Dispatch(x, y, z uint32)
	End()
}

// Surface is the narrow subset of hal's presentable surface the executor
// needs for PresentFrame and Resize.
type Surface interface {
	Configure(width, height uint32) error
	AcquireNextTexture() (hal.Texture, error)
	Present() error
}
