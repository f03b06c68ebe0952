package executor

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// brushDabShaderWGSL rasterizes a batch of dabs into one R32Float buffer
// tile. The blend math here is a placeholder accumulation; brush scripts
// supply their own curves upstream of this module.
const brushDabShaderWGSL = `
struct DabParams {
    tile_origin: vec2<f32>,
    dab_count: u32,
    _pad: u32,
};

struct Dab {
    center: vec2<f32>,
    radius: f32,
    pressure: f32,
};

@group(0) @binding(0) var<uniform> params: DabParams;
@group(0) @binding(1) var<storage, read> dabs: array<Dab>;
@group(1) @binding(0) var<storage, read_write> coverage: array<f32>;

@compute @workgroup_size(16, 16)
fn cs_brush_dab(@builtin(global_invocation_id) gid: vec3<u32>) {
    let px = vec2<f32>(params.tile_origin.x + f32(gid.x), params.tile_origin.y + f32(gid.y));
    var acc: f32 = 0.0;
    for (var i: u32 = 0u; i < params.dab_count; i = i + 1u) {
        let d = dabs[i];
        let dist = distance(px, d.center);
        if (dist < d.radius) {
            acc = max(acc, d.pressure * (1.0 - dist / d.radius));
        }
    }
    let idx = gid.y * 128u + gid.x;
    coverage[idx] = max(coverage[idx], acc);
}
`

// tileMergeShaderWGSL composites one stroke buffer tile over its base
// layer tile into a freshly allocated output tile.
const tileMergeShaderWGSL = `
struct MergeParams {
    base_slot: u32,
    buffer_slot: u32,
    output_slot: u32,
    blend_mode: u32,
};

@group(0) @binding(0) var<uniform> params: MergeParams;
@group(0) @binding(1) var<storage, read> base: array<u32>;
@group(0) @binding(2) var<storage, read> coverage: array<f32>;
@group(1) @binding(0) var<storage, read_write> output: array<u32>;

fn unpack_unorm(v: u32) -> vec4<f32> {
    return vec4<f32>(
        f32(v & 0xffu), f32((v >> 8u) & 0xffu),
        f32((v >> 16u) & 0xffu), f32((v >> 24u) & 0xffu)) / 255.0;
}

fn pack_unorm(c: vec4<f32>) -> u32 {
    let s = clamp(c, vec4<f32>(0.0), vec4<f32>(1.0)) * 255.0;
    return u32(s.x) | (u32(s.y) << 8u) | (u32(s.z) << 16u) | (u32(s.w) << 24u);
}

@compute @workgroup_size(16, 16)
fn cs_tile_merge(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.y * 128u + gid.x;
    let dst = unpack_unorm(base[idx]);
    let a = coverage[idx];
    let src = vec4<f32>(a, a, a, a);
    output[idx] = pack_unorm(src + dst * (1.0 - a));
}
`

// compileToSPIRV compiles WGSL source to the little-endian SPIR-V word
// stream hal shader modules consume.
func compileToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("executor: compile shader: %w", err)
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// PipelineBundle holds the executor's two compute pipelines (brush dab
// rasterization and tile merge) plus the shared layout objects they were
// built from, so Destroy can tear them down in the right order.
type PipelineBundle struct {
	dabModule   hal.ShaderModule
	mergeModule hal.ShaderModule

	inputLayout  hal.BindGroupLayout
	outputLayout hal.BindGroupLayout
	layout       hal.PipelineLayout

	BrushDab  hal.ComputePipeline
	TileMerge hal.ComputePipeline
}

// BuildPipelines compiles the executor's shaders and builds its compute
// pipelines on device. Invoked once, from the Init command's dispatch.
func BuildPipelines(device hal.Device) (*PipelineBundle, error) {
	b := &PipelineBundle{}

	dabCode, err := compileToSPIRV(brushDabShaderWGSL)
	if err != nil {
		return nil, err
	}
	mergeCode, err := compileToSPIRV(tileMergeShaderWGSL)
	if err != nil {
		return nil, err
	}

	b.dabModule, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "brush_dab_shader",
		Source: hal.ShaderSource{SPIRV: dabCode},
	})
	if err != nil {
		return nil, fmt.Errorf("executor: create brush dab module: %w", err)
	}
	b.mergeModule, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "tile_merge_shader",
		Source: hal.ShaderSource{SPIRV: mergeCode},
	})
	if err != nil {
		b.Destroy(device)
		return nil, fmt.Errorf("executor: create tile merge module: %w", err)
	}

	b.inputLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "tile_pass_input_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{
					Type:           gputypes.BufferBindingTypeUniform,
					MinBindingSize: 16,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{
					Type: gputypes.BufferBindingTypeReadOnlyStorage,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{
					Type: gputypes.BufferBindingTypeReadOnlyStorage,
				},
			},
		},
	})
	if err != nil {
		b.Destroy(device)
		return nil, fmt.Errorf("executor: create input bind group layout: %w", err)
	}

	b.outputLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "tile_pass_output_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{
					Type: gputypes.BufferBindingTypeStorage,
				},
			},
		},
	})
	if err != nil {
		b.Destroy(device)
		return nil, fmt.Errorf("executor: create output bind group layout: %w", err)
	}

	b.layout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "tile_pass_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{b.inputLayout, b.outputLayout},
	})
	if err != nil {
		b.Destroy(device)
		return nil, fmt.Errorf("executor: create pipeline layout: %w", err)
	}

	b.BrushDab, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "brush_dab_pipeline",
		Layout: b.layout,
		Compute: hal.ComputeState{
			Module:     b.dabModule,
			EntryPoint: "cs_brush_dab",
		},
	})
	if err != nil {
		b.Destroy(device)
		return nil, fmt.Errorf("executor: create brush dab pipeline: %w", err)
	}

	b.TileMerge, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "tile_merge_pipeline",
		Layout: b.layout,
		Compute: hal.ComputeState{
			Module:     b.mergeModule,
			EntryPoint: "cs_tile_merge",
		},
	})
	if err != nil {
		b.Destroy(device)
		return nil, fmt.Errorf("executor: create tile merge pipeline: %w", err)
	}

	return b, nil
}

// Destroy tears down the bundle's GPU objects, pipelines first.
func (b *PipelineBundle) Destroy(device hal.Device) {
	if b.TileMerge != nil {
		device.DestroyComputePipeline(b.TileMerge)
		b.TileMerge = nil
	}
	if b.BrushDab != nil {
		device.DestroyComputePipeline(b.BrushDab)
		b.BrushDab = nil
	}
	if b.layout != nil {
		device.DestroyPipelineLayout(b.layout)
		b.layout = nil
	}
	if b.outputLayout != nil {
		device.DestroyBindGroupLayout(b.outputLayout)
		b.outputLayout = nil
	}
	if b.inputLayout != nil {
		device.DestroyBindGroupLayout(b.inputLayout)
		b.inputLayout = nil
	}
	if b.mergeModule != nil {
		device.DestroyShaderModule(b.mergeModule)
		b.mergeModule = nil
	}
	if b.dabModule != nil {
		device.DestroyShaderModule(b.dabModule)
		b.dabModule = nil
	}
}

// DeviceHandle names the host-integration interface a windowing/device
// layer implements to hand this module its shared GPU device. It is an
// alias for gpucontext.DeviceProvider so any provider from that ecosystem
// plugs in directly.
type DeviceHandle = gpucontext.DeviceProvider

// HalFromProvider extracts the raw hal.Device and hal.Queue from a
// provider that also exposes direct HAL access via HalDevice/HalQueue.
// Providers without HAL access cannot drive this executor's tile
// pipelines and are rejected.
func HalFromProvider(provider DeviceHandle) (hal.Device, hal.Queue, error) {
	hp, ok := provider.(interface {
		HalDevice() any
		HalQueue() any
	})
	if !ok {
		return nil, nil, fmt.Errorf("executor: device provider %T does not expose HAL access", provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, nil, fmt.Errorf("executor: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, nil, fmt.Errorf("executor: provider HalQueue is not hal.Queue")
	}
	return device, queue, nil
}
