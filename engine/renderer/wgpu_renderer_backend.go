package renderer

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	colorFormat = wgpu.TextureFormatRGBA8UnormSrgb
	depthFormat = wgpu.TextureFormatDepth24Plus

	// drawUniformSize is the byte size of DrawUniforms in unlitShader: a mat4x4 and a vec4.
	drawUniformSize = 80

	// copyRowAlignment is the WebGPU alignment of BytesPerRow in texture to buffer copies.
	copyRowAlignment = 256
)

// unlitShader draws textured geometry without lighting. Group 0 holds the per-draw uniforms, the base
// color texture and its sampler.
const unlitShader = `
struct DrawUniforms {
    mvp: mat4x4<f32>,
    base_color: vec4<f32>,
};

@group(0) @binding(0) var<uniform> draw: DrawUniforms;
@group(0) @binding(1) var base_texture: texture_2d<f32>;
@group(0) @binding(2) var base_sampler: sampler;

struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
};

struct VertexOutput {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip_position = draw.mvp * vec4<f32>(in.position, 1.0);
    out.uv = in.uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(base_texture, base_sampler, in.uv) * draw.base_color;
}
`

// drawUniforms mirrors DrawUniforms in unlitShader.
type drawUniforms struct {
	MVP       [16]float32
	BaseColor [4]float32
}

// releaser is implemented by every wgpu object.
type releaser interface {
	Release()
}

type wgpuRendererBackendImpl struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	sampleCount MSAASampleCount

	bindGroupLayout *wgpu.BindGroupLayout
	pipeline        *wgpu.RenderPipeline
	sampler         *wgpu.Sampler

	// whiteView is a 1x1 white texture bound when a draw has no texture.
	whiteTexture *wgpu.Texture
	whiteView    *wgpu.TextureView

	// owned lists long-lived objects released by Release, in creation order.
	owned []releaser
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend requests an adapter and device without a surface and builds the unlit pipeline.
//
// Parameters:
//   - forceFallbackAdapter: true to request the software adapter
//   - sampleCount: the MSAA sample count of the color and depth attachments
//
// Returns:
//   - RendererBackend: the headless backend
//   - error: error if no adapter or device is available or the pipeline fails to build
func newWGPURendererBackend(forceFallbackAdapter bool, sampleCount MSAASampleCount) (RendererBackend, error) {
	b := &wgpuRendererBackendImpl{
		instance:    wgpu.CreateInstance(nil),
		sampleCount: sampleCount,
	}
	b.owned = append(b.owned, b.instance)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	b.adapter = a
	b.owned = append(b.owned, a)

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Render Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()
	b.owned = append(b.owned, d, b.queue)

	if err := b.initPipeline(); err != nil {
		b.Release()
		return nil, err
	}
	if err := b.initDefaults(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// initPipeline creates the bind group layout and the unlit render pipeline.
func (b *wgpuRendererBackendImpl) initPipeline() error {
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "Unlit Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: unlitShader,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to compile unlit shader: %w", err)
	}
	defer module.Release()

	uniformEntry := wgpu.BindGroupLayoutEntry{Binding: 0, Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment}
	uniformEntry.Buffer.Type = wgpu.BufferBindingTypeUniform
	uniformEntry.Buffer.MinBindingSize = drawUniformSize

	textureEntry := wgpu.BindGroupLayoutEntry{Binding: 1, Visibility: wgpu.ShaderStageFragment}
	textureEntry.Texture.SampleType = wgpu.TextureSampleTypeFloat
	textureEntry.Texture.ViewDimension = wgpu.TextureViewDimension2D

	samplerEntry := wgpu.BindGroupLayoutEntry{Binding: 2, Visibility: wgpu.ShaderStageFragment}
	samplerEntry.Sampler.Type = wgpu.SamplerBindingTypeFiltering

	b.bindGroupLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Draw Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{uniformEntry, textureEntry, samplerEntry},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group layout: %w", err)
	}
	b.owned = append(b.owned, b.bindGroupLayout)

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Unlit Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.bindGroupLayout},
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	defer layout.Release()

	b.pipeline, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Unlit Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: 32,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    colorFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(b.sampleCount),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create render pipeline: %w", err)
	}
	b.owned = append(b.owned, b.pipeline)
	return nil
}

// initDefaults creates the shared sampler and the 1x1 white fallback texture.
func (b *wgpuRendererBackendImpl) initDefaults() error {
	var err error
	b.sampler, err = b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Base Color Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create sampler: %w", err)
	}
	b.owned = append(b.owned, b.sampler)

	b.whiteTexture, b.whiteView, err = b.uploadTexture("White Texture", common.TextureStagingData{
		Pixels: []byte{255, 255, 255, 255},
		Width:  1,
		Height: 1,
	})
	if err != nil {
		return err
	}
	b.owned = append(b.owned, b.whiteView, b.whiteTexture)
	return nil
}

// uploadTexture creates a sampled sRGB texture and writes the staging pixels into it.
func (b *wgpuRendererBackendImpl) uploadTexture(label string, stagingData common.TextureStagingData) (*wgpu.Texture, *wgpu.TextureView, error) {
	if stagingData.Width == 0 || stagingData.Height == 0 || len(stagingData.Pixels) < int(stagingData.Width*stagingData.Height*4) {
		return nil, nil, fmt.Errorf("texture %s has invalid staging data %dx%d (%d bytes)", label, stagingData.Width, stagingData.Height, len(stagingData.Pixels))
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              stagingData.Width,
			Height:             stagingData.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, nil, err
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		stagingData.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  stagingData.Width * 4,
			RowsPerImage: stagingData.Height,
		},
		&wgpu.Extent3D{
			Width:              stagingData.Width,
			Height:             stagingData.Height,
			DepthOrArrayLayers: 1,
		},
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, err
	}
	return tex, view, nil
}

// createBuffer creates a GPU buffer and writes data into it.
func (b *wgpuRendererBackendImpl) createBuffer(label string, usage wgpu.BufferUsage, data []byte) (*wgpu.Buffer, error) {
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             uint64(len(data)),
		Usage:            usage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	b.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// createAttachment creates a render attachment texture and its view.
func (b *wgpuRendererBackendImpl) createAttachment(label string, width, height uint32, format wgpu.TextureFormat, sampleCount uint32, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   sampleCount,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageRenderAttachment | usage,
	})
	if err != nil {
		return nil, nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, err
	}
	return tex, view, nil
}

func (b *wgpuRendererBackendImpl) Draw(frame Frame) (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil {
		return nil, errors.New("backend released")
	}
	if frame.Width == 0 || frame.Height == 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", frame.Width, frame.Height)
	}

	// Per-frame objects are released in reverse creation order once the readback is done.
	var transient []releaser
	defer func() {
		for i := len(transient) - 1; i >= 0; i-- {
			transient[i].Release()
		}
	}()
	keep := func(objs ...releaser) {
		transient = append(transient, objs...)
	}

	count := uint32(b.sampleCount)
	colorTex, colorView, err := b.createAttachment("Color Target", frame.Width, frame.Height, colorFormat, 1, wgpu.TextureUsageCopySrc)
	if err != nil {
		return nil, fmt.Errorf("failed to create color target: %w", err)
	}
	keep(colorTex, colorView)

	depthTex, depthView, err := b.createAttachment("Depth Target", frame.Width, frame.Height, depthFormat, count, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create depth target: %w", err)
	}
	keep(depthTex, depthView)

	// With MSAA the pass draws into a multisampled texture and resolves into the color target.
	colorAttachment := wgpu.RenderPassColorAttachment{
		View:    colorView,
		LoadOp:  wgpu.LoadOpClear,
		StoreOp: wgpu.StoreOpStore,
		ClearValue: wgpu.Color{
			R: float64(frame.ClearColor[0]),
			G: float64(frame.ClearColor[1]),
			B: float64(frame.ClearColor[2]),
			A: float64(frame.ClearColor[3]),
		},
	}
	if count > 1 {
		msaaTex, msaaView, err := b.createAttachment("MSAA Target", frame.Width, frame.Height, colorFormat, count, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create MSAA target: %w", err)
		}
		keep(msaaTex, msaaView)
		colorAttachment.View = msaaView
		colorAttachment.ResolveTarget = colorView
		colorAttachment.StoreOp = wgpu.StoreOpDiscard
	}

	type preparedDraw struct {
		vertexBuffer *wgpu.Buffer
		indexBuffer  *wgpu.Buffer
		bindGroup    *wgpu.BindGroup
		indexCount   uint32
	}
	prepared := make([]preparedDraw, 0, len(frame.Draws))

	for i, d := range frame.Draws {
		if len(d.Vertices) == 0 || len(d.Indices) == 0 {
			continue
		}
		label := common.Coalesce(d.Label, fmt.Sprintf("draw_%d", i))

		vb, err := b.createBuffer(label+" Vertex Buffer", wgpu.BufferUsageVertex, common.SliceToBytes(d.Vertices))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		keep(vb)
		ib, err := b.createBuffer(label+" Index Buffer", wgpu.BufferUsageIndex, common.SliceToBytes(d.Indices))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		keep(ib)

		uniforms := drawUniforms{
			MVP:       [16]float32(frame.ViewProjection.Mul4(d.World)),
			BaseColor: d.BaseColor,
		}
		ub, err := b.createBuffer(label+" Uniform Buffer", wgpu.BufferUsageUniform, common.StructToBytes(&uniforms))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		keep(ub)

		view := b.whiteView
		if d.Texture != nil {
			tex, texView, err := b.uploadTexture(label+" Texture", *d.Texture)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			keep(tex, texView)
			view = texView
		}

		bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  label + " Bind Group",
			Layout: b.bindGroupLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: ub, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 1, TextureView: view},
				{Binding: 2, Sampler: b.sampler},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%s: failed to create bind group: %w", label, err)
		}
		keep(bg)

		prepared = append(prepared, preparedDraw{vertexBuffer: vb, indexBuffer: ib, bindGroup: bg, indexCount: uint32(len(d.Indices))})
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	keep(encoder)

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{colorAttachment},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	pass.SetPipeline(b.pipeline)
	for _, p := range prepared {
		pass.SetBindGroup(0, p.bindGroup, nil)
		pass.SetVertexBuffer(0, p.vertexBuffer, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(p.indexBuffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		pass.DrawIndexed(p.indexCount, 1, 0, 0, 0)
	}
	pass.End()

	// Rows in the readback buffer are padded to copyRowAlignment.
	unpadded := frame.Width * 4
	padded := (unpadded + copyRowAlignment - 1) / copyRowAlignment * copyRowAlignment
	readbackSize := uint64(padded) * uint64(frame.Height)

	readback, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback Buffer",
		Size:  readbackSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	keep(readback)

	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  colorTex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: readback,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  padded,
				RowsPerImage: frame.Height,
			},
		},
		&wgpu.Extent3D{
			Width:              frame.Width,
			Height:             frame.Height,
			DepthOrArrayLayers: 1,
		},
	)

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	err = mapReadback(func(cb wgpu.BufferMapCallback) error {
		return readback.MapAsync(wgpu.MapModeRead, 0, readbackSize, cb)
	}, func() {
		b.device.Poll(true, nil)
	})
	if err != nil {
		return nil, err
	}

	img := unpadRows(readback.GetMappedRange(0, uint(readbackSize)), frame.Width, frame.Height, padded)
	readback.Unmap()

	return img, nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.owned) - 1; i >= 0; i-- {
		b.owned[i].Release()
	}
	b.owned = nil
	b.device = nil
}

// mapReadback requests a read mapping and polls the device until the map callback has reported.
//
// Parameters:
//   - mapAsync: issues the map request with the given callback
//   - poll: blocks until pending device work, including the callback, has run
//
// Returns:
//   - error: error if the request is rejected or the callback reports anything but success
func mapReadback(mapAsync func(wgpu.BufferMapCallback) error, poll func()) error {
	status := wgpu.BufferMapAsyncStatusUnknown
	if err := mapAsync(func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return fmt.Errorf("failed to map readback buffer: %w", err)
	}
	poll()
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("failed to map readback buffer: status %v", status)
	}
	return nil
}

// unpadRows copies width*4 bytes of each padded row into a tightly packed RGBA image.
func unpadRows(mapped []byte, width, height, padded uint32) *image.RGBA {
	unpadded := int(width) * 4
	img := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	for y := 0; y < int(height); y++ {
		src := mapped[y*int(padded) : y*int(padded)+unpadded]
		copy(img.Pix[y*img.Stride:], src)
	}
	return img
}
