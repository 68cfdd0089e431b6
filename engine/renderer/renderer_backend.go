package renderer

import (
	"image"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// RendererBackendType identifies the GPU backend implementation used by the RenderContext.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the headless WebGPU backend.
	BackendTypeWGPU RendererBackendType = iota
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// WebGPU guarantees support for 1 (off) and 4.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4x multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4
)

// Frame is everything a backend needs to rasterize one image.
type Frame struct {
	Width  uint32
	Height uint32

	// ClearColor is the linear RGBA background.
	ClearColor [4]float32

	// ViewProjection maps world space to clip space.
	ViewProjection mgl32.Mat4

	// Draws are rendered in order with depth testing.
	Draws []DrawItem
}

// DrawItem is one primitive placed in the world.
type DrawItem struct {
	Label string

	Vertices []model.Vertex
	Indices  []uint32

	// World is the primitive's object-to-world transform.
	World mgl32.Mat4

	// BaseColor multiplies the sampled texture.
	BaseColor [4]float32

	// Texture is the base color texture, nil for plain white.
	Texture *common.TextureStagingData
}

// RendererBackend rasterizes frames into CPU-side images. Implementations own their GPU device and are
// not safe for concurrent use; the dispatcher's single worker is their only caller.
type RendererBackend interface {
	// Draw renders the frame and reads the result back.
	//
	// Parameters:
	//   - frame: the frame description
	//
	// Returns:
	//   - *image.RGBA: the rendered pixels, sRGB encoded, Width x Height
	//   - error: error if any GPU resource could not be created or read back
	Draw(frame Frame) (*image.RGBA, error)

	// Release frees the device and every cached GPU object.
	Release()
}
