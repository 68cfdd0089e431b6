package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/loader"
	"github.com/Carmen-Shannon/oxy-render/engine/model"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/Carmen-Shannon/oxy-render/log"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxImageSize is the largest accepted output edge in pixels (the WebGPU default 2D texture limit).
const MaxImageSize = 8192

// Framing parameters of the camera synthesized for scenes that carry none.
const (
	defaultYFov  float32 = 0.8
	defaultZNear float32 = 0.1
	defaultZFar  float32 = 100.0
)

var (
	// ErrInvalidSize is returned for output sizes of zero or above MaxImageSize.
	ErrInvalidSize = errors.New("invalid image size")

	// ErrUnsupportedCarryRule is returned by NewRenderContext for carry rules whose extracted transforms
	// cannot be composed into world matrices.
	ErrUnsupportedCarryRule = errors.New("unsupported carry rule")
)

// Texture is a texture override supplied with a request: either a URL to fetch or raw encoded image
// bytes. Data takes precedence when both are set.
type Texture struct {
	URL  string
	Data []byte
}

// Request describes one render.
type Request struct {
	// Model is an http(s) URL or a file name inside the local model directory.
	Model string

	// Textures replace the base color texture of the material with the same index.
	Textures []Texture

	Width  uint32
	Height uint32
}

// renderContext is the implementation of the RenderContext interface.
type renderContext struct {
	loader loader.Loader

	backendType RendererBackendType
	backend     RendererBackend

	fetchPool    worker.DynamicWorkerPool
	fetchWorkers int
	fetchTimeout time.Duration
	client       *http.Client

	logger     log.Logger
	clearColor [4]float32
	carryRule  scene.CarryRule

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	msaa                 MSAASampleCount
}

// RenderContext turns a model reference and optional texture overrides into an image.
//
// A RenderContext owns a GPU device that is not designed for concurrent use. Callers serialize access
// to it; the dispatcher's single worker is the intended owner.
type RenderContext interface {
	// Render loads the model, locates its camera and meshes, applies the texture overrides and rasterizes
	// the scene.
	//
	// Parameters:
	//   - ctx: bounds model and texture downloads
	//   - req: the render request
	//
	// Returns:
	//   - *image.RGBA: the rendered image, req.Width x req.Height
	//   - error: ErrInvalidSize, a loader error, a texture error or a backend error
	Render(ctx context.Context, req Request) (*image.RGBA, error)

	// Release frees the backend and stops the texture fetch workers.
	Release()
}

var _ RenderContext = &renderContext{}

// NewRenderContext creates a RenderContext with the specified backend type and options applied.
// When no backend is supplied through WithBackend, a headless backend of backendType is created.
//
// Parameters:
//   - backendType: the type of renderer backend to use (e.g., BackendTypeWGPU)
//   - options: a variadic list of RendererBuilderOption functions to configure the RenderContext
//
// Returns:
//   - RenderContext: the configured render context
//   - error: ErrUnsupportedCarryRule, or error if the GPU backend cannot be created
func NewRenderContext(backendType RendererBackendType, options ...RendererBuilderOption) (RenderContext, error) {
	r := &renderContext{
		backendType:  backendType,
		fetchWorkers: 4,
		fetchTimeout: 30 * time.Second,
		client:       http.DefaultClient,
		logger:       log.New("renderer"),
		clearColor:   [4]float32{0, 0, 0, 0},
		carryRule:    scene.CarryAncestors,
		msaa:         MSAA4x,
	}

	for _, option := range options {
		option(r)
	}

	// Draws are placed at ParentTransform * Transform. Under CarryLegacy a top-level node's parent
	// transform is its own local transform, which would be applied twice.
	if r.carryRule != scene.CarryAncestors {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCarryRule, r.carryRule)
	}

	if r.loader == nil {
		r.loader = loader.NewLoader(loader.BackendTypeGLTF)
	}

	if r.backend == nil {
		switch r.backendType {
		case BackendTypeWGPU:
			b, err := newWGPURendererBackend(r.forceFallbackAdapter, r.msaa)
			if err != nil {
				return nil, fmt.Errorf("failed to create renderer backend: %w", err)
			}
			r.backend = b
		default:
			return nil, fmt.Errorf("unknown renderer backend type %d", r.backendType)
		}
	}

	r.fetchPool = worker.NewDynamicWorkerPool(max(1, r.fetchWorkers), 64, time.Second)
	return r, nil
}

func (r *renderContext) Render(ctx context.Context, req Request) (*image.RGBA, error) {
	if req.Width == 0 || req.Height == 0 || req.Width > MaxImageSize || req.Height > MaxImageSize {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, req.Width, req.Height)
	}

	asset, err := r.loader.Load(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	overrides, err := r.fetchTextures(ctx, req.Textures)
	if err != nil {
		return nil, err
	}

	meshes := scene.FindMeshes(asset.Roots, scene.WithCarryRule(r.carryRule))
	viewProjection := r.viewProjection(asset, meshes, float32(req.Width)/float32(req.Height))

	draws, err := r.buildDraws(asset.Model, meshes, overrides)
	if err != nil {
		return nil, err
	}
	r.logger.Debugf("rendering %q: %d meshes, %d draws, %dx%d", req.Model, len(meshes), len(draws), req.Width, req.Height)

	img, err := r.backend.Draw(Frame{
		Width:          req.Width,
		Height:         req.Height,
		ClearColor:     r.clearColor,
		ViewProjection: viewProjection,
		Draws:          draws,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to draw %s: %w", req.Model, err)
	}
	return img, nil
}

func (r *renderContext) Release() {
	if r.fetchPool != nil {
		r.fetchPool.Stop()
	}
	if r.backend != nil {
		r.backend.Release()
	}
}

// viewProjection returns the projection of the scene's first camera, or of a camera framing the
// model's bounds when the scene has none. The projection always uses the requested aspect ratio.
func (r *renderContext) viewProjection(asset *loader.Asset, meshes []model.Mesh, aspect float32) mgl32.Mat4 {
	if cam, ok := scene.FindCamera(asset.Roots, scene.WithCarryRule(r.carryRule)); ok {
		return camera.NewCamera(
			camera.WithFov(cam.YFov),
			camera.WithAspect(aspect),
			camera.WithNear(common.Coalesce(cam.ZNear, defaultZNear)),
			camera.WithFar(common.Coalesce(cam.ZFar, defaultZFar)),
			camera.WithWorldTransform(cam.WorldTransform().Matrix),
		).ViewProjectionMatrix()
	}

	options := []camera.CameraBuilderOption{
		camera.WithFov(defaultYFov),
		camera.WithAspect(aspect),
		camera.WithNear(defaultZNear),
		camera.WithFar(defaultZFar),
	}
	if lo, hi, ok := asset.Model.Bounds(meshes); ok {
		options = append(options, camera.WithFraming(lo, hi))
	} else {
		r.logger.Debugf("model %s has no camera and no geometry", asset.Model.Name)
	}
	return camera.NewCamera(options...).ViewProjectionMatrix()
}

// buildDraws turns every placed primitive into a draw item. Texture override i replaces the base color
// texture of material i; a model without materials takes override 0 for its default material.
func (r *renderContext) buildDraws(m *model.ImportedModel, meshes []model.Mesh, overrides []common.TextureStagingData) ([]DrawItem, error) {
	materialTextures := make([]*common.TextureStagingData, len(m.Materials))
	for i := range m.Materials {
		if m.Materials[i].DiffuseTexture == nil {
			continue
		}
		staged, err := m.Materials[i].DiffuseTexture.Decode()
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		materialTextures[i] = &staged
	}

	var defaultTexture *common.TextureStagingData
	for i := range overrides {
		switch {
		case i < len(materialTextures):
			materialTextures[i] = &overrides[i]
		case len(materialTextures) == 0 && i == 0:
			defaultTexture = &overrides[i]
		default:
			r.logger.Debugf("ignoring texture %d: model %s has %d materials", i, m.Name, len(m.Materials))
		}
	}

	var draws []DrawItem
	for _, placed := range meshes {
		if placed.MeshIndex < 0 || placed.MeshIndex >= len(m.Meshes) {
			return nil, fmt.Errorf("node %q references missing mesh %d", placed.Name, placed.MeshIndex)
		}
		mesh := m.Meshes[placed.MeshIndex]
		world := placed.WorldTransform().Matrix

		for pi, prim := range mesh.Primitives {
			item := DrawItem{
				Label:     fmt.Sprintf("%s/%d", mesh.Name, pi),
				Vertices:  prim.Vertices,
				Indices:   prim.Indices,
				World:     world,
				BaseColor: [4]float32{1, 1, 1, 1},
				Texture:   defaultTexture,
			}
			if idx := prim.MaterialIndex; idx >= 0 && idx < len(m.Materials) {
				item.BaseColor = m.Materials[idx].BaseColor
				item.Texture = materialTextures[idx]
			}
			draws = append(draws, item)
		}
	}
	return draws, nil
}
