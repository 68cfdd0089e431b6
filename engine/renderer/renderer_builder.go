package renderer

import (
	"net/http"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/loader"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/Carmen-Shannon/oxy-render/log"
)

// RendererBuilderOption is a functional option applied to a render context during construction via NewRenderContext.
type RendererBuilderOption func(*renderContext)

// WithLoader sets the Loader used to resolve model references.
//
// Parameters:
//   - l: the Loader to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the loader option to a render context
func WithLoader(l loader.Loader) RendererBuilderOption {
	return func(r *renderContext) {
		r.loader = l
	}
}

// WithBackend supplies an already created backend instead of creating one from the backend type.
//
// Parameters:
//   - backend: the RendererBackend to draw with
//
// Returns:
//   - RendererBuilderOption: a function that applies the backend option to a render context
func WithBackend(backend RendererBackend) RendererBuilderOption {
	return func(r *renderContext) {
		r.backend = backend
	}
}

// WithMSAA sets the multisample anti-aliasing sample count of the created backend.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff or MSAA4x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a render context
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderContext) {
		r.msaa = count
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe), which is the usual setup on GPU-less servers.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a render context
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderContext) {
		r.forceFallbackAdapter = force
	}
}

// WithFetchWorkers sets the number of workers downloading and decoding textures.
func WithFetchWorkers(n int) RendererBuilderOption {
	return func(r *renderContext) {
		r.fetchWorkers = n
	}
}

// WithFetchTimeout bounds each texture download. Zero disables the timeout.
func WithFetchTimeout(d time.Duration) RendererBuilderOption {
	return func(r *renderContext) {
		r.fetchTimeout = d
	}
}

// WithHTTPClient sets the client used to download textures.
func WithHTTPClient(client *http.Client) RendererBuilderOption {
	return func(r *renderContext) {
		r.client = client
	}
}

// WithLogger replaces the render context's logger.
func WithLogger(logger log.Logger) RendererBuilderOption {
	return func(r *renderContext) {
		r.logger = logger
	}
}

// WithClearColor sets the linear RGBA background of rendered images. The default is transparent black.
func WithClearColor(color [4]float32) RendererBuilderOption {
	return func(r *renderContext) {
		r.clearColor = color
	}
}

// WithCarryRule selects how inherited transforms are accumulated when locating the camera and meshes.
// Only scene.CarryAncestors yields world transforms; NewRenderContext rejects scene.CarryLegacy, which
// remains available to scene inspection callers through scene.WithCarryRule.
//
// Parameters:
//   - rule: the carry rule, scene.CarryAncestors by default
//
// Returns:
//   - RendererBuilderOption: a function that applies the carry rule option to a render context
func WithCarryRule(rule scene.CarryRule) RendererBuilderOption {
	return func(r *renderContext) {
		r.carryRule = rule
	}
}
