package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-render/engine/model"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/Carmen-Shannon/oxy-render/log"

	"golang.org/x/sync/singleflight"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// MaxModelSize bounds the number of bytes read from a remote model.
const MaxModelSize = 1 << 30

var (
	// ErrInvalidReference is returned for model references that are neither a URL nor a path inside the
	// local model directory.
	ErrInvalidReference = errors.New("invalid model reference")

	// ErrUnsupportedFormat is returned for model files that are not glTF or GLB.
	ErrUnsupportedFormat = errors.New("unsupported model format")
)

// Asset is a loaded model: its renderable geometry and the top-level nodes of its default scene.
type Asset struct {
	Model *model.ImportedModel
	Roots []scene.Node
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	localDir string
	client   *http.Client
	logger   log.Logger

	modelCache map[string]*Asset
	inflight   singleflight.Group

	backend loaderBackend
}

// Loader resolves model references, imports them through a format backend and caches the result.
// A reference is either an http(s) URL or a file name inside the local model directory. Only local
// models are cached; URLs are downloaded again on every load that does not overlap an in-flight one.
type Loader interface {
	// Load resolves ref and imports the model, returning the cached asset when a local ref was loaded before.
	// Concurrent loads of the same reference share one import.
	//
	// Parameters:
	//   - ctx: bounds the download of remote models
	//   - ref: the model URL or local file name
	//
	// Returns:
	//   - *Asset: the loaded asset, shared between callers and never mutated
	//   - error: ErrInvalidReference, ErrUnsupportedFormat, or an import error
	Load(ctx context.Context, ref string) (*Asset, error)

	// Get retrieves a cached asset by reference. Returns nil if not found.
	Get(ref string) *Asset

	// Models returns a copy of the cache keyed by reference.
	Models() map[string]*Asset

	// Evict drops ref from the cache.
	Evict(ref string)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:         sync.RWMutex{},
		localDir:   ".",
		client:     http.DefaultClient,
		logger:     log.New("loader"),
		modelCache: make(map[string]*Asset),
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(ctx context.Context, ref string) (*Asset, error) {
	if cached := l.Get(ref); cached != nil {
		return cached, nil
	}

	v, err, _ := l.inflight.Do(ref, func() (any, error) {
		if cached := l.Get(ref); cached != nil {
			return cached, nil
		}

		asset, err := l.load(ctx, ref)
		if err != nil {
			return nil, err
		}

		// Remote references are client supplied and unbounded, so only the local model directory is cached.
		if !isRemoteReference(ref) {
			l.mu.Lock()
			l.modelCache[ref] = asset
			l.mu.Unlock()
		}
		l.logger.Infof("loaded model %q: %d meshes, %d materials", ref, len(asset.Model.Meshes), len(asset.Model.Materials))
		return asset, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Asset), nil
}

func (l *loader) Get(ref string) *Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[ref]
}

func (l *loader) Models() map[string]*Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*Asset, len(l.modelCache))
	for k, v := range l.modelCache {
		result[k] = v
	}
	return result
}

func (l *loader) Evict(ref string) {
	l.mu.Lock()
	delete(l.modelCache, ref)
	l.mu.Unlock()
}

// load imports ref without consulting the cache.
func (l *loader) load(ctx context.Context, ref string) (*Asset, error) {
	if isRemoteReference(ref) {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		if err := checkExtension(path.Ext(u.Path)); err != nil {
			return nil, err
		}

		data, err := l.fetch(ctx, u.String())
		if err != nil {
			return nil, err
		}
		asset, err := l.backend.LoadBytes(ref, data)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", ref, err)
		}
		return asset, nil
	}

	local, err := l.resolveLocal(ref)
	if err != nil {
		return nil, err
	}
	asset, err := l.backend.Load(local)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ref, err)
	}
	return asset, nil
}

// resolveLocal maps ref to a file inside the local model directory, rejecting references that would
// escape it.
func (l *loader) resolveLocal(ref string) (string, error) {
	if ref == "" || !filepath.IsLocal(filepath.FromSlash(ref)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	if err := checkExtension(filepath.Ext(ref)); err != nil {
		return "", err
	}
	return filepath.Join(l.localDir, filepath.FromSlash(ref)), nil
}

// fetch downloads a remote model, refusing bodies larger than MaxModelSize.
func (l *loader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch model %s: status %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxModelSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", rawURL, err)
	}
	if len(data) > MaxModelSize {
		return nil, fmt.Errorf("model %s exceeds %d bytes", rawURL, MaxModelSize)
	}
	return data, nil
}

// isRemoteReference reports whether ref is an http or https URL.
func isRemoteReference(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// checkExtension accepts the glTF and GLB file extensions.
func checkExtension(ext string) error {
	switch strings.ToLower(ext) {
	case ".gltf", ".glb":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
