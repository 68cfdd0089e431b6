package loader

import (
	"net/http"

	"github.com/Carmen-Shannon/oxy-render/log"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLocalModelDir is an option builder that sets the directory local model references resolve in.
//
// Parameters:
//   - dir: the local model directory
//
// Returns:
//   - LoaderBuilderOption: a function that applies the directory option to a loader
func WithLocalModelDir(dir string) LoaderBuilderOption {
	return func(l *loader) {
		l.localDir = dir
	}
}

// WithHTTPClient is an option builder that sets the client used to download remote models.
//
// Parameters:
//   - client: the HTTP client
//
// Returns:
//   - LoaderBuilderOption: a function that applies the client option to a loader
func WithHTTPClient(client *http.Client) LoaderBuilderOption {
	return func(l *loader) {
		l.client = client
	}
}

// WithLogger is an option builder that replaces the loader's logger.
func WithLogger(logger log.Logger) LoaderBuilderOption {
	return func(l *loader) {
		l.logger = logger
	}
}

// WithAsset is an option builder that pre-populates the model cache with an asset.
//
// Parameters:
//   - ref: the cache key for the asset
//   - asset: the asset to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the asset option to a loader
func WithAsset(ref string, asset *Asset) LoaderBuilderOption {
	return func(l *loader) {
		l.modelCache[ref] = asset
	}
}
