package loader

// loaderBackend is the format-specific half of the Loader. Concrete implementations (e.g.,
// gltfLoaderBackend) turn model bytes or files into an Asset.
type loaderBackend interface {
	// Load imports a model file from disk.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if loading fails
	Load(path string) (*Asset, error)

	// LoadBytes imports a model already held in memory, such as a downloaded file.
	//
	// Parameters:
	//   - name: the reference the bytes were obtained from
	//   - data: the model bytes
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if loading fails
	LoadBytes(name string, data []byte) (*Asset, error)
}
