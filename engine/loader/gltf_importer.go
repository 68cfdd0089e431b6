package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-render/engine/model"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct{}

// gltfImporter orchestrates a full glTF/GLB import: it runs the parser, the mesh and material
// extractors, and builds the scene node views.
type gltfImporter interface {
	// Import loads a glTF/GLB file from disk.
	//
	// Parameters:
	//   - path: the file path to the glTF or GLB file
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if import fails
	Import(path string) (*Asset, error)

	// ImportBytes loads a glTF/GLB document held in memory.
	//
	// Parameters:
	//   - name: the model name used when the document's scene has none
	//   - data: the glTF JSON or GLB bytes
	//   - baseDir: the directory relative URIs resolve against, empty to forbid external files
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if import fails
	ImportBytes(name string, data []byte, baseDir string) (*Asset, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new glTF importer.
func newGLTFImporter() gltfImporter {
	return &gltfImporterImpl{}
}

func (imp *gltfImporterImpl) Import(path string) (*Asset, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return imp.importFromParser(parser, path)
}

func (imp *gltfImporterImpl) ImportBytes(name string, data []byte, baseDir string) (*Asset, error) {
	parser := newGLTFParser()
	if err := parser.ParseBytes(data, baseDir); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return imp.importFromParser(parser, name)
}

// importFromParser extracts meshes, materials and the node hierarchy from a parsed document.
//
// Parameters:
//   - parser: the glTF parser that has already loaded a document
//   - fallbackName: the file path or reference used as a fallback for model naming
func (imp *gltfImporterImpl) importFromParser(parser gltfParser, fallbackName string) (*Asset, error) {
	doc := parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document after parsing")
	}

	meshes, err := newGLTFMeshExtractor(parser).ExtractAllMeshes()
	if err != nil {
		return nil, fmt.Errorf("mesh extraction failed: %w", err)
	}

	materials, err := newGLTFMaterialExtractor(parser).ExtractAllMaterials()
	if err != nil {
		return nil, fmt.Errorf("material extraction failed: %w", err)
	}

	roots, err := gltfSceneRoots(doc)
	if err != nil {
		return nil, fmt.Errorf("scene extraction failed: %w", err)
	}

	return &Asset{
		Model: &model.ImportedModel{
			Name:      gltfExtractModelName(doc, fallbackName),
			Meshes:    meshes,
			Materials: materials,
		},
		Roots: roots,
	}, nil
}

// gltfExtractModelName derives a model name from the default scene or the fallback reference.
func gltfExtractModelName(doc *gltfDocument, fallback string) string {
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		if name := doc.Scenes[*doc.Scene].Name; name != "" {
			return name
		}
	}

	if fallback != "" {
		base := filepath.Base(fallback)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}

	return "unnamed_model"
}
