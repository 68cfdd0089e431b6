package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/model"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// triangleBuffer holds three VEC3 positions followed by three uint16 indices, padded to 44 bytes.
func triangleBuffer() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	binary.Write(buf, binary.LittleEndian, []uint16{0, 1, 2})
	buf.Write([]byte{0, 0})
	return buf.Bytes()
}

const documentTemplate = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"name": "fixture", "nodes": %s}],
	"nodes": %s,
	"cameras": [{"type": "perspective", "perspective": {"aspectRatio": 1.0, "yfov": 0.8, "zfar": 100, "znear": 0.1}}],
	"meshes": [{"name": "tri", "primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
	"accessors": [
		{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
		{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
	],
	"bufferViews": [
		{"buffer": 0, "byteOffset": 0, "byteLength": 36},
		{"buffer": 0, "byteOffset": 36, "byteLength": 6}
	],
	"buffers": [{"byteLength": 44%s}]
}`

// gltfFixture renders a glTF JSON document with the triangle buffer inlined as a data URI.
func gltfFixture(roots, nodes string) []byte {
	uri := `, "uri": "data:application/octet-stream;base64,` + base64.StdEncoding.EncodeToString(triangleBuffer()) + `"`
	return []byte(fmt.Sprintf(documentTemplate, roots, nodes, uri))
}

// glbFixture packs the same document into a GLB container with the buffer in the BIN chunk.
func glbFixture(roots, nodes string) []byte {
	jsonChunk := []byte(fmt.Sprintf(documentTemplate, roots, nodes, ""))
	for len(jsonChunk)%4 != 0 {
		jsonChunk = append(jsonChunk, ' ')
	}
	binChunk := triangleBuffer()

	out := new(bytes.Buffer)
	total := 12 + 8 + len(jsonChunk) + 8 + len(binChunk)
	binary.Write(out, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: gltfGLBVersion, Length: uint32(total)})
	binary.Write(out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(jsonChunk)), ChunkType: gltfGLBChunkJSON})
	out.Write(jsonChunk)
	binary.Write(out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(binChunk)), ChunkType: gltfGLBChunkBIN})
	out.Write(binChunk)
	return out.Bytes()
}

func TestImportLoneCamera(t *testing.T) {
	asset, err := newGLTFImporter().ImportBytes("camera.gltf", gltfFixture(`[0]`, `[{"camera": 0}]`), "")
	if err != nil {
		t.Fatalf("ImportBytes() error = %v", err)
	}

	cam, ok := scene.FindCamera(asset.Roots)
	if !ok {
		t.Fatal("FindCamera() found nothing")
	}
	if cam.AspectRatio != 1.0 || cam.YFov != 0.8 || cam.ZFar != 100 || cam.ZNear != 0.1 {
		t.Errorf("camera = %+v", cam)
	}
	if !cam.Transform.ApproxEqual(model.Identity(), 1e-6) || !cam.ParentTransform.ApproxEqual(model.Identity(), 1e-6) {
		t.Errorf("camera transforms = %v / %v, want identity", cam.ParentTransform, cam.Transform)
	}
	if asset.Model.Name != "fixture" {
		t.Errorf("model name = %q, want fixture", asset.Model.Name)
	}
}

func TestImportSiblingMeshes(t *testing.T) {
	nodes := `[
		{"mesh": 0, "translation": [1, 0, 0]},
		{"mesh": 0, "translation": [2, 0, 0]},
		{"mesh": 0, "translation": [3, 0, 0]}
	]`
	asset, err := newGLTFImporter().ImportBytes("tri.gltf", gltfFixture(`[0, 1, 2]`, nodes), "")
	if err != nil {
		t.Fatalf("ImportBytes() error = %v", err)
	}

	meshes := scene.FindMeshes(asset.Roots)
	if len(meshes) != 3 {
		t.Fatalf("FindMeshes() returned %d meshes, want 3", len(meshes))
	}
	for i, m := range meshes {
		want := mgl32.Vec3{float32(i + 1), 0, 0}
		if got := m.WorldTransform().Position(); got != want {
			t.Errorf("mesh %d position = %v, want %v", i, got, want)
		}
	}

	if len(asset.Model.Meshes) != 1 || len(asset.Model.Meshes[0].Primitives) != 1 {
		t.Fatalf("model meshes = %+v", asset.Model.Meshes)
	}
	prim := asset.Model.Meshes[0].Primitives[0]
	if len(prim.Vertices) != 3 || len(prim.Indices) != 3 {
		t.Fatalf("primitive has %d vertices and %d indices", len(prim.Vertices), len(prim.Indices))
	}
	if prim.MaterialIndex != -1 {
		t.Errorf("MaterialIndex = %d, want -1", prim.MaterialIndex)
	}
	if prim.Vertices[0].Normal != [3]float32{0, 0, 1} {
		t.Errorf("generated normal = %v, want [0 0 1]", prim.Vertices[0].Normal)
	}
}

func TestImportGLB(t *testing.T) {
	asset, err := newGLTFImporter().ImportBytes("tri.glb", glbFixture(`[0]`, `[{"mesh": 0}]`), "")
	if err != nil {
		t.Fatalf("ImportBytes() error = %v", err)
	}
	if got := scene.FindMeshes(asset.Roots); len(got) != 1 {
		t.Fatalf("FindMeshes() returned %d meshes, want 1", len(got))
	}
	if got := asset.Model.Meshes[0].Primitives[0].Vertices[1].Position; got != [3]float32{1, 0, 0} {
		t.Errorf("vertex 1 = %v, want [1 0 0]", got)
	}
}

func TestImportNodeHierarchy(t *testing.T) {
	nodes := `[
		{"name": "root", "translation": [0, 5, 0], "children": [1]},
		{"name": "leaf", "mesh": 0, "matrix": [2,0,0,0, 0,2,0,0, 0,0,2,0, 1,0,0,1]}
	]`
	asset, err := newGLTFImporter().ImportBytes("tree.gltf", gltfFixture(`[0]`, nodes), "")
	if err != nil {
		t.Fatalf("ImportBytes() error = %v", err)
	}

	meshes := scene.FindMeshes(asset.Roots)
	if len(meshes) != 1 {
		t.Fatalf("FindMeshes() returned %d meshes, want 1", len(meshes))
	}
	if got := meshes[0].ParentTransform.Position(); got != (mgl32.Vec3{0, 5, 0}) {
		t.Errorf("parent position = %v, want [0 5 0]", got)
	}
	if got := meshes[0].WorldTransform().Position(); got != (mgl32.Vec3{1, 5, 0}) {
		t.Errorf("world position = %v, want [1 5 0]", got)
	}
	if meshes[0].Name != "leaf" {
		t.Errorf("Name = %q, want leaf", meshes[0].Name)
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"cycle", gltfFixture(`[0]`, `[{"children": [1]}, {"children": [0]}]`)},
		{"shared child", gltfFixture(`[0, 1]`, `[{"children": [2]}, {"children": [2]}, {"mesh": 0}]`)},
		{"child listed twice", gltfFixture(`[0]`, `[{"children": [1, 1]}, {"mesh": 0}]`)},
		{"root is also a child", gltfFixture(`[0, 1]`, `[{"children": [1]}, {"mesh": 0}]`)},
		{"node out of range", gltfFixture(`[4]`, `[{"mesh": 0}]`)},
		{"camera out of range", gltfFixture(`[0]`, `[{"camera": 3}]`)},
		{"wrong version", []byte(`{"asset": {"version": "1.0"}}`)},
		{"not json", []byte(`mesh`)},
		{"external buffer without base dir", []byte(`{"asset": {"version": "2.0"}, "buffers": [{"uri": "tri.bin", "byteLength": 4}]}`)},
		{"accessor past buffer", []byte(`{
			"asset": {"version": "2.0"},
			"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
			"accessors": [{"bufferView": 0, "componentType": 5126, "count": 10, "type": "VEC3"}],
			"bufferViews": [{"buffer": 0, "byteLength": 12}],
			"buffers": [{"byteLength": 12, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAA"}]
		}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newGLTFImporter().ImportBytes(tt.name, tt.data, ""); err == nil {
				t.Error("ImportBytes() succeeded, want error")
			}
		})
	}
}

func TestImportSharedNodeLattice(t *testing.T) {
	// Each pair of nodes shares the next pair as children; expanding every path would build 2^layers views.
	const layers = 24
	nodes := make([]string, 0, layers*2)
	for i := 0; i < layers; i++ {
		children := ""
		if i < layers-1 {
			children = fmt.Sprintf(`"children": [%d, %d]`, 2*i+2, 2*i+3)
		}
		nodes = append(nodes, "{"+children+"}", "{"+children+"}")
	}
	data := gltfFixture(`[0, 1]`, "["+strings.Join(nodes, ",")+"]")

	if _, err := newGLTFImporter().ImportBytes("lattice.gltf", data, ""); err == nil || !strings.Contains(err.Error(), "more than one parent") {
		t.Errorf("ImportBytes() error = %v, want shared node rejection", err)
	}
}

func TestLoaderLocal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tri.gltf"), gltfFixture(`[0]`, `[{"mesh": 0}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(BackendTypeGLTF, WithLocalModelDir(dir))
	first, err := l.Load(context.Background(), "tri.gltf")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := l.Load(context.Background(), "tri.gltf")
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if first != second {
		t.Error("second Load() did not return the cached asset")
	}
	if l.Get("tri.gltf") != first || len(l.Models()) != 1 {
		t.Error("cache does not hold the loaded asset")
	}

	l.Evict("tri.gltf")
	if l.Get("tri.gltf") != nil {
		t.Error("Evict() left the asset cached")
	}

	tests := []struct {
		ref  string
		want error
	}{
		{"../tri.gltf", ErrInvalidReference},
		{"/etc/tri.gltf", ErrInvalidReference},
		{"", ErrInvalidReference},
		{"tri.obj", ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		if _, err := l.Load(context.Background(), tt.ref); !errors.Is(err, tt.want) {
			t.Errorf("Load(%q) error = %v, want %v", tt.ref, err, tt.want)
		}
	}

	if _, err := l.Load(context.Background(), "missing.glb"); err == nil {
		t.Error("Load(missing.glb) succeeded")
	}
}

func TestLoaderRemote(t *testing.T) {
	fixture := glbFixture(`[0]`, `[{"mesh": 0}]`)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/models/tri.glb" {
			http.NotFound(w, r)
			return
		}
		w.Write(fixture)
	}))
	defer srv.Close()

	l := NewLoader(BackendTypeGLTF, WithHTTPClient(srv.Client()))
	asset, err := l.Load(context.Background(), srv.URL+"/models/tri.glb")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(scene.FindMeshes(asset.Roots)) != 1 {
		t.Error("remote asset has no mesh")
	}
	if asset.Model.Name != "fixture" {
		t.Errorf("model name = %q, want fixture", asset.Model.Name)
	}

	// URLs are never cached: a second load downloads again and the cache stays empty.
	if _, err := l.Load(context.Background(), srv.URL+"/models/tri.glb"); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
	if l.Get(srv.URL+"/models/tri.glb") != nil || len(l.Models()) != 0 {
		t.Errorf("remote asset cached: %d entries", len(l.Models()))
	}

	if _, err := l.Load(context.Background(), srv.URL+"/models/other.glb"); err == nil {
		t.Error("Load() of a 404 succeeded")
	}
}

func TestLoaderPreloadedAsset(t *testing.T) {
	asset := &Asset{Model: &model.ImportedModel{Name: "preloaded"}}
	l := NewLoader(BackendTypeGLTF, WithAsset("cube.glb", asset))
	got, err := l.Load(context.Background(), "cube.glb")
	if err != nil || got != asset {
		t.Errorf("Load() = %v, %v; want preloaded asset", got, err)
	}
}
