package renderer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/loader"
	"github.com/Carmen-Shannon/oxy-render/engine/model"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// fakeBackend records frames instead of drawing them.
type fakeBackend struct {
	mu       sync.Mutex
	frames   []Frame
	released int
	err      error
}

func (b *fakeBackend) Draw(frame Frame) (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.frames = append(b.frames, frame)
	return image.NewRGBA(image.Rect(0, 0, int(frame.Width), int(frame.Height))), nil
}

func (b *fakeBackend) Release() {
	b.mu.Lock()
	b.released++
	b.mu.Unlock()
}

func (b *fakeBackend) lastFrame(t *testing.T) Frame {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		t.Fatal("backend was not called")
	}
	return b.frames[len(b.frames)-1]
}

type node struct {
	name     string
	local    model.Transform
	children []scene.Node
	camera   *model.Perspective
	mesh     *int
}

func (n *node) Name() string                    { return n.name }
func (n *node) LocalTransform() model.Transform { return n.local }
func (n *node) Children() []scene.Node          { return n.children }

func (n *node) Camera() (model.Perspective, bool) {
	if n.camera == nil {
		return model.Perspective{}, false
	}
	return *n.camera, true
}

func (n *node) Mesh() (int, bool) {
	if n.mesh == nil {
		return 0, false
	}
	return *n.mesh, true
}

func meshNode(name string, index int, translation [3]float32) *node {
	return &node{
		name:  name,
		local: model.FromTRS(translation, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1}),
		mesh:  &index,
	}
}

func triangle(material int) model.ImportedPrimitive {
	return model.ImportedPrimitive{
		Vertices: []model.Vertex{
			{Position: [3]float32{0, 0, 0}, Normal: [3]float32{0, 0, 1}},
			{Position: [3]float32{1, 0, 0}, Normal: [3]float32{0, 0, 1}},
			{Position: [3]float32{0, 1, 0}, Normal: [3]float32{0, 0, 1}},
		},
		Indices:       []uint32{0, 1, 2},
		MaterialIndex: material,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range w {
		img.Set(i, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestContext(t *testing.T, asset *loader.Asset, options ...RendererBuilderOption) (RenderContext, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	l := loader.NewLoader(loader.BackendTypeGLTF, loader.WithAsset("scene.glb", asset))
	options = append([]RendererBuilderOption{WithBackend(backend), WithLoader(l), WithFetchWorkers(2)}, options...)
	rc, err := NewRenderContext(BackendTypeWGPU, options...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(rc.Release)
	return rc, backend
}

func twoMeshAsset() *loader.Asset {
	return &loader.Asset{
		Model: &model.ImportedModel{
			Name: "pair",
			Meshes: []model.ImportedMesh{
				{Name: "red", Primitives: []model.ImportedPrimitive{triangle(0)}},
				{Name: "plain", Primitives: []model.ImportedPrimitive{triangle(-1)}},
			},
			Materials: []common.ImportedMaterial{
				{Name: "red", BaseColor: [4]float32{1, 0, 0, 1}},
			},
		},
		Roots: []scene.Node{
			meshNode("a", 0, [3]float32{2, 0, 0}),
			meshNode("b", 1, [3]float32{0, 3, 0}),
		},
	}
}

func TestRenderInvalidSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
	}{
		{"zero width", 0, 16},
		{"zero height", 16, 0},
		{"too wide", MaxImageSize + 1, 16},
		{"too tall", 16, MaxImageSize + 1},
	}

	rc, backend := newTestContext(t, twoMeshAsset())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rc.Render(context.Background(), Request{Model: "scene.glb", Width: tt.width, Height: tt.height})
			if !errors.Is(err, ErrInvalidSize) {
				t.Fatalf("expected ErrInvalidSize, got %v", err)
			}
		})
	}
	if len(backend.frames) != 0 {
		t.Errorf("backend called %d times for invalid sizes", len(backend.frames))
	}
}

func TestNewRenderContextCarryRule(t *testing.T) {
	_, err := NewRenderContext(BackendTypeWGPU, WithBackend(&fakeBackend{}), WithCarryRule(scene.CarryLegacy))
	if !errors.Is(err, ErrUnsupportedCarryRule) {
		t.Fatalf("expected ErrUnsupportedCarryRule, got %v", err)
	}

	rc, backend := newTestContext(t, twoMeshAsset(), WithCarryRule(scene.CarryAncestors))
	if _, err := rc.Render(context.Background(), Request{Model: "scene.glb", Width: 8, Height: 8}); err != nil {
		t.Fatal(err)
	}
	// Top-level meshes carry their local translation exactly once.
	frame := backend.lastFrame(t)
	if got := frame.Draws[0].World.Col(3).Vec3(); got != (mgl32.Vec3{2, 0, 0}) {
		t.Errorf("top-level world translation %v, want [2 0 0]", got)
	}
}

func TestRenderBuildsDraws(t *testing.T) {
	rc, backend := newTestContext(t, twoMeshAsset(), WithClearColor([4]float32{0.1, 0.2, 0.3, 1}))

	img, err := rc.Render(context.Background(), Request{Model: "scene.glb", Width: 64, Height: 32})
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Fatalf("unexpected image size %v", img.Bounds())
	}

	frame := backend.lastFrame(t)
	if frame.Width != 64 || frame.Height != 32 {
		t.Errorf("frame size %dx%d", frame.Width, frame.Height)
	}
	if frame.ClearColor != [4]float32{0.1, 0.2, 0.3, 1} {
		t.Errorf("clear color %v", frame.ClearColor)
	}
	if len(frame.Draws) != 2 {
		t.Fatalf("expected 2 draws, got %d", len(frame.Draws))
	}

	red, plain := frame.Draws[0], frame.Draws[1]
	if red.BaseColor != [4]float32{1, 0, 0, 1} {
		t.Errorf("material color not applied: %v", red.BaseColor)
	}
	if plain.BaseColor != [4]float32{1, 1, 1, 1} {
		t.Errorf("default material color expected, got %v", plain.BaseColor)
	}
	if got := red.World.Col(3).Vec3(); got != (mgl32.Vec3{2, 0, 0}) {
		t.Errorf("red world translation %v", got)
	}
	if got := plain.World.Col(3).Vec3(); got != (mgl32.Vec3{0, 3, 0}) {
		t.Errorf("plain world translation %v", got)
	}
	if red.Texture != nil || plain.Texture != nil {
		t.Error("no texture expected without overrides")
	}
}

func TestRenderSceneCamera(t *testing.T) {
	asset := twoMeshAsset()
	aspect := float32(1)
	zfar := float32(50)
	asset.Roots = append(asset.Roots, &node{
		name:   "camera",
		local:  model.FromTRS([3]float32{0, 0, 5}, [4]float32{0, 0, 0, 1}, [3]float32{1, 1, 1}),
		camera: &model.Perspective{AspectRatio: &aspect, YFov: 0.8, ZFar: &zfar, ZNear: 0.1},
	})
	rc, backend := newTestContext(t, asset)

	if _, err := rc.Render(context.Background(), Request{Model: "scene.glb", Width: 200, Height: 100}); err != nil {
		t.Fatal(err)
	}

	// The projection takes the aspect of the output, not of the camera.
	want := common.Perspective(0.8, 2, 0.1, 50).Mul4(mgl32.Translate3D(0, 0, -5))
	if got := backend.lastFrame(t).ViewProjection; !got.ApproxEqualThreshold(want, 1e-4) {
		t.Errorf("view projection\n got %v\nwant %v", got, want)
	}
}

func TestRenderTextureOverrides(t *testing.T) {
	t.Run("per material", func(t *testing.T) {
		rc, backend := newTestContext(t, twoMeshAsset())
		req := Request{
			Model:    "scene.glb",
			Width:    8,
			Height:   8,
			Textures: []Texture{{Data: pngBytes(t, 2, 3)}, {Data: pngBytes(t, 4, 4)}},
		}
		if _, err := rc.Render(context.Background(), req); err != nil {
			t.Fatal(err)
		}

		frame := backend.lastFrame(t)
		tex := frame.Draws[0].Texture
		if tex == nil || tex.Width != 2 || tex.Height != 3 {
			t.Fatalf("material 0 texture not overridden: %+v", tex)
		}
		if frame.Draws[1].Texture != nil {
			t.Error("primitive without material must not take an override when the model has materials")
		}
	})

	t.Run("model without materials", func(t *testing.T) {
		asset := &loader.Asset{
			Model: &model.ImportedModel{
				Name:   "bare",
				Meshes: []model.ImportedMesh{{Name: "tri", Primitives: []model.ImportedPrimitive{triangle(-1)}}},
			},
			Roots: []scene.Node{meshNode("tri", 0, [3]float32{})},
		}
		rc, backend := newTestContext(t, asset)
		req := Request{Model: "scene.glb", Width: 8, Height: 8, Textures: []Texture{{Data: pngBytes(t, 5, 1)}}}
		if _, err := rc.Render(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		if tex := backend.lastFrame(t).Draws[0].Texture; tex == nil || tex.Width != 5 {
			t.Fatalf("default material texture not applied: %+v", tex)
		}
	})

	t.Run("undecodable", func(t *testing.T) {
		rc, _ := newTestContext(t, twoMeshAsset())
		req := Request{Model: "scene.glb", Width: 8, Height: 8, Textures: []Texture{{Data: []byte("not an image")}}}
		if _, err := rc.Render(context.Background(), req); err == nil {
			t.Fatal("expected decode error")
		}
	})
}

func TestRenderFetchesTextureURL(t *testing.T) {
	body := pngBytes(t, 3, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wood.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	rc, backend := newTestContext(t, twoMeshAsset(), WithHTTPClient(srv.Client()))

	req := Request{Model: "scene.glb", Width: 8, Height: 8, Textures: []Texture{{URL: srv.URL + "/wood.png"}}}
	if _, err := rc.Render(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if tex := backend.lastFrame(t).Draws[0].Texture; tex == nil || tex.Width != 3 || tex.Height != 2 {
		t.Fatalf("fetched texture not applied: %+v", tex)
	}

	req.Textures = []Texture{{URL: srv.URL + "/missing.png"}}
	if _, err := rc.Render(context.Background(), req); err == nil {
		t.Fatal("expected error for missing texture")
	}
}

func TestRenderErrors(t *testing.T) {
	drawErr := errors.New("device lost")

	rc, backend := newTestContext(t, twoMeshAsset())

	if _, err := rc.Render(context.Background(), Request{Model: "../escape.glb", Width: 8, Height: 8}); !errors.Is(err, loader.ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}

	backend.err = drawErr
	if _, err := rc.Render(context.Background(), Request{Model: "scene.glb", Width: 8, Height: 8}); !errors.Is(err, drawErr) {
		t.Errorf("expected backend error, got %v", err)
	}
}
