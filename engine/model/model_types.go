package model

import (
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the interleaved vertex layout uploaded to the GPU: position, normal, texture coordinates.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// ImportedPrimitive is one drawable piece of a mesh with a single material.
type ImportedPrimitive struct {
	// Vertices is the interleaved vertex data.
	Vertices []Vertex

	// Indices is the triangle list index buffer.
	Indices []uint32

	// MaterialIndex indexes ImportedModel.Materials, or -1 for the default material.
	MaterialIndex int
}

// ImportedMesh is a named set of primitives, referenced by index from scene nodes.
type ImportedMesh struct {
	Name       string
	Primitives []ImportedPrimitive
}

// ImportedModel is the renderable content of a model file: its meshes and materials. The node
// hierarchy that places meshes in the scene is exposed separately through the scene package.
type ImportedModel struct {
	// Name is the model identifier.
	Name string

	// Meshes is indexed by Mesh.MeshIndex.
	Meshes []ImportedMesh

	// Materials is indexed by ImportedPrimitive.MaterialIndex.
	Materials []common.ImportedMaterial
}

// Bounds returns the axis-aligned bounds of all vertices of the given meshes after applying their world
// transforms. ok is false when there are no vertices.
//
// Parameters:
//   - meshes: the placed meshes to measure
//
// Returns:
//   - mgl32.Vec3: the minimum corner
//   - mgl32.Vec3: the maximum corner
//   - bool: false when no vertex was visited
func (m *ImportedModel) Bounds(meshes []Mesh) (mgl32.Vec3, mgl32.Vec3, bool) {
	var lo, hi mgl32.Vec3
	ok := false
	for _, placed := range meshes {
		if placed.MeshIndex < 0 || placed.MeshIndex >= len(m.Meshes) {
			continue
		}
		world := placed.WorldTransform().Matrix
		for _, prim := range m.Meshes[placed.MeshIndex].Primitives {
			for _, v := range prim.Vertices {
				p := world.Mul4x1(mgl32.Vec4{v.Position[0], v.Position[1], v.Position[2], 1}).Vec3()
				if !ok {
					lo, hi, ok = p, p, true
					continue
				}
				for i := 0; i < 3; i++ {
					lo[i] = min(lo[i], p[i])
					hi[i] = max(hi[i], p[i])
				}
			}
		}
	}
	return lo, hi, ok
}
