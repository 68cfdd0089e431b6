package model

// Default perspective values applied when a glTF camera omits the optional fields.
const (
	DefaultAspectRatio float32 = 1.0
	DefaultZFar        float32 = 100.0
)

// Perspective holds the parameters of a perspective camera as stored on a scene node.
// AspectRatio and ZFar are nil when the source document omits them.
type Perspective struct {
	AspectRatio *float32
	YFov        float32
	ZFar        *float32
	ZNear       float32
}

// Camera is a perspective camera found in a scene graph.
type Camera struct {
	// ParentTransform is the transform inherited from the node's ancestors.
	ParentTransform Transform
	// Transform is the camera node's own local transform.
	Transform Transform

	AspectRatio float32
	YFov        float32
	ZFar        float32
	ZNear       float32
}

// NewCamera resolves a node's perspective parameters, applying DefaultAspectRatio and DefaultZFar for
// missing values.
//
// Parameters:
//   - p: the node's perspective parameters
//   - parent: the inherited transform
//   - local: the node's own local transform
//
// Returns:
//   - Camera: the extracted camera
func NewCamera(p Perspective, parent, local Transform) Camera {
	c := Camera{
		ParentTransform: parent,
		Transform:       local,
		AspectRatio:     DefaultAspectRatio,
		YFov:            p.YFov,
		ZFar:            DefaultZFar,
		ZNear:           p.ZNear,
	}
	if p.AspectRatio != nil {
		c.AspectRatio = *p.AspectRatio
	}
	if p.ZFar != nil {
		c.ZFar = *p.ZFar
	}
	return c
}

// WorldTransform returns the camera's transform in scene space.
func (c Camera) WorldTransform() Transform {
	return Compose(c.ParentTransform, c.Transform)
}

// Mesh is a node carrying a mesh found in a scene graph.
type Mesh struct {
	// ParentTransform is the transform inherited from the node's ancestors.
	ParentTransform Transform
	// Transform is the mesh node's own local transform.
	Transform Transform
	// MeshIndex indexes ImportedModel.Meshes.
	MeshIndex int
	// Name is the node name, possibly empty.
	Name string
}

// WorldTransform returns the mesh's transform in scene space.
func (m Mesh) WorldTransform() Transform {
	return Compose(m.ParentTransform, m.Transform)
}
