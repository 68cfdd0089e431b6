package scene

import "github.com/Carmen-Shannon/oxy-render/engine/model"

// CameraMatcher matches nodes carrying a perspective camera.
type CameraMatcher struct{}

var _ Matcher[model.Camera] = CameraMatcher{}

func (CameraMatcher) Evaluate(node Node, inherited model.Transform) (model.Camera, bool) {
	p, ok := node.Camera()
	if !ok {
		return model.Camera{}, false
	}
	return model.NewCamera(p, inherited, node.LocalTransform()), true
}

// MeshMatcher matches nodes carrying a mesh.
type MeshMatcher struct{}

var _ Matcher[model.Mesh] = MeshMatcher{}

func (MeshMatcher) Evaluate(node Node, inherited model.Transform) (model.Mesh, bool) {
	idx, ok := node.Mesh()
	if !ok {
		return model.Mesh{}, false
	}
	return model.Mesh{
		ParentTransform: inherited,
		Transform:       node.LocalTransform(),
		MeshIndex:       idx,
		Name:            node.Name(),
	}, true
}

// FindCamera returns the first perspective camera in the scene.
func FindCamera(roots []Node, opts ...ExtractOption) (model.Camera, bool) {
	return FindFirst[model.Camera](roots, CameraMatcher{}, opts...)
}

// FindMeshes returns every mesh node in the scene in preorder.
func FindMeshes(roots []Node, opts ...ExtractOption) []model.Mesh {
	return FindAll[model.Mesh](roots, MeshMatcher{}, opts...)
}
