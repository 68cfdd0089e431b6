// Package scene walks hierarchical scene descriptions to find renderable entities and the transforms
// they inherit from their ancestors.
package scene

import "github.com/Carmen-Shannon/oxy-render/engine/model"

// Node is a read-only view of one node in a scene hierarchy. Implementations are owned by whatever
// loaded the scene; the extractor never mutates them.
type Node interface {
	// Name returns the node's name, possibly empty.
	Name() string

	// LocalTransform returns the node's transform relative to its parent.
	LocalTransform() model.Transform

	// Children returns the node's children in declaration order.
	Children() []Node

	// Camera returns the node's perspective camera, if it carries one.
	Camera() (model.Perspective, bool)

	// Mesh returns the index of the node's mesh, if it carries one.
	Mesh() (int, bool)
}
