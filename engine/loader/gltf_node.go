package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/model"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// gltfNodeView is a read-only scene.Node over a glTF node. Children are resolved once when the view
// tree is built, so traversal never touches the document's index tables.
type gltfNodeView struct {
	name     string
	local    model.Transform
	children []scene.Node
	camera   *model.Perspective
	mesh     *int
}

var _ scene.Node = &gltfNodeView{}

func (n *gltfNodeView) Name() string                    { return n.name }
func (n *gltfNodeView) LocalTransform() model.Transform { return n.local }
func (n *gltfNodeView) Children() []scene.Node          { return n.children }

func (n *gltfNodeView) Camera() (model.Perspective, bool) {
	if n.camera == nil {
		return model.Perspective{}, false
	}
	return *n.camera, true
}

func (n *gltfNodeView) Mesh() (int, bool) {
	if n.mesh == nil {
		return 0, false
	}
	return *n.mesh, true
}

// gltfSceneRoots builds node views for the document's default scene. When the document names no default
// scene the first scene is used, and when it has no scenes at all every node that is nobody's child is a
// root, in index order.
//
// Parameters:
//   - doc: the parsed document
//
// Returns:
//   - []scene.Node: the top-level nodes in declaration order
//   - error: error if a node index is out of range, the hierarchy contains a cycle or a node is reachable
//     through more than one parent
func gltfSceneRoots(doc *gltfDocument) ([]scene.Node, error) {
	var rootIndices []int
	switch {
	case doc.Scene != nil:
		if *doc.Scene < 0 || *doc.Scene >= len(doc.Scenes) {
			return nil, fmt.Errorf("default scene %d out of range", *doc.Scene)
		}
		rootIndices = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		rootIndices = doc.Scenes[0].Nodes
	default:
		isChild := make([]bool, len(doc.Nodes))
		for _, n := range doc.Nodes {
			for _, c := range n.Children {
				if c >= 0 && c < len(isChild) {
					isChild[c] = true
				}
			}
		}
		for i := range doc.Nodes {
			if !isChild[i] {
				rootIndices = append(rootIndices, i)
			}
		}
	}

	b := gltfViewBuilder{
		doc:    doc,
		onPath: make([]bool, len(doc.Nodes)),
		built:  make([]bool, len(doc.Nodes)),
	}
	roots := make([]scene.Node, 0, len(rootIndices))
	for _, idx := range rootIndices {
		view, err := b.build(idx)
		if err != nil {
			return nil, err
		}
		roots = append(roots, view)
	}
	return roots, nil
}

// gltfViewBuilder builds each node view at most once. glTF node hierarchies are strict trees, so a node
// reached a second time is either its own ancestor or shared between parents.
type gltfViewBuilder struct {
	doc    *gltfDocument
	onPath []bool
	built  []bool
}

func (b *gltfViewBuilder) build(idx int) (*gltfNodeView, error) {
	if idx < 0 || idx >= len(b.doc.Nodes) {
		return nil, fmt.Errorf("node index %d out of range", idx)
	}
	if b.onPath[idx] {
		return nil, fmt.Errorf("node %d is its own ancestor", idx)
	}
	if b.built[idx] {
		return nil, fmt.Errorf("node %d has more than one parent", idx)
	}
	b.built[idx] = true
	b.onPath[idx] = true
	defer func() { b.onPath[idx] = false }()

	n := &b.doc.Nodes[idx]
	view := &gltfNodeView{
		name:  n.Name,
		local: gltfNodeTransform(n),
		mesh:  n.Mesh,
	}

	if n.Camera != nil {
		if *n.Camera < 0 || *n.Camera >= len(b.doc.Cameras) {
			return nil, fmt.Errorf("node %d: camera index %d out of range", idx, *n.Camera)
		}
		if cam := b.doc.Cameras[*n.Camera]; cam.Type == gltfCameraTypePerspective && cam.Perspective != nil {
			view.camera = &model.Perspective{
				AspectRatio: cam.Perspective.AspectRatio,
				YFov:        cam.Perspective.Yfov,
				ZFar:        cam.Perspective.Zfar,
				ZNear:       cam.Perspective.Znear,
			}
		}
	}

	view.children = make([]scene.Node, 0, len(n.Children))
	for _, c := range n.Children {
		child, err := b.build(c)
		if err != nil {
			return nil, err
		}
		view.children = append(view.children, child)
	}
	return view, nil
}

// gltfNodeTransform returns the node's local transform: its matrix when present, otherwise T * R * S
// with glTF defaults for missing components.
func gltfNodeTransform(n *gltfNode) model.Transform {
	if n.Matrix != nil {
		return model.FromColumnMajor(*n.Matrix)
	}

	translation := [3]float32{0, 0, 0}
	rotation := [4]float32{0, 0, 0, 1}
	scale := [3]float32{1, 1, 1}
	if n.Translation != nil {
		translation = *n.Translation
	}
	if n.Rotation != nil {
		rotation = *n.Rotation
	}
	if n.Scale != nil {
		scale = *n.Scale
	}
	return model.FromTRS(translation, rotation, scale)
}
