package scene

import "github.com/Carmen-Shannon/oxy-render/engine/model"

// Matcher decides whether a node is an entity of kind T. inherited is the transform accumulated from the
// node's ancestors according to the active CarryRule. FindFirst and FindAll take the matcher as a type
// parameter, so each matcher kind gets its own instantiation of the traversal.
type Matcher[T any] interface {
	Evaluate(node Node, inherited model.Transform) (T, bool)
}

// MatcherFunc adapts a plain function to the Matcher interface.
type MatcherFunc[T any] func(node Node, inherited model.Transform) (T, bool)

// Evaluate calls f(node, inherited).
func (f MatcherFunc[T]) Evaluate(node Node, inherited model.Transform) (T, bool) {
	return f(node, inherited)
}

// CarryRule selects which transform is handed to a Matcher as the inherited transform.
type CarryRule int

const (
	// CarryAncestors passes the composition of the node's strict ancestors, identity for top-level
	// nodes. A node's own transform joins the carry only when its children are visited, so an entity's
	// world transform is always ParentTransform * Transform.
	CarryAncestors CarryRule = iota

	// CarryLegacy passes a top-level node its own local transform, while descendants receive their
	// strict ancestors' composition. Kept for callers that depend on the older asymmetric behavior.
	CarryLegacy
)

func (r CarryRule) String() string {
	switch r {
	case CarryAncestors:
		return "ancestors"
	case CarryLegacy:
		return "legacy"
	}
	return "unknown"
}

type extractConfig struct {
	rule CarryRule
}

// ExtractOption configures FindFirst and FindAll.
type ExtractOption func(*extractConfig)

// WithCarryRule selects the inherited transform rule. The default is CarryAncestors.
//
// Parameters:
//   - rule: the carry rule to apply
//
// Returns:
//   - ExtractOption: option function to apply
func WithCarryRule(rule CarryRule) ExtractOption {
	return func(c *extractConfig) {
		c.rule = rule
	}
}

// FindFirst visits the scene in preorder, top-level nodes and children in declaration order, and returns
// the first entity m accepts. No node is evaluated after the first match.
//
// Parameters:
//   - roots: the scene's top-level nodes
//   - m: the entity matcher
//   - opts: extraction options
//
// Returns:
//   - T: the first matching entity
//   - bool: false if no node matched
func FindFirst[T any, M Matcher[T]](roots []Node, m M, opts ...ExtractOption) (T, bool) {
	var found T
	ok := false
	walk[T](roots, m, newConfig(opts), func(entity T) bool {
		found, ok = entity, true
		return false
	})
	return found, ok
}

// FindAll visits the whole scene in preorder and returns every entity m accepts, in visiting order.
// A scene without matches yields an empty, non-nil slice.
//
// Parameters:
//   - roots: the scene's top-level nodes
//   - m: the entity matcher
//   - opts: extraction options
//
// Returns:
//   - []T: all matching entities in preorder
func FindAll[T any, M Matcher[T]](roots []Node, m M, opts ...ExtractOption) []T {
	found := make([]T, 0)
	walk[T](roots, m, newConfig(opts), func(entity T) bool {
		found = append(found, entity)
		return true
	})
	return found
}

func newConfig(opts []ExtractOption) extractConfig {
	cfg := extractConfig{rule: CarryAncestors}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// walk drives the traversal. emit returns false to stop the walk.
func walk[T any, M Matcher[T]](roots []Node, m M, cfg extractConfig, emit func(T) bool) {
	for _, root := range roots {
		if root == nil {
			continue
		}
		local := root.LocalTransform()

		inherited := model.Identity()
		if cfg.rule == CarryLegacy {
			inherited = local
		}

		if entity, ok := m.Evaluate(root, inherited); ok && !emit(entity) {
			return
		}
		if !visit[T](root.Children(), local, m, emit) {
			return
		}
	}
}

// visit evaluates nodes with carry as their inherited transform, then descends with the node's own
// transform folded in. It returns false once emit has asked to stop.
func visit[T any, M Matcher[T]](nodes []Node, carry model.Transform, m M, emit func(T) bool) bool {
	for _, node := range nodes {
		if node == nil {
			continue
		}
		if entity, ok := m.Evaluate(node, carry); ok && !emit(entity) {
			return false
		}
		if !visit[T](node.Children(), carry.Compose(node.LocalTransform()), m, emit) {
			return false
		}
	}
	return true
}
