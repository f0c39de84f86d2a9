package riptide

import (
	"fmt"
	"net/http"
)

// RoutingTree is an ordered set of bindings under one navigator. A tree is a
// Route itself, so trees nest to branch on several attributes in turn.
//
// Trees are immutable once built and safe for concurrent use.
type RoutingTree[K comparable] struct {
	navigator Navigator[K]
	bindings  []Binding[K]
	wildcard  Route
}

// NewRoutingTree validates the bindings and builds a tree. At most one
// wildcard binding is allowed and no attribute may be bound twice.
func NewRoutingTree[K comparable](navigator Navigator[K], bindings ...Binding[K]) (*RoutingTree[K], error) {
	if navigator == nil {
		return nil, fmt.Errorf("%w: navigator is nil", ErrInvalidTree)
	}

	tree := &RoutingTree[K]{navigator: navigator}
	seen := make(map[K]struct{}, len(bindings))

	for i, binding := range bindings {
		if binding.route == nil {
			return nil, fmt.Errorf("%w: binding[%d] has no route", ErrInvalidTree, i)
		}
		if binding.wildcard {
			if tree.wildcard != nil {
				return nil, fmt.Errorf("%w: more than one wildcard binding", ErrInvalidTree)
			}
			tree.wildcard = binding.route
			continue
		}
		if _, dup := seen[binding.attribute]; dup {
			return nil, fmt.Errorf("%w: duplicate binding for %s", ErrInvalidTree, navigator.Format(binding.attribute))
		}
		seen[binding.attribute] = struct{}{}
		tree.bindings = append(tree.bindings, binding)
	}

	return tree, nil
}

// MustRoutingTree is like NewRoutingTree but panics on invalid bindings.
// Trees are configuration, so this is meant for package level variables.
func MustRoutingTree[K comparable](navigator Navigator[K], bindings ...Binding[K]) *RoutingTree[K] {
	tree, err := NewRoutingTree(navigator, bindings...)
	if err != nil {
		panic(err)
	}
	return tree
}

// Dispatch returns a route that evaluates a tree of the given bindings
// against the response, typically nested inside another tree. Invalid
// bindings yield a route that fails every execution with the construction
// error; use NewRoutingTree to validate eagerly.
func Dispatch[K comparable](navigator Navigator[K], bindings ...Binding[K]) Route {
	tree, err := NewRoutingTree(navigator, bindings...)
	if err != nil {
		return invalidRoute{err: err}
	}
	return tree
}

type invalidRoute struct {
	err error
}

func (r invalidRoute) Execute(*http.Response, MessageReader) error {
	return r.err
}

// Navigator returns the tree's navigator.
func (t *RoutingTree[K]) Navigator() Navigator[K] {
	return t.navigator
}

// Bindings returns the declared bindings, the wildcard last.
func (t *RoutingTree[K]) Bindings() []Binding[K] {
	out := make([]Binding[K], 0, len(t.bindings)+1)
	out = append(out, t.bindings...)
	if t.wildcard != nil {
		out = append(out, Binding[K]{wildcard: true, route: t.wildcard})
	}
	return out
}

// Merge returns a new tree where the given bindings replace bindings for the
// same attribute (or the wildcard) and are appended otherwise.
func (t *RoutingTree[K]) Merge(bindings ...Binding[K]) (*RoutingTree[K], error) {
	merged := t.Bindings()
	for _, binding := range bindings {
		replaced := false
		for i, existing := range merged {
			if existing.wildcard == binding.wildcard && (binding.wildcard || existing.attribute == binding.attribute) {
				merged[i] = binding
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, binding)
		}
	}
	return NewRoutingTree(t.navigator, merged...)
}

// Select returns the route of the best matching binding: the most specific
// applicable binding, the first declared among equally specific ones, else
// the wildcard. A *NoRouteError is returned when nothing applies.
func (t *RoutingTree[K]) Select(resp *http.Response) (Route, error) {
	key := t.navigator.Attribute(resp)

	var selected Route
	best := -1
	for _, binding := range t.bindings {
		specificity, ok := t.navigator.Match(key, binding.attribute)
		if ok && specificity > best {
			selected = binding.route
			best = specificity
		}
	}

	if selected != nil {
		return selected, nil
	}
	if t.wildcard != nil {
		return t.wildcard, nil
	}

	declared := make([]string, len(t.bindings))
	for i, binding := range t.bindings {
		declared[i] = t.navigator.Format(binding.attribute)
	}
	return nil, &NoRouteError{
		Key:        t.navigator.Format(key),
		Declared:   declared,
		StatusCode: resp.StatusCode,
	}
}

// Execute selects a route and runs it.
func (t *RoutingTree[K]) Execute(resp *http.Response, reader MessageReader) error {
	route, err := t.Select(resp)
	if err != nil {
		return err
	}
	return route.Execute(resp, reader)
}
