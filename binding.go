package riptide

// Binding associates one attribute value, or the wildcard, with a Route.
// Bindings are immutable values and may be shared between routing trees and
// goroutines.
type Binding[K comparable] struct {
	attribute K
	wildcard  bool
	route     Route
}

// Attribute returns the bound attribute; ok is false for the wildcard.
func (b Binding[K]) Attribute() (attribute K, ok bool) {
	return b.attribute, !b.wildcard
}

// IsWildcard reports whether the binding applies to any attribute.
func (b Binding[K]) IsWildcard() bool {
	return b.wildcard
}

// Route returns the bound route.
func (b Binding[K]) Route() Route {
	return b.route
}

// Binder is the first half of a binding, waiting for its route.
type Binder[K comparable] struct {
	attribute K
	wildcard  bool
}

// On starts a binding for the given attribute.
func On[K comparable](attribute K) Binder[K] {
	return Binder[K]{attribute: attribute}
}

// OnContentType starts a binding for a media type or media range such as
// "application/*". It panics if value is not a valid media type.
func OnContentType(value string) Binder[MediaType] {
	return On(MustParseMediaType(value))
}

// Any starts a wildcard binding, selected when no other binding applies.
func Any[K comparable]() Binder[K] {
	return Binder[K]{wildcard: true}
}

// AnySeries is the wildcard binder for BySeries trees.
func AnySeries() Binder[Series] { return Any[Series]() }

// AnyStatus is the wildcard binder for ByStatus trees.
func AnyStatus() Binder[int] { return Any[int]() }

// AnyContentType is the wildcard binder for ByContentType trees.
func AnyContentType() Binder[MediaType] { return Any[MediaType]() }

// Call completes the binding with a route.
func (b Binder[K]) Call(route Route) Binding[K] {
	return Binding[K]{attribute: b.attribute, wildcard: b.wildcard, route: route}
}

// CallFunc completes the binding with a handler of the raw response.
func (b Binder[K]) CallFunc(handler ResponseHandler) Binding[K] {
	return b.Call(Call(handler))
}

// Pass completes the binding with the no-op route.
func (b Binder[K]) Pass() Binding[K] {
	return b.Call(Pass())
}
