package riptide

import (
	"fmt"
	"net/http"
	"strconv"
)

// Navigator extracts a classification key from a response and decides which
// declared attributes apply to that key.
//
// Match reports whether a binding declared on candidate applies to key and,
// if so, how specific the match is. When more than one binding applies, the
// one with the highest specificity wins; ties go to the first declared.
// Implementations must be stateless.
type Navigator[K comparable] interface {
	Attribute(resp *http.Response) K
	Match(key, candidate K) (specificity int, ok bool)
	Format(key K) string
}

// Series is the coarse classification of a status code.
type Series int

const (
	// SeriesNone is the series of status codes outside 100-599.
	SeriesNone Series = iota
	Informational
	Successful
	Redirection
	ClientError
	ServerError
)

// SeriesOf returns the series of the given status code.
func SeriesOf(status int) Series {
	switch status / 100 {
	case 1:
		return Informational
	case 2:
		return Successful
	case 3:
		return Redirection
	case 4:
		return ClientError
	case 5:
		return ServerError
	default:
		return SeriesNone
	}
}

func (s Series) String() string {
	switch s {
	case Informational:
		return "INFORMATIONAL"
	case Successful:
		return "SUCCESSFUL"
	case Redirection:
		return "REDIRECTION"
	case ClientError:
		return "CLIENT_ERROR"
	case ServerError:
		return "SERVER_ERROR"
	default:
		return "NONE"
	}
}

type equalityNavigator[K comparable] struct {
	attribute func(*http.Response) K
	format    func(K) string
}

func (n equalityNavigator[K]) Attribute(resp *http.Response) K {
	return n.attribute(resp)
}

func (n equalityNavigator[K]) Match(key, candidate K) (int, bool) {
	return 0, key == candidate
}

func (n equalityNavigator[K]) Format(key K) string {
	return n.format(key)
}

// NavigatorFunc builds a navigator that matches by plain equality on the key
// returned by attribute. format may be nil.
func NavigatorFunc[K comparable](attribute func(*http.Response) K, format func(K) string) Navigator[K] {
	if format == nil {
		format = func(k K) string { return formatAny(k) }
	}
	return equalityNavigator[K]{attribute: attribute, format: format}
}

var (
	seriesNavigator = equalityNavigator[Series]{
		attribute: func(resp *http.Response) Series { return SeriesOf(resp.StatusCode) },
		format:    Series.String,
	}
	statusNavigator = equalityNavigator[int]{
		attribute: func(resp *http.Response) int { return resp.StatusCode },
		format:    strconv.Itoa,
	}
	reasonNavigator = equalityNavigator[string]{
		attribute: func(resp *http.Response) string { return http.StatusText(resp.StatusCode) },
		format:    func(s string) string { return strconv.Quote(s) },
	}
)

// BySeries navigates on the status series (2xx, 4xx, ...).
func BySeries() Navigator[Series] { return seriesNavigator }

// ByStatus navigates on the exact numeric status code.
func ByStatus() Navigator[int] { return statusNavigator }

// ByReason navigates on the canonical reason phrase of the status code.
func ByReason() Navigator[string] { return reasonNavigator }

type contentTypeNavigator struct{}

// ByContentType navigates on the response content type. A missing or
// unparsable Content-Type header yields MediaTypeNone.
func ByContentType() Navigator[MediaType] { return contentTypeNavigator{} }

func (contentTypeNavigator) Attribute(resp *http.Response) MediaType {
	value := resp.Header.Get("Content-Type")
	if value == "" {
		return MediaTypeNone
	}
	mt, err := ParseMediaType(value)
	if err != nil {
		return MediaTypeNone
	}
	return mt
}

// Match ranks, from most to least specific: identical including parameters,
// identical type and subtype, a subtype or suffix range, and "*/*".
func (contentTypeNavigator) Match(key, candidate MediaType) (int, bool) {
	switch {
	case key == candidate:
		return 3, true
	case key.IsNone() || candidate.IsNone():
		return 0, false
	case candidate.EqualsTypeAndSubtype(key):
		return 2, true
	case candidate.IsWildcardType():
		return 0, true
	case candidate.Includes(key):
		return 1, true
	default:
		return 0, false
	}
}

func (contentTypeNavigator) Format(key MediaType) string {
	if key.IsNone() {
		return "<none>"
	}
	return key.String()
}

func formatAny(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
