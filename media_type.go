package riptide

import (
	"fmt"
	"mime"
	"sort"
	"strings"
)

// MediaType is a parsed, comparable media type such as "application/json;charset=utf-8".
// Type, subtype and parameter names are lower-cased. The zero value is MediaTypeNone.
type MediaType struct {
	Type    string
	Subtype string
	params  string
}

// Well-known media types.
var (
	MediaTypeNone          = MediaType{}
	MediaTypeAll           = MediaType{Type: "*", Subtype: "*"}
	ApplicationJSON        = MediaType{Type: "application", Subtype: "json"}
	ApplicationProblemJSON = MediaType{Type: "application", Subtype: "problem+json"}
	ApplicationYAML        = MediaType{Type: "application", Subtype: "yaml"}
	ApplicationXYAML       = MediaType{Type: "application", Subtype: "x-yaml"}
	ApplicationXJSONStream = MediaType{Type: "application", Subtype: "x-json-stream"}
	ApplicationJSONSeq     = MediaType{Type: "application", Subtype: "json-seq"}
	ApplicationNDJSON      = MediaType{Type: "application", Subtype: "x-ndjson"}
	ApplicationOctetStream = MediaType{Type: "application", Subtype: "octet-stream"}
	TextPlain              = MediaType{Type: "text", Subtype: "plain"}
	TextYAML               = MediaType{Type: "text", Subtype: "yaml"}
)

// ParseMediaType parses a Content-Type or Accept style value. A lone "*" is
// read as "*/*".
func ParseMediaType(value string) (MediaType, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return MediaTypeNone, fmt.Errorf("riptide: empty media type")
	}
	if value == "*" || strings.HasPrefix(value, "*;") {
		value = "*/*" + strings.TrimPrefix(value, "*")
	}

	full, params, err := mime.ParseMediaType(value)
	if err != nil {
		return MediaTypeNone, fmt.Errorf("riptide: invalid media type %q: %w", value, err)
	}

	typ, subtype, ok := strings.Cut(full, "/")
	if !ok || typ == "" || subtype == "" {
		return MediaTypeNone, fmt.Errorf("riptide: invalid media type %q: missing subtype", value)
	}
	if typ == "*" && subtype != "*" {
		return MediaTypeNone, fmt.Errorf("riptide: invalid media type %q: wildcard type with concrete subtype", value)
	}

	return MediaType{Type: typ, Subtype: subtype, params: encodeParams(params)}, nil
}

// MustParseMediaType is like ParseMediaType but panics on invalid input.
func MustParseMediaType(value string) MediaType {
	mt, err := ParseMediaType(value)
	if err != nil {
		panic(err)
	}
	return mt
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// IsNone reports whether m is the absent media type.
func (m MediaType) IsNone() bool {
	return m == MediaTypeNone
}

// IsWildcardType reports whether the type is "*".
func (m MediaType) IsWildcardType() bool {
	return m.Type == "*"
}

// IsWildcardSubtype reports whether the subtype is "*" or a "*+suffix" range.
func (m MediaType) IsWildcardSubtype() bool {
	return m.Subtype == "*" || strings.HasPrefix(m.Subtype, "*+")
}

// Suffix returns the structured syntax suffix ("json" for "vnd.api+json").
func (m MediaType) Suffix() string {
	if i := strings.LastIndexByte(m.Subtype, '+'); i >= 0 {
		return m.Subtype[i+1:]
	}
	return ""
}

// Param returns the value of the named parameter.
func (m MediaType) Param(name string) string {
	name = strings.ToLower(name)
	for _, kv := range strings.Split(m.params, ";") {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v
		}
	}
	return ""
}

// Params returns a copy of all parameters.
func (m MediaType) Params() map[string]string {
	params := make(map[string]string)
	if m.params == "" {
		return params
	}
	for _, kv := range strings.Split(m.params, ";") {
		if k, v, ok := strings.Cut(kv, "="); ok {
			params[k] = v
		}
	}
	return params
}

// Charset returns the charset parameter, if any.
func (m MediaType) Charset() string {
	return m.Param("charset")
}

// WithParam returns a copy of m with the parameter set.
func (m MediaType) WithParam(name, value string) MediaType {
	params := m.Params()
	params[strings.ToLower(name)] = value
	m.params = encodeParams(params)
	return m
}

// WithoutParams returns m without parameters.
func (m MediaType) WithoutParams() MediaType {
	m.params = ""
	return m
}

// EqualsTypeAndSubtype compares m and other ignoring parameters.
func (m MediaType) EqualsTypeAndSubtype(other MediaType) bool {
	return m.Type == other.Type && m.Subtype == other.Subtype
}

// Includes reports whether m, read as a media range, includes other.
// "application/*" includes "application/json" and "application/*+json"
// includes "application/vnd.api+json". Parameters are ignored.
func (m MediaType) Includes(other MediaType) bool {
	if m.IsNone() || other.IsNone() {
		return false
	}
	if m.IsWildcardType() {
		return true
	}
	if m.Type != other.Type {
		return false
	}
	if m.Subtype == other.Subtype || m.Subtype == "*" {
		return true
	}
	if strings.HasPrefix(m.Subtype, "*+") {
		return other.Suffix() != "" && other.Suffix() == m.Suffix()
	}
	return false
}

// String renders the media type with its parameters.
func (m MediaType) String() string {
	if m.IsNone() {
		return ""
	}
	if m.params == "" {
		return m.Type + "/" + m.Subtype
	}
	return m.Type + "/" + m.Subtype + ";" + m.params
}
