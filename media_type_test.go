package riptide

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMediaType(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    MediaType
		charset string
	}{
		{"plain", "application/json", ApplicationJSON, ""},
		{"case folded", "Application/JSON", ApplicationJSON, ""},
		{"with charset", "text/plain; charset=UTF-8", TextPlain.WithParam("charset", "UTF-8"), "UTF-8"},
		{"lone star", "*", MediaTypeAll, ""},
		{"suffix", "application/problem+json", ApplicationProblemJSON, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMediaType(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.charset, got.Charset())
		})
	}
}

func TestParseMediaTypeInvalid(t *testing.T) {
	for _, value := range []string{"", "json", "*/json", "application/"} {
		t.Run(value, func(t *testing.T) {
			_, err := ParseMediaType(value)
			assert.Error(t, err)
		})
	}
}

func TestMustParseMediaTypePanics(t *testing.T) {
	assert.Panics(t, func() { MustParseMediaType("not a media type") })
}

func TestMediaTypeIncludes(t *testing.T) {
	tests := []struct {
		rng   string
		other string
		want  bool
	}{
		{"*/*", "application/json", true},
		{"application/*", "application/json", true},
		{"application/*", "text/plain", false},
		{"application/*+json", "application/vnd.api+json", true},
		{"application/*+json", "application/json", false},
		{"application/json", "application/json;charset=utf-8", true},
		{"application/json", "application/xml", false},
	}

	for _, tt := range tests {
		t.Run(tt.rng+" includes "+tt.other, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseMediaType(tt.rng).Includes(MustParseMediaType(tt.other)))
		})
	}

	assert.False(t, MediaTypeAll.Includes(MediaTypeNone), "no range includes the absent media type")
}

func TestMediaTypeParams(t *testing.T) {
	mt := MustParseMediaType("application/json; charset=utf-8; profile=x")

	assert.Equal(t, "utf-8", mt.Param("Charset"))
	assert.Equal(t, map[string]string{"charset": "utf-8", "profile": "x"}, mt.Params())
	assert.Equal(t, "application/json;charset=utf-8;profile=x", mt.String())
	assert.Equal(t, ApplicationJSON, mt.WithoutParams())
	assert.True(t, mt.EqualsTypeAndSubtype(ApplicationJSON))
	assert.Equal(t, "", MediaTypeNone.String())
}

func TestMediaTypeSuffix(t *testing.T) {
	assert.Equal(t, "json", ApplicationProblemJSON.Suffix())
	assert.Equal(t, "", ApplicationJSON.Suffix())
	assert.True(t, MustParseMediaType("application/*+json").IsWildcardSubtype())
}
