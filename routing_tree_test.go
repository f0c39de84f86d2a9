package riptide

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesOf(t *testing.T) {
	tests := []struct {
		status int
		want   Series
	}{
		{100, Informational},
		{204, Successful},
		{302, Redirection},
		{404, ClientError},
		{503, ServerError},
		{99, SeriesNone},
		{600, SeriesNone},
	}
	for _, tt := range tests {
		if got := SeriesOf(tt.status); got != tt.want {
			t.Errorf("Expected SeriesOf(%d)=%v, got %v", tt.status, tt.want, got)
		}
	}
	if ServerError.String() != "SERVER_ERROR" {
		t.Errorf("Expected SERVER_ERROR, got %s", ServerError.String())
	}
}

func TestRoutingTreeSelectsExactlyOneRoute(t *testing.T) {
	var calls []string
	tree := MustRoutingTree(BySeries(),
		On(Successful).Call(recordingRoute{"ok", &calls}),
		On(ClientError).Call(recordingRoute{"client", &calls}),
		AnySeries().Call(recordingRoute{"any", &calls}),
	)

	require.NoError(t, tree.Execute(response(201, "", ""), DefaultConverters()))
	require.NoError(t, tree.Execute(response(404, "", ""), DefaultConverters()))
	require.NoError(t, tree.Execute(response(503, "", ""), DefaultConverters()))

	assert.Equal(t, []string{"ok", "client", "any"}, calls)
}

func TestRoutingTreeNoRoute(t *testing.T) {
	tree := MustRoutingTree(BySeries(),
		On(Successful).Pass(),
		On(ClientError).Pass(),
	)

	err := tree.Execute(response(503, "", ""), DefaultConverters())

	var noRoute *NoRouteError
	require.ErrorAs(t, err, &noRoute)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, "SERVER_ERROR", noRoute.Key)
	assert.Equal(t, []string{"SUCCESSFUL", "CLIENT_ERROR"}, noRoute.Declared)
	assert.Equal(t, 503, noRoute.StatusCode)
}

func TestRoutingTreeRejectsDuplicates(t *testing.T) {
	_, err := NewRoutingTree(ByStatus(),
		On(200).Pass(),
		On(200).Pass(),
	)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewRoutingTree(ByStatus(),
		AnyStatus().Pass(),
		AnyStatus().Pass(),
	)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewRoutingTree[int](nil)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewRoutingTree(ByStatus(), On(200).Call(nil))
	assert.ErrorIs(t, err, ErrInvalidTree)
}

func TestMustRoutingTreePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustRoutingTree(ByStatus(), On(200).Pass(), On(200).Pass())
	})
}

func TestRoutingTreeWildcardOrderIndependent(t *testing.T) {
	var calls []string
	tree := MustRoutingTree(ByStatus(),
		AnyStatus().Call(recordingRoute{"any", &calls}),
		On(http.StatusNotFound).Call(recordingRoute{"404", &calls}),
	)

	require.NoError(t, tree.Execute(response(404, "", ""), DefaultConverters()))
	require.NoError(t, tree.Execute(response(410, "", ""), DefaultConverters()))

	assert.Equal(t, []string{"404", "any"}, calls)
	bindings := tree.Bindings()
	require.Len(t, bindings, 2)
	assert.True(t, bindings[1].IsWildcard(), "wildcard is reported last")
}

func TestContentTypeSpecificity(t *testing.T) {
	var calls []string
	tree := MustRoutingTree(ByContentType(),
		OnContentType("*/*").Call(recordingRoute{"all", &calls}),
		OnContentType("application/*").Call(recordingRoute{"application", &calls}),
		OnContentType("application/*+json").Call(recordingRoute{"json-suffix", &calls}),
		OnContentType("application/json").Call(recordingRoute{"json", &calls}),
		OnContentType("application/json;charset=utf-8").Call(recordingRoute{"json-utf8", &calls}),
	)

	tests := []struct {
		contentType string
		want        string
	}{
		{"application/json;charset=utf-8", "json-utf8"},
		{"application/json;charset=iso-8859-1", "json"},
		{"application/json", "json"},
		{"application/vnd.api+json", "application"},
		{"application/xml", "application"},
		{"text/plain", "all"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			calls = nil
			require.NoError(t, tree.Execute(response(200, tt.contentType, ""), DefaultConverters()))
			assert.Equal(t, []string{tt.want}, calls)
		})
	}
}

func TestContentTypeFirstDeclaredWinsTies(t *testing.T) {
	var calls []string
	tree := MustRoutingTree(ByContentType(),
		OnContentType("application/*+json").Call(recordingRoute{"suffix", &calls}),
		OnContentType("application/*").Call(recordingRoute{"application", &calls}),
	)

	require.NoError(t, tree.Execute(response(200, "application/problem+json", ""), DefaultConverters()))
	assert.Equal(t, []string{"suffix"}, calls)
}

func TestContentTypeNone(t *testing.T) {
	var calls []string
	tree := MustRoutingTree(ByContentType(),
		OnContentType("*/*").Call(recordingRoute{"all", &calls}),
		On(MediaTypeNone).Call(recordingRoute{"none", &calls}),
	)

	require.NoError(t, tree.Execute(response(204, "", ""), DefaultConverters()))
	require.NoError(t, tree.Execute(response(200, "not a media type", ""), DefaultConverters()))
	assert.Equal(t, []string{"none", "none"}, calls)

	withoutNone := MustRoutingTree(ByContentType(), OnContentType("*/*").Pass())
	err := withoutNone.Execute(response(204, "", ""), DefaultConverters())
	assert.ErrorIs(t, err, ErrNoRoute, "a media range never matches a missing content type")
}

func TestNestedDispatch(t *testing.T) {
	var calls []string
	tree := MustRoutingTree(BySeries(),
		On(Successful).Call(Dispatch(ByStatus(),
			On(http.StatusCreated).Call(recordingRoute{"created", &calls}),
			AnyStatus().Call(recordingRoute{"other-2xx", &calls}),
		)),
		On(ClientError).Call(Dispatch(ByReason(),
			On("Not Found").Call(recordingRoute{"not-found", &calls}),
		)),
	)

	require.NoError(t, tree.Execute(response(201, "", ""), DefaultConverters()))
	require.NoError(t, tree.Execute(response(200, "", ""), DefaultConverters()))
	require.NoError(t, tree.Execute(response(404, "", ""), DefaultConverters()))

	err := tree.Execute(response(409, "", ""), DefaultConverters())
	var noRoute *NoRouteError
	require.ErrorAs(t, err, &noRoute)
	assert.Equal(t, `"Conflict"`, noRoute.Key)

	assert.Equal(t, []string{"created", "other-2xx", "not-found"}, calls)
}

func TestDispatchWithInvalidBindingsFailsOnExecute(t *testing.T) {
	route := Dispatch(ByStatus(), On(200).Pass(), On(200).Pass())

	err := route.Execute(response(200, "", ""), DefaultConverters())
	assert.ErrorIs(t, err, ErrInvalidTree)
}

func TestRoutingTreeMerge(t *testing.T) {
	var calls []string
	base := MustRoutingTree(BySeries(),
		On(Successful).Call(recordingRoute{"base-ok", &calls}),
		AnySeries().Call(recordingRoute{"base-any", &calls}),
	)

	merged, err := base.Merge(
		On(Successful).Call(recordingRoute{"merged-ok", &calls}),
		On(ServerError).Call(recordingRoute{"merged-5xx", &calls}),
	)
	require.NoError(t, err)

	require.NoError(t, merged.Execute(response(200, "", ""), DefaultConverters()))
	require.NoError(t, merged.Execute(response(500, "", ""), DefaultConverters()))
	require.NoError(t, merged.Execute(response(302, "", ""), DefaultConverters()))
	require.NoError(t, base.Execute(response(200, "", ""), DefaultConverters()))

	assert.Equal(t, []string{"merged-ok", "merged-5xx", "base-any", "base-ok"}, calls)
}

func TestNavigatorFunc(t *testing.T) {
	byHeader := NavigatorFunc(func(resp *http.Response) string {
		return resp.Header.Get("X-Kind")
	}, nil)

	var calls []string
	tree := MustRoutingTree(byHeader,
		On("a").Call(recordingRoute{"a", &calls}),
	)

	resp := response(200, "", "")
	resp.Header.Set("X-Kind", "a")
	require.NoError(t, tree.Execute(resp, DefaultConverters()))
	assert.Equal(t, []string{"a"}, calls)

	resp.Header.Set("X-Kind", "b")
	err := tree.Execute(resp, DefaultConverters())
	var noRoute *NoRouteError
	require.True(t, errors.As(err, &noRoute))
	assert.Equal(t, "b", noRoute.Key)
}
