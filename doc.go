// Package riptide is an HTTP client that routes responses instead of
// returning them.
//
// Every call is dispatched against a routing tree. A tree branches on one
// attribute of the response (status series, status code, reason phrase or
// content type) and binds each value to a route:
//
//   - Pass, Call and Run handle the raw response
//   - To, Entity and Into convert the body through the client's converters
//   - Stream decodes a sequence of JSON values as they arrive
//   - Propagate and Fail turn a response into an error
//   - Dispatch nests another tree
//
// A tree picks the most specific binding, the first declared one among
// equally specific bindings, and falls back to its wildcard. A response
// nothing matches fails the call with a *NoRouteError.
//
// Typical usage:
//
//	client := riptide.New(
//	    riptide.WithBaseURL("https://api.example.com"),
//	    riptide.WithPlugins(
//	        riptide.NewRequestIDPlugin(""),
//	        riptide.NewRetryPlugin(nil),
//	        riptide.NewCircuitBreakerPlugin("api", riptide.CircuitBreakerConfig{}),
//	    ),
//	)
//
//	user := riptide.NewCapture[User]()
//	future := client.Get("/users/{id}", 42).Dispatch(riptide.Dispatch(riptide.BySeries(),
//	    riptide.On(riptide.Successful).Call(riptide.Into(user)),
//	    riptide.On(riptide.ClientError).Call(riptide.ProblemRoute),
//	    riptide.AnySeries().Call(riptide.Fail()),
//	))
//	u, err := user.Adapt(future).Get(ctx)
//
// Dispatch never blocks and never fails synchronously: every failure,
// including invalid configuration, surfaces on the returned Future. The
// response body is closed once routing finished, whatever the outcome.
//
// Plugins wrap each exchange. Prepare hooks run in registration order; the
// first registered plugin is the outermost Around layer. The client, its
// routes and its plugins are safe for concurrent use.
package riptide
