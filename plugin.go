package riptide

import (
	"context"
	"net/http"
)

// RequestExecution sends prepared arguments and returns the response.
type RequestExecution func(ctx context.Context, args RequestArguments) (*http.Response, error)

// Plugin is a cross-cutting wrapper around request preparation and
// execution. Prepare runs before sending, in registration order, each plugin
// receiving the previous one's output. Around wraps the execution; the first
// registered plugin is the outermost layer, so its pre-send logic runs first
// and its post-send logic runs last.
type Plugin interface {
	Prepare(args RequestArguments) RequestArguments
	Around(next RequestExecution) RequestExecution
}

// NopPlugin does nothing; embed it to implement only one hook.
type NopPlugin struct{}

func (NopPlugin) Prepare(args RequestArguments) RequestArguments { return args }

func (NopPlugin) Around(next RequestExecution) RequestExecution { return next }

// PrepareFunc is a plugin with only a Prepare hook.
type PrepareFunc func(args RequestArguments) RequestArguments

func (f PrepareFunc) Prepare(args RequestArguments) RequestArguments { return f(args) }

func (PrepareFunc) Around(next RequestExecution) RequestExecution { return next }

// AroundFunc is a plugin with only an Around hook.
type AroundFunc func(next RequestExecution) RequestExecution

func (AroundFunc) Prepare(args RequestArguments) RequestArguments { return args }

func (f AroundFunc) Around(next RequestExecution) RequestExecution { return f(next) }

// compose folds the plugins around the innermost execution, last plugin
// innermost. It runs once, when the client is built. Nil plugins are
// skipped; configuration validation reports them.
func compose(plugins []Plugin, execution RequestExecution) RequestExecution {
	current := execution
	for i := len(plugins) - 1; i >= 0; i-- {
		if plugins[i] == nil {
			continue
		}
		current = plugins[i].Around(current)
	}
	return current
}

func prepare(plugins []Plugin, args RequestArguments) RequestArguments {
	for _, plugin := range plugins {
		if plugin == nil {
			continue
		}
		args = plugin.Prepare(args)
	}
	return args
}
