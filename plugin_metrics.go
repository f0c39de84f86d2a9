package riptide

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// MetricsPlugin records one Prometheus observation per HTTP exchange. Place
// it inside a RetryPlugin to observe every attempt, outside to observe calls.
type MetricsPlugin struct {
	NopPlugin
	collector *MetricsCollector
}

// NewMetricsPlugin records into collector.
func NewMetricsPlugin(collector *MetricsCollector) *MetricsPlugin {
	return &MetricsPlugin{collector: collector}
}

func (p *MetricsPlugin) Around(next RequestExecution) RequestExecution {
	return func(ctx context.Context, args RequestArguments) (*http.Response, error) {
		method, host := args.Method(), hostOf(args)

		p.collector.RecordRequestStart(method, host)
		defer p.collector.RecordRequestEnd(method, host)

		start := time.Now()
		resp, err := next(ctx, args)
		p.collector.RecordRequest(method, host, statusLabel(resp), time.Since(start))

		switch {
		case err != nil:
			p.collector.RecordError(errorKind(err), method, host)
		case resp != nil && resp.StatusCode >= 500:
			p.collector.RecordError("Server", method, host)
		}
		return resp, err
	}
}

func errorKind(err error) string {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}
