package riptide

import (
	"context"
	"net/http"
	"time"
)

// LoggingPlugin logs every exchange: the request before it is sent and the
// status, or error, and latency afterwards.
type LoggingPlugin struct {
	NopPlugin
	logger Logger
}

// NewLoggingPlugin logs to logger; nil uses NewSimpleLogger.
func NewLoggingPlugin(logger Logger) *LoggingPlugin {
	if logger == nil {
		logger = NewSimpleLogger()
	}
	return &LoggingPlugin{logger: logger}
}

func (p *LoggingPlugin) Around(next RequestExecution) RequestExecution {
	return func(ctx context.Context, args RequestArguments) (*http.Response, error) {
		requestID, _ := RequestID.Get(args)
		operation, _ := OperationName.Get(args)
		attempt, _ := Attempt.Get(args)

		p.logger.Debug("Sending request",
			"requestID", requestID,
			"operation", operation,
			"method", args.Method(),
			"uri", args.URITemplate(),
			"attempt", attempt,
		)

		start := time.Now()
		resp, err := next(ctx, args)
		latency := time.Since(start)

		if err != nil {
			p.logger.Error("Request failed",
				"requestID", requestID,
				"operation", operation,
				"method", args.Method(),
				"uri", args.URITemplate(),
				"latency", latency,
				"error", err.Error(),
			)
			return resp, err
		}
		if resp == nil {
			p.logger.Warn("Received no response",
				"requestID", requestID,
				"operation", operation,
				"method", args.Method(),
				"uri", args.URITemplate(),
				"latency", latency,
			)
			return nil, nil
		}

		p.logger.Info("Received response",
			"requestID", requestID,
			"operation", operation,
			"method", args.Method(),
			"uri", args.URITemplate(),
			"status", resp.StatusCode,
			"series", SeriesOf(resp.StatusCode).String(),
			"latency", latency,
		)
		return resp, nil
	}
}
