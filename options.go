package riptide

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the URL relative URI templates are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		u, err := url.Parse(baseURL)
		if err != nil {
			c.baseURL = nil
			c.baseURLErr = err
			return
		}
		c.baseURL = u
		c.baseURLErr = nil
	}
}

// WithTimeout sets the request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		if hc, ok := c.httpClient.(*http.Client); ok && hc != nil {
			hc.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client == nil {
			c.httpClient = nil
			return
		}
		c.httpClient = client
		// Update timeout if it was set
		if c.timeout != 0 && client.Timeout == 0 {
			client.Timeout = c.timeout
		}
	}
}

// WithDoer sets the transport used to send requests, for example a test
// double or an instrumented client.
func WithDoer(doer HTTPDoer) Option {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithPlugins appends plugins. The first plugin is the outermost layer.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *Client) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithConverters replaces the message converters.
func WithConverters(converters ...MessageConverter) Option {
	return func(c *Client) {
		c.converters = append(Converters(nil), converters...)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateHTTPClientConfig()...)
	errors = append(errors, c.validateBaseURLConfig()...)
	errors = append(errors, c.validatePluginConfig()...)
	errors = append(errors, c.validateConverterConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &Error{
			Type:      ErrorTypeValidation,
			Message:   "configuration validation failed",
			Cause:     fmt.Errorf("validation errors: %v", errors),
			Timestamp: time.Now(),
		}
	}

	return nil
}

func (c *Client) validateHTTPClientConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	return errors
}

func (c *Client) validateBaseURLConfig() []string {
	var errors []string

	if c.baseURLErr != nil {
		errors = append(errors, fmt.Sprintf("baseURL is invalid: %v", c.baseURLErr))
	} else if c.baseURL != nil && !c.baseURL.IsAbs() {
		errors = append(errors, "baseURL must be absolute")
	}

	return errors
}

func (c *Client) validatePluginConfig() []string {
	var errors []string

	for i, plugin := range c.plugins {
		if plugin == nil {
			errors = append(errors, fmt.Sprintf("plugin[%d] cannot be nil", i))
		}
	}

	return errors
}

func (c *Client) validateConverterConfig() []string {
	var errors []string

	if len(c.converters) == 0 {
		errors = append(errors, "at least one message converter is required")
	}
	for i, converter := range c.converters {
		if converter == nil {
			errors = append(errors, fmt.Sprintf("converter[%d] cannot be nil", i))
		}
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	return errors
}
