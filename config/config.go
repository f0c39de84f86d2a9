// Package config describes riptide clients in YAML and builds them.
//
// A document has an optional defaults section and a map of named clients.
// Every client starts from the defaults and overrides what it sets:
//
//	defaults:
//	  timeout: 5s
//	  retry:
//	    enabled: true
//	clients:
//	  users:
//	    base-url: https://users.example.com
//	    circuit-breaker:
//	      enabled: true
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/whiskeysierra/riptide/internal/backoff"
)

// Config is a parsed document.
type Config struct {
	Defaults ClientConfig
	Clients  map[string]ClientConfig
}

// ClientConfig configures one client and its plugins.
type ClientConfig struct {
	BaseURL        string               `yaml:"base-url"`
	Timeout        time.Duration        `yaml:"timeout"`
	Headers        map[string]string    `yaml:"headers"`
	Debug          bool                 `yaml:"debug"`
	RequestID      RequestIDConfig      `yaml:"request-id"`
	Logging        Toggle               `yaml:"logging"`
	Metrics        Toggle               `yaml:"metrics"`
	Tracing        Toggle               `yaml:"tracing"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit-breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate-limit"`
}

// Toggle is a section that can only be switched on.
type Toggle struct {
	Enabled bool `yaml:"enabled"`
}

type RequestIDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header"`
}

type RetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxRetries     int           `yaml:"max-retries"`
	InitialBackoff time.Duration `yaml:"initial-backoff"`
	MaxBackoff     time.Duration `yaml:"max-backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	Jitter         float64       `yaml:"jitter"`
	Strategy       string        `yaml:"strategy"`
	Budget         BudgetConfig  `yaml:"budget"`
}

// BudgetConfig caps retries per window; zero MaxRetries disables it.
type BudgetConfig struct {
	MaxRetries int           `yaml:"max-retries"`
	Window     time.Duration `yaml:"window"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure-threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery-timeout"`
	SuccessThreshold int           `yaml:"success-threshold"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Burst   int     `yaml:"burst"`
	Wait    bool    `yaml:"wait"`
	// Key is "host" (the default) or "operation".
	Key string `yaml:"key"`
}

type document struct {
	Defaults yaml.Node            `yaml:"defaults"`
	Clients  map[string]yaml.Node `yaml:"clients"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse parses a document and validates every client.
func Parse(data []byte) (*Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{Clients: make(map[string]ClientConfig, len(doc.Clients))}
	if err := decodeDefaults(&doc.Defaults, &cfg.Defaults); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	for name, node := range doc.Clients {
		// Decoding the defaults afresh keeps clients from sharing maps.
		var client ClientConfig
		if err := decodeDefaults(&doc.Defaults, &client); err != nil {
			return nil, fmt.Errorf("config: defaults: %w", err)
		}
		if err := node.Decode(&client); err != nil {
			return nil, fmt.Errorf("config: client %q: %w", name, err)
		}
		cfg.Clients[name] = client
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeDefaults(node *yaml.Node, out *ClientConfig) error {
	if node.Kind == 0 {
		return nil
	}
	return node.Decode(out)
}

// Names returns the client names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Clients))
	for name := range c.Clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports every problem of every client.
func (c *Config) Validate() error {
	var errors []string
	for _, name := range c.Names() {
		for _, problem := range c.Clients[name].validate() {
			errors = append(errors, fmt.Sprintf("%s: %s", name, problem))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("config: validation errors: %v", errors)
	}
	return nil
}

func (c ClientConfig) validate() []string {
	var errors []string

	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || !u.IsAbs() {
			errors = append(errors, fmt.Sprintf("base-url %q must be an absolute URL", c.BaseURL))
		}
	}
	if c.Timeout < 0 {
		errors = append(errors, "timeout must not be negative")
	}

	if c.Retry.Enabled {
		if c.Retry.MaxRetries < 0 {
			errors = append(errors, "retry.max-retries must be non-negative")
		}
		if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
			errors = append(errors, "retry backoff must not be negative")
		}
		if c.Retry.MaxBackoff > 0 && c.Retry.MaxBackoff < c.Retry.InitialBackoff {
			errors = append(errors, "retry.max-backoff must be greater than or equal to retry.initial-backoff")
		}
		if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
			errors = append(errors, "retry.jitter must be between 0 and 1")
		}
		if _, err := backoff.ForName(c.Retry.Strategy); err != nil {
			errors = append(errors, err.Error())
		}
		if c.Retry.Budget.MaxRetries > 0 && c.Retry.Budget.Window <= 0 {
			errors = append(errors, "retry.budget.window must be positive when a budget is set")
		}
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold < 0 || c.CircuitBreaker.SuccessThreshold < 0 {
			errors = append(errors, "circuit-breaker thresholds must not be negative")
		}
		if c.CircuitBreaker.RecoveryTimeout < 0 {
			errors = append(errors, "circuit-breaker.recovery-timeout must not be negative")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			errors = append(errors, "rate-limit.rate must be positive")
		}
		switch c.RateLimit.Key {
		case "", "host", "operation":
		default:
			errors = append(errors, fmt.Sprintf("rate-limit.key %q must be host or operation", c.RateLimit.Key))
		}
	}

	return errors
}
