// Package backoff computes retry delays.
package backoff

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Params bounds a backoff sequence.
type Params struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction, in [0, 1], of each delay that is randomised.
	Jitter float64
}

// Strategy returns the delay before retry number attempt, counting from 0.
type Strategy interface {
	Delay(attempt int, p Params) time.Duration
	Name() string
}

// Strategy names accepted by ForName.
const (
	NameExponentialJitter  = "exponential-jitter"
	NameDecorrelatedJitter = "decorrelated-jitter"
	NameConstant           = "constant"
)

// ForName returns the strategy registered under name. The empty name
// selects exponential jitter.
func ForName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameExponentialJitter:
		return ExponentialJitter{}, nil
	case NameDecorrelatedJitter:
		return DecorrelatedJitter{}, nil
	case NameConstant:
		return Constant{}, nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", name)
	}
}

// ExponentialJitter grows the delay by Multiplier per attempt and adds up to
// Jitter of it at random, never exceeding Max.
type ExponentialJitter struct{}

func (ExponentialJitter) Name() string { return NameExponentialJitter }

func (ExponentialJitter) Delay(attempt int, p Params) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(p.Initial) * Pow(p.Multiplier, attempt))
	if delay < 0 || delay > p.Max {
		delay = p.Max
	}

	if jitter := clampJitter(p.Jitter); jitter > 0 {
		delay += time.Duration(float64(delay) * jitter * rand.Float64())
		if delay > p.Max {
			delay = p.Max
		}
	}
	return delay
}

// DecorrelatedJitter draws uniformly from [Initial, min(Max, Initial*3^attempt)].
// The first attempt always waits Initial.
type DecorrelatedJitter struct{}

func (DecorrelatedJitter) Name() string { return NameDecorrelatedJitter }

func (DecorrelatedJitter) Delay(attempt int, p Params) time.Duration {
	if attempt <= 0 {
		return p.Initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(p.Initial)
	upper := base * Pow(3.0, attempt)
	if upper > float64(p.Max) || upper < 0 {
		upper = float64(p.Max)
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > p.Max {
		delay = p.Max
	}
	return delay
}

// Constant always waits Initial.
type Constant struct{}

func (Constant) Name() string { return NameConstant }

func (Constant) Delay(_ int, p Params) time.Duration {
	return p.Initial
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow computes base^exponent for small non-negative exponents.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
