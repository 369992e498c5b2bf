package policy

import (
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry delay parameters for remote API calls.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultFactor       = 2.0
	DefaultJitter       = 0.3
)

// BackoffConfig computes retry delays: exponential growth capped at Max,
// then scaled by up to ±JitterFactor so simultaneous invocations spread
// out instead of retrying in lockstep.
type BackoffConfig struct {
	Initial      time.Duration
	Max          time.Duration
	Factor       float64
	JitterFactor float64

	// Rand returns a value in [0, 1). Defaults to math/rand's global
	// source; tests inject a fixed function.
	Rand func() float64
}

// DefaultBackoff returns the built-in delay parameters.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:      DefaultInitialDelay,
		Max:          DefaultMaxDelay,
		Factor:       DefaultFactor,
		JitterFactor: DefaultJitter,
	}
}

// Delay returns the wait before retry number attempt, starting at zero.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	d := float64(c.Initial) * math.Pow(c.Factor, float64(attempt))
	if limit := float64(c.Max); d > limit {
		d = limit
	}

	r := rand.Float64
	if c.Rand != nil {
		r = c.Rand
	}
	d *= 1 + c.JitterFactor*(r()-0.5)*2
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// DelaySeconds returns Delay rounded to whole seconds, as reported in
// retry decisions.
func (c BackoffConfig) DelaySeconds(attempt int) int {
	return int(c.Delay(attempt).Round(time.Second) / time.Second)
}

// New builds the equivalent backoff.ExponentialBackOff for callers that
// retry through backoff.Retry. BackOff implementations are stateful;
// always use a fresh instance per operation.
func (c BackoffConfig) New() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.Initial
	bo.MaxInterval = c.Max
	bo.Multiplier = c.Factor
	bo.RandomizationFactor = c.JitterFactor
	bo.MaxElapsedTime = 0
	return bo
}
