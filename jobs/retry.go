package jobs

import (
	"math"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"
)

// Strategy selects how retry delays grow with the attempt count.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// jitterFraction bounds the random spread applied to a computed delay.
const jitterFraction = 0.1

// RetryPolicy computes retry delays for failed tasks. The zero value is not
// usable; construct one with NewRetryPolicy or set BaseDelay and MaxDelay.
type RetryPolicy struct {
	Strategy  Strategy
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Factor is the exponential growth multiplier. Defaults to 2.
	Factor float64
	// Increment is the linear per-attempt step. Defaults to BaseDelay.
	Increment time.Duration
	Jitter    bool

	// randFloat is swapped in tests for a deterministic source.
	randFloat func() float64
}

// NewRetryPolicy returns an exponential policy with jitter enabled.
func NewRetryPolicy(base, max time.Duration) RetryPolicy {
	return RetryPolicy{
		Strategy:  StrategyExponential,
		BaseDelay: base,
		MaxDelay:  max,
		Factor:    2,
		Jitter:    true,
	}
}

// Delay returns how long to wait before the given retry attempt. Attempt
// counting starts at zero. The result is capped at MaxDelay and never drops
// below BaseDelay, jitter included.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	base := float64(p.BaseDelay)
	var delay float64
	switch p.Strategy {
	case StrategyFixed:
		delay = base
	case StrategyLinear:
		inc := float64(p.Increment)
		if inc <= 0 {
			inc = base
		}
		delay = base + float64(retryCount)*inc
	default:
		factor := p.Factor
		if factor <= 0 {
			factor = 2
		}
		delay = base * math.Pow(factor, float64(retryCount))
	}
	if max := float64(p.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	// Fixed delays stay exact; jitter only spreads growing schedules.
	if p.Jitter && p.Strategy != StrategyFixed {
		delay += delay * jitterFraction * (p.rand()*2 - 1)
	}
	if delay < base {
		delay = base
	}
	if max := float64(p.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// RetryDelayFunc adapts the policy to asynq's server configuration.
func (p RetryPolicy) RetryDelayFunc(n int, _ error, _ *asynq.Task) time.Duration {
	return p.Delay(n)
}

func (p RetryPolicy) rand() float64 {
	if p.randFloat != nil {
		return p.randFloat()
	}
	return rand.Float64()
}

// ExponentialBackoff is a convenience around RetryPolicy for one-off use.
func ExponentialBackoff(retryCount int, base, max time.Duration, jitter bool) time.Duration {
	return RetryPolicy{
		Strategy:  StrategyExponential,
		BaseDelay: base,
		MaxDelay:  max,
		Factor:    2,
		Jitter:    jitter,
	}.Delay(retryCount)
}
