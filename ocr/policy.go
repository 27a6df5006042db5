package ocr

import (
	"math"
	"time"
)

const (
	DefaultMaxAttempts  = 60
	DefaultPollInterval = 5 * time.Second
)

// Backoff yields the pause after a given 1-based poll attempt.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ConstantBackoff waits the same duration after every attempt.
type ConstantBackoff time.Duration

func (b ConstantBackoff) Delay(int) time.Duration { return time.Duration(b) }

// ExponentialBackoff grows the pause by Multiplier per attempt, capped at Max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && (d > float64(b.Max) || math.IsInf(d, 1)) {
		return b.Max
	}
	return time.Duration(d)
}

// RetryPolicy bounds how long Wait keeps polling a job.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	// Backoff overrides the fixed Interval when set.
	Backoff Backoff
}

// DefaultRetryPolicy polls every 5s for up to 5 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Interval: DefaultPollInterval}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Interval <= 0 && p.Backoff == nil {
		p.Interval = DefaultPollInterval
	}
	return p
}

// Delay returns the pause after the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff != nil {
		return p.Backoff.Delay(attempt)
	}
	return p.Interval
}

// Budget is the total time spent sleeping between attempts.
func (p RetryPolicy) Budget() time.Duration {
	var total time.Duration
	for i := 1; i < p.MaxAttempts; i++ {
		total += p.Delay(i)
	}
	return total
}
