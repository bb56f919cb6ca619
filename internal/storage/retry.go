package storage

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the wait for a new account to become resolvable.
// A policy with neither cap set falls back to the default MaxElapsed.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// MaxElapsed caps total wall time. Zero means no time cap.
	MaxElapsed time.Duration

	// MaxAttempts caps the number of attempts. Zero means no attempt cap.
	MaxAttempts int
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		MaxElapsed:      2 * time.Minute,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = p.MaxElapsed
	if p.MaxElapsed <= 0 && p.MaxAttempts <= 0 {
		b.MaxElapsedTime = DefaultRetryPolicy().MaxElapsed
	}
	b.Reset()

	if p.MaxAttempts > 0 {
		return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}
