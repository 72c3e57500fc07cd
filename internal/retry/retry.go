// Package retry re-attempts fallible operations with exponential backoff and
// an error filter, keeping the policy a plain value so call sites compose it
// explicitly instead of hiding it behind wrappers.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures one call-site profile. It is an immutable value; share
// one instance per profile rather than mutating between calls.
type Policy struct {
	// Match reports whether an error is worth retrying. A nil Match retries
	// every error. Non-matching errors are re-raised immediately.
	Match func(error) bool
	// MaxRetries bounds retries after the initial attempt, so the operation
	// runs at most MaxRetries+1 times.
	MaxRetries int
	// InitialDelay is the sleep before the first retry.
	InitialDelay time.Duration
	// BackoffFactor multiplies the delay after each retry.
	BackoffFactor float64
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Jitter, when set, draws the actual sleep uniformly from
	// [0.5*delay, 1.5*delay] to decorrelate concurrent retriers.
	Jitter bool
}

// Do invokes op, retrying per policy until it succeeds, exhausts its retries,
// hits a non-matching error, or ctx is done. The last failure is returned.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	return doWithTimer(ctx, p, op, nil)
}

// doWithTimer accepts an explicit timer so tests can observe the exact delay
// sequence without sleeping. A nil timer uses the wall clock.
func doWithTimer[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), timer backoff.Timer) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.BackoffFactor
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	if p.Jitter {
		b.RandomizationFactor = 0.5
	} else {
		b.RandomizationFactor = 0
	}
	b.Reset()

	wrapped := func() (T, error) {
		res, err := op(ctx)
		if err != nil && p.Match != nil && !p.Match(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
	return backoff.RetryNotifyWithTimerAndData(wrapped, bo, nil, timer)
}

// NetworkProfile suits remote fetches: transient failures are common and a
// remote origin may throttle, so delays grow into seconds. The caller supplies
// the transient-error classifier for its transport.
func NetworkProfile(match func(error) bool) Policy {
	return Policy{
		Match:         match,
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      10 * time.Second,
		Jitter:        true,
	}
}

// BrowserProfile suits headless-browser interactions by discovery
// collaborators, where startup races resolve on a longer timescale.
func BrowserProfile(match func(error) bool) Policy {
	return Policy{
		Match:         match,
		MaxRetries:    2,
		InitialDelay:  2 * time.Second,
		BackoffFactor: 2,
		MaxDelay:      15 * time.Second,
		Jitter:        true,
	}
}

// ExtractionProfile suits local extraction attempts: one quick retry, since
// the extractor already runs its own fallback chain.
func ExtractionProfile(match func(error) bool) Policy {
	return Policy{
		Match:         match,
		MaxRetries:    1,
		InitialDelay:  200 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      time.Second,
		Jitter:        false,
	}
}
