// Package retry runs an operation with capped exponential backoff.
// It is used for startup connectivity only: core writes are never retried
// automatically.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// Attempts counts the first call too. Values below 1 mean one call.
	Attempts int

	// Base is the wait after the first failure; it doubles up to Cap.
	Base time.Duration
	Cap  time.Duration

	// Jitter spreads each wait by ±Jitter of its length (0..1).
	Jitter float64
}

// Startup is the policy for dependencies that may still be booting.
func Startup(attempts int) Policy {
	return Policy{Attempts: attempts, Base: 500 * time.Millisecond, Cap: 10 * time.Second, Jitter: 0.1}
}

// Notify is called after a failed attempt, before waiting.
type Notify func(attempt int, err error, wait time.Duration)

type stopError struct{ err error }

func (e stopError) Error() string { return e.err.Error() }
func (e stopError) Unwrap() error { return e.err }

// Stop marks err as not worth retrying. Do returns the unwrapped error.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return stopError{err}
}

// Do calls op until it succeeds, returns a Stop error, the attempts run out
// or ctx is done. The last error of op is returned; ctx.Err() only when op
// never ran.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	attempts := max(p.Attempts, 1)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			return last
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var stop stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		last = err

		if attempt >= attempts {
			return last
		}

		wait := p.wait(attempt)
		if notify != nil {
			notify(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

// Value is Do for operations that produce a result, such as opening a pool.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	}, notify)
	return out, err
}

func (p Policy) wait(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt && d < p.Cap; i++ {
		d *= 2
	}
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}
