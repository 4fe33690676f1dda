// Package retry runs calls to external services with a per-attempt timeout
// and a bounded number of attempts.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy controls how Do retries a call
type Policy struct {
	// Attempts is the total number of calls, including the first one
	Attempts int
	// Timeout bounds every single attempt; zero disables it
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// OnRetry is called before sleeping ahead of the next attempt
	OnRetry func(attempt int, err error)
}

// DefaultPolicy allows a single retry
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  2,
		Timeout:   60 * time.Second,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
}

type retryableError struct {
	err   error
	after time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient. after is the delay requested by the
// server (Retry-After), zero when unknown.
func Retryable(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err, after: after}
}

// IsTransient reports whether err is worth another attempt
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Do calls fn until it succeeds, fails with a non-transient error or the
// attempts are exhausted. The error of the last attempt is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		attempt int
		lastErr error
	)

	operation := func() (T, error) {
		attempt++
		res, err := call(ctx, p.Timeout, fn)
		if err == nil {
			return res, nil
		}
		lastErr = strip(err)

		if ctx.Err() != nil || !IsTransient(err) {
			return res, backoff.Permanent(lastErr)
		}
		if after := serverDelay(p, err); after > 0 {
			return res, &backoff.RetryAfterError{Duration: after}
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newBackOff(p)),
		backoff.WithMaxTries(uint(max(p.Attempts, 1))),
		backoff.WithNotify(func(error, time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr)
			}
		}),
	)
	if err == nil {
		return res, nil
	}

	var zero T
	// The caller gave up; its context error wins over the attempt error
	if ctx.Err() != nil {
		if lastErr == nil {
			return zero, ctx.Err()
		}
		return zero, errors.Join(ctx.Err(), lastErr)
	}
	if lastErr == nil {
		return zero, err
	}
	return zero, lastErr
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// newBackOff doubles the delay from BaseDelay up to MaxDelay, without jitter
func newBackOff(p Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()
	return b
}

// serverDelay returns the delay requested by the server, capped at MaxDelay
func serverDelay(p Policy, err error) time.Duration {
	var re *retryableError
	if !errors.As(err, &re) || re.after <= 0 {
		return 0
	}
	if p.MaxDelay > 0 && re.after > p.MaxDelay {
		return p.MaxDelay
	}
	return re.after
}

func strip(err error) error {
	if re, ok := err.(*retryableError); ok {
		return re.err
	}
	return err
}
