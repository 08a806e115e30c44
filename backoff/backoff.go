// Package backoff implements retry policies for operations that may fail transiently.
package backoff

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Stop indicates that no more retries should be made for use in NextBackOff().
const Stop time.Duration = -1

// Policy is a backoff policy for retrying an operation.
type Policy interface {
	// NextBackOff returns the duration to wait before retrying the operation,
	// or backoff.Stop to indicate that no more retries should be made.
	NextBackOff() time.Duration

	// New creates a new instance of the policy in its initial state.
	New() Policy
}

// Permanent wraps the given err in a permanent error signaling that the operation should not be retried.
func Permanent(err error) error {
	if err == nil {
		panic("no error specified")
	}

	return &permanentError{err: err}
}

// Retry calls f until it does not return an error or the policy stops. f is run at least once.
// A permanent error stops the retries immediately and its wrapped error is returned.
func Retry(p Policy, f func() error) error {
	return RetryContext(context.Background(), p, f)
}

// RetryContext works like Retry but also stops waiting when the context is done.
func RetryContext(ctx context.Context, p Policy, f func() error) error {
	p = p.New()

	for {
		err := f()
		if err == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.Unwrap()
		}

		duration := p.NextBackOff()
		if duration == Stop {
			return err
		}

		timer := time.NewTimer(duration)
		select {
		case <-ctx.Done():
			timer.Stop()

			return errors.WithSecondaryError(err, ctx.Err())
		case <-timer.C:
		}
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

type zeroPolicy struct{}

func (zeroPolicy) NextBackOff() time.Duration { return 0 }
func (zeroPolicy) New() Policy                { return zeroPolicy{} }

// ZeroBackOff returns a policy that retries immediately, indefinitely.
func ZeroBackOff() Policy {
	return zeroPolicy{}
}

type constantPolicy struct {
	interval time.Duration
}

// ConstantBackOff returns a policy that always waits the same interval.
func ConstantBackOff(interval time.Duration) Policy {
	return &constantPolicy{interval: interval}
}

func (b *constantPolicy) NextBackOff() time.Duration { return b.interval }
func (b *constantPolicy) New() Policy                { return b }
