// Package retry holds injectable retry policies for blocking operations
// such as broker connection establishment.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrPermanent marks an error that must not be retried. Wrap it with
// fmt.Errorf("...: %w", retry.ErrPermanent) or use Permanent.
var ErrPermanent = errors.New("permanent")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{e.err, ErrPermanent}
}

// Permanent wraps err so that Do stops retrying and returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy describes how often and how many times an operation is retried.
//
// MaxAttempts <= 0 means unbounded: the operation is retried until it
// succeeds, returns a permanent error, or the context is canceled.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Multiplier  float64 // <= 1 keeps the interval fixed
	MaxInterval time.Duration

	Sleep   Sleeper
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Fixed returns an unbounded policy waiting the same interval between attempts.
func Fixed(interval time.Duration) Policy {
	return Policy{Interval: interval}
}

// WithMaxAttempts returns a copy of p bounded to n attempts.
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// WithSleeper returns a copy of p using s to wait between attempts.
func (p Policy) WithSleeper(s Sleeper) Policy {
	p.Sleep = s
	return p
}

// WithOnRetry returns a copy of p that reports each failed attempt to f
// before waiting.
func (p Policy) WithOnRetry(f func(attempt int, err error, wait time.Duration)) Policy {
	p.OnRetry = f
	return p
}

func (p Policy) next(current time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return current
	}
	n := time.Duration(float64(current) * p.Multiplier)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		n = p.MaxInterval
	}
	return n
}

// Do calls f until it succeeds. Between two attempts it waits exactly once,
// so N failures followed by a success cost N waits.
func (p Policy) Do(ctx context.Context, f func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	wait := p.Interval

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := f(ctx, attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
		wait = p.next(wait)
	}
}

// Value is Do for operations producing a value.
func Value[T any](ctx context.Context, p Policy, f func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		v, err := f(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
