package core

import (
	"context"
	"time"
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// retryOnConflict runs fn up to maxAttempts times, backing off between
// attempts. Only conflicts are retried; any other error is returned as is.
// The returned int is the number of attempts made.
func retryOnConflict(ctx context.Context, maxAttempts int, scheduler BackoffScheduler, fn func(attempt int) error) (int, error) {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == maxAttempts {
			return attempt, err
		}

		delay := defaultInitialBackoff
		if scheduler != nil {
			delay = scheduler.NextDelay(attempt)
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return attempt, waitErr
		}
	}
	return maxAttempts, lastErr
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
