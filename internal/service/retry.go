package service

import (
	"context"
	"errors"
	"time"

	"constantProduct/internal/storage"
)

const maxRetryDelay = time.Second

// withRetry reruns fn while it fails with storage.ErrConflict, doubling the
// delay after every attempt. Any other error is returned immediately.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, onRetry func(error), fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) || attempt >= maxRetries {
			return err
		}
		if onRetry != nil {
			onRetry(err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
