package resilience

import (
	"context"
	"log/slog"
	"time"
)

// Retry runs fn up to attempts times, waiting delay between tries. It
// returns nil on the first success and the last error once the attempts are
// exhausted. When ctx ends, the context error is returned without further
// tries. attempts < 1 is treated as a single attempt.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			slog.Debug("retrying after failure",
				"attempt", attempt,
				"max_attempts", attempts,
				"err", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
