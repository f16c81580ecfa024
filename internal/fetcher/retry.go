package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// retryDelays grows per attempt and repeats its last entry.
var retryDelays = []time.Duration{
	100 * time.Millisecond,
	400 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

// errPermanent marks errors that must not be retried.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

func permanent(err error) error { return errPermanent{err: err} }

// retryWithBackoff runs op up to attempts times, sleeping between failures.
func retryWithBackoff(ctx context.Context, attempts int, logger zerolog.Logger, op func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var perm errPermanent
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts-1 {
			break
		}

		delay := retryDelays[min(attempt, len(retryDelays)-1)]
		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying after error")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", attempts, err)
}
