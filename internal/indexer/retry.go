package indexer

import (
	"context"
	"errors"
	"time"

	"taxScope/internal/chain"
)

const maxRetryDelay = 10 * time.Second

// Backoff retries chain reads with a doubling delay capped at Max.
type Backoff struct {
	Retries int
	Base    time.Duration
	Max     time.Duration
}

func newBackoff(retries int, base time.Duration) Backoff {
	if retries < 0 {
		retries = 0
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return Backoff{Retries: retries, Base: base, Max: maxRetryDelay}
}

// Do calls fn until it succeeds, fails with an error retrying cannot fix, or
// the retries are spent. The last error is returned.
func (b Backoff) Do(ctx context.Context, fn func(context.Context) error) error {
	delay := b.Base
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !retryable(err) || attempt >= b.Retries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}

// retryable reports whether another attempt can succeed.
func retryable(err error) bool {
	return !errors.Is(err, chain.ErrPending) && !errors.Is(err, context.Canceled)
}
