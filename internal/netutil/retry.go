// Package netutil holds small, dependency-light network helpers: backoff
// scheduling and classified retries here, used by the ingestion scheduler,
// with the circuit breaker and the per-host rate limiter in the circuit
// and ratelimit subpackages, used by the venue adapters. The notification
// dispatcher uses none of them.
package netutil

import (
	"context"
	"time"

	"github.com/fmenezes/anxiousbot/internal/errs"
)

// backoffTable is the fixed retry schedule named in spec section 7: four
// attempts at 1, 2, 4, then 8 seconds.
var backoffTable = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
}

// Backoff tracks retry attempts against the shared table. Grounded on the
// teacher's BackoffCalculator (stateful, NextDelay/Reset) but replaces its
// multiplier/jitter formula with the spec's fixed four-step table. Only
// ingestion retries use it; the notification dispatcher does not back off
// and retries a send only after a retry-after error, once.
type Backoff struct {
	attempt int
}

// NewBackoff returns a Backoff at attempt zero.
func NewBackoff() *Backoff { return &Backoff{} }

// NextDelay returns the delay before the next attempt and whether the
// budget is exhausted. Once exhausted it keeps returning ok=false.
func (b *Backoff) NextDelay() (delay time.Duration, ok bool) {
	if b.attempt >= len(backoffTable) {
		return 0, false
	}
	delay = backoffTable[b.attempt]
	b.attempt++
	return delay, true
}

// Reset returns the Backoff to attempt zero for reuse across loop ticks.
func (b *Backoff) Reset() { b.attempt = 0 }

// Attempts reports how many delays have been handed out so far.
func (b *Backoff) Attempts() int { return b.attempt }

// Do runs fn, retrying on a transient-classified error per the shared
// backoff table and sleeping the exact duration a rate-limit or
// retry-after classified error specifies. Any other error, or a context
// cancellation, returns immediately. Exhausting the backoff table returns
// the last error so the caller can log-and-continue per spec section 7's
// propagation policy.
func Do(ctx context.Context, fn func() error) error {
	b := NewBackoff()
	for {
		err := fn()
		if err == nil {
			return nil
		}

		switch errs.KindOf(err) {
		case errs.KindTransient:
			delay, ok := b.NextDelay()
			if !ok {
				return err
			}
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		case errs.KindRateLimit:
			after, ok := errs.RetryAfterDuration(err)
			if !ok {
				after = 60 * time.Second
			}
			if sleepErr := sleep(ctx, after); sleepErr != nil {
				return sleepErr
			}
			continue
		case errs.KindRetryAfter:
			after, ok := errs.RetryAfterDuration(err)
			if !ok {
				return err
			}
			if sleepErr := sleep(ctx, after); sleepErr != nil {
				return sleepErr
			}
			continue
		default:
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
