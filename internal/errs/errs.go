// Package errs classifies errors into the taxonomy retry loops and
// interactive commands key their behavior on. Grounded on the classified
// error types in the Coinbase normalizer of the example pack
// (PermanentError/TemporaryError/RateLimitError with a Code field and
// Unwrap support); this package generalizes the same shape to every venue
// and the notification dispatcher rather than one exchange's HTTP codes.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the taxonomy a caller switches on to decide how to recover.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindRateLimit
	KindRetryAfter
	KindMissingMarket
	KindUnauthenticated
	KindProgrammer
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	case KindRetryAfter:
		return "retry_after"
	case KindMissingMarket:
		return "missing_market"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindProgrammer:
		return "programmer"
	default:
		return "unknown"
	}
}

// Classified wraps an error with its Kind and, for the two kinds whose
// recovery needs a duration, the sleep to apply before the next attempt.
type Classified struct {
	Kind  Kind
	Err   error
	After time.Duration // set for KindRateLimit (server-specified) and KindRetryAfter
}

func (e *Classified) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s error (retry after %s): %v", e.Kind, e.After, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Classified) Unwrap() error { return e.Err }

// Transient wraps err as a transient network error: retry with the shared
// exponential backoff table (internal/netutil.Backoff) for four attempts.
func Transient(err error) error {
	return &Classified{Kind: KindTransient, Err: err}
}

// RateLimit wraps err as a rate-limit error. after is the venue's own
// Retry-After hint if it supplied one; zero means use the default 60s.
func RateLimit(err error, after time.Duration) error {
	return &Classified{Kind: KindRateLimit, Err: err, After: after}
}

// RetryAfter wraps err as a delivery retry-after error: sleep for exactly
// the duration the outbound channel supplied, then retry once.
func RetryAfter(err error, after time.Duration) error {
	return &Classified{Kind: KindRetryAfter, Err: err, After: after}
}

// MissingMarket wraps err for a symbol a venue does not list: the caller
// skips the symbol and logs once per venue rather than retrying.
func MissingMarket(err error) error {
	return &Classified{Kind: KindMissingMarket, Err: err}
}

// Unauthenticated wraps err for an interactive operation attempted against
// a venue with no credentials loaded.
func Unauthenticated(err error) error {
	return &Classified{Kind: KindUnauthenticated, Err: err}
}

// Programmer wraps err for a condition that should fail fast at startup and
// be logged-and-continued at runtime: a snapshot/venue mismatch, a
// malformed configuration field, or similar invariant violation.
func Programmer(err error) error {
	return &Classified{Kind: KindProgrammer, Err: err}
}

// As reports whether err (or any error it wraps) is a *Classified, and
// returns it.
func As(err error) (*Classified, bool) {
	var c *Classified
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindUnknown if err is not Classified.
func KindOf(err error) Kind {
	if c, ok := As(err); ok {
		return c.Kind
	}
	return KindUnknown
}

// RetryAfterDuration returns the duration a Classified error asks the
// caller to wait before retrying, and whether one was set.
func RetryAfterDuration(err error) (time.Duration, bool) {
	c, ok := As(err)
	if !ok || c.After <= 0 {
		return 0, false
	}
	return c.After, true
}
