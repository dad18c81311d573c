// Package circuit guards outbound venue calls with a per-venue circuit
// breaker. Grounded on the teacher's datafacade/middleware circuit breaker
// (closed/open/half-open state machine, consecutive-failure/success
// counters, a Manager keyed by provider name); adapted here to key off
// venue IDs and to treat a classified programmer error (internal/errs) as
// something that should never trip the breaker, since it signals a bug in
// this process rather than the venue being unreachable.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fmenezes/anxiousbot/internal/errs"
)

var (
	ErrOpen           = errors.New("circuit: breaker is open")
	ErrRequestTimeout = errors.New("circuit: request timed out")
)

// State is one of the three breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes one venue's breaker.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	CallTimeout      time.Duration
}

// DefaultConfig holds the venue-call defaults the kraken and binance
// adapters build their REST breakers with.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		CallTimeout:      10 * time.Second,
	}
}

// Breaker is one venue's circuit breaker.
type Breaker struct {
	mu              sync.RWMutex
	cfg             Config
	state           State
	failures        int
	successes       int
	lastFailure     time.Time
	lastStateChange time.Time
	total           int64
	totalSuccess    int64
	totalFailure    int64
}

func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed, lastStateChange: time.Now()}
}

// Call runs fn if the breaker allows it. A Classified programmer error
// (internal/errs) is returned as-is without affecting breaker state; every
// other error counts toward the failure threshold.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	b.mu.Lock()
	b.total++
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err == nil {
			b.recordSuccess()
			return nil
		}
		if errs.KindOf(err) == errs.KindProgrammer {
			return err
		}
		b.recordFailure()
		return err
	case <-callCtx.Done():
		b.recordFailure()
		return ErrRequestTimeout
	}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailure) > b.cfg.OpenTimeout {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default: // StateHalfOpen
		return true
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccess++
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailure++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
		b.successes = 0
	}
}

func (b *Breaker) transition(s State) {
	if b.state == s {
		return
	}
	b.state = s
	b.lastStateChange = time.Now()
	if s == StateHalfOpen {
		b.failures = 0
	}
}

func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats is a snapshot suitable for the metrics registry and /healthz.
type Stats struct {
	State           State     `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	TotalSuccess    int64     `json:"total_success"`
	TotalFailure    int64     `json:"total_failure"`
	ConsecutiveFail int       `json:"consecutive_failures"`
	LastStateChange time.Time `json:"last_state_change"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
}

func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		State:           b.state,
		TotalCalls:      b.total,
		TotalSuccess:    b.totalSuccess,
		TotalFailure:    b.totalFailure,
		ConsecutiveFail: b.failures,
		LastStateChange: b.lastStateChange,
		LastFailure:     b.lastFailure,
	}
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.total = 0
	b.totalSuccess = 0
	b.totalFailure = 0
	b.lastStateChange = time.Now()
	b.lastFailure = time.Time{}
}

// Manager holds one breaker per venue ID.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*Breaker)}
}

// ForVenue returns the breaker for venueID, creating it with cfg on first
// use.
func (m *Manager) ForVenue(venueID string, cfg Config) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[venueID]
	if !ok {
		b = NewBreaker(cfg)
		m.breakers[venueID] = b
	}
	return b
}

// Call runs fn through venueID's breaker, creating it with DefaultConfig if
// this is the first call seen for that venue.
func (m *Manager) Call(ctx context.Context, venueID string, fn func(ctx context.Context) error) error {
	return m.ForVenue(venueID, DefaultConfig()).Call(ctx, fn)
}

func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.breakers))
	for venueID, b := range m.breakers {
		out[venueID] = b.Stats()
	}
	return out
}

// OpenVenues lists every venue ID whose breaker is not closed (open or
// half-open), formatted for a /healthz body.
func (m *Manager) OpenVenues() []string {
	var open []string
	for venueID, s := range m.Stats() {
		if s.State != StateClosed {
			open = append(open, fmt.Sprintf("%s (state: %s)", venueID, s.State))
		}
	}
	return open
}
