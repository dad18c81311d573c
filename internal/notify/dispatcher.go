package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/fmenezes/anxiousbot/internal/errs"
	"github.com/fmenezes/anxiousbot/internal/model"
)

// ErrDispatcherOpen is returned when the delivery circuit breaker is open.
var ErrDispatcherOpen = errors.New("notify: dispatcher circuit is open")

// Sender delivers one message to the outbound channel (Telegram bot, etc).
// A RetryAfter-classified error tells the dispatcher to sleep the exact
// duration and retry once, per spec.md section 7.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Glyph returns the marker glyph a deal event message is prefixed with,
// grounded on dealer.py's U+1F7E2 (open) / U+1F534 (close) markers.
func Glyph(t model.DealEventType) string {
	switch t {
	case model.DealOpen:
		return "\U0001F7E2"
	case model.DealClose:
		return "\U0001F534"
	default:
		return ""
	}
}

// Dispatcher is the queue's sole consumer. It wraps Sender.Send in a
// sony/gobreaker circuit breaker, grounded on the teacher's infra/breakers
// wiring (ReadyToTrip on three consecutive failures or a >5% failure rate
// once at least 20 requests have been made), and retries a
// RetryAfter-classified send error exactly once after sleeping the
// requested duration.
type Dispatcher struct {
	queue   *Queue
	sender  Sender
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewDispatcher(queue *Queue, sender Sender, log zerolog.Logger) *Dispatcher {
	settings := gobreaker.Settings{
		Name:     "notify-dispatcher",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &Dispatcher{
		queue:   queue,
		sender:  sender,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// Run drains the queue until ctx is cancelled. Producers never block on
// delivery; a send failure is logged and the message is dropped rather
// than requeued, since spec.md section 7 treats an escaping error as
// log-and-continue, not retry-forever.
func (d *Dispatcher) Run(ctx context.Context) {
	done := ctx.Done()
	for {
		select {
		case <-done:
			return
		default:
		}

		msg, ok := d.queue.Pop()
		if !ok {
			d.queue.Wait(done)
			continue
		}

		if err := d.deliver(ctx, msg); err != nil {
			d.log.Error().Err(err).Str("chat_id", msg.ChatID).Msg("notification delivery failed")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) error {
	_, err := d.breaker.Execute(func() (any, error) {
		sendErr := d.sender.Send(ctx, msg)
		if sendErr == nil {
			return nil, nil
		}
		if after, ok := errs.RetryAfterDuration(sendErr); ok {
			if sleepErr := sleepCtx(ctx, after); sleepErr != nil {
				return nil, sleepErr
			}
			return nil, d.sender.Send(ctx, msg)
		}
		return nil, sendErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrDispatcherOpen
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
