package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/errs"
	"github.com/fmenezes/anxiousbot/internal/model"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []Message
	fail  error
	calls int32
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		err := f.fail
		f.fail = nil // succeed on the retry
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestDispatcher_DeliversQueuedMessages(t *testing.T) {
	q := NewQueue(0)
	sender := &fakeSender{}
	d := NewDispatcher(q, sender, zerolog.Nop())

	q.Push(Message{Text: "deal opened"})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
}

func TestDispatcher_RetriesOnceAfterRetryAfterError(t *testing.T) {
	q := NewQueue(0)
	sender := &fakeSender{fail: errs.RetryAfter(errors.New("rate limited"), 10*time.Millisecond)}
	d := NewDispatcher(q, sender, zerolog.Nop())

	q.Push(Message{Text: "deal opened"})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sender.calls) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
}

func TestGlyph_OpenAndClose(t *testing.T) {
	require.Equal(t, "\U0001F7E2", Glyph(model.DealOpen))
	require.Equal(t, "\U0001F534", Glyph(model.DealClose))
	require.Empty(t, Glyph(model.DealUpdate))
}
