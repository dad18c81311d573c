package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/errs"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      50 * time.Millisecond,
		CallTimeout:      50 * time.Millisecond,
	}
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := NewBreaker(testConfig())
	require.Equal(t, StateClosed, b.State())

	err := b.Call(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	b := NewBreaker(testConfig())
	boom := errors.New("venue unreachable")

	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), func(context.Context) error { return boom })
		require.Error(t, err)
	}
	require.Equal(t, StateOpen, b.State())

	err := b.Call(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	cfg := testConfig()
	b := NewBreaker(cfg)
	boom := errors.New("venue unreachable")

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = b.Call(context.Background(), func(context.Context) error { return boom })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)

	for i := 0; i < cfg.SuccessThreshold; i++ {
		err := b.Call(context.Background(), func(context.Context) error { return nil })
		require.NoError(t, err)
	}
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := testConfig()
	b := NewBreaker(cfg)
	boom := errors.New("venue unreachable")

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = b.Call(context.Background(), func(context.Context) error { return boom })
	}
	time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)

	err := b.Call(context.Background(), func(context.Context) error { return boom })
	require.Error(t, err)
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_ProgrammerErrorDoesNotCountAsFailure(t *testing.T) {
	b := NewBreaker(testConfig())
	bad := errs.Programmer(errors.New("snapshot labeled for the wrong venue"))

	for i := 0; i < 10; i++ {
		err := b.Call(context.Background(), func(context.Context) error { return bad })
		require.Error(t, err)
	}
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_CallTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	b := NewBreaker(cfg)

	for i := 0; i < cfg.FailureThreshold; i++ {
		err := b.Call(context.Background(), func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.ErrorIs(t, err, ErrRequestTimeout)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestManager_PerVenueIsolation(t *testing.T) {
	m := NewManager()
	boom := errors.New("venue unreachable")

	for i := 0; i < DefaultConfig().FailureThreshold; i++ {
		_ = m.Call(context.Background(), "kraken", func(context.Context) error { return boom })
	}
	err := m.Call(context.Background(), "binance", func(context.Context) error { return nil })
	require.NoError(t, err)

	stats := m.Stats()
	require.Equal(t, StateOpen, stats["kraken"].State)
	require.Equal(t, StateClosed, stats["binance"].State)
	require.Contains(t, m.OpenVenues(), "kraken (state: open)")
}
