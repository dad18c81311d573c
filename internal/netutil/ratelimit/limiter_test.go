package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHostLimiter_AllowRespectsBurst(t *testing.T) {
	l := NewHostLimiter(1, 2)

	require.True(t, l.Allow("api.kraken.com"))
	require.True(t, l.Allow("api.kraken.com"))
	require.False(t, l.Allow("api.kraken.com"))
}

func TestHostLimiter_HostsAreIndependent(t *testing.T) {
	l := NewHostLimiter(1, 1)

	require.True(t, l.Allow("api.kraken.com"))
	require.False(t, l.Allow("api.kraken.com"))
	require.True(t, l.Allow("ws.kraken.com"))
}

func TestHostLimiter_WaitUnblocksAfterInterval(t *testing.T) {
	l := NewHostLimiter(20, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "api.kraken.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "api.kraken.com"))
	require.True(t, time.Since(start) > 0)
}

func TestHostLimiter_WaitRespectsCancellation(t *testing.T) {
	l := NewHostLimiter(0.1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(context.Background(), "api.kraken.com"))
	err := l.Wait(ctx, "api.kraken.com")
	require.Error(t, err)
}

func TestManager_UnconfiguredVenueAdmitsImmediately(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Wait(context.Background(), "unknown-venue", "api.example.com"))
}

func TestManager_PerVenueIsolation(t *testing.T) {
	m := NewManager()
	m.ForVenue("kraken", 1, 1)
	m.ForVenue("binance", 1, 1)

	require.NoError(t, m.Wait(context.Background(), "kraken", "api.kraken.com"))

	stats := m.Stats()
	require.Contains(t, stats, "kraken")
	require.Contains(t, stats["kraken"], "api.kraken.com")
	require.NotContains(t, stats["binance"], "api.kraken.com")
}
