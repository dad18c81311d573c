package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/model"
)

func TestMemoryStore_OrderBookRoundTrip(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	defer s.Close()

	book := model.OrderBook{
		Symbol: model.NewSymbol("BTC/USDT"),
		Venue:  "kraken",
		Asks:   []model.Level{{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1)}},
	}

	ctx := context.Background()
	require.NoError(t, s.SetOrderBook(ctx, "BTC/USDT", "kraken", book, time.Minute))

	got, ok, err := s.GetOrderBook(ctx, "BTC/USDT", "kraken")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, book.Venue, got.Venue)
	require.True(t, book.Asks[0].Price.Equal(got.Asks[0].Price))
}

func TestMemoryStore_OrderBookExpires(t *testing.T) {
	s := NewMemoryStore(5 * time.Millisecond)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SetOrderBook(ctx, "BTC/USDT", "kraken", model.OrderBook{}, 10*time.Millisecond))

	time.Sleep(50 * time.Millisecond)

	_, ok, err := s.GetOrderBook(ctx, "BTC/USDT", "kraken")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_GetDealDefaultsToSentinel(t *testing.T) {
	s := NewMemoryStore(time.Second)
	defer s.Close()

	state, err := s.GetDeal(context.Background(), DealKey("BTC/USDT", "kraken", "binance"))
	require.NoError(t, err)
	require.Equal(t, model.DealNoop, state.Type)
	require.False(t, state.Threshold)
}

func TestMemoryStore_BalanceDefaultsToZero(t *testing.T) {
	s := NewMemoryStore(time.Second)
	defer s.Close()

	amount, err := s.GetBalance(context.Background(), "USDT")
	require.NoError(t, err)
	require.True(t, decimal.Zero.Equal(amount))

	require.NoError(t, s.SetBalance(context.Background(), "USDT", decimal.NewFromInt(100000)))
	amount, err = s.GetBalance(context.Background(), "USDT")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(100000).Equal(amount))
}

func TestMemoryStore_LastUpdateID(t *testing.T) {
	s := NewMemoryStore(time.Second)
	defer s.Close()

	_, ok, err := s.GetLastUpdateID(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetLastUpdateID(context.Background(), 42))
	id, ok, err := s.GetLastUpdateID(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, id)
}
