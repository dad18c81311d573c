package deal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/cache"
	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/notify"
	"github.com/fmenezes/anxiousbot/internal/venue"
)

// zeroFeeClient is a minimal venue.Client that never charges a fee and
// never needs network I/O, enough to drive the matching engine through
// the controller.
type zeroFeeClient struct {
	id string
}

func (c zeroFeeClient) ID() string { return c.id }
func (c zeroFeeClient) LoadMarkets(context.Context) (map[string]struct{}, error) {
	return nil, nil
}
func (c zeroFeeClient) FetchOrderBook(context.Context, string) (model.OrderBook, error) {
	return model.OrderBook{}, nil
}
func (c zeroFeeClient) WatchOrderBookForSymbols(context.Context, []string, func(model.OrderBook)) error {
	return nil
}
func (c zeroFeeClient) FetchOrderBooks(context.Context) (map[string]model.OrderBook, error) {
	return nil, nil
}
func (c zeroFeeClient) CalculateFee(context.Context, string, model.Side, decimal.Decimal, decimal.Decimal) (venue.FeeQuote, error) {
	return venue.FeeQuote{Amount: decimal.Zero}, nil
}
func (c zeroFeeClient) FetchBalance(context.Context) (model.Balances, error) { return nil, nil }
func (c zeroFeeClient) CreateOrder(context.Context, string, model.Side, decimal.Decimal, decimal.Decimal) (string, error) {
	return "", nil
}
func (c zeroFeeClient) FetchDepositAddress(context.Context, string) (string, error) { return "", nil }
func (c zeroFeeClient) Withdraw(context.Context, string, decimal.Decimal, string) (string, error) {
	return "", nil
}
func (c zeroFeeClient) Authenticated() bool { return false }
func (c zeroFeeClient) Close() error        { return nil }

func newTestRegistry(t *testing.T, ids ...string) *venue.Registry {
	t.Helper()
	reg := venue.NewRegistry(ids)
	for _, id := range ids {
		venueID := id
		reg.Register(venueID, func(string, venue.Credentials) (venue.Client, error) {
			return zeroFeeClient{id: venueID}, nil
		})
		_, err := reg.Setup(context.Background(), venueID)
		require.NoError(t, err)
	}
	return reg
}

func levels(pairs ...[2]string) []model.Level {
	out := make([]model.Level, len(pairs))
	for i, p := range pairs {
		out[i] = model.Level{Price: decimal.RequireFromString(p[0]), Volume: decimal.RequireFromString(p[1])}
	}
	return out
}

func TestController_PairTick_OpensDealAboveThreshold(t *testing.T) {
	reg := newTestRegistry(t, "A", "B")
	store := cache.NewMemoryStore(time.Second)
	defer store.Close()
	queue := notify.NewQueue(10)

	ctx := context.Background()
	require.NoError(t, store.SetBalance(ctx, "BTC", decimal.Zero))
	require.NoError(t, store.SetBalance(ctx, "USDT", decimal.RequireFromString("100000")))

	bookA := model.OrderBook{Symbol: model.NewSymbol("BTC/USDT"), Venue: "A", Asks: levels([2]string{"100", "10"})}
	bookB := model.OrderBook{Symbol: model.NewSymbol("BTC/USDT"), Venue: "B", Bids: levels([2]string{"105", "10"})}
	require.NoError(t, store.SetOrderBook(ctx, "BTC/USDT", "A", bookA, time.Minute))
	require.NoError(t, store.SetOrderBook(ctx, "BTC/USDT", "B", bookB, time.Minute))

	c := NewController(reg, store, queue, nil, nil, []SymbolConfig{{Symbol: "BTC/USDT", BaseCoin: "BTC", QuoteCoin: "USDT"}}, time.Minute, zerolog.Nop())
	c.pairTick(ctx, SymbolConfig{Symbol: "BTC/USDT", BaseCoin: "BTC", QuoteCoin: "USDT"})

	state, err := store.GetDeal(ctx, cache.DealKey("BTC/USDT", "A", "B"))
	require.NoError(t, err)
	require.Equal(t, model.DealOpen, state.Type)
	require.True(t, state.Threshold)

	msg, ok := queue.Pop()
	require.True(t, ok)
	require.Contains(t, msg.Text, "Deal opened")
}

func TestController_PairTick_NoopBelowThresholdEmitsNothing(t *testing.T) {
	reg := newTestRegistry(t, "A", "B")
	store := cache.NewMemoryStore(time.Second)
	defer store.Close()
	queue := notify.NewQueue(10)

	ctx := context.Background()
	require.NoError(t, store.SetBalance(ctx, "BTC", decimal.Zero))
	require.NoError(t, store.SetBalance(ctx, "USDT", decimal.RequireFromString("100000")))

	bookA := model.OrderBook{Symbol: model.NewSymbol("BTC/USDT"), Venue: "A", Asks: levels([2]string{"100", "1"})}
	bookB := model.OrderBook{Symbol: model.NewSymbol("BTC/USDT"), Venue: "B", Bids: levels([2]string{"100.01", "1"})}
	require.NoError(t, store.SetOrderBook(ctx, "BTC/USDT", "A", bookA, time.Minute))
	require.NoError(t, store.SetOrderBook(ctx, "BTC/USDT", "B", bookB, time.Minute))

	c := NewController(reg, store, queue, nil, nil, []SymbolConfig{{Symbol: "BTC/USDT", BaseCoin: "BTC", QuoteCoin: "USDT"}}, time.Minute, zerolog.Nop())
	c.pairTick(ctx, SymbolConfig{Symbol: "BTC/USDT", BaseCoin: "BTC", QuoteCoin: "USDT"})

	state, err := store.GetDeal(ctx, cache.DealKey("BTC/USDT", "A", "B"))
	require.NoError(t, err)
	require.Equal(t, model.DealNoop, state.Type)

	_, ok := queue.Pop()
	require.False(t, ok)
}

func TestController_PairTick_MissingBookSkipsPairWithoutError(t *testing.T) {
	reg := newTestRegistry(t, "A", "B")
	store := cache.NewMemoryStore(time.Second)
	defer store.Close()
	queue := notify.NewQueue(10)

	c := NewController(reg, store, queue, nil, nil, []SymbolConfig{{Symbol: "BTC/USDT", BaseCoin: "BTC", QuoteCoin: "USDT"}}, time.Minute, zerolog.Nop())
	require.NotPanics(t, func() {
		c.pairTick(context.Background(), SymbolConfig{Symbol: "BTC/USDT", BaseCoin: "BTC", QuoteCoin: "USDT"})
	})

	_, ok := queue.Pop()
	require.False(t, ok)
}

func TestCycleCloses_DetectsValidTriangle(t *testing.T) {
	cycle := [3]trioLeg{
		{Symbol: "BTC/USDT", Side: model.SideBuy},
		{Symbol: "ETH/BTC", Side: model.SideBuy},
		{Symbol: "ETH/USDT", Side: model.SideSell},
	}
	require.True(t, cycleCloses(cycle))
	require.True(t, cycleTouchesUSDT(cycle))
}

func TestCycleCloses_RejectsNonClosingTriple(t *testing.T) {
	cycle := [3]trioLeg{
		{Symbol: "BTC/USDT", Side: model.SideBuy},
		{Symbol: "ETH/USDT", Side: model.SideBuy},
		{Symbol: "ETH/USDT", Side: model.SideSell},
	}
	require.False(t, cycleCloses(cycle))
}
