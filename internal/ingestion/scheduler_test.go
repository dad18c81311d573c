package ingestion

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/cache"
	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/venue"
)

// fakeClient is a minimal venue.Client stub exercising exactly the three
// ingestion capabilities the scheduler dispatches on.
type fakeClient struct {
	id string

	fetchCalls int32
	books      map[string]model.OrderBook
	allBooks   map[string]model.OrderBook
	err        error
}

func (c *fakeClient) ID() string { return c.id }
func (c *fakeClient) LoadMarkets(context.Context) (map[string]struct{}, error) { return nil, nil }
func (c *fakeClient) FetchOrderBook(_ context.Context, symbol string) (model.OrderBook, error) {
	atomic.AddInt32(&c.fetchCalls, 1)
	if c.err != nil {
		return model.OrderBook{}, c.err
	}
	return c.books[symbol], nil
}
func (c *fakeClient) WatchOrderBookForSymbols(_ context.Context, symbols []string, onUpdate func(model.OrderBook)) error {
	if c.err != nil {
		return c.err
	}
	for _, sym := range symbols {
		onUpdate(c.allBooks[sym])
	}
	return nil
}
func (c *fakeClient) FetchOrderBooks(context.Context) (map[string]model.OrderBook, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.allBooks, nil
}
func (c *fakeClient) CalculateFee(context.Context, string, model.Side, decimal.Decimal, decimal.Decimal) (venue.FeeQuote, error) {
	return venue.FeeQuote{}, nil
}
func (c *fakeClient) FetchBalance(context.Context) (model.Balances, error) { return nil, nil }
func (c *fakeClient) CreateOrder(context.Context, string, model.Side, decimal.Decimal, decimal.Decimal) (string, error) {
	return "", nil
}
func (c *fakeClient) FetchDepositAddress(context.Context, string) (string, error) { return "", nil }
func (c *fakeClient) Withdraw(context.Context, string, decimal.Decimal, string) (string, error) {
	return "", nil
}
func (c *fakeClient) Authenticated() bool { return false }
func (c *fakeClient) Close() error        { return nil }

func TestScheduler_FetchOnce_SingleWritesSnapshot(t *testing.T) {
	store := cache.NewMemoryStore(time.Second)
	defer store.Close()

	client := &fakeClient{id: "A", books: map[string]model.OrderBook{
		"BTC/USDT": {Symbol: model.NewSymbol("BTC/USDT"), Venue: "A", Asks: []model.Level{{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1)}}},
	}}
	s := NewScheduler(nil, store, nil, nil, time.Minute, zerolog.Nop())

	plan := model.IngestionPlan{VenueID: "A", Mode: model.ModeSingle, Symbols: []string{"BTC/USDT"}}
	require.NoError(t, s.fetchOnce(context.Background(), client, plan))

	book, ok, err := store.GetOrderBook(context.Background(), "BTC/USDT", "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", book.Venue)
}

func TestScheduler_FetchOnce_AllFiltersToConfiguredSymbols(t *testing.T) {
	store := cache.NewMemoryStore(time.Second)
	defer store.Close()

	client := &fakeClient{id: "B", allBooks: map[string]model.OrderBook{
		"BTC/USDT": {Symbol: model.NewSymbol("BTC/USDT"), Venue: "B"},
		"XYZ/USDT": {Symbol: model.NewSymbol("XYZ/USDT"), Venue: "B"},
	}}
	s := NewScheduler(nil, store, nil, []ExchangeConfig{{VenueID: "B", Mode: model.ModeAll, Symbols: []string{"BTC/USDT"}}}, time.Minute, zerolog.Nop())

	plan := model.IngestionPlan{VenueID: "B", Mode: model.ModeAll}
	require.NoError(t, s.fetchOnce(context.Background(), client, plan))

	_, ok, err := store.GetOrderBook(context.Background(), "BTC/USDT", "B")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.GetOrderBook(context.Background(), "XYZ/USDT", "B")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScheduler_FetchOnce_BatchDeliversViaCallback(t *testing.T) {
	store := cache.NewMemoryStore(time.Second)
	defer store.Close()

	client := &fakeClient{id: "C", allBooks: map[string]model.OrderBook{
		"BTC/USDT": {Symbol: model.NewSymbol("BTC/USDT"), Venue: "C"},
	}}
	s := NewScheduler(nil, store, nil, nil, time.Minute, zerolog.Nop())

	plan := model.IngestionPlan{VenueID: "C", Mode: model.ModeBatch, Symbols: []string{"BTC/USDT"}}
	require.NoError(t, s.fetchOnce(context.Background(), client, plan))

	_, ok, err := store.GetOrderBook(context.Background(), "BTC/USDT", "C")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestScheduler_Allowed_UnconfiguredVenueAdmitsEverything(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil, time.Minute, zerolog.Nop())
	require.True(t, s.allowed("unknown", "ANY/THING"))
}

func TestScheduler_RunPlan_SingleModeWritesSnapshotAndExitsOnCancel(t *testing.T) {
	reg := venue.NewRegistry([]string{"A"})
	reg.Register("A", func(string, venue.Credentials) (venue.Client, error) {
		return &fakeClient{id: "A", books: map[string]model.OrderBook{
			"BTC/USDT": {Symbol: model.NewSymbol("BTC/USDT"), Venue: "A", Asks: []model.Level{{Price: decimal.NewFromInt(1), Volume: decimal.NewFromInt(1)}}},
		}}, nil
	})
	_, err := reg.Setup(context.Background(), "A")
	require.NoError(t, err)

	store := cache.NewMemoryStore(time.Second)
	defer store.Close()
	s := NewScheduler(reg, store, nil, nil, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()
	s.runPlan(ctx, model.IngestionPlan{VenueID: "A", Mode: model.ModeSingle, Symbols: []string{"BTC/USDT"}})

	_, ok, err := store.GetOrderBook(context.Background(), "BTC/USDT", "A")
	require.NoError(t, err)
	require.True(t, ok)
}
