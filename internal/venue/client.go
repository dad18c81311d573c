// Package venue defines the capability interface every exchange adapter
// implements and the registry that owns client lifecycles.
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/model"
)

// FeeQuote is the result of a fee calculation for a hypothetical or actual
// order; the Matching Engine converts Amount into base units itself.
type FeeQuote struct {
	Amount   decimal.Decimal
	Coin     string // coin the fee is charged in: base or quote
}

// Client is the capability surface a venue adapter exposes. Not every venue
// implements every method meaningfully; unsupported operations return a
// plain, unclassified error.
type Client interface {
	// ID is the stable venue identifier used in cache keys and deal legs.
	ID() string

	// LoadMarkets fetches and caches market metadata, populating the set of
	// symbols the venue supports. Idempotent.
	LoadMarkets(ctx context.Context) (map[string]struct{}, error)

	// FetchOrderBook implements the "single" ingestion capability.
	FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error)

	// WatchOrderBookForSymbols implements the "batch" ingestion capability;
	// it may suspend arbitrarily long and deliver results via callback.
	WatchOrderBookForSymbols(ctx context.Context, symbols []string, onUpdate func(model.OrderBook)) error

	// FetchOrderBooks implements the "all" ingestion capability.
	FetchOrderBooks(ctx context.Context) (map[string]model.OrderBook, error)

	// CalculateFee returns the fee the venue would charge for an order of
	// the given size at the given price. Synchronous, no network I/O
	// permitted from the Matching Engine's call site (spec section 5).
	CalculateFee(ctx context.Context, symbol string, side model.Side, amount, price decimal.Decimal) (FeeQuote, error)

	// FetchBalance returns the authenticated account's balance map.
	FetchBalance(ctx context.Context) (model.Balances, error)

	// CreateOrder, FetchDepositAddress and Withdraw are out of scope per the
	// spec's Non-goals (placing real orders, managing credentials); they are
	// declared so the capability interface matches spec section 9's design
	// note. The kraken and binance adapters return a not-supported error
	// for all three; the fake adapter does too, except that
	// FetchDepositAddress returns a synthetic address.
	CreateOrder(ctx context.Context, symbol string, side model.Side, amount, price decimal.Decimal) (string, error)
	FetchDepositAddress(ctx context.Context, coin string) (string, error)
	Withdraw(ctx context.Context, coin string, amount decimal.Decimal, address string) (string, error)

	// Authenticated reports whether credentials were present at setup.
	Authenticated() bool

	// Close releases any network resources held by the client.
	Close() error
}
