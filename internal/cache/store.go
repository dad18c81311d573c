// Package cache is the typed facade over an expiring key/value store shared
// between ingestion and the deal controller (spec section 4.2). Two
// backends are provided: an in-memory TTL map for tests and single-process
// deployments, and a Redis-backed implementation for multi-process
// deployments.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/model"
)

// Store is the interface both backends implement. All operations are
// effectively atomic on a single key; the store offers no multi-key
// transactions (spec section 4.2).
type Store interface {
	GetOrderBook(ctx context.Context, symbol, venue string) (model.OrderBook, bool, error)
	SetOrderBook(ctx context.Context, symbol, venue string, book model.OrderBook, ttl time.Duration) error

	GetDeal(ctx context.Context, key string) (model.DealState, error)
	SetDeal(ctx context.Context, key string, state model.DealState, ttl time.Duration) error

	// GetBalance and SetBalance carry decimal.Decimal, not float64: every
	// other price/volume/balance field in this codebase is a
	// decimal.Decimal, and a float64 boundary here would round-trip
	// balances through binary floating point before the matching engine
	// ever sees them (spec section 3).
	GetBalance(ctx context.Context, coin string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, coin string, amount decimal.Decimal) error

	GetLastUpdateID(ctx context.Context) (int64, bool, error)
	SetLastUpdateID(ctx context.Context, id int64) error

	Close() error
}

// Key helpers, matching the prefix/shape in spec section 3 exactly.

func OrderBookKey(symbol, venue string) string {
	return fmt.Sprintf("order_book/%s/%s", symbol, venue)
}

func DealKey(symbol, buyVenue, sellVenue string) string {
	return fmt.Sprintf("deal/%s/%s/%s", symbol, buyVenue, sellVenue)
}

func TrioDealKey(leg1, leg2, leg3 string) string {
	return fmt.Sprintf("trio_deal/%s|%s|%s", leg1, leg2, leg3)
}

func BalanceKey(coin string) string {
	return fmt.Sprintf("balance/%s", coin)
}

const LastUpdateIDKey = "bot/last_update_id"
