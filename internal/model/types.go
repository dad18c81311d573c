// Package model holds the shared value types that flow between the venue
// registry, cache layer, matching engine and deal controller.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a matching-engine operation.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IngestionMode is the per-venue access pattern the scheduler dispatches on.
type IngestionMode string

const (
	ModeSingle IngestionMode = "single"
	ModeBatch  IngestionMode = "batch"
	ModeAll    IngestionMode = "all"
)

// Symbol is a BASE/QUOTE pair. Identity is string-equal on Raw.
type Symbol struct {
	Raw string
}

// NewSymbol parses "BASE/QUOTE" into a Symbol. No validation beyond the split;
// a symbol missing the separator yields an empty Quote.
func NewSymbol(raw string) Symbol {
	return Symbol{Raw: raw}
}

func (s Symbol) String() string { return s.Raw }

// Base returns the coin identifier before the separator.
func (s Symbol) Base() string {
	base, _, _ := strings.Cut(s.Raw, "/")
	return base
}

// Quote returns the coin identifier after the separator.
func (s Symbol) Quote() string {
	_, quote, _ := strings.Cut(s.Raw, "/")
	return quote
}

// Level is one (price, volume) entry of an order book ladder.
type Level struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderBook is a venue-tagged snapshot of one symbol's top-of-book ladders.
// Asks ascend in price; bids descend. The Venue field is load-bearing:
// mixing snapshots across venues without it is a programmer error.
type OrderBook struct {
	Symbol     Symbol
	Venue      string
	Asks       []Level
	Bids       []Level
	ReceivedAt time.Time
}

// headLevel returns the first level with positive price and volume, skipping
// non-positive entries at the head, and false when there is none.
func headLevel(levels []Level) (Level, bool) {
	for _, lv := range levels {
		if lv.Price.Sign() > 0 && lv.Volume.Sign() > 0 {
			return lv, true
		}
	}
	return Level{}, false
}

// AskHead returns the best non-empty ask level, if any.
func (ob OrderBook) AskHead() (Level, bool) { return headLevel(ob.Asks) }

// BidHead returns the best non-empty bid level, if any.
func (ob OrderBook) BidHead() (Level, bool) { return headLevel(ob.Bids) }

// Empty reports whether both ladders have no usable head level.
func (ob OrderBook) Empty() bool {
	_, hasAsk := ob.AskHead()
	_, hasBid := ob.BidHead()
	return !hasAsk && !hasBid
}

// Balances is a coin -> amount map. Missing keys default to zero on read via
// Get.
type Balances map[string]decimal.Decimal

// Get returns the balance for coin, defaulting to zero.
func (b Balances) Get(coin string) decimal.Decimal {
	if v, ok := b[coin]; ok {
		return v
	}
	return decimal.Zero
}

// Clone returns a deep copy safe for independent mutation.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// VenueBalances is venue -> coin -> amount, the scope the Matching Engine
// operates over.
type VenueBalances map[string]Balances

// Clone deep-copies a VenueBalances map.
func (vb VenueBalances) Clone() VenueBalances {
	out := make(VenueBalances, len(vb))
	for venue, bal := range vb {
		out[venue] = bal.Clone()
	}
	return out
}

// Get returns the balance of coin at venue, defaulting to zero for missing
// venues or coins.
func (vb VenueBalances) Get(venue, coin string) decimal.Decimal {
	bal, ok := vb[venue]
	if !ok {
		return decimal.Zero
	}
	return bal.Get(coin)
}

// Set assigns the balance of coin at venue, creating the venue map on demand.
func (vb VenueBalances) Set(venue, coin string, amount decimal.Decimal) {
	bal, ok := vb[venue]
	if !ok {
		bal = make(Balances)
		vb[venue] = bal
	}
	bal[coin] = amount
}

// Venue is the registry's view of one configured exchange.
type Venue struct {
	ID             string
	Authenticated  bool
	MarketSet      map[string]struct{}
	IngestionMode  IngestionMode
	BatchLimit     int
}

// SupportsSymbol reports whether the venue declares the given symbol.
func (v Venue) SupportsSymbol(symbol string) bool {
	_, ok := v.MarketSet[symbol]
	return ok
}

// IngestionPlan is one unit of ingestion work: a venue, its access mode, and
// the symbol set to request (empty for ModeAll).
type IngestionPlan struct {
	VenueID string
	Mode    IngestionMode
	Symbols []string
}

// DealEventType is the type field of a persisted deal state record.
type DealEventType string

const (
	DealNoop   DealEventType = "noop"
	DealOpen   DealEventType = "open"
	DealUpdate DealEventType = "update"
	DealClose  DealEventType = "close"
)

// DealLeg describes one venue/side/symbol leg that contributed to a deal.
type DealLeg struct {
	Venue  string
	Side   Side
	Symbol string
}

// DealState is the persisted record for one deal key (spec section 3).
type DealState struct {
	Ts               time.Time
	TsOpen           time.Time
	TsClose          time.Time
	Type             DealEventType
	Threshold        bool
	Profit           decimal.Decimal
	ProfitCoin       string
	ProfitPercentage decimal.Decimal
	Legs             []DealLeg
	Message          string

	BuyVenue       string
	SellVenue      string
	BuyTotalQuote  decimal.Decimal
	BuyTotalBase   decimal.Decimal
	SellTotalQuote decimal.Decimal
}

// DefaultDealState is the sentinel the Cache Layer returns for an absent deal
// key: never-threshold, type noop, ts_open set to the read time.
func DefaultDealState(now time.Time) DealState {
	return DealState{
		Ts:        now,
		TsOpen:    now,
		Type:      DealNoop,
		Threshold: false,
	}
}
