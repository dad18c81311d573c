// Package fake is a deterministic in-memory venue.Client, used for demos
// and tests that need a full ingestion-to-notification run without a real
// exchange connection. Grounded on the teacher's deterministic fake
// exchange: an md5-seeded math/rand source keyed by venue name, producing
// reproducible synthetic order books instead of real network data.
package fake

import (
	"context"
	"crypto/md5"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/errs"
	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/venue"
)

// Adapter is a deterministic fake exchange: identical (name, symbol, time
// bucket) tuples always produce identical order books, so tests and demo
// runs are reproducible without a live connection.
type Adapter struct {
	name       string
	seed       int64
	volatility float64
	basePrices map[string]float64

	mu            sync.Mutex
	authenticated bool
	balances      model.Balances
}

// NewAdapter constructs a fake venue named id, seeded deterministically
// from its name per the teacher's NewDeterministicAdapter.
func NewAdapter(id string) *Adapter {
	hash := md5.Sum([]byte(id))
	var seed int64
	for _, b := range hash[:8] {
		seed = seed<<8 | int64(b)
	}
	return &Adapter{
		name:       id,
		seed:       seed,
		volatility: 0.02,
		basePrices: defaultBasePrices(),
		balances:   make(model.Balances),
	}
}

// Factory satisfies venue.Factory. Credentials are accepted but only their
// presence matters, since Authenticated is the only thing a fake venue
// needs to report about them.
func Factory(venueID string, creds venue.Credentials) (venue.Client, error) {
	a := NewAdapter(venueID)
	a.authenticated = creds.Authenticated()
	return a, nil
}

func defaultBasePrices() map[string]float64 {
	return map[string]float64{
		"BTC/USDT": 60000,
		"ETH/USDT": 3000,
		"ETH/BTC":  0.05,
	}
}

func (a *Adapter) ID() string          { return a.name }
func (a *Adapter) Authenticated() bool { return a.authenticated }
func (a *Adapter) Close() error        { return nil }

func (a *Adapter) LoadMarkets(context.Context) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(a.basePrices))
	for sym := range a.basePrices {
		set[sym] = struct{}{}
	}
	return set, nil
}

// timeBucket rounds now down to the second, so repeated calls within the
// same second return byte-identical books, matching the teacher's
// timestamp-seeded rand source.
func (a *Adapter) timeBucket(now time.Time) int64 { return now.Unix() }

// midPrice reproduces the teacher's getPrice: a deterministic base price
// perturbed by a seeded normal random walk plus a small sinusoidal
// volatility-clustering term.
func (a *Adapter) midPrice(symbol string, bucket int64) float64 {
	base, ok := a.basePrices[symbol]
	if !ok {
		base = 1.0
	}
	rng := rand.New(rand.NewSource(a.seed + bucket))
	randomWalk := rng.NormFloat64() * a.volatility * base * 0.1
	cluster := math.Sin(float64(bucket)*0.01) * a.volatility * base * 0.05
	price := base + randomWalk + cluster
	if price <= 0 {
		price = base
	}
	return price
}

func (a *Adapter) FetchOrderBook(_ context.Context, symbol string) (model.OrderBook, error) {
	if _, ok := a.basePrices[symbol]; !ok {
		return model.OrderBook{}, errs.MissingMarket(fmt.Errorf("fake: unknown symbol %s", symbol))
	}
	bucket := a.timeBucket(time.Now())
	mid := a.midPrice(symbol, bucket)
	rng := rand.New(rand.NewSource(a.seed + bucket + 1))

	levels := func(sign float64) []model.Level {
		out := make([]model.Level, 5)
		price := mid
		for i := range out {
			price *= 1 + sign*0.0005*float64(i+1)
			volume := 0.5 + rng.Float64()*2
			out[i] = model.Level{
				Price:  decimal.NewFromFloat(price).Round(8),
				Volume: decimal.NewFromFloat(volume).Round(8),
			}
		}
		return out
	}

	return model.OrderBook{
		Symbol:     model.NewSymbol(symbol),
		Venue:      a.ID(),
		Asks:       levels(1),
		Bids:       levels(-1),
		ReceivedAt: time.Now(),
	}, nil
}

func (a *Adapter) FetchOrderBooks(ctx context.Context) (map[string]model.OrderBook, error) {
	out := make(map[string]model.OrderBook, len(a.basePrices))
	for symbol := range a.basePrices {
		book, err := a.FetchOrderBook(ctx, symbol)
		if err != nil {
			continue
		}
		out[symbol] = book
	}
	return out, nil
}

// WatchOrderBookForSymbols emits one synthetic snapshot per symbol every
// second until ctx is cancelled, simulating a streaming venue for tests
// of the batch ingestion path.
func (a *Adapter) WatchOrderBookForSymbols(ctx context.Context, symbols []string, onUpdate func(model.OrderBook)) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, sym := range symbols {
				book, err := a.FetchOrderBook(ctx, sym)
				if err != nil {
					continue
				}
				onUpdate(book)
			}
		}
	}
}

// CalculateFee charges a flat 0.1% taker fee in the quote coin, a round
// number convenient for hand-checking scenario math in tests.
func (a *Adapter) CalculateFee(_ context.Context, symbol string, _ model.Side, amount, price decimal.Decimal) (venue.FeeQuote, error) {
	rate := decimal.RequireFromString("0.001")
	return venue.FeeQuote{Amount: amount.Mul(price).Mul(rate), Coin: model.NewSymbol(symbol).Quote()}, nil
}

// SetBalance seeds a starting balance for interactive testing; not part of
// venue.Client, used only by test setup.
func (a *Adapter) SetBalance(coin string, amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[coin] = amount
}

func (a *Adapter) FetchBalance(context.Context) (model.Balances, error) {
	if !a.authenticated {
		return nil, errs.Unauthenticated(fmt.Errorf("fake: %s has no credentials configured", a.name))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances.Clone(), nil
}

func (a *Adapter) CreateOrder(context.Context, string, model.Side, decimal.Decimal, decimal.Decimal) (string, error) {
	return "", fmt.Errorf("fake: placing orders is not supported")
}

func (a *Adapter) FetchDepositAddress(_ context.Context, coin string) (string, error) {
	return "fake-" + strings.ToLower(coin) + "-address", nil
}

func (a *Adapter) Withdraw(context.Context, string, decimal.Decimal, string) (string, error) {
	return "", fmt.Errorf("fake: withdrawals are not supported")
}
