// Package match implements the pure matching engine (spec section 4.4): it
// walks ask/bid ladders across a sequence of buy/sell operations under a fee
// model and returns the resulting balances, accrued fees, and realized
// profit. It performs no I/O beyond the synchronous fee lookups an
// operation's client exposes, and has no suspension points.
package match

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/venue"
)

const matchedFloor = "0.000001"

var (
	eight         int32 = 8
	matchedFloorD       = decimal.RequireFromString(matchedFloor)
	one                 = decimal.NewFromInt(1)
	hundred             = decimal.NewFromInt(100)
)

// FeeCalculator is the subset of venue.Client the engine needs. Any
// venue.Client satisfies it.
type FeeCalculator interface {
	CalculateFee(ctx context.Context, symbol string, side model.Side, amount, price decimal.Decimal) (venue.FeeQuote, error)
}

// Operation is one leg of a match: a venue, a side, the order book snapshot
// to walk, and the client to ask for fees. Length 2 for pair-arbitrage
// (buy, sell); length 3 for triangular.
type Operation struct {
	Venue string
	Side  model.Side
	Book  model.OrderBook
	Fees  FeeCalculator
}

// Result is the output of one Run: final balances, accrued fees per
// venue/coin, and the realized profit in the profit coin.
type Result struct {
	FinalBalances    model.VenueBalances
	Costs            map[string]map[string]decimal.Decimal
	ProfitCoin       string
	Profit           decimal.Decimal
	ProfitPercentage decimal.Decimal
}

// ladder is a mutable working copy of one side of an order book.
type ladder struct {
	levels []model.Level
}

func newLadder(side model.Side, book model.OrderBook) *ladder {
	src := book.Asks
	if side == model.SideSell {
		src = book.Bids
	}
	cp := make([]model.Level, len(src))
	copy(cp, src)
	return &ladder{levels: cp}
}

// head returns the first positive-price, positive-volume level, dropping
// any non-positive entries in front of it from the working copy (spec
// section 3).
func (l *ladder) head() (model.Level, bool) {
	for len(l.levels) > 0 {
		lv := l.levels[0]
		if lv.Price.Sign() > 0 && lv.Volume.Sign() > 0 {
			return lv, true
		}
		l.levels = l.levels[1:]
	}
	return model.Level{}, false
}

// consume decrements the head's volume by amount, dropping the level once
// exhausted.
func (l *ladder) consume(amount decimal.Decimal) {
	if len(l.levels) == 0 {
		return
	}
	remaining := l.levels[0].Volume.Sub(amount)
	if remaining.Sign() <= 0 {
		l.levels = l.levels[1:]
		return
	}
	l.levels[0].Volume = remaining
}

// Run executes the matching algorithm for one sequence of operations against
// an initial venue balance map. Deterministic: identical inputs yield
// identical outputs.
func Run(ctx context.Context, initial model.VenueBalances, operations []Operation) (Result, error) {
	n := len(operations)
	if n == 0 {
		return Result{}, fmt.Errorf("match: at least one operation required")
	}
	for i, op := range operations {
		if op.Book.Venue != op.Venue {
			return Result{}, fmt.Errorf("match: operation %d labeled venue %q but carries a snapshot produced by %q", i, op.Venue, op.Book.Venue)
		}
	}
	balances := initial.Clone()
	ladders := make([]*ladder, n)
	for i, op := range operations {
		ladders[i] = newLadder(op.Side, op.Book)
	}

	// ready tracks which operation is eligible to run next. It is not
	// sticky: an operation that goes unproductive for a round (a momentary
	// zero balance, not a truly exhausted ladder) clears its own ready bit
	// and waits to be reopened by a later credit from an earlier operation,
	// the same resettable-flag behavior as the original's self._next.
	// Ladder exhaustion and an unfavourable rate are caught by
	// cumulativeRate below: once it fails, ready[0] is cleared so no new
	// cycle starts, while the later operations still drain whatever an
	// earlier step already forwarded to them.
	ready := make([]bool, n)
	ready[0] = true

	costs := make(map[string]map[string]decimal.Decimal)

	first := operations[0]
	var profitCoin string
	if first.Side == model.SideBuy {
		profitCoin = first.Book.Symbol.Quote()
	} else {
		profitCoin = first.Book.Symbol.Base()
	}
	spent := decimal.Zero

	for {
		rate, ok := cumulativeRate(operations, ladders)
		if !ok || rate.LessThan(one) {
			ready[0] = false
		}

		idx := -1
		for i := n - 1; i >= 0; i-- {
			if ready[i] {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}

		creditVenue := operations[idx].Venue
		if idx+1 < n {
			creditVenue = operations[idx+1].Venue
		}
		before := balances.Get(first.Venue, profitCoin)
		productive, err := matchStep(ctx, operations[idx], ladders[idx], balances, costs, creditVenue)
		if err != nil {
			return Result{}, err
		}
		if idx == 0 {
			after := balances.Get(first.Venue, profitCoin)
			if delta := before.Sub(after); delta.Sign() > 0 {
				spent = spent.Add(delta)
			}
		}
		if productive {
			if idx+1 < n {
				ready[idx+1] = true
			}
		} else {
			ready[idx] = false
		}
	}

	return buildResult(initial, balances, operations, costs, profitCoin, spent), nil
}

// cumulativeRate is the product of 1/price (buy) or price (sell) across the
// current ladder heads. Returns ok=false if any ladder is empty.
func cumulativeRate(operations []Operation, ladders []*ladder) (decimal.Decimal, bool) {
	rate := one
	for i, l := range ladders {
		lv, ok := l.head()
		if !ok {
			return decimal.Zero, false
		}
		rate = rate.Mul(rateContribution(operations[i].Side, lv.Price))
	}
	return rate, true
}

// rateContribution weights a buy leg as 1/price and a sell leg as price
// (spec section 4.4 "Rate filter").
func rateContribution(side model.Side, price decimal.Decimal) decimal.Decimal {
	if side == model.SideBuy {
		return one.Div(price)
	}
	return price
}

// matchStep runs one match against op's ladder head. The consumed coin is
// debited from op.Venue's own balance (the real holding for the first
// operation in a chain, or whatever a prior step forwarded to it); the
// emitted coin is credited to creditVenue, which is the venue that will
// consume it next (or op.Venue itself for the last operation in the
// chain). This lets a pair-arbitrage buy on venue A hand its output to a
// sell on venue B without modeling an explicit transfer, and lets a
// triangular chain on one venue behave identically since creditVenue
// collapses to the same venue throughout.
//
// matchStep reports whether it actually moved volume this round. A false
// result covers both a ladder with no usable head and a round where the
// operation's own balance can't cover even the matched-volume floor; either
// way the caller only clears this operation's own ready bit, it does not
// retire the operation permanently, since a later credit from an earlier
// operation in the chain can make the same ladder head matchable again.
func matchStep(ctx context.Context, op Operation, l *ladder, balances model.VenueBalances, costs map[string]map[string]decimal.Decimal, creditVenue string) (productive bool, err error) {
	head, ok := l.head()
	if !ok {
		return false, nil
	}
	price := head.Price.Round(eight)

	base := op.Book.Symbol.Base()
	quote := op.Book.Symbol.Quote()

	var consumedCoin, emittedCoin string
	if op.Side == model.SideBuy {
		consumedCoin, emittedCoin = quote, base
	} else {
		consumedCoin, emittedCoin = base, quote
	}

	availableConsumed := balances.Get(op.Venue, consumedCoin)
	var availableBase decimal.Decimal
	if op.Side == model.SideBuy {
		if price.Sign() == 0 {
			return false, nil
		}
		availableBase = availableConsumed.Div(price)
	} else {
		availableBase = availableConsumed
	}

	preFee, err := op.Fees.CalculateFee(ctx, op.Book.Symbol.String(), op.Side, availableBase, price)
	if err != nil {
		return false, err
	}
	availableBase = availableBase.Sub(feeInBase(preFee, base, price)).Round(eight)
	if availableBase.Sign() < 0 {
		availableBase = decimal.Zero
	}

	matched := decimal.Min(availableBase, head.Volume)
	if matched.LessThan(matchedFloorD) {
		return false, nil
	}
	matched = matched.Round(eight)

	fee, err := op.Fees.CalculateFee(ctx, op.Book.Symbol.String(), op.Side, matched, price)
	if err != nil {
		return false, err
	}

	quoteAmount := matched.Mul(price).Round(eight)

	if op.Side == model.SideBuy {
		baseCredited := matched
		quoteDebited := quoteAmount
		if fee.Coin == base {
			baseCredited = baseCredited.Sub(fee.Amount)
		} else if fee.Coin == quote {
			quoteDebited = quoteDebited.Add(fee.Amount)
		}
		balances.Set(creditVenue, base, balances.Get(creditVenue, base).Add(baseCredited).Round(eight))
		balances.Set(op.Venue, quote, balances.Get(op.Venue, quote).Sub(quoteDebited).Round(eight))
	} else {
		baseDebited := matched
		quoteCredited := quoteAmount
		if fee.Coin == base {
			baseDebited = baseDebited.Add(fee.Amount)
		} else if fee.Coin == quote {
			quoteCredited = quoteCredited.Sub(fee.Amount)
		}
		balances.Set(op.Venue, base, balances.Get(op.Venue, base).Sub(baseDebited).Round(eight))
		balances.Set(creditVenue, quote, balances.Get(creditVenue, quote).Add(quoteCredited).Round(eight))
	}

	accrue(costs, op.Venue, fee.Coin, fee.Amount)

	l.consume(matched)
	return true, nil
}

// feeInBase converts a fee quote into base-coin units so it can be netted
// out of an available-base estimate (spec section 4.4 step 3).
func feeInBase(fee venue.FeeQuote, baseCoin string, price decimal.Decimal) decimal.Decimal {
	if fee.Amount.Sign() == 0 {
		return decimal.Zero
	}
	if fee.Coin == baseCoin {
		return fee.Amount
	}
	if price.Sign() == 0 {
		return decimal.Zero
	}
	return fee.Amount.Div(price)
}

func accrue(costs map[string]map[string]decimal.Decimal, venueID, coin string, amount decimal.Decimal) {
	if amount.Sign() == 0 {
		return
	}
	perCoin, ok := costs[venueID]
	if !ok {
		perCoin = make(map[string]decimal.Decimal)
		costs[venueID] = perCoin
	}
	perCoin[coin] = perCoin[coin].Add(amount)
}

func buildResult(initial, final model.VenueBalances, operations []Operation, costs map[string]map[string]decimal.Decimal, profitCoin string, spent decimal.Decimal) Result {
	// A chain may span more than one venue (pair-arbitrage buys on one
	// venue and sells on another); the engine forwards each operation's
	// output to whichever venue consumes it next, so the realized profit
	// is the total profit-coin holdings across every venue touched by the
	// chain, not a single venue's balance in isolation.
	touched := make(map[string]struct{}, len(operations))
	for _, op := range operations {
		touched[op.Venue] = struct{}{}
	}

	initialAmount := decimal.Zero
	finalAmount := decimal.Zero
	for v := range touched {
		initialAmount = initialAmount.Add(initial.Get(v, profitCoin))
		finalAmount = finalAmount.Add(final.Get(v, profitCoin))
	}
	profit := finalAmount.Sub(initialAmount).Round(eight)

	// Percentage is relative to the capital actually committed by the
	// first operation, not the full starting balance of the venue it ran
	// on (spec section 8 scenario 2: profit 10 on 200 spent is ~5%, not
	// 0.01% against a 100000 starting balance).
	profitPct := decimal.Zero
	if spent.Sign() != 0 {
		profitPct = profit.Div(spent).Mul(hundred).Round(eight)
	}

	return Result{
		FinalBalances:    final,
		Costs:            costs,
		ProfitCoin:       profitCoin,
		Profit:           profit,
		ProfitPercentage: profitPct,
	}
}
