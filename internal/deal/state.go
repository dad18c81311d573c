// Package deal reifies the deal lifecycle as a small finite-state machine
// keyed by (prior.threshold, new.threshold), per spec.md section 4.5's
// transition table, plus the pair/trio loops that drive it.
package deal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fmenezes/anxiousbot/internal/match"
	"github.com/fmenezes/anxiousbot/internal/model"
)

// MinAbsProfit and MinRelProfit are the default threshold bounds named in
// spec.md section 3: threshold == true iff profit >= MinAbsProfit AND
// profit_percentage >= MinRelProfit.
var (
	MinAbsProfit = decimal.NewFromInt(10)
	MinRelProfit = decimal.NewFromInt(1)
)

// Threshold reports whether a match result clears the open/close bar.
func Threshold(profit, profitPercentage decimal.Decimal) bool {
	return profit.GreaterThanOrEqual(MinAbsProfit) && profitPercentage.GreaterThanOrEqual(MinRelProfit)
}

// Candidate is one matching-engine result plus the context needed to build
// the next deal record.
type Candidate struct {
	Result    match.Result
	Initial   model.VenueBalances
	Symbol    string
	BaseCoin  string
	QuoteCoin string
	BuyVenue  string
	SellVenue string
	Now       time.Time
}

// Transition runs prior and a freshly computed candidate through the state
// machine in spec.md section 4.5's table and returns the new persisted
// state. The emitted type is always set on the returned state; callers
// decide whether to notify or persist based on it.
func Transition(prior model.DealState, c Candidate) model.DealState {
	newThreshold := Threshold(c.Result.Profit, c.Result.ProfitPercentage)

	if prior.Threshold && !newThreshold {
		closed := prior
		closed.Ts = c.Now
		closed.TsClose = prior.Ts
		closed.Type = model.DealClose
		closed.Threshold = false
		closed.Message = closeMessage(closed)
		return closed
	}

	next := model.DealState{
		Ts:               c.Now,
		Threshold:        newThreshold,
		Profit:           c.Result.Profit,
		ProfitPercentage: c.Result.ProfitPercentage,
		ProfitCoin:       c.Result.ProfitCoin,
		BuyVenue:         c.BuyVenue,
		SellVenue:        c.SellVenue,
	}
	if c.BuyVenue != "" && c.Initial != nil {
		next.BuyTotalQuote = debited(c.Initial, c.Result.FinalBalances, c.BuyVenue, c.QuoteCoin)
		next.BuyTotalBase = credited(c.Initial, c.Result.FinalBalances, c.BuyVenue, c.BaseCoin)
	}
	if c.SellVenue != "" && c.Initial != nil {
		next.SellTotalQuote = credited(c.Initial, c.Result.FinalBalances, c.SellVenue, c.QuoteCoin)
	}

	switch {
	case !prior.Threshold && !newThreshold:
		next.Type = model.DealNoop
		next.TsOpen = prior.TsOpen
	case !prior.Threshold && newThreshold:
		next.Type = model.DealOpen
		next.TsOpen = c.Now
	default: // prior.Threshold && newThreshold
		next.Type = model.DealUpdate
		next.TsOpen = prior.TsOpen
	}

	if next.Type != model.DealNoop {
		next.Message = openOrUpdateMessage(next)
	}
	return next
}

// debited returns how much of coin venueID's balance dropped by between
// initial and final, floored at zero.
func debited(initial, final model.VenueBalances, venueID, coin string) decimal.Decimal {
	d := initial.Get(venueID, coin).Sub(final.Get(venueID, coin))
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// credited returns how much of coin venueID's balance rose by between
// initial and final, floored at zero.
func credited(initial, final model.VenueBalances, venueID, coin string) decimal.Decimal {
	d := final.Get(venueID, coin).Sub(initial.Get(venueID, coin))
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func closeMessage(s model.DealState) string {
	gain := "profit"
	if s.Profit.IsNegative() {
		gain = "loss"
	}
	return "Deal closed, making a " + gain + " of " + s.Profit.String() + " " + s.ProfitCoin +
		" (" + s.ProfitPercentage.String() + "%), at " + s.BuyVenue + " convert to " + s.SellVenue
}

func openOrUpdateMessage(s model.DealState) string {
	verb := "opened"
	if s.Type == model.DealUpdate {
		verb = "updated"
	}
	gain := "profit"
	if s.Profit.IsNegative() {
		gain = "loss"
	}
	return "Deal " + verb + ", making a " + gain + " of " + s.Profit.String() + " " + s.ProfitCoin +
		" (" + s.ProfitPercentage.String() + "%), at " + s.BuyVenue + " convert to " + s.SellVenue
}
