package deal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/match"
	"github.com/fmenezes/anxiousbot/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTransition_NoopWhenBelowThresholdThroughout(t *testing.T) {
	prior := model.DefaultDealState(time.Unix(0, 0))
	c := Candidate{
		Result: match.Result{Profit: decimal.Zero, ProfitPercentage: decimal.Zero, ProfitCoin: "USDT"},
		Now:    time.Unix(100, 0),
	}
	next := Transition(prior, c)
	require.Equal(t, model.DealNoop, next.Type)
	require.Equal(t, prior.TsOpen, next.TsOpen)
}

func TestTransition_OpensOnThresholdCrossing(t *testing.T) {
	prior := model.DefaultDealState(time.Unix(0, 0))
	now := time.Unix(100, 0)
	c := Candidate{
		Result: match.Result{Profit: d("10"), ProfitPercentage: d("5"), ProfitCoin: "USDT"},
		Now:    now,
	}
	next := Transition(prior, c)
	require.Equal(t, model.DealOpen, next.Type)
	require.Equal(t, now, next.TsOpen)
	require.NotEmpty(t, next.Message)
}

func TestTransition_UpdateKeepsTsOpen(t *testing.T) {
	openedAt := time.Unix(100, 0)
	prior := model.DealState{
		Ts:        openedAt,
		TsOpen:    openedAt,
		Type:      model.DealOpen,
		Threshold: true,
		Profit:    d("10"),
	}
	now := time.Unix(130, 0)
	c := Candidate{
		Result: match.Result{Profit: d("12"), ProfitPercentage: d("6"), ProfitCoin: "USDT"},
		Now:    now,
	}
	next := Transition(prior, c)
	require.Equal(t, model.DealUpdate, next.Type)
	require.Equal(t, openedAt, next.TsOpen)
}

func TestTransition_ClosePreservesPriorAndForcesThresholdFalse(t *testing.T) {
	openedAt := time.Unix(100, 0)
	priorTs := time.Unix(130, 0)
	prior := model.DealState{
		Ts:         priorTs,
		TsOpen:     openedAt,
		Type:       model.DealUpdate,
		Threshold:  true,
		Profit:     d("12"),
		ProfitCoin: "USDT",
		BuyVenue:   "A",
		SellVenue:  "B",
	}
	now := time.Unix(160, 0)
	c := Candidate{
		Result: match.Result{Profit: decimal.Zero, ProfitPercentage: decimal.Zero, ProfitCoin: "USDT"},
		Now:    now,
	}
	next := Transition(prior, c)
	require.Equal(t, model.DealClose, next.Type)
	require.False(t, next.Threshold)
	require.Equal(t, openedAt, next.TsOpen)
	require.Equal(t, priorTs, next.TsClose)
	require.Equal(t, "A", next.BuyVenue)
	require.Equal(t, "B", next.SellVenue)
}

func TestTransition_BuySellTotalsTrackBalanceDeltas(t *testing.T) {
	prior := model.DefaultDealState(time.Unix(0, 0))
	initial := make(model.VenueBalances)
	initial.Set("A", "USDT", d("100000"))

	final := make(model.VenueBalances)
	final.Set("A", "USDT", d("99800"))
	final.Set("A", "BTC", d("2"))
	final.Set("B", "USDT", d("210"))

	c := Candidate{
		Result: match.Result{
			FinalBalances:    final,
			Profit:           d("10"),
			ProfitPercentage: d("5"),
			ProfitCoin:       "USDT",
		},
		Initial:   initial,
		BaseCoin:  "BTC",
		QuoteCoin: "USDT",
		BuyVenue:  "A",
		SellVenue: "B",
		Now:       time.Unix(100, 0),
	}
	next := Transition(prior, c)
	require.True(t, next.BuyTotalQuote.Equal(d("200")))
	require.True(t, next.BuyTotalBase.Equal(d("2")))
	require.True(t, next.SellTotalQuote.Equal(d("210")))
}
