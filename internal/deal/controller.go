package deal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fmenezes/anxiousbot/internal/cache"
	"github.com/fmenezes/anxiousbot/internal/match"
	"github.com/fmenezes/anxiousbot/internal/metrics"
	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/notify"
	"github.com/fmenezes/anxiousbot/internal/persistence"
	"github.com/fmenezes/anxiousbot/internal/venue"
)

// loopInterval is spec.md section 4.5's "every 500 ms" cadence, shared by
// the pair and trio loops.
const loopInterval = 500 * time.Millisecond

// SymbolConfig is the per-symbol slice of configuration the controller
// needs: which venues quote it and what the underlying coins are.
type SymbolConfig struct {
	Symbol    string
	BaseCoin  string
	QuoteCoin string
}

// Controller drives the deal state machine for a configured symbol set,
// one pair loop per symbol plus one trio loop per initialized venue, and
// pushes open/close events onto the outbound queue. Grounded on
// spec.md section 4.5; registry/cache/queue are the three collaborators
// the section names explicitly.
type Controller struct {
	registry *venue.Registry
	store    cache.Store
	queue    *notify.Queue
	sink     persistence.DealSink
	metrics  *metrics.Registry
	log      zerolog.Logger

	symbols []SymbolConfig
	dealTTL time.Duration
}

// NewController wires a deal controller. metricsReg and sink may both be
// nil, in which case match timings/transitions go unrecorded and closed
// deals go unpersisted, respectively.
func NewController(registry *venue.Registry, store cache.Store, queue *notify.Queue, sink persistence.DealSink, metricsReg *metrics.Registry, symbols []SymbolConfig, dealTTL time.Duration, log zerolog.Logger) *Controller {
	return &Controller{registry: registry, store: store, queue: queue, sink: sink, metrics: metricsReg, symbols: symbols, dealTTL: dealTTL, log: log}
}

// Run launches one pair-loop goroutine per configured symbol and one
// trio-loop goroutine per currently initialized venue, and blocks until
// ctx is cancelled. Each loop exits at its own next sleep boundary per
// spec.md section 5's cancellation policy.
func (c *Controller) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	n := 0
	for _, sc := range c.symbols {
		n++
		go c.runPairLoop(ctx, sc)
	}
	for _, venueID := range c.registry.InitializedIDs() {
		n++
		go c.runTrioLoop(ctx, venueID)
	}
	c.log.Info().Int("loops", n).Msg("deal controller started")
	<-ctx.Done()
}

// runPairLoop implements spec.md section 4.5's "Pair loop, per symbol".
func (c *Controller) runPairLoop(ctx context.Context, sc SymbolConfig) {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pairTick(ctx, sc)
		}
	}
}

func (c *Controller) pairTick(ctx context.Context, sc SymbolConfig) {
	initial, err := c.initialBalance(ctx, sc.BaseCoin, sc.QuoteCoin)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", sc.Symbol).Msg("reading starting balance failed")
		return
	}

	venues := c.registry.InitializedIDs()
	for _, buyVenue := range venues {
		for _, sellVenue := range venues {
			if buyVenue == sellVenue {
				continue
			}
			c.evaluatePair(ctx, sc, buyVenue, sellVenue, initial)
		}
	}
}

func (c *Controller) evaluatePair(ctx context.Context, sc SymbolConfig, buyVenue, sellVenue string, initial model.VenueBalances) {
	buyBook, ok, err := c.store.GetOrderBook(ctx, sc.Symbol, buyVenue)
	if err != nil || !ok || buyBook.Empty() {
		return
	}
	sellBook, ok, err := c.store.GetOrderBook(ctx, sc.Symbol, sellVenue)
	if err != nil || !ok || sellBook.Empty() {
		return
	}

	buyClient, ok := c.registry.Exchange(buyVenue)
	if !ok {
		return
	}
	sellClient, ok := c.registry.Exchange(sellVenue)
	if !ok {
		return
	}

	ops := []match.Operation{
		{Venue: buyVenue, Side: model.SideBuy, Book: buyBook, Fees: buyClient},
		{Venue: sellVenue, Side: model.SideSell, Book: sellBook, Fees: sellClient},
	}
	start := time.Now()
	result, err := match.Run(ctx, initial, ops)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", sc.Symbol).Str("buy", buyVenue).Str("sell", sellVenue).Msg("matching engine failed")
		return
	}
	if c.metrics != nil {
		profit, _ := result.ProfitPercentage.Float64()
		c.metrics.RecordMatch("pair", profit, time.Since(start))
	}

	key := cache.DealKey(sc.Symbol, buyVenue, sellVenue)
	now := time.Now()
	c.applyTransition(ctx, "pair", key, sc.Symbol, Candidate{
		Result:    result,
		Initial:   initial,
		Symbol:    sc.Symbol,
		BaseCoin:  sc.BaseCoin,
		QuoteCoin: sc.QuoteCoin,
		BuyVenue:  buyVenue,
		SellVenue: sellVenue,
		Now:       now,
	}, []model.DealLeg{
		{Venue: buyVenue, Side: model.SideBuy, Symbol: sc.Symbol},
		{Venue: sellVenue, Side: model.SideSell, Symbol: sc.Symbol},
	})
}

// runTrioLoop implements spec.md section 4.5's "Trio loop, per cycle":
// triangular cycles on a single venue, restricted to cycles with a USDT
// leg to bound the candidate set.
func (c *Controller) runTrioLoop(ctx context.Context, venueID string) {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.trioTick(ctx, venueID)
		}
	}
}

func (c *Controller) trioTick(ctx context.Context, venueID string) {
	client, ok := c.registry.Exchange(venueID)
	if !ok {
		return
	}

	for _, cycle := range c.eligibleCycles(ctx, venueID) {
		c.evaluateTrio(ctx, venueID, client, cycle)
	}
}

// trioLeg is one (symbol, side) step of a triangular cycle.
type trioLeg struct {
	Symbol string
	Side   model.Side
}

// eligibleCycles enumerates the triangular cycles available from the
// order books currently cached for venueID that have a leg touching
// USDT, per spec.md section 4.5's eligibility rule. The cache does not
// expose a list operation, so cycles are derived from the symbols this
// controller is already configured to watch on that venue.
func (c *Controller) eligibleCycles(ctx context.Context, venueID string) [][3]trioLeg {
	var legs []trioLeg
	touchesUSDT := false
	for _, sc := range c.symbols {
		if _, ok, err := c.store.GetOrderBook(ctx, sc.Symbol, venueID); err != nil || !ok {
			continue
		}
		legs = append(legs, trioLeg{Symbol: sc.Symbol, Side: model.SideBuy}, trioLeg{Symbol: sc.Symbol, Side: model.SideSell})
		if sc.BaseCoin == "USDT" || sc.QuoteCoin == "USDT" {
			touchesUSDT = true
		}
	}
	if !touchesUSDT || len(legs) < 3 {
		return nil
	}

	var cycles [][3]trioLeg
	for i := 0; i < len(legs); i++ {
		for j := 0; j < len(legs); j++ {
			if j == i {
				continue
			}
			for k := 0; k < len(legs); k++ {
				if k == i || k == j {
					continue
				}
				cycle := [3]trioLeg{legs[i], legs[j], legs[k]}
				if !cycleTouchesUSDT(cycle) || !cycleCloses(cycle) {
					continue
				}
				cycles = append(cycles, cycle)
			}
		}
	}
	return cycles
}

func cycleTouchesUSDT(cycle [3]trioLeg) bool {
	for _, leg := range cycle {
		sym := model.NewSymbol(leg.Symbol)
		if sym.Base() == "USDT" || sym.Quote() == "USDT" {
			return true
		}
	}
	return false
}

// cycleCloses reports whether the coin emitted by each leg matches the
// coin consumed by the next, and the final leg's emission returns to the
// first leg's consumed coin, which is what makes the triple a cycle
// rather than an arbitrary walk.
func cycleCloses(cycle [3]trioLeg) bool {
	consumed := func(leg trioLeg) string {
		sym := model.NewSymbol(leg.Symbol)
		if leg.Side == model.SideBuy {
			return sym.Quote()
		}
		return sym.Base()
	}
	emitted := func(leg trioLeg) string {
		sym := model.NewSymbol(leg.Symbol)
		if leg.Side == model.SideBuy {
			return sym.Base()
		}
		return sym.Quote()
	}
	for i := 0; i < 3; i++ {
		next := cycle[(i+1)%3]
		if emitted(cycle[i]) != consumed(next) {
			return false
		}
	}
	return true
}

func (c *Controller) evaluateTrio(ctx context.Context, venueID string, client venue.Client, cycle [3]trioLeg) {
	ops := make([]match.Operation, 3)
	keyParts := make([]string, 3)
	legs := make([]model.DealLeg, 3)
	for i, leg := range cycle {
		book, ok, err := c.store.GetOrderBook(ctx, leg.Symbol, venueID)
		if err != nil || !ok || book.Empty() {
			return
		}
		ops[i] = match.Operation{Venue: venueID, Side: leg.Side, Book: book, Fees: client}
		keyParts[i] = fmt.Sprintf("%s:%s:%s", venueID, leg.Side, leg.Symbol)
		legs[i] = model.DealLeg{Venue: venueID, Side: leg.Side, Symbol: leg.Symbol}
	}

	initial, err := c.initialBalance(ctx, model.NewSymbol(cycle[0].Symbol).Base(), model.NewSymbol(cycle[0].Symbol).Quote())
	if err != nil {
		return
	}

	start := time.Now()
	result, err := match.Run(ctx, initial, ops)
	if err != nil {
		c.log.Error().Err(err).Str("venue", venueID).Msg("trio matching engine failed")
		return
	}
	if c.metrics != nil {
		profit, _ := result.ProfitPercentage.Float64()
		c.metrics.RecordMatch("trio", profit, time.Since(start))
	}

	key := cache.TrioDealKey(keyParts[0], keyParts[1], keyParts[2])
	now := time.Now()
	c.applyTransition(ctx, "trio", key, strings.Join([]string{cycle[0].Symbol, cycle[1].Symbol, cycle[2].Symbol}, "|"), Candidate{
		Result:  result,
		Initial: initial,
		Now:     now,
	}, legs)
}

func (c *Controller) initialBalance(ctx context.Context, baseCoin, quoteCoin string) (model.VenueBalances, error) {
	base, err := c.store.GetBalance(ctx, baseCoin)
	if err != nil {
		return nil, fmt.Errorf("deal: reading base balance: %w", err)
	}
	quote, err := c.store.GetBalance(ctx, quoteCoin)
	if err != nil {
		return nil, fmt.Errorf("deal: reading quote balance: %w", err)
	}

	balances := make(model.VenueBalances)
	for _, venueID := range c.registry.InitializedIDs() {
		balances.Set(venueID, baseCoin, base)
		balances.Set(venueID, quoteCoin, quote)
	}
	return balances, nil
}

// applyTransition reads the prior state for key, runs Transition, writes
// the result back, and emits a notification for open and close types only
// (noop and update are not sent) per spec.md section 4.5's emission policy.
func (c *Controller) applyTransition(ctx context.Context, kind, key, label string, candidate Candidate, legs []model.DealLeg) {
	prior, err := c.store.GetDeal(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("reading prior deal state failed")
		return
	}

	next := Transition(prior, candidate)
	next.Legs = legs

	if err := c.store.SetDeal(ctx, key, next, c.dealTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("persisting deal state failed")
	}

	if c.metrics != nil {
		c.metrics.RecordDealTransition(kind, key, string(next.Type))
	}

	if next.Type == model.DealClose && c.sink != nil {
		rec := persistence.DealRecord{
			Ts:               next.Ts,
			Symbol:           label,
			TsOpen:           next.TsOpen,
			TsClose:          next.TsClose,
			Duration:         next.Ts.Sub(next.TsOpen),
			Profit:           next.Profit,
			ProfitPercentage: next.ProfitPercentage,
			BuyVenue:         next.BuyVenue,
			BuyTotalQuote:    next.BuyTotalQuote,
			BuyTotalBase:     next.BuyTotalBase,
			SellVenue:        next.SellVenue,
			SellTotalQuote:   next.SellTotalQuote,
		}
		if err := c.sink.Record(ctx, rec); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("persisting closed deal failed")
		}
	}

	if next.Type == model.DealNoop {
		return
	}
	if next.Type == model.DealUpdate {
		return
	}

	glyph := notify.Glyph(next.Type)
	text := glyph + " " + label + ": " + next.Message
	c.queue.Push(notify.Message{Text: text, Priority: notify.PriorityNormal})
}
