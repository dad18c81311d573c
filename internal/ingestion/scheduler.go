package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fmenezes/anxiousbot/internal/cache"
	"github.com/fmenezes/anxiousbot/internal/errs"
	"github.com/fmenezes/anxiousbot/internal/metrics"
	"github.com/fmenezes/anxiousbot/internal/model"
	"github.com/fmenezes/anxiousbot/internal/netutil"
	"github.com/fmenezes/anxiousbot/internal/venue"
)

const (
	// loopSleep is the "Sleep 1 s between iterations" step of spec.md
	// section 4.3's per-plan loop.
	loopSleep = time.Second
	// singlePreSleep is the 500 ms per-endpoint politeness sleep before
	// every single-mode call.
	singlePreSleep = 500 * time.Millisecond
	// registryPollInterval is how long a plan waits for the registry to
	// finish setting up its venue before checking again.
	registryPollInterval = 200 * time.Millisecond
	// defaultOrderBookTTL is the default order-book cache expiry (spec.md
	// section 6's expire_book_orders default).
	defaultOrderBookTTL = 60 * time.Second
)

// Scheduler runs one goroutine per ingestion plan, writing every snapshot it
// receives into the Cache Layer. Grounded on spec.md section 4.3.
type Scheduler struct {
	registry *venue.Registry
	store    cache.Store
	metrics  *metrics.Registry
	log      zerolog.Logger

	// configuredSymbols restricts "all"/"batch" results to the symbol set
	// actually configured for that venue, per spec.md section 4.3 step 3's
	// "ignore symbols outside the configured set".
	configuredSymbols map[string]map[string]struct{}

	orderBookTTL time.Duration
}

// NewScheduler constructs a Scheduler. exchanges supplies the configured
// symbol set per venue used to filter batch/all results. metricsReg may be
// nil, in which case fetch latency and error counts simply aren't recorded.
func NewScheduler(registry *venue.Registry, store cache.Store, metricsReg *metrics.Registry, exchanges []ExchangeConfig, orderBookTTL time.Duration, log zerolog.Logger) *Scheduler {
	if orderBookTTL <= 0 {
		orderBookTTL = defaultOrderBookTTL
	}
	configured := make(map[string]map[string]struct{}, len(exchanges))
	for _, cfg := range exchanges {
		set := make(map[string]struct{}, len(cfg.Symbols))
		for _, sym := range cfg.Symbols {
			set[sym] = struct{}{}
		}
		configured[cfg.VenueID] = set
	}
	return &Scheduler{registry: registry, store: store, metrics: metricsReg, configuredSymbols: configured, orderBookTTL: orderBookTTL, log: log}
}

// Run launches one goroutine per plan and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, plans []model.IngestionPlan) {
	for _, plan := range plans {
		go s.runPlan(ctx, plan)
	}
	<-ctx.Done()
}

// runPlan is the "Per-plan loop" of spec.md section 4.3.
func (s *Scheduler) runPlan(ctx context.Context, plan model.IngestionPlan) {
	for {
		if ctx.Err() != nil {
			return
		}

		client, err := s.resolveClient(ctx, plan.VenueID)
		if err != nil {
			return
		}
		if client == nil {
			continue // registry not ready yet; resolveClient already slept
		}

		if plan.Mode == model.ModeSingle {
			if sleepErr := sleepCtx(ctx, singlePreSleep); sleepErr != nil {
				return
			}
		}

		fetchStart := time.Now()
		err = netutil.Do(ctx, func() error {
			return s.fetchOnce(ctx, client, plan)
		})
		if s.metrics != nil {
			s.metrics.RecordIngestionLatency(plan.VenueID, string(plan.Mode), time.Since(fetchStart))
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.metrics != nil {
				s.metrics.RecordIngestionError(plan.VenueID, errs.KindOf(err).String())
			}
			s.log.Warn().Str("venue", plan.VenueID).Str("mode", string(plan.Mode)).Err(err).Msg("ingestion call failed")
		}

		if sleepErr := sleepCtx(ctx, loopSleep); sleepErr != nil {
			return
		}
	}
}

// resolveClient waits for the registry to finish setting up venueID,
// returning (nil, nil) once (not yet ready, caller should loop) or the
// client once ready. Cooperative with Registry per spec.md section 4.3
// step 1.
func (s *Scheduler) resolveClient(ctx context.Context, venueID string) (venue.Client, error) {
	client, ok := s.registry.Exchange(venueID)
	if ok {
		return client, nil
	}
	if sleepErr := sleepCtx(ctx, registryPollInterval); sleepErr != nil {
		return nil, sleepErr
	}
	return nil, nil
}

func (s *Scheduler) fetchOnce(ctx context.Context, client venue.Client, plan model.IngestionPlan) error {
	switch plan.Mode {
	case model.ModeSingle:
		symbol := plan.Symbols[0]
		book, err := client.FetchOrderBook(ctx, symbol)
		if err != nil {
			return err
		}
		return s.store.SetOrderBook(ctx, symbol, plan.VenueID, book, s.orderBookTTL)

	case model.ModeBatch:
		var firstErr error
		err := client.WatchOrderBookForSymbols(ctx, plan.Symbols, func(book model.OrderBook) {
			if !s.allowed(plan.VenueID, book.Symbol.String()) {
				return
			}
			if setErr := s.store.SetOrderBook(ctx, book.Symbol.String(), plan.VenueID, book, s.orderBookTTL); setErr != nil && firstErr == nil {
				firstErr = setErr
			}
		})
		if err != nil {
			return err
		}
		return firstErr

	case model.ModeAll:
		books, err := client.FetchOrderBooks(ctx)
		if err != nil {
			return err
		}
		var firstErr error
		for symbol, book := range books {
			if !s.allowed(plan.VenueID, symbol) {
				continue
			}
			if setErr := s.store.SetOrderBook(ctx, symbol, plan.VenueID, book, s.orderBookTTL); setErr != nil && firstErr == nil {
				firstErr = setErr
			}
		}
		return firstErr

	default:
		return nil
	}
}

// allowed reports whether symbol is in venueID's configured set; an
// unconfigured venue (no entry at all) admits everything, since the check
// only matters for "all"/"batch" venues whose configuration was supplied.
func (s *Scheduler) allowed(venueID, symbol string) bool {
	set, ok := s.configuredSymbols[venueID]
	if !ok || len(set) == 0 {
		return true
	}
	_, ok = set[symbol]
	return ok
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
