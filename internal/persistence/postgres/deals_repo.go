package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fmenezes/anxiousbot/internal/persistence"
)

// DealSink persists closed deals to a "deals" table. Grounded on the
// teacher's tradesRepo.Insert: a plain ExecContext insert (no RETURNING
// clause), a query-scoped timeout, and pq.Error code inspection for
// duplicates.
type DealSink struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewDealSink(db *sqlx.DB, timeout time.Duration) *DealSink {
	return &DealSink{db: db, timeout: timeout}
}

const insertDealSQL = `
INSERT INTO deals (
	ts, symbol, ts_open, ts_close, duration_seconds,
	profit, profit_percentage,
	buy_venue, buy_total_quote, buy_total_base,
	sell_venue, sell_total_quote
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (r *DealSink) Record(ctx context.Context, rec persistence.DealRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, insertDealSQL,
		rec.Ts, rec.Symbol, rec.TsOpen, rec.TsClose, rec.Duration.Seconds(),
		rec.Profit.String(), rec.ProfitPercentage.String(),
		rec.BuyVenue, rec.BuyTotalQuote.String(), rec.BuyTotalBase.String(),
		rec.SellVenue, rec.SellTotalQuote.String(),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("persistence: duplicate deal record: %w", err)
		}
		return fmt.Errorf("persistence: insert deal: %w", err)
	}
	return nil
}

func (r *DealSink) Close() error {
	return r.db.Close()
}
