// Package persistence records closed deals for later analysis. The
// interface and record shape are grounded on the teacher's
// internal/persistence package (a small typed record plus a narrow
// repository interface per storage concern); the record fields themselves
// come from spec.md section 6's deal-history schema and the CSV header
// dealer.py writes in _write_deal_xml.
package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DealRecord is one closed deal, the unit both the CSV sink and the
// Postgres sink persist.
type DealRecord struct {
	Ts               time.Time       `db:"ts"`
	Symbol           string          `db:"symbol"`
	TsOpen           time.Time       `db:"ts_open"`
	TsClose          time.Time       `db:"ts_close"`
	Duration         time.Duration   `db:"duration"`
	Profit           decimal.Decimal `db:"profit"`
	ProfitPercentage decimal.Decimal `db:"profit_percentage"`
	BuyVenue         string          `db:"buy_venue"`
	BuyTotalQuote    decimal.Decimal `db:"buy_total_quote"`
	BuyTotalBase     decimal.Decimal `db:"buy_total_base"`
	SellVenue        string          `db:"sell_venue"`
	SellTotalQuote   decimal.Decimal `db:"sell_total_quote"`
}

// DealSink persists closed deals. Implementations must not block the deal
// controller on failure; callers log and continue per spec.md section 7.
type DealSink interface {
	Record(ctx context.Context, rec DealRecord) error
	Close() error
}

// MultiSink fans a record out to every configured sink, collecting errors
// rather than stopping at the first failure, since the CSV and Postgres
// sinks are independent of each other.
type MultiSink []DealSink

func (m MultiSink) Record(ctx context.Context, rec DealRecord) error {
	var firstErr error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
