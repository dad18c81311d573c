package persistence

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// CSVSink appends one row per closed deal to a per-symbol, per-day file.
// Grounded on dealer.py's _write_deal_xml: filename
// "{prefix}deals_{symbol-with-slash-as-dash}_{date}.csv" under a data
// directory, header written only on first create, one writer per process.
type CSVSink struct {
	mu     sync.Mutex
	dir    string
	prefix string
	files  map[string]*os.File
	writer map[string]*csv.Writer
}

var csvHeader = []string{
	"ts", "symbol", "ts_open", "ts_close", "duration",
	"profit", "profit_percentage",
	"buy_venue", "buy_total_quote", "buy_total_base",
	"sell_venue", "sell_total_quote",
}

// NewCSVSink creates a sink writing under dir, with every filename carrying
// the given prefix (may be empty).
func NewCSVSink(dir, prefix string) *CSVSink {
	return &CSVSink{
		dir:    dir,
		prefix: prefix,
		files:  make(map[string]*os.File),
		writer: make(map[string]*csv.Writer),
	}
}

func (s *CSVSink) fileName(rec DealRecord) string {
	symbolPart := strings.ReplaceAll(rec.Symbol, "/", "-")
	date := rec.Ts.Format("2006-01-02")
	return filepath.Join(s.dir, fmt.Sprintf("%sdeals_%s_%s.csv", s.prefix, symbolPart, date))
}

// Record appends rec's row, opening (and header-writing) the file on first
// use for that symbol/day combination.
func (s *CSVSink) Record(_ context.Context, rec DealRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.fileName(rec)
	w, ok := s.writer[path]
	if !ok {
		_, statErr := os.Stat(path)
		needsHeader := os.IsNotExist(statErr)

		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("persistence: creating csv dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("persistence: opening csv sink: %w", err)
		}
		w = csv.NewWriter(f)
		if needsHeader {
			if err := w.Write(csvHeader); err != nil {
				f.Close()
				return fmt.Errorf("persistence: writing csv header: %w", err)
			}
		}
		s.files[path] = f
		s.writer[path] = w
	}

	row := []string{
		rec.Ts.Format("2006-01-02T15:04:05.000Z07:00"),
		rec.Symbol,
		rec.TsOpen.Format("2006-01-02T15:04:05.000Z07:00"),
		rec.TsClose.Format("2006-01-02T15:04:05.000Z07:00"),
		rec.Duration.String(),
		rec.Profit.String(),
		rec.ProfitPercentage.String(),
		rec.BuyVenue,
		rec.BuyTotalQuote.String(),
		rec.BuyTotalBase.String(),
		rec.SellVenue,
		rec.SellTotalQuote.String(),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("persistence: writing csv row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, f := range s.files {
		s.writer[path].Flush()
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// quoteFloat mirrors dealer.py's f"{x:.2f}" fallback formatting. Nothing
// calls it: the CSV sink writes decimal values with String, and the
// interactive balance command formats with decimal StringFixed(2).
func quoteFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
