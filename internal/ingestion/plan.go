// Package ingestion derives ingestion plans from configuration and runs the
// per-plan loop that feeds the Cache Layer, per spec.md section 4.3.
package ingestion

import "github.com/fmenezes/anxiousbot/internal/model"

// ExchangeConfig is the per-venue slice of configuration the plan deriver
// needs: its declared access mode, the symbols it should be asked for, and
// (for batch mode) the maximum symbols per call.
type ExchangeConfig struct {
	VenueID    string
	Mode       model.IngestionMode
	Symbols    []string
	BatchLimit int
}

// DerivePlans turns one venue's configuration into its immutable set of
// ingestion plans, per spec.md section 4.3's "Plan derivation":
//   - single: one plan per symbol.
//   - batch: one or more plans, each carrying up to BatchLimit symbols.
//   - all: a single plan with an empty symbol list.
func DerivePlans(cfg ExchangeConfig) []model.IngestionPlan {
	switch cfg.Mode {
	case model.ModeSingle:
		plans := make([]model.IngestionPlan, 0, len(cfg.Symbols))
		for _, sym := range cfg.Symbols {
			plans = append(plans, model.IngestionPlan{VenueID: cfg.VenueID, Mode: model.ModeSingle, Symbols: []string{sym}})
		}
		return plans
	case model.ModeBatch:
		limit := cfg.BatchLimit
		if limit <= 0 {
			limit = len(cfg.Symbols)
		}
		if limit <= 0 {
			return nil
		}
		var plans []model.IngestionPlan
		for i := 0; i < len(cfg.Symbols); i += limit {
			end := i + limit
			if end > len(cfg.Symbols) {
				end = len(cfg.Symbols)
			}
			batch := make([]string, end-i)
			copy(batch, cfg.Symbols[i:end])
			plans = append(plans, model.IngestionPlan{VenueID: cfg.VenueID, Mode: model.ModeBatch, Symbols: batch})
		}
		return plans
	case model.ModeAll:
		return []model.IngestionPlan{{VenueID: cfg.VenueID, Mode: model.ModeAll}}
	default:
		return nil
	}
}

// DeriveAllPlans derives and concatenates the plans for every configured
// exchange, the set the Scheduler launches one loop per.
func DeriveAllPlans(exchanges []ExchangeConfig) []model.IngestionPlan {
	var all []model.IngestionPlan
	for _, cfg := range exchanges {
		all = append(all, DerivePlans(cfg)...)
	}
	return all
}
