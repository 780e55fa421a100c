package orchestrator

import (
	"context"
	"sort"

	"equityintel/internal/models"
	"equityintel/internal/services/priority"
)

// candidate couples one ranked code with its discovery-time seed.
type candidate struct {
	Code     string
	Priority float64
	Seed     models.SourcesSeed
}

// discover assembles the candidate set for a business date: watchlist
// codes, codes with fresh filings, and high-or-rising theme codes. The
// result is ranked and carries each candidate's sources seed.
func (o *Orchestrator) discover(ctx context.Context, businessDate string) ([]candidate, error) {
	filings, err := o.filings.List(ctx, businessDate)
	if err != nil {
		// A dead filing list degrades discovery to watchlist and theme
		// codes; it must not abort the session.
		o.logger.Warn().Str("business_date", businessDate).Err(err).Msg("Filing list unavailable, discovery degraded")
		filings = nil
	}

	filingsByCode := make(map[string][]models.FilingRef)
	for _, f := range filings {
		if f.SecurityCode == "" {
			continue
		}
		filingsByCode[f.SecurityCode] = append(filingsByCode[f.SecurityCode], f)
	}

	states, err := o.fundStates.States(ctx)
	if err != nil {
		return nil, err
	}

	themeCodes, err := o.themes.HighOrRisingCodes(ctx, businessDate)
	if err != nil {
		o.logger.Warn().Str("business_date", businessDate).Err(err).Msg("Theme signal unavailable")
		themeCodes = nil
	}

	codes := make(map[string]struct{})
	for code, state := range states {
		if state.State == models.FundIn || state.State == models.FundWatch {
			codes[code] = struct{}{}
		}
	}
	for code := range filingsByCode {
		codes[code] = struct{}{}
	}
	for _, code := range themeCodes {
		codes[code] = struct{}{}
	}

	ordered := make([]string, 0, len(codes))
	for code := range codes {
		ordered = append(ordered, code)
	}
	sort.Strings(ordered)

	inputs := make([]priority.Input, 0, len(ordered))
	for _, code := range ordered {
		state, known := states[code]
		fundState := models.FundOut
		fundScore := 0.0
		hasHighSignal := false
		if known {
			fundState = state.State
			fundScore = state.Score
			hasHighSignal = o.hasHighSignalTag(state.Tags)
		}

		strength, delta, err := o.themes.StrengthFor(ctx, code, businessDate)
		if err != nil {
			strength, delta = 0, 0
		}

		inputs = append(inputs, priority.Input{
			Code:               code,
			FundState:          fundState,
			FundScore:          fundScore,
			HasNewFiling:       len(filingsByCode[code]) > 0,
			ThemeStrength:      strength,
			ThemeStrengthDelta: delta,
			HasHighSignalTag:   hasHighSignal,
		})
	}

	ranked := priority.Rank(inputs)
	out := make([]candidate, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, candidate{
			Code:     r.Code,
			Priority: r.Priority,
			Seed: models.SourcesSeed{
				Filings: filingsByCode[r.Code],
			},
		})
	}
	return out, nil
}

func (o *Orchestrator) hasHighSignalTag(tags []string) bool {
	for _, tag := range tags {
		if o.highSignalTags[tag] {
			return true
		}
	}
	return false
}
