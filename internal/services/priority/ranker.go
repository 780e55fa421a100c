package priority

import (
	"math"
	"sort"

	"equityintel/internal/models"
)

// Input carries the per-candidate signals the ranker scores. Computed
// fresh each run; nothing here is persisted.
type Input struct {
	Code               string
	FundState          models.FundState
	FundScore          float64 // expected in [0,1]
	HasNewFiling       bool
	ThemeStrength      float64 // expected in [0,1]
	ThemeStrengthDelta float64 // expected in [-1,1]
	HasHighSignalTag   bool
}

// Ranked is one scored candidate.
type Ranked struct {
	Code     string
	Priority float64
}

// Component weights. A fresh filing dominates everything else so newly
// disclosed companies always get looked at first.
const (
	stateWeight      = 0.25
	fundScoreWeight  = 0.20
	newFilingBonus   = 0.45
	themeWeight      = 0.07
	themeDeltaWeight = 0.02
	highSignalBonus  = 0.01
)

func stateWeightFor(state models.FundState) float64 {
	switch state {
	case models.FundIn:
		return 1.0
	case models.FundWatch:
		return 0.6
	default:
		return 0.2
	}
}

// Score computes the deterministic priority for one candidate. A tiny
// offset derived from the code's characters breaks ties so two distinct
// codes never score exactly equal.
func Score(in Input) float64 {
	score := stateWeightFor(in.FundState) * stateWeight
	score += clamp(in.FundScore, 0, 1) * fundScoreWeight
	if in.HasNewFiling {
		score += newFilingBonus
	}
	score += clamp(in.ThemeStrength, 0, 1) * themeWeight
	score += clamp(in.ThemeStrengthDelta, -1, 1) * themeDeltaWeight
	if in.HasHighSignalTag {
		score += highSignalBonus
	}
	score += codeOffset(in.Code)
	return round6(score)
}

// Rank scores every input and returns candidates sorted by priority
// descending, code ascending. Output is byte-identical across repeated
// calls with the same input.
func Rank(inputs []Input) []Ranked {
	out := make([]Ranked, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, Ranked{Code: in.Code, Priority: Score(in)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// codeOffset maps a code to a value in [0, 0.000999] from the sum of
// its character values.
func codeOffset(code string) float64 {
	sum := 0
	for _, r := range code {
		sum += int(r)
	}
	return float64(sum%1000) / 1_000_000
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
