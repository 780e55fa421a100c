package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityintel/internal/models"
)

func TestScore_StateWeights(t *testing.T) {
	tests := []struct {
		name  string
		state models.FundState
		want  float64
	}{
		{"in state full weight", models.FundIn, 0.25},
		{"watch state partial weight", models.FundWatch, 0.15},
		{"out state minimal weight", models.FundOut, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Score(Input{Code: "", FundState: tt.state})
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestScore_NewFilingDominates(t *testing.T) {
	// An OUT-state code with a fresh filing must outrank an IN-state
	// code without one.
	withFiling := Score(Input{Code: "9501", FundState: models.FundOut, HasNewFiling: true})
	without := Score(Input{Code: "9501", FundState: models.FundIn, FundScore: 1.0, ThemeStrength: 1.0, ThemeStrengthDelta: 1.0, HasHighSignalTag: true})
	assert.Less(t, without, withFiling)
}

func TestScore_ClampsOutOfRangeSignals(t *testing.T) {
	inRange := Score(Input{Code: "7203", FundState: models.FundWatch, FundScore: 1.0, ThemeStrength: 1.0, ThemeStrengthDelta: 1.0})
	outOfRange := Score(Input{Code: "7203", FundState: models.FundWatch, FundScore: 5.0, ThemeStrength: 3.0, ThemeStrengthDelta: 9.0})
	assert.Equal(t, inRange, outOfRange)
}

func TestScore_TieBreakOffsetDistinguishesCodes(t *testing.T) {
	base := Input{FundState: models.FundWatch, FundScore: 0.5, ThemeStrength: 0.2}

	a := base
	a.Code = "1332"
	b := base
	b.Code = "1333"

	scoreA := Score(a)
	scoreB := Score(b)
	assert.NotEqual(t, scoreA, scoreB)

	// Deterministic winner across repeated runs.
	for i := 0; i < 5; i++ {
		assert.Equal(t, scoreA, Score(a))
		assert.Equal(t, scoreB, Score(b))
	}
}

func TestRank_OrderAndDeterminism(t *testing.T) {
	inputs := []Input{
		{Code: "9984", FundState: models.FundOut},
		{Code: "7203", FundState: models.FundIn, FundScore: 0.8},
		{Code: "6758", FundState: models.FundWatch, HasNewFiling: true},
	}

	first := Rank(inputs)
	require.Len(t, first, 3)
	assert.Equal(t, "6758", first[0].Code)
	assert.Equal(t, "7203", first[1].Code)
	assert.Equal(t, "9984", first[2].Code)

	for i := 0; i < 3; i++ {
		again := Rank(inputs)
		assert.Equal(t, first, again)
	}
}

func TestRank_EqualSignalsSortByCode(t *testing.T) {
	// Same-sum codes share the same offset, so the code tie-break
	// decides order.
	inputs := []Input{
		{Code: "21", FundState: models.FundWatch},
		{Code: "12", FundState: models.FundWatch},
	}
	ranked := Rank(inputs)
	require.Len(t, ranked, 2)
	assert.Equal(t, ranked[0].Priority, ranked[1].Priority)
	assert.Equal(t, "12", ranked[0].Code)
}
