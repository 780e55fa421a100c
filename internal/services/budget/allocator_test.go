package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"equityintel/internal/models"
)

func TestAllowance(t *testing.T) {
	tests := []struct {
		name        string
		daily       int
		sessionCap  int
		doneTotal   int
		doneSession int
		want        int
	}{
		{"daily budget is the binding constraint", 10, 4, 8, 1, 2},
		{"daily budget exhausted", 10, 6, 10, 0, 0},
		{"session cap is the binding constraint", 10, 4, 0, 3, 1},
		{"fresh day", 10, 4, 0, 0, 4},
		{"overshoot clamps to zero", 10, 4, 12, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allowance(tt.daily, tt.sessionCap, tt.doneTotal, tt.doneSession)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowanceFor_CatchUpBypassesCaps(t *testing.T) {
	b := &models.DailyBudget{BusinessDate: "2026-02-13", DoneCount: 99, MorningDone: 99}
	got := AllowanceFor(10, 4, b, models.SessionMorning, true)
	assert.Equal(t, Unlimited, got)
	assert.True(t, WithinAllowance(got, 1000))
}

func TestWithinAllowance(t *testing.T) {
	assert.True(t, WithinAllowance(2, 0))
	assert.True(t, WithinAllowance(2, 1))
	assert.False(t, WithinAllowance(2, 2))
	assert.False(t, WithinAllowance(0, 0))
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	a := models.IdempotencyKey("2026-02-13", models.SessionMorning, "7203")
	b := models.IdempotencyKey("2026-02-13", models.SessionMorning, "7203")
	assert.Equal(t, a, b)
	assert.Equal(t, "2026-02-13:morning:7203", a)

	c := models.IdempotencyKey("2026-02-13", models.SessionClose, "7203")
	assert.NotEqual(t, a, c)
}
