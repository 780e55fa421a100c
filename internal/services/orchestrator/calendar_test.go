package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarBusinessDays(t *testing.T) {
	cal := NewCalendar([]string{"2026-02-11"}) // a Wednesday holiday

	assert.True(t, cal.IsBusinessDay("2026-02-10"))
	assert.False(t, cal.IsBusinessDay("2026-02-11")) // holiday
	assert.False(t, cal.IsBusinessDay("2026-02-14")) // Saturday
	assert.False(t, cal.IsBusinessDay("2026-02-15")) // Sunday
	assert.False(t, cal.IsBusinessDay("not-a-date"))
}

func TestCalendarPreviousBusinessDay(t *testing.T) {
	cal := NewCalendar([]string{"2026-02-11"})

	// Monday looks back across the weekend.
	prev, err := cal.PreviousBusinessDay("2026-02-16")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-13", prev)

	// Thursday skips the Wednesday holiday.
	prev, err = cal.PreviousBusinessDay("2026-02-12")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10", prev)
}

func TestCalendarLookbackOldestFirst(t *testing.T) {
	cal := NewCalendar(nil)

	days, err := cal.LookbackBusinessDays("2026-02-18", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-13", "2026-02-16", "2026-02-17"}, days)
}

func TestCalendarBusinessDaysInRange(t *testing.T) {
	cal := NewCalendar([]string{"2026-02-11"})

	days, err := cal.BusinessDaysInRange("2026-02-09", "2026-02-16")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-09", "2026-02-10", "2026-02-12", "2026-02-13", "2026-02-16"}, days)

	_, err = cal.BusinessDaysInRange("2026-02-16", "2026-02-09")
	assert.Error(t, err)
}
