package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityintel/internal/common"
)

func TestPauseCheckerImminentSchedule(t *testing.T) {
	logger := common.GetLogger()

	checker, err := NewPauseChecker([]string{"30 8 * * 1-5"}, 2*time.Minute, logger)
	require.NoError(t, err)

	// Monday 2026-03-02 08:29, one minute before the 08:30 fire.
	checker.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 29, 0, 0, time.UTC)
	}
	assert.True(t, checker.ShouldPause())

	// 08:10 is well outside the two minute margin.
	checker.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC)
	}
	assert.False(t, checker.ShouldPause())
}

func TestPauseCheckerMultipleSchedules(t *testing.T) {
	logger := common.GetLogger()

	checker, err := NewPauseChecker([]string{"30 8 * * 1-5", "30 15 * * 1-5"}, 2*time.Minute, logger)
	require.NoError(t, err)

	// Monday 15:29, inside the close schedule's margin.
	checker.now = func() time.Time {
		return time.Date(2026, 3, 2, 15, 29, 0, 0, time.UTC)
	}
	assert.True(t, checker.ShouldPause())
}

func TestPauseCheckerRejectsInvalidExpression(t *testing.T) {
	logger := common.GetLogger()

	_, err := NewPauseChecker([]string{"not a cron line"}, time.Minute, logger)
	assert.Error(t, err)
}

func TestPauseCheckerZeroMarginNeverPauses(t *testing.T) {
	logger := common.GetLogger()

	checker, err := NewPauseChecker([]string{"* * * * *"}, 0, logger)
	require.NoError(t, err)
	assert.False(t, checker.ShouldPause())
}

func TestRunStateTransitions(t *testing.T) {
	state := newRunState()
	assert.Equal(t, PhaseIdle, state.Phase())

	require.True(t, state.begin(PhaseMorning))
	assert.Equal(t, PhaseMorning, state.Phase())

	// A busy machine rejects a second phase.
	assert.False(t, state.begin(PhaseRecovery))

	state.finish()
	assert.Equal(t, PhaseIdle, state.Phase())
	assert.True(t, state.begin(PhaseRecovery))
}
