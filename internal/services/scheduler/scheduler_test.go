package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityintel/internal/common"
	"equityintel/internal/models"
	"equityintel/internal/services/orchestrator"
)

type sessionRun struct {
	date    string
	session models.Session
	catchUp bool
}

type fakePipeline struct {
	sessions   []sessionRun
	recoveries []string
}

func (f *fakePipeline) RunSession(_ context.Context, businessDate string, session models.Session, catchUp bool) (orchestrator.RunResult, error) {
	f.sessions = append(f.sessions, sessionRun{date: businessDate, session: session, catchUp: catchUp})
	return orchestrator.RunResult{}, nil
}

func (f *fakePipeline) RunRecovery(_ context.Context, reportDate string) (orchestrator.RecoveryResult, error) {
	f.recoveries = append(f.recoveries, reportDate)
	return orchestrator.RecoveryResult{}, nil
}

func newTestService(pipeline *fakePipeline, holidays []string) *Service {
	return NewService(common.NewDefaultConfig(), pipeline, orchestrator.NewCalendar(holidays), common.GetLogger())
}

func TestSessionJobMorningUsesPreviousBusinessDay(t *testing.T) {
	pipeline := &fakePipeline{}
	svc := newTestService(pipeline, nil)

	// Monday 2026-03-02; the nearest prior business day is Friday.
	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	}

	require.NoError(t, svc.runSessionJob(context.Background(), models.SessionMorning))
	require.Len(t, pipeline.sessions, 1)
	assert.Equal(t, "2026-02-27", pipeline.sessions[0].date)
	assert.Equal(t, models.SessionMorning, pipeline.sessions[0].session)
	assert.False(t, pipeline.sessions[0].catchUp)
}

func TestSessionJobMorningSkipsHolidays(t *testing.T) {
	pipeline := &fakePipeline{}
	svc := newTestService(pipeline, []string{"2026-02-27"})

	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	}

	// Friday is a holiday, so the morning run reaches back to Thursday.
	require.NoError(t, svc.runSessionJob(context.Background(), models.SessionMorning))
	require.Len(t, pipeline.sessions, 1)
	assert.Equal(t, "2026-02-26", pipeline.sessions[0].date)
}

func TestSessionJobCloseUsesCurrentDay(t *testing.T) {
	pipeline := &fakePipeline{}
	svc := newTestService(pipeline, nil)

	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 15, 40, 0, 0, time.UTC)
	}

	require.NoError(t, svc.runSessionJob(context.Background(), models.SessionClose))
	require.Len(t, pipeline.sessions, 1)
	assert.Equal(t, "2026-03-02", pipeline.sessions[0].date)
	assert.Equal(t, models.SessionClose, pipeline.sessions[0].session)
}

func TestSessionJobSkipsNonBusinessDay(t *testing.T) {
	pipeline := &fakePipeline{}
	svc := newTestService(pipeline, nil)

	// Saturday 2026-03-07.
	svc.now = func() time.Time {
		return time.Date(2026, 3, 7, 8, 30, 0, 0, time.UTC)
	}

	require.NoError(t, svc.runSessionJob(context.Background(), models.SessionMorning))
	assert.Empty(t, pipeline.sessions)
}
