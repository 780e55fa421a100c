package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"equityintel/internal/common"
	"equityintel/internal/models"
	"equityintel/internal/services/orchestrator"
)

// RunPhase names the unit of work the scheduler is currently executing.
type RunPhase string

const (
	PhaseIdle     RunPhase = "idle"
	PhaseMorning  RunPhase = "morning"
	PhaseClose    RunPhase = "close"
	PhaseRecovery RunPhase = "recovery"
)

// runState is the scheduler's explicit phase machine. Only idle can
// transition into a working phase, and every working phase returns to
// idle. It replaces ad-hoc "is something running" flags with named
// transitions.
type runState struct {
	mu    sync.Mutex
	phase RunPhase
}

func newRunState() *runState {
	return &runState{phase: PhaseIdle}
}

// begin moves idle -> phase. Returns false when another phase holds the
// machine, which is how overlapping timer fires short-circuit.
func (s *runState) begin(phase RunPhase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseIdle {
		return false
	}
	s.phase = phase
	return true
}

// finish moves the current phase back to idle.
func (s *runState) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseIdle
}

// Phase returns the current phase.
func (s *runState) Phase() RunPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Pipeline is the orchestrator surface the scheduler drives.
type Pipeline interface {
	RunSession(ctx context.Context, businessDate string, session models.Session, catchUp bool) (orchestrator.RunResult, error)
	RunRecovery(ctx context.Context, reportDate string) (orchestrator.RecoveryResult, error)
}

// Service wires the session and recovery jobs onto cron timers. One
// phase at a time runs per process; overlapping fires for a busy
// scheduler are dropped, not queued, because the per-(date, session)
// lease plus the recovery sweep make a missed fire self-healing.
type Service struct {
	config       *common.Config
	orchestrator Pipeline
	calendar     *orchestrator.Calendar
	cron         *cron.Cron
	state        *runState
	logger       arbor.ILogger
	running      bool
	now          func() time.Time
}

// NewService creates the scheduler.
func NewService(config *common.Config, pipeline Pipeline, calendar *orchestrator.Calendar, logger arbor.ILogger) *Service {
	return &Service{
		config:       config,
		orchestrator: pipeline,
		calendar:     calendar,
		cron:         cron.New(),
		state:        newRunState(),
		logger:       logger,
		now:          time.Now,
	}
}

// Start registers the cron jobs and begins the timer loop.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.config.Scheduler.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	jobs := []struct {
		name     string
		schedule string
		phase    RunPhase
		run      func(ctx context.Context) error
	}{
		{
			name:     "intel-morning",
			schedule: s.config.Scheduler.MorningSchedule,
			phase:    PhaseMorning,
			run: func(ctx context.Context) error {
				return s.runSessionJob(ctx, models.SessionMorning)
			},
		},
		{
			name:     "intel-close",
			schedule: s.config.Scheduler.CloseSchedule,
			phase:    PhaseClose,
			run: func(ctx context.Context) error {
				return s.runSessionJob(ctx, models.SessionClose)
			},
		},
		{
			name:     "intel-recovery",
			schedule: s.config.Scheduler.RecoverySchedule,
			phase:    PhaseRecovery,
			run:      s.runRecoveryJob,
		},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.schedule, func() {
			s.executeJob(job.name, job.phase, job.run)
		})
		if err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.name, err)
		}
		s.logger.Info().
			Str("job_name", job.name).
			Str("schedule", job.schedule).
			Msg("Job registered")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the timer loop. A job already executing finishes on its
// own.
func (s *Service) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the timer loop is active.
func (s *Service) IsRunning() bool {
	return s.running
}

// Phase exposes the current run phase for status surfaces.
func (s *Service) Phase() RunPhase {
	return s.state.Phase()
}

// executeJob wraps one job with the phase machine and panic recovery so
// a single bad run never kills the timer loop.
func (s *Service) executeJob(name string, phase RunPhase, run func(ctx context.Context) error) {
	if !s.state.begin(phase) {
		s.logger.Warn().
			Str("job_name", name).
			Str("active_phase", string(s.state.Phase())).
			Msg("Job fire dropped, another phase is running")
		return
	}
	defer s.state.finish()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")
		}
	}()

	started := time.Now()
	s.logger.Info().Str("job_name", name).Msg("Job execution started")

	if err := run(context.Background()); err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("Job execution failed")
		return
	}
	s.logger.Info().
		Str("job_name", name).
		Dur("duration", time.Since(started)).
		Msg("Job execution completed")
}

func (s *Service) runSessionJob(ctx context.Context, session models.Session) error {
	today := s.now().Format("2006-01-02")
	if !s.calendar.IsBusinessDay(today) {
		s.logger.Info().
			Str("date", today).
			Str("session", string(session)).
			Msg("Session skipped on non-business day")
		return nil
	}

	// The morning run fires before the open and analyzes filings
	// published after the prior close, so it carries the previous
	// business day's date.
	businessDate := today
	if session == models.SessionMorning {
		prev, err := s.calendar.PreviousBusinessDay(today)
		if err != nil {
			return fmt.Errorf("failed to resolve morning business date: %w", err)
		}
		businessDate = prev
	}

	result, err := s.orchestrator.RunSession(ctx, businessDate, session, false)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("date", businessDate).
		Str("session", string(session)).
		Int("queued", result.Queued).
		Int("done", result.Done).
		Int("signals", result.Signals).
		Msg("Scheduled session run finished")
	return nil
}

func (s *Service) runRecoveryJob(ctx context.Context) error {
	today := s.now().Format("2006-01-02")
	result, err := s.orchestrator.RunRecovery(ctx, today)
	if err != nil {
		return err
	}
	if result.MissingDays > 0 {
		s.logger.Info().
			Int("missing_days", result.MissingDays).
			Int("repaired_days", result.RepairedDays).
			Msg("Scheduled recovery sweep finished")
	}
	return nil
}
