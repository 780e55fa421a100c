package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// PauseChecker answers "is a scheduled job about to fire?" so a running
// batch can yield between candidates instead of overlapping the next
// session. The schedule set it watches is explicit configuration, not
// an assumption about which jobs exist.
type PauseChecker struct {
	schedules []cron.Schedule
	exprs     []string
	margin    time.Duration
	now       func() time.Time
	logger    arbor.ILogger
}

// NewPauseChecker parses the given cron expressions (standard 5-field
// format). Margin is how close the next fire must be to request a
// pause.
func NewPauseChecker(exprs []string, margin time.Duration, logger arbor.ILogger) (*PauseChecker, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedules := make([]cron.Schedule, 0, len(exprs))
	kept := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		if expr == "" {
			continue
		}
		schedule, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pause schedule %q: %w", expr, err)
		}
		schedules = append(schedules, schedule)
		kept = append(kept, expr)
	}
	return &PauseChecker{
		schedules: schedules,
		exprs:     kept,
		margin:    margin,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// ShouldPause reports whether any watched schedule fires within the
// margin.
func (p *PauseChecker) ShouldPause() bool {
	if p == nil || len(p.schedules) == 0 || p.margin <= 0 {
		return false
	}
	now := p.now()
	for i, schedule := range p.schedules {
		next := schedule.Next(now)
		if next.IsZero() {
			continue
		}
		if until := next.Sub(now); until <= p.margin {
			p.logger.Debug().
				Str("schedule", p.exprs[i]).
				Dur("until_fire", until).
				Msg("Scheduled job imminent, requesting pause")
			return true
		}
	}
	return false
}
