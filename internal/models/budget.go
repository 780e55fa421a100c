package models

import "time"

// DailyBudget tracks how many deep dives have completed for a business
// date. Lazily created; counters only move forward, and only after the
// corresponding record is durably persisted.
type DailyBudget struct {
	BusinessDate string    `badgerhold:"key"`
	DoneCount    int       ``
	MorningDone  int       ``
	CloseDone    int       ``
	UpdatedAt    time.Time ``
}

// SessionDone returns the done counter for the given session.
func (b *DailyBudget) SessionDone(session Session) int {
	if session == SessionMorning {
		return b.MorningDone
	}
	return b.CloseDone
}
