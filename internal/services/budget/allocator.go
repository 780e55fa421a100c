package budget

import "equityintel/internal/models"

// Allowance returns how many deep dives may still run in the session.
// Both the daily budget and the session cap must have headroom; the
// tighter constraint wins.
func Allowance(dailyBudget, sessionCap, doneTotal, doneSession int) int {
	dailyLeft := dailyBudget - doneTotal
	if dailyLeft < 0 {
		dailyLeft = 0
	}
	sessionLeft := sessionCap - doneSession
	if sessionLeft < 0 {
		sessionLeft = 0
	}
	if dailyLeft < sessionLeft {
		return dailyLeft
	}
	return sessionLeft
}

// Unlimited marks a catch-up allowance that bypasses both caps.
const Unlimited = -1

// AllowanceFor computes the allowance from config caps and the current
// budget row. catchUp bypasses both caps for backlog recovery.
func AllowanceFor(dailyBudget, sessionCap int, b *models.DailyBudget, session models.Session, catchUp bool) int {
	if catchUp {
		return Unlimited
	}
	return Allowance(dailyBudget, sessionCap, b.DoneCount, b.SessionDone(session))
}

// WithinAllowance reports whether processing another entry is allowed
// after `processed` completions.
func WithinAllowance(allowance, processed int) bool {
	return allowance == Unlimited || processed < allowance
}
