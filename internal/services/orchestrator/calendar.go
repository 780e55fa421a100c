package orchestrator

import (
	"fmt"
	"time"
)

// Calendar answers business-day questions: weekends plus the configured
// market holidays are excluded.
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar builds a calendar from ISO holiday dates.
func NewCalendar(holidays []string) *Calendar {
	m := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		m[h] = true
	}
	return &Calendar{holidays: m}
}

// IsBusinessDay reports whether the ISO date is a trading day.
func (c *Calendar) IsBusinessDay(businessDate string) bool {
	t, err := time.Parse("2006-01-02", businessDate)
	if err != nil {
		return false
	}
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[businessDate]
}

// PreviousBusinessDay returns the latest business day strictly before
// the given date.
func (c *Calendar) PreviousBusinessDay(businessDate string) (string, error) {
	t, err := time.Parse("2006-01-02", businessDate)
	if err != nil {
		return "", fmt.Errorf("invalid business date %q: %w", businessDate, err)
	}
	for i := 0; i < 60; i++ {
		t = t.AddDate(0, 0, -1)
		candidate := t.Format("2006-01-02")
		if c.IsBusinessDay(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no business day found before %s", businessDate)
}

// LookbackBusinessDays returns up to n business days strictly before
// the report date, oldest first.
func (c *Calendar) LookbackBusinessDays(reportDate string, n int) ([]string, error) {
	t, err := time.Parse("2006-01-02", reportDate)
	if err != nil {
		return nil, fmt.Errorf("invalid report date %q: %w", reportDate, err)
	}

	var days []string
	for i := 0; len(days) < n && i < n*3+30; i++ {
		t = t.AddDate(0, 0, -1)
		candidate := t.Format("2006-01-02")
		if c.IsBusinessDay(candidate) {
			days = append(days, candidate)
		}
	}
	// Reverse to oldest-first so recovery replays history in order.
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days, nil
}

// BusinessDaysInRange returns the business days in [from, to], oldest
// first. Used by backfill.
func (c *Calendar) BusinessDaysInRange(from, to string) ([]string, error) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("backfill range is inverted: %s..%s", from, to)
	}

	var days []string
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		candidate := t.Format("2006-01-02")
		if c.IsBusinessDay(candidate) {
			days = append(days, candidate)
		}
	}
	return days, nil
}
