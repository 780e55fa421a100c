package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"equityintel/internal/models"
)

// RecoveryResult summarizes one recovery sweep.
type RecoveryResult struct {
	CheckedDays   int
	MissingDays   int
	AttemptedDays int
	RepairedDays  int
	FilingGapDays []string
}

// RunRecovery scans the lookback window of business days before the
// report date and re-runs the pipeline for days that look incomplete.
// The per-(date, session) lease makes a re-run race-free against a live
// session.
func (o *Orchestrator) RunRecovery(ctx context.Context, reportDate string) (RecoveryResult, error) {
	var result RecoveryResult
	if !o.recoveryCfg.Enabled {
		o.logger.Debug().Msg("Recovery sweep disabled")
		return result, nil
	}

	days, err := o.calendar.LookbackBusinessDays(reportDate, o.recoveryCfg.LookbackBusinessDays)
	if err != nil {
		return result, fmt.Errorf("lookback window failed: %w", err)
	}
	result.CheckedDays = len(days)

	var missing []string
	for _, day := range days {
		complete, filingGap, err := o.dayComplete(ctx, day)
		if err != nil {
			return result, fmt.Errorf("completeness check failed for %s: %w", day, err)
		}
		if complete {
			continue
		}
		missing = append(missing, day)
		if filingGap {
			result.FilingGapDays = append(result.FilingGapDays, day)
		}
	}
	result.MissingDays = len(missing)
	if len(missing) == 0 {
		o.logger.Info().
			Str("report_date", reportDate).
			Int("checked_days", result.CheckedDays).
			Msg("Recovery sweep found no gaps")
		return result, nil
	}

	targets := missing
	if o.recoveryCfg.MaxDaysPerRun > 0 && len(targets) > o.recoveryCfg.MaxDaysPerRun {
		targets = targets[:o.recoveryCfg.MaxDaysPerRun]
	}
	result.AttemptedDays = len(targets)

	o.logger.Info().
		Str("report_date", reportDate).
		Int("checked_days", result.CheckedDays).
		Int("missing_days", result.MissingDays).
		Int("attempted_days", result.AttemptedDays).
		Msg("Recovery sweep starting")

	for _, day := range targets {
		if _, err := o.RunDay(ctx, day, true); err != nil {
			o.logger.Error().Str("business_date", day).Err(err).Msg("Recovery re-run failed")
			continue
		}
		result.RepairedDays++
	}

	o.logger.Info().
		Str("report_date", reportDate).
		Int("repaired_days", result.RepairedDays).
		Msg("Recovery sweep finished")
	return result, nil
}

// dayComplete classifies one business day. A day counts as complete
// only when its budget row shows real work done, every required session
// has queue rows with nothing left pending or failed, and every filing
// listed for the day maps to a processed record. A budget row with
// done_count=0 is a crashed or partial run, never a finished one.
func (o *Orchestrator) dayComplete(ctx context.Context, businessDate string) (complete bool, filingGap bool, err error) {
	budget, err := o.storage.BudgetStorage().Get(ctx, businessDate)
	if err != nil {
		return false, false, err
	}
	if budget == nil || budget.DoneCount == 0 {
		return false, false, nil
	}

	doneTotal := 0
	for _, session := range models.AllSessions() {
		rows, err := o.storage.QueueStorage().BySession(ctx, businessDate, session)
		if err != nil {
			return false, false, err
		}
		if len(rows) == 0 {
			return false, false, nil
		}
		for _, row := range rows {
			switch row.Status {
			case models.StatusPending, models.StatusFailed:
				return false, false, nil
			case models.StatusDone:
				doneTotal++
			}
		}
	}
	if budget.DoneCount < doneTotal {
		return false, false, nil
	}

	gap, err := o.filingGap(ctx, businessDate)
	if err != nil {
		// The probe depends on the external list endpoint; a probe
		// failure must not mark settled history incomplete.
		o.logger.Warn().Str("business_date", businessDate).Err(err).Msg("Filing probe failed, day treated as complete")
		return true, false, nil
	}
	if gap {
		return false, true, nil
	}
	return true, false, nil
}

// filingGap reports whether any filing listed for the day has no
// processed record referencing its id. Record source URLs embed the
// filing id, which is what makes the match possible.
func (o *Orchestrator) filingGap(ctx context.Context, businessDate string) (bool, error) {
	filings, err := o.filings.List(ctx, businessDate)
	if err != nil {
		return false, err
	}
	if len(filings) == 0 {
		return false, nil
	}

	records, err := o.storage.RecordStorage().ByBusinessDate(ctx, businessDate)
	if err != nil {
		return false, err
	}

	for _, filing := range filings {
		matched := false
		for _, record := range records {
			if strings.Contains(record.SourceURL, filing.FilingID) {
				matched = true
				break
			}
		}
		if !matched {
			o.logger.Info().
				Str("business_date", businessDate).
				Str("filing_id", filing.FilingID).
				Msg("Filing without a processed record")
			return true, nil
		}
	}
	return false, nil
}
