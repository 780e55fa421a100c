package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"equityintel/internal/common"
	"equityintel/internal/interfaces"
	"equityintel/internal/models"
	"equityintel/internal/services/budget"
	"equityintel/internal/services/intel"
)

// RunResult aggregates what one orchestrator entry point did.
type RunResult struct {
	Queued  int // new queue entries created by discovery
	Done    int // entries processed to a persisted record
	Signals int // processed entries that were notify-worthy
}

// Orchestrator drives the per-(date, session) pipeline: discovery,
// ranking, idempotent enqueue, budget-bounded processing, persistence
// and aggregate updates.
type Orchestrator struct {
	storage        interfaces.StorageManager
	filings        interfaces.FilingLister
	extractor      interfaces.EvidenceFetcher
	chain          *intel.Chain
	fundStates     interfaces.FundStateProvider
	themes         interfaces.ThemeProvider
	notifier       interfaces.Notifier
	pause          interfaces.PauseChecker
	calendar       *Calendar
	budgetCfg      common.BudgetConfig
	recoveryCfg    common.RecoveryConfig
	highSignalTags map[string]bool
	riskHardKeys   map[string]bool
	leaseTTL       time.Duration
	logger         arbor.ILogger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Storage    interfaces.StorageManager
	Filings    interfaces.FilingLister
	Extractor  interfaces.EvidenceFetcher
	Chain      *intel.Chain
	FundStates interfaces.FundStateProvider
	Themes     interfaces.ThemeProvider
	Notifier   interfaces.Notifier
	Pause      interfaces.PauseChecker
	Calendar   *Calendar
}

// New creates an orchestrator.
func New(config *common.Config, deps Deps, logger arbor.ILogger) (*Orchestrator, error) {
	leaseTTL, err := time.ParseDuration(config.Scheduler.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid lease TTL %q: %w", config.Scheduler.LeaseTTL, err)
	}

	highSignal := make(map[string]bool, len(config.Intel.HighSignalTags))
	for _, tag := range config.Intel.HighSignalTags {
		highSignal[tag] = true
	}
	riskHard := make(map[string]bool, len(config.Intel.RiskHardKeys))
	for _, key := range config.Intel.RiskHardKeys {
		riskHard[key] = true
	}

	return &Orchestrator{
		storage:        deps.Storage,
		filings:        deps.Filings,
		extractor:      deps.Extractor,
		chain:          deps.Chain,
		fundStates:     deps.FundStates,
		themes:         deps.Themes,
		notifier:       deps.Notifier,
		pause:          deps.Pause,
		calendar:       deps.Calendar,
		budgetCfg:      config.Budget,
		recoveryCfg:    config.Recovery,
		highSignalTags: highSignal,
		riskHardKeys:   riskHard,
		leaseTTL:       leaseTTL,
		logger:         logger,
	}, nil
}

// RunSession executes the pipeline for one (business_date, session)
// pair. A run already holding the pair's lease makes this a no-op, not
// an error.
func (o *Orchestrator) RunSession(ctx context.Context, businessDate string, session models.Session, catchUp bool) (RunResult, error) {
	var result RunResult
	if !session.Valid() {
		return result, fmt.Errorf("invalid session: %s", session)
	}

	leaseKey := fmt.Sprintf("intel:%s:%s", businessDate, session)
	acquired, err := o.storage.LeaseStorage().Acquire(ctx, leaseKey, o.leaseTTL)
	if err != nil {
		return result, fmt.Errorf("lease acquire failed: %w", err)
	}
	if !acquired {
		o.logger.Info().
			Str("business_date", businessDate).
			Str("session", string(session)).
			Msg("Session already running elsewhere, skipping")
		return result, nil
	}
	defer func() {
		if err := o.storage.LeaseStorage().Release(context.WithoutCancel(ctx), leaseKey); err != nil {
			o.logger.Warn().Str("key", leaseKey).Err(err).Msg("Failed to release session lease")
		}
	}()

	started := time.Now()
	o.logger.Info().
		Str("business_date", businessDate).
		Str("session", string(session)).
		Bool("catch_up", catchUp).
		Msg("Session run starting")

	budgetRow, err := o.storage.BudgetStorage().GetOrCreate(ctx, businessDate)
	if err != nil {
		return result, fmt.Errorf("budget load failed: %w", err)
	}
	allowance := budget.AllowanceFor(o.budgetCfg.DailyBudget, o.sessionCap(session), budgetRow, session, catchUp)

	candidates, err := o.discover(ctx, businessDate)
	if err != nil {
		return result, fmt.Errorf("discovery failed: %w", err)
	}

	for _, cand := range candidates {
		entry := &models.QueueEntry{
			IdempotencyKey: models.IdempotencyKey(businessDate, session, cand.Code),
			BusinessDate:   businessDate,
			Session:        session,
			Code:           cand.Code,
			Priority:       cand.Priority,
			SourcesSeed:    cand.Seed,
		}
		created, err := o.storage.QueueStorage().Upsert(ctx, entry)
		if err != nil {
			return result, fmt.Errorf("enqueue failed for %s: %w", cand.Code, err)
		}
		if created {
			result.Queued++
		}
	}

	if _, err := o.storage.QueueStorage().ResetFailed(ctx, businessDate); err != nil {
		return result, fmt.Errorf("failed-entry reset failed: %w", err)
	}

	pending, err := o.storage.QueueStorage().Pending(ctx, businessDate, session)
	if err != nil {
		return result, fmt.Errorf("pending query failed: %w", err)
	}

	for i := range pending {
		if !budget.WithinAllowance(allowance, result.Done) {
			o.logger.Info().
				Int("done", result.Done).
				Int("allowance", allowance).
				Msg("Session allowance exhausted")
			break
		}
		// Checked between candidates only; a started candidate always
		// finishes.
		if o.pause != nil && o.pause.ShouldPause() {
			o.logger.Info().
				Str("business_date", businessDate).
				Str("session", string(session)).
				Msg("Pausing for imminent scheduled job, remaining entries stay pending")
			break
		}

		done, signal := o.processEntry(ctx, &pending[i])
		if done {
			result.Done++
		}
		if signal {
			result.Signals++
		}
	}

	o.logger.Info().
		Str("business_date", businessDate).
		Str("session", string(session)).
		Int("queued", result.Queued).
		Int("done", result.Done).
		Int("signals", result.Signals).
		Dur("duration", time.Since(started)).
		Msg("Session run finished")
	return result, nil
}

// RunDay runs every session of a business date in order. Used by the
// recovery sweep and backfill.
func (o *Orchestrator) RunDay(ctx context.Context, businessDate string, catchUp bool) (RunResult, error) {
	var total RunResult
	for _, session := range models.AllSessions() {
		res, err := o.RunSession(ctx, businessDate, session, catchUp)
		total.Queued += res.Queued
		total.Done += res.Done
		total.Signals += res.Signals
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// RunBackfill replays the pipeline for every business day in [from,
// to] in catch-up mode.
func (o *Orchestrator) RunBackfill(ctx context.Context, from, to string) (RunResult, error) {
	days, err := o.calendar.BusinessDaysInRange(from, to)
	if err != nil {
		return RunResult{}, err
	}

	var total RunResult
	for _, day := range days {
		res, err := o.RunDay(ctx, day, true)
		total.Queued += res.Queued
		total.Done += res.Done
		total.Signals += res.Signals
		if err != nil {
			return total, fmt.Errorf("backfill failed at %s: %w", day, err)
		}
	}
	o.logger.Info().
		Str("from", from).
		Str("to", to).
		Int("days", len(days)).
		Int("done", total.Done).
		Msg("Backfill finished")
	return total, nil
}

// processEntry runs extraction, the LLM chain and persistence for one
// queue entry. A single entry's failure never aborts the session; its
// status records what happened.
func (o *Orchestrator) processEntry(ctx context.Context, entry *models.QueueEntry) (done bool, signal bool) {
	log := o.logger.
		WithCorrelationId(entry.IdempotencyKey)

	sources := o.extractor.Fetch(ctx, entry.Code, entry.BusinessDate, entry.SourcesSeed)
	if len(sources) == 0 {
		log.Info().Str("code", entry.Code).Msg("No evidence available, entry skipped")
		o.setStatus(ctx, entry.IdempotencyKey, models.StatusSkipped)
		return false, false
	}

	var existingTags []string
	state, err := o.storage.SecurityStorage().Get(ctx, entry.Code)
	if err != nil {
		log.Warn().Str("code", entry.Code).Err(err).Msg("Security state unavailable")
	} else if state != nil {
		existingTags = state.Tags
	}

	outcome := o.chain.Summarize(ctx, entry.Code, sources, existingTags)
	record := o.buildRecord(entry, outcome)

	// Record insert and the done flip commit together; the budget
	// counter increments only after that, so a crash can at worst
	// undercount, never double-count a completed entry.
	if err := o.storage.CommitCompletion(ctx, record, entry.IdempotencyKey); err != nil {
		log.Error().Str("code", entry.Code).Err(err).Msg("Record persistence failed, entry marked failed")
		o.setStatus(ctx, entry.IdempotencyKey, models.StatusFailed)
		return false, false
	}

	if err := o.updateSecurityState(ctx, state, record); err != nil {
		log.Warn().Str("code", entry.Code).Err(err).Msg("Security aggregate update failed")
	}

	if err := o.storage.BudgetStorage().AddDone(ctx, entry.BusinessDate, entry.Session, 1); err != nil {
		log.Warn().Str("code", entry.Code).Err(err).Msg("Budget counter update failed")
	}

	signal = o.isSignal(record)
	o.notify(ctx, entry, record, signal)

	log.Info().
		Str("code", entry.Code).
		Bool("llm_valid", record.LLMValid).
		Bool("signal", signal).
		Msg("Entry processed")
	return true, signal
}

func (o *Orchestrator) buildRecord(entry *models.QueueEntry, outcome intel.Outcome) *models.IntelligenceRecord {
	p := outcome.Payload
	return &models.IntelligenceRecord{
		Code:         entry.Code,
		BusinessDate: entry.BusinessDate,
		Session:      entry.Session,
		PublishedAt:  intel.ParsePublishedAt(p.PublishedAt),
		SourceURL:    p.SourceURL,
		SourceType:   p.SourceType,
		Headline:     p.Headline,
		Summary:      p.Summary,
		Facts:        p.Facts,
		Tags:         p.Tags,
		RiskFlags:    p.RiskFlags,
		CriticalRisk: p.CriticalRisk,
		EvidenceRefs: p.EvidenceRefs,
		DataGaps:     p.DataGaps,
		LLMValid:     outcome.Valid,
	}
}

func (o *Orchestrator) updateSecurityState(ctx context.Context, state *models.SecurityState, record *models.IntelligenceRecord) error {
	if state == nil {
		state = &models.SecurityState{Code: record.Code, State: models.FundOut}
	}
	if !state.MergeIntel(record.Tags, record.RiskFlags, record.EvidenceRefs, record.CriticalRisk) {
		return nil
	}
	return o.storage.SecurityStorage().Upsert(ctx, state)
}

// isSignal decides whether a record warrants operator attention: a
// high-signal tag, a hard risk flag, or critical risk.
func (o *Orchestrator) isSignal(record *models.IntelligenceRecord) bool {
	if record.CriticalRisk {
		return true
	}
	for _, tag := range record.Tags {
		if o.highSignalTags[tag] {
			return true
		}
	}
	for _, flag := range record.RiskFlags {
		if o.riskHardKeys[flag] {
			return true
		}
	}
	return false
}

// notify delivers one record to the notification sink and logs the
// attempt. Delivery failure is recorded, never retried.
func (o *Orchestrator) notify(ctx context.Context, entry *models.QueueEntry, record *models.IntelligenceRecord, signal bool) {
	if o.notifier == nil {
		return
	}

	content := formatNotification(entry, record, signal)
	err := o.notifier.Send(ctx, content)

	logRow := &models.NotificationLog{
		ReportDate: entry.BusinessDate,
		RunType:    string(entry.Session),
		Content:    content,
		Success:    err == nil,
	}
	if err != nil {
		logRow.Error = err.Error()
		o.logger.Warn().Str("code", entry.Code).Err(err).Msg("Notification delivery failed")
	}
	if saveErr := o.storage.NotificationStorage().Save(ctx, logRow); saveErr != nil {
		o.logger.Warn().Err(saveErr).Msg("Notification log persistence failed")
	}
}

func formatNotification(entry *models.QueueEntry, record *models.IntelligenceRecord, signal bool) string {
	var b strings.Builder
	if signal {
		b.WriteString("[signal] ")
	}
	fmt.Fprintf(&b, "%s %s (%s/%s)\n", record.Code, record.Headline, entry.BusinessDate, entry.Session)
	if record.Summary != "" {
		b.WriteString(record.Summary)
		b.WriteString("\n")
	}
	for _, fact := range record.Facts {
		fmt.Fprintf(&b, "- %s\n", fact)
	}
	if len(record.RiskFlags) > 0 {
		fmt.Fprintf(&b, "risks: %s\n", strings.Join(record.RiskFlags, ", "))
	}
	if len(record.DataGaps) > 0 {
		fmt.Fprintf(&b, "gaps: %s\n", strings.Join(record.DataGaps, "; "))
	}
	b.WriteString(record.SourceURL)
	return b.String()
}

func (o *Orchestrator) setStatus(ctx context.Context, key string, status models.QueueStatus) {
	if err := o.storage.QueueStorage().UpdateStatus(ctx, key, status); err != nil {
		o.logger.Error().Str("key", key).Str("status", string(status)).Err(err).Msg("Queue status update failed")
	}
}

func (o *Orchestrator) sessionCap(session models.Session) int {
	if session == models.SessionMorning {
		return o.budgetCfg.MorningCap
	}
	return o.budgetCfg.CloseCap
}
