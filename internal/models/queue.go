package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// QueueStatus tracks the lifecycle of a queued deep-dive candidate.
// Transitions are monotonic (pending -> done/skipped/failed) with one
// exception: failed entries are reset to pending at the start of the
// next run for the same business date. Skipped entries are terminal.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusDone    QueueStatus = "done"
	StatusSkipped QueueStatus = "skipped"
	StatusFailed  QueueStatus = "failed"
)

// FilingRef identifies one regulatory filing from the disclosure list.
type FilingRef struct {
	FilingID     string `json:"filing_id"`
	Description  string `json:"description"`
	SubmitTime   string `json:"submit_time"`
	SecurityCode string `json:"security_code"`
}

// SourcesSeed is the structured payload captured at discovery time that
// tells the extractor where to look for evidence.
type SourcesSeed struct {
	Filings []FilingRef `json:"filings"`
	IRPages []string    `json:"ir_pages,omitempty"`
}

// FilingIDSet returns the sorted, deduplicated filing ids referenced by
// the seed. Used to detect whether new evidence arrived since the entry
// was last enqueued.
func (s SourcesSeed) FilingIDSet() []string {
	seen := make(map[string]struct{}, len(s.Filings))
	out := make([]string, 0, len(s.Filings))
	for _, f := range s.Filings {
		id := strings.TrimSpace(f.FilingID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// QueueEntry is one candidate awaiting (or having finished) a deep dive
// for a (business_date, session) pair. Entries are never deleted; they
// form the audit trail the recovery sweep inspects.
type QueueEntry struct {
	IdempotencyKey string      `badgerhold:"key"`
	BusinessDate   string      `badgerhold:"index"` // ISO date, e.g. "2026-02-13"
	Session        Session     `badgerhold:"index"`
	Code           string      `badgerhold:"index"`
	Priority       float64     ``
	SourcesSeed    SourcesSeed ``
	Status         QueueStatus `badgerhold:"index"`
	CreatedAt      time.Time   ``
	UpdatedAt      time.Time   ``
}

// IdempotencyKey derives the unique queue key for a candidate. The same
// (date, session, code) always yields the same key, which is what makes
// re-running discovery safe.
func IdempotencyKey(businessDate string, session Session, code string) string {
	return fmt.Sprintf("%s:%s:%s", businessDate, session, code)
}
