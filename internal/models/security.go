package models

import "time"

// FundState is the coarse fundamental classification of a security,
// supplied by the external fundamental-scoring collaborator.
type FundState string

const (
	FundIn    FundState = "IN"
	FundWatch FundState = "WATCH"
	FundOut   FundState = "OUT"
)

// SecurityState is the per-code aggregate this pipeline maintains:
// fundamental classification plus the tags and risk posture accumulated
// from persisted intelligence records.
type SecurityState struct {
	Code         string    `badgerhold:"key"`
	State        FundState `badgerhold:"index"`
	Score        float64   ``
	Tags         []string  ``
	RiskFlags    []string  ``
	CriticalRisk bool      ``
	EvidenceRefs []string  ``
	UpdatedAt    time.Time ``
}

// MergeIntel folds a new record's tags and risk posture into the
// aggregate. Returns true when anything actually changed.
func (s *SecurityState) MergeIntel(tags, riskFlags, evidenceRefs []string, criticalRisk bool) bool {
	changed := false
	s.Tags, changed = appendNew(s.Tags, tags, changed)
	s.RiskFlags, changed = appendNew(s.RiskFlags, riskFlags, changed)
	s.EvidenceRefs, changed = appendNew(s.EvidenceRefs, evidenceRefs, changed)
	if criticalRisk && !s.CriticalRisk {
		s.CriticalRisk = true
		changed = true
	}
	return changed
}

func appendNew(dst, src []string, changed bool) ([]string, bool) {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
		changed = true
	}
	return dst, changed
}
