package models

import "time"

// IntelligenceRecord is the persisted outcome of one deep dive. Created
// once per processed QueueEntry and immutable afterward. Source fields
// (URL, type, published-at) are always resolved from evidence metadata,
// never from model output, so every record stays traceable.
type IntelligenceRecord struct {
	ID           string     `badgerhold:"key"`
	Code         string     `badgerhold:"index"`
	BusinessDate string     `badgerhold:"index"`
	Session      Session    ``
	PublishedAt  *time.Time ``
	SourceURL    string     ``
	SourceType   string     ``
	Headline     string     ``
	Summary      string     ``
	Facts        []string   ``
	Tags         []string   ``
	RiskFlags    []string   ``
	CriticalRisk bool       ``
	EvidenceRefs []string   ``
	DataGaps     []string   ``
	LLMValid     bool       ``
	CreatedAt    time.Time  ``
}
