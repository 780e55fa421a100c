package models

// EvidenceSource is one piece of disclosure evidence collected for a
// candidate: a regulatory filing or a company web page, reduced to text
// plus any structured facts pulled from an embedded XBRL instance.
// Transient; produced by extraction and consumed once by the LLM chain.
type EvidenceSource struct {
	Code         string   `json:"code"`
	SourceURL    string   `json:"source_url"`
	SourceType   string   `json:"source_type"`
	Headline     string   `json:"headline"`
	PublishedAt  string   `json:"published_at,omitempty"`
	Snippet      string   `json:"snippet"`
	FullText     string   `json:"full_text,omitempty"`
	Facts        []string `json:"facts,omitempty"`
	EvidenceRefs []string `json:"evidence_refs"`
}
