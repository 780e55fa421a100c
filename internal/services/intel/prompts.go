package intel

import (
	"encoding/json"

	"equityintel/internal/models"
)

const summarizeSystemPrompt = "You are an equity intelligence summarizer. Return strict JSON only. " +
	"Use ONLY the provided sources. Never fabricate missing facts. " +
	"Read sources.full_text first, and use snippet only as fallback. " +
	"Do not invent numbers, dates, or company actions not explicitly present in sources. " +
	"If evidence is insufficient, keep facts concise and add data_gaps. " +
	"The summary must name the catalyst, the likely market impact, and the key risk."

const repairSystemPrompt = "You repair malformed JSON for an equity intelligence pipeline. " +
	"Return strict JSON object only. No markdown, no comments."

// summarizeRequest is the user-message payload for the summarize stage.
type summarizeRequest struct {
	Code          string                  `json:"code"`
	ExistingTags  []string                `json:"existing_tags"`
	Sources       []models.EvidenceSource `json:"sources"`
	AnalysisFocus []string                `json:"analysis_focus"`
	Rules         []string                `json:"rules"`
	SchemaHint    map[string]any          `json:"output_schema_hint"`
}

func buildSummarizeUserPayload(code string, sources []models.EvidenceSource, existingTags []string) ([]byte, error) {
	if existingTags == nil {
		existingTags = []string{}
	}
	req := summarizeRequest{
		Code:         code,
		ExistingTags: existingTags,
		Sources:      sources,
		AnalysisFocus: []string{
			"Which catalysts are likely to affect the stock price in the near term?",
			"How do macro factors and event timing change the bull/bear balance?",
			"What concrete risk controls are implied by the evidence?",
		},
		Rules: []string{
			"facts must be directly supported by sources[].full_text/headline/snippet/published_at/source_type.",
			"prioritize sources[].full_text when available; snippet is only a short reference.",
			"if sources[].facts exists, prioritize those values as objective evidence.",
			"facts should be max 3 items, short and concrete.",
			"if only filing metadata exists, state that clearly in summary and data_gaps.",
			"include at least one explicit link in evidence_refs.",
		},
		SchemaHint: map[string]any{
			"headline":      "string",
			"published_at":  "string or null",
			"source_url":    "string",
			"source_type":   "string",
			"summary":       "string",
			"facts":         []string{"string"},
			"tags":          []string{"string"},
			"risk_flags":    []string{"string"},
			"critical_risk": "boolean",
			"evidence_refs": []string{"string"},
			"data_gaps":     []string{"string"},
		},
	}
	return json.Marshal(req)
}

// repairRequest is the user-message payload for the one-shot repair
// stage: the invalid output plus the validation error.
type repairRequest struct {
	Task             string   `json:"task"`
	RequiredFields   []string `json:"required_fields"`
	Rules            []string `json:"rules"`
	ValidationError  string   `json:"validation_error"`
	OriginalResponse string   `json:"original_response"`
}

func buildRepairUserPayload(originalContent, validationError string) ([]byte, error) {
	req := repairRequest{
		Task:           "repair_json",
		RequiredFields: requiredFields,
		Rules: []string{
			"Keep only a valid JSON object.",
			"facts/tags/risk_flags/evidence_refs/data_gaps must be arrays of strings.",
			"critical_risk must be boolean.",
			"Do not fabricate new facts. Use empty values and data_gaps if needed.",
		},
		ValidationError:  truncate(validationError, 1000),
		OriginalResponse: truncate(originalContent, 12000),
	}
	return json.Marshal(req)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
