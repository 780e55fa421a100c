package intel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Payload is the structured intelligence object the model must return.
// Validation is strict: every required field must be present and no
// unknown fields are tolerated, so a loosely shaped response gets the
// repair prompt instead of slipping through.
type Payload struct {
	Headline     string   `json:"headline" validate:"required,min=1"`
	PublishedAt  *string  `json:"published_at"`
	SourceURL    string   `json:"source_url" validate:"required,min=1"`
	SourceType   string   `json:"source_type" validate:"required,min=1"`
	Summary      string   `json:"summary"`
	Facts        []string `json:"facts"`
	Tags         []string `json:"tags"`
	RiskFlags    []string `json:"risk_flags"`
	CriticalRisk bool     `json:"critical_risk"`
	EvidenceRefs []string `json:"evidence_refs"`
	DataGaps     []string `json:"data_gaps"`
}

var requiredFields = []string{
	"headline",
	"published_at",
	"source_url",
	"source_type",
	"facts",
	"tags",
	"risk_flags",
	"critical_risk",
	"evidence_refs",
	"data_gaps",
}

var allowedFields = func() map[string]bool {
	m := map[string]bool{"summary": true}
	for _, f := range requiredFields {
		m[f] = true
	}
	return m
}()

var validate = validator.New()

// cleanupText strips markdown code fences and provider control markers
// from raw model output before parsing.
func cleanupText(content string) string {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[0], "```") && strings.HasPrefix(lines[len(lines)-1], "```") {
			text = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}
	if pos := strings.Index(text, "<|message|>"); pos >= 0 {
		text = strings.TrimSpace(text[pos+len("<|message|>"):])
	}
	return text
}

// parseAndValidate turns cleaned model output into a validated Payload.
// Returns a descriptive error usable as repair-prompt input.
func parseAndValidate(content string) (*Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("json_parse_error: %w", err)
	}

	var missing, unknown []string
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	for key := range raw {
		if !allowedFields[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown fields not allowed: %s", strings.Join(unknown, ", "))
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(content)))
	decoder.DisallowUnknownFields()
	var payload Payload
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("field type error: %w", err)
	}

	if err := validate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	return &payload, nil
}

// ParsePublishedAt parses the timestamp formats evidence metadata uses.
// Returns nil for empty or unparseable values.
func ParsePublishedAt(value *string) *time.Time {
	if value == nil {
		return nil
	}
	txt := strings.TrimSpace(*value)
	if txt == "" {
		return nil
	}
	for _, layout := range []string{
		"2006-01-02",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, txt); err == nil {
			return &t
		}
	}
	return nil
}
