package intel

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"equityintel/internal/models"
)

// The fallback stage synthesizes a record purely from evidence
// metadata. It makes no model calls and is fully deterministic, so a
// dead LLM endpoint still produces auditable records with explicit
// gaps instead of holes in the history.

const (
	gapMissingBody      = "filing body text missing or not extracted"
	gapMissingXBRL      = "no XBRL key figures extracted"
	gapMissingPublished = "publish timestamp missing"
	gapNoUsableFacts    = "no usable facts extracted from text"
)

type sourceMeta struct {
	SourceURL    string
	SourceType   string
	PublishedAt  *string
	Headline     string
	EvidenceRefs []string
}

// resolveSourceMeta collapses the evidence list to the traceability
// fields that always come from evidence, never from the model: first
// non-empty URL/type/timestamp/headline plus up to five evidence refs.
func resolveSourceMeta(sources []models.EvidenceSource) sourceMeta {
	meta := sourceMeta{}
	for _, row := range sources {
		rowURL := cleanText(row.SourceURL, 240)
		rowType := cleanText(row.SourceType, 40)
		rowHeadline := cleanText(row.Headline, 160)
		rowPublished := cleanText(row.PublishedAt, 40)

		if meta.SourceURL == "" && rowURL != "" {
			meta.SourceURL = rowURL
		}
		if meta.SourceType == "" && rowType != "" {
			meta.SourceType = rowType
		}
		if meta.PublishedAt == nil && rowPublished != "" {
			p := rowPublished
			meta.PublishedAt = &p
		}
		if meta.Headline == "" && rowHeadline != "" {
			meta.Headline = rowHeadline
		}
		if rowURL != "" && !contains(meta.EvidenceRefs, rowURL) {
			meta.EvidenceRefs = append(meta.EvidenceRefs, rowURL)
		}
		for _, ref := range row.EvidenceRefs {
			refTxt := cleanText(ref, 240)
			if refTxt != "" && !contains(meta.EvidenceRefs, refTxt) {
				meta.EvidenceRefs = append(meta.EvidenceRefs, refTxt)
			}
		}
		if len(meta.EvidenceRefs) >= 5 {
			break
		}
	}
	if meta.SourceURL == "" {
		meta.SourceURL = "unknown"
	}
	if meta.SourceType == "" {
		meta.SourceType = "unknown"
	}
	if len(meta.EvidenceRefs) == 0 && meta.SourceURL != "unknown" {
		meta.EvidenceRefs = []string{meta.SourceURL}
	}
	if len(meta.EvidenceRefs) > 5 {
		meta.EvidenceRefs = meta.EvidenceRefs[:5]
	}
	return meta
}

// buildFallback synthesizes the no-model payload.
func buildFallback(code string, sources []models.EvidenceSource, reason string) *Payload {
	meta := resolveSourceMeta(sources)
	facts := buildDeterministicFacts(sources, 3)
	summary := buildDeterministicSummary(code, sources, meta, facts)

	var dataGaps []string
	if !hasSubstantiveFullText(sources) {
		dataGaps = append(dataGaps, gapMissingBody)
	}
	if !hasStructuredFacts(sources) {
		dataGaps = append(dataGaps, gapMissingXBRL)
	}
	if meta.PublishedAt == nil {
		dataGaps = append(dataGaps, gapMissingPublished)
	}
	if reason != "" {
		dataGaps = append(dataGaps, fmt.Sprintf("llm_error: %s", cleanText(reason, 140)))
	}
	if len(facts) == 0 {
		dataGaps = append(dataGaps, gapNoUsableFacts)
	}

	headline := meta.Headline
	if headline == "" {
		headline = fmt.Sprintf("%s disclosure", code)
	}
	return &Payload{
		Headline:     headline,
		PublishedAt:  meta.PublishedAt,
		SourceURL:    meta.SourceURL,
		SourceType:   meta.SourceType,
		Summary:      summary,
		Facts:        facts,
		Tags:         []string{},
		RiskFlags:    []string{},
		CriticalRisk: false,
		EvidenceRefs: meta.EvidenceRefs,
		DataGaps:     normalizeTextList(dataGaps, 4, 140),
	}
}

// mergeSourceFields overwrites the traceability fields of a validated
// payload from evidence metadata and backfills weak model output with
// the deterministic variants. Model output is never trusted for source
// URL, type or timestamp.
func mergeSourceFields(code string, parsed *Payload, sources []models.EvidenceSource) *Payload {
	meta := resolveSourceMeta(sources)

	facts := normalizeTextList(parsed.Facts, 3, 120)
	if len(facts) == 0 {
		facts = buildDeterministicFacts(sources, 3)
	}

	summary := cleanText(parsed.Summary, 360)
	if summary == "" {
		summary = buildDeterministicSummary(code, sources, meta, facts)
	}

	evidenceRefs := normalizeTextList(parsed.EvidenceRefs, 5, 240)
	for _, ref := range meta.EvidenceRefs {
		if len(evidenceRefs) >= 5 {
			break
		}
		if ref != "" && !contains(evidenceRefs, ref) {
			evidenceRefs = append(evidenceRefs, ref)
		}
	}
	if len(evidenceRefs) == 0 && meta.SourceURL != "unknown" {
		evidenceRefs = []string{meta.SourceURL}
	}

	dataGaps := normalizeTextList(parsed.DataGaps, 4, 140)
	if !hasSubstantiveFullText(sources) && !contains(dataGaps, gapMissingBody) {
		dataGaps = append(dataGaps, gapMissingBody)
		dataGaps = normalizeTextList(dataGaps, 4, 140)
	}

	headline := cleanText(parsed.Headline, 160)
	if headline == "" {
		headline = meta.Headline
	}
	if headline == "" {
		headline = fmt.Sprintf("%s disclosure", code)
	}

	return &Payload{
		Headline:     headline,
		PublishedAt:  meta.PublishedAt,
		SourceURL:    meta.SourceURL,
		SourceType:   meta.SourceType,
		Summary:      summary,
		Facts:        facts,
		Tags:         normalizeTextList(parsed.Tags, 8, 40),
		RiskFlags:    normalizeTextList(parsed.RiskFlags, 8, 40),
		CriticalRisk: parsed.CriticalRisk,
		EvidenceRefs: evidenceRefs,
		DataGaps:     dataGaps,
	}
}

func buildDeterministicSummary(code string, sources []models.EvidenceSource, meta sourceMeta, facts []string) string {
	headline := meta.Headline
	if headline == "" {
		headline = fmt.Sprintf("%s disclosure", code)
	}
	if len(facts) > 0 {
		top := facts
		if len(top) > 2 {
			top = top[:2]
		}
		return cleanText(fmt.Sprintf("%s confirmed. Key points: %s.", headline, strings.Join(top, " / ")), 360)
	}
	if hasSubstantiveFullText(sources) {
		return cleanText(fmt.Sprintf("%s: body text retrieved but mechanical extraction yielded limited key points.", headline), 360)
	}
	return cleanText(fmt.Sprintf("%s: disclosure confirmed but body text retrieval or extraction was insufficient; detailed analysis incomplete.", headline), 360)
}

// buildDeterministicFacts prefers XBRL-derived figures, then the first
// substantive sentence of each source's text.
func buildDeterministicFacts(sources []models.EvidenceSource, limit int) []string {
	var out []string
	for _, row := range sources {
		for _, item := range row.Facts {
			txt := cleanText(item, 96)
			if txt == "" {
				continue
			}
			fact := fmt.Sprintf("XBRL: %s", txt)
			if !contains(out, fact) {
				out = append(out, fact)
			}
			if len(out) >= limit {
				return out
			}
		}
	}

	for _, row := range sources {
		headline := cleanText(row.Headline, 70)
		var chosen string
		if isSubstantiveText(row.FullText) {
			chosen = firstSentence(row.FullText, 108)
		} else if isSubstantiveText(row.Snippet) {
			chosen = firstSentence(row.Snippet, 108)
		}
		if chosen == "" {
			continue
		}
		fact := chosen
		if headline != "" {
			fact = fmt.Sprintf("%s: %s", headline, chosen)
		}
		fact = cleanText(fact, 120)
		if fact != "" && !contains(out, fact) {
			out = append(out, fact)
		}
		if len(out) >= limit {
			return out
		}
	}
	return out
}

func hasSubstantiveFullText(sources []models.EvidenceSource) bool {
	for _, row := range sources {
		if isSubstantiveText(row.FullText) {
			return true
		}
	}
	return false
}

func hasStructuredFacts(sources []models.EvidenceSource) bool {
	for _, row := range sources {
		for _, f := range row.Facts {
			if strings.TrimSpace(f) != "" {
				return true
			}
		}
	}
	return false
}

var fallbackErrorTokens = []string{
	"not found",
	"forbidden",
	"access denied",
	"invalid_api_key",
	"subscription-key",
	"wzek0130.aspx",
	"llm validation failed",
	"fallback summary applied",
}

func isSubstantiveText(value string) bool {
	text := cleanText(value, 2000)
	if utf8.RuneCountInString(text) < 24 {
		return false
	}
	low := strings.ToLower(text)
	for _, token := range fallbackErrorTokens {
		if strings.Contains(low, token) {
			return false
		}
	}
	return true
}

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	sentenceRe = regexp.MustCompile(`[。！？!?]|\.\s`)
)

func firstSentence(value string, limit int) string {
	raw := strings.TrimSpace(spaceRe.ReplaceAllString(value, " "))
	if raw == "" {
		return ""
	}
	for _, piece := range sentenceRe.Split(raw, -1) {
		txt := cleanText(piece, limit)
		if utf8.RuneCountInString(txt) >= 12 {
			return txt
		}
	}
	return cleanText(raw, limit)
}

// cleanText collapses whitespace and truncates by runes so multibyte
// text never gets cut mid-character.
func cleanText(value string, limit int) string {
	text := strings.TrimSpace(spaceRe.ReplaceAllString(value, " "))
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

var placeholderValues = map[string]bool{
	"none": true, "n/a": true, "na": true, "null": true, "unknown": true, "not available": true,
}

func normalizeTextList(values []string, limit, itemLimit int) []string {
	out := []string{}
	for _, item := range values {
		txt := cleanText(item, itemLimit)
		if txt == "" || placeholderValues[strings.ToLower(txt)] {
			continue
		}
		if !contains(out, txt) {
			out = append(out, txt)
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
