package evidence

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// XBRL instances tag every financial fact with a context holding its
// period metadata. The same concept usually appears many times (current
// year, prior year, quarterly, consolidated and not), so extraction
// scores each occurrence by its context id and keeps the best one.

type conceptRule struct {
	key      string
	label    string
	prefixes []string
}

// Ordered by reporting convention; output follows this order.
var conceptRules = []conceptRule{
	{"net_sales", "net_sales", []string{"NetSales", "Revenue", "Sales"}},
	{"operating_income", "operating_income", []string{"OperatingIncome", "OperatingProfit"}},
	{"ordinary_income", "ordinary_income", []string{"OrdinaryIncome"}},
	{"profit", "net_profit", []string{"ProfitLossAttributableToOwnersOfParent", "ProfitLoss", "NetIncome"}},
	{"total_assets", "total_assets", []string{"Assets"}},
	{"equity", "equity", []string{"Equity", "NetAssets"}},
	{"eps", "eps", []string{"BasicEarningsPerShare", "EarningsPerShare"}},
}

type candidateValue struct {
	key   string
	label string
	value string
	asof  *time.Time
	score float64
}

// ExtractXBRLKeyFacts parses the XBRL instance(s) embedded in a filing
// payload and returns formatted key financial figures, best candidate
// per concept across all parsed buffers. Malformed input yields an
// empty slice, never an error.
func ExtractXBRLKeyFacts(payload []byte, limit int) []string {
	merged := make(map[string]candidateValue)
	for _, buf := range xbrlBuffers(payload) {
		for key, cand := range parseInstance(buf) {
			prev, ok := merged[key]
			if !ok || cand.score > prev.score {
				merged[key] = cand
			}
		}
	}

	var out []string
	for _, rule := range conceptRules {
		cand, ok := merged[rule.key]
		if !ok {
			continue
		}
		if cand.asof != nil {
			out = append(out, fmt.Sprintf("%s=%s (%s)", cand.label, cand.value, cand.asof.Format("2006-01-02")))
		} else {
			out = append(out, fmt.Sprintf("%s=%s", cand.label, cand.value))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// xbrlBuffers yields the XML buffers worth parsing: the payload itself
// when it is bare XML, otherwise the .xbrl entries of the archive (or
// .xml entries when no .xbrl exists).
func xbrlBuffers(payload []byte) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	if !bytes.HasPrefix(payload, []byte("PK")) {
		return [][]byte{payload}
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil
	}

	var primary, secondary []*zip.File
	for _, f := range reader.File {
		lowered := strings.ToLower(f.Name)
		switch {
		case strings.HasSuffix(lowered, ".xbrl"):
			primary = append(primary, f)
		case strings.HasSuffix(lowered, ".xml"):
			secondary = append(secondary, f)
		}
	}
	picked := primary
	if len(picked) == 0 {
		picked = secondary
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].Name < picked[j].Name })
	if len(picked) > 6 {
		picked = picked[:6]
	}

	var out [][]byte
	for _, f := range picked {
		rc, err := f.Open()
		if err != nil {
			continue
		}
		buf, err := io.ReadAll(rc)
		rc.Close()
		if err != nil || len(buf) == 0 {
			continue
		}
		out = append(out, buf)
	}
	return out
}

// parseInstance scans one XML buffer twice: first for context periods,
// then for facts whose element name matches a concept prefix.
func parseInstance(buf []byte) map[string]candidateValue {
	contexts := collectContextDates(buf)

	best := make(map[string]candidateValue)
	decoder := xml.NewDecoder(bytes.NewReader(buf))
	decoder.Strict = false

	var current *conceptRule
	var contextRef string
	var text strings.Builder
	depth := 0

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if current != nil {
				depth++
				continue
			}
			rule := matchRule(t.Name.Local)
			if rule == nil {
				continue
			}
			ref := attrValue(t.Attr, "contextRef")
			if ref == "" {
				continue
			}
			current = rule
			contextRef = ref
			text.Reset()
			depth = 0
		case xml.CharData:
			if current != nil && depth == 0 {
				text.Write(t)
			}
		case xml.EndElement:
			if current == nil {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			value, ok := parseNumeric(text.String())
			if ok {
				asof := contexts[contextRef]
				cand := candidateValue{
					key:   current.key,
					label: current.label,
					value: value,
					asof:  asof,
					score: contextScore(contextRef, asof),
				}
				prev, exists := best[current.key]
				if !exists || cand.score > prev.score {
					best[current.key] = cand
				}
			}
			current = nil
			contextRef = ""
		}
	}
	return best
}

// xbrlContext mirrors the xbrli:context element shape.
type xbrlContext struct {
	ID     string `xml:"id,attr"`
	Period struct {
		Instant   string `xml:"instant"`
		EndDate   string `xml:"endDate"`
		StartDate string `xml:"startDate"`
	} `xml:"period"`
}

func collectContextDates(buf []byte) map[string]*time.Time {
	out := make(map[string]*time.Time)
	decoder := xml.NewDecoder(bytes.NewReader(buf))
	decoder.Strict = false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "context" {
			continue
		}
		var ctx xbrlContext
		if err := decoder.DecodeElement(&ctx, &start); err != nil {
			continue
		}
		if ctx.ID == "" {
			continue
		}
		// Instant wins, then period end, then period start.
		for _, raw := range []string{ctx.Period.Instant, ctx.Period.EndDate, ctx.Period.StartDate} {
			if d := tryParseDate(raw); d != nil {
				out[ctx.ID] = d
				break
			}
		}
		if _, seen := out[ctx.ID]; !seen {
			out[ctx.ID] = nil
		}
	}
	return out
}

func tryParseDate(value string) *time.Time {
	text := strings.TrimSpace(value)
	if len(text) < 10 {
		return nil
	}
	d, err := time.Parse("2006-01-02", text[:10])
	if err != nil {
		return nil
	}
	return &d
}

func matchRule(local string) *conceptRule {
	for i := range conceptRules {
		for _, p := range conceptRules[i].prefixes {
			if local == p || strings.HasPrefix(local, p) {
				return &conceptRules[i]
			}
		}
	}
	return nil
}

// parseNumeric cleans and formats a fact value: integers get thousands
// separators, decimals keep their precision with trailing zeros cut.
func parseNumeric(text string) (string, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if cleaned == "" {
		return "", false
	}
	if i, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return humanize.Comma(i), true
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return "", false
	}
	formatted := strconv.FormatFloat(f, 'f', -1, 64)
	return formatted, true
}

// contextScore prefers current-period consolidated facts and penalizes
// prior-period ones. A small recency bonus breaks ties between contexts
// of the same kind.
func contextScore(contextRef string, asof *time.Time) float64 {
	key := strings.ToLower(contextRef)
	score := 0.0
	switch {
	case strings.Contains(key, "currentyear"):
		score += 40.0
	case strings.Contains(key, "currentquarter"):
		score += 35.0
	case strings.Contains(key, "current"):
		score += 20.0
	}
	if strings.Contains(key, "duration") {
		score += 8.0
	}
	if strings.Contains(key, "instant") {
		score += 8.0
	}
	if strings.Contains(key, "prior") {
		score -= 20.0
	}
	if asof != nil {
		score += 5.0 + float64(dayOrdinal(*asof))/1_000_000.0
	}
	return score
}

// dayOrdinal counts days since year 1, so later dates always score
// higher regardless of era.
func dayOrdinal(t time.Time) int64 {
	epoch := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int64(t.Sub(epoch).Hours()/24) + 1
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
