package intel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityintel/internal/common"
	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (m *scriptedLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	i := m.calls
	m.calls++
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (m *scriptedLLM) Close() error { return nil }

func testSources() []models.EvidenceSource {
	return []models.EvidenceSource{
		{
			Code:         "7203",
			SourceURL:    "https://disclosure.example/api/v2/documents/S100TEST?type=5",
			SourceType:   "filing",
			Headline:     "Q3 earnings revision",
			PublishedAt:  "2026-02-13",
			Snippet:      "Operating income forecast revised upward by 12% on cost reductions.",
			FullText:     "Operating income forecast revised upward by 12% on cost reductions and favorable currency movement across all segments.",
			Facts:        []string{"operating_income=1,200,000 (2026-03-31)"},
			EvidenceRefs: []string{"https://disclosure.example/api/v2/documents/S100TEST?type=5"},
		},
	}
}

const validJSON = `{
  "headline": "Upward revision to operating income",
  "published_at": "2030-01-01",
  "source_url": "https://model-invented.example/doc",
  "source_type": "rumor",
  "summary": "Cost reductions drive an upward revision; margin pressure remains the key risk.",
  "facts": ["Operating income forecast raised 12%"],
  "tags": ["earnings_revision"],
  "risk_flags": [],
  "critical_risk": false,
  "evidence_refs": ["https://disclosure.example/api/v2/documents/S100TEST?type=5"],
  "data_gaps": []
}`

func newTestChain(llm interfaces.LLMService) *Chain {
	return NewChain(llm, common.GetLogger())
}

func TestChain_RepairAfterInvalidJSON(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"this is not json at all", validJSON}}
	chain := newTestChain(llm)

	outcome := chain.Summarize(context.Background(), "7203", testSources(), nil)

	require.True(t, outcome.Valid)
	assert.Equal(t, 2, llm.calls)

	// Traceability fields come from evidence, not from the model.
	src := testSources()[0]
	assert.Equal(t, src.SourceURL, outcome.Payload.SourceURL)
	assert.Equal(t, src.SourceType, outcome.Payload.SourceType)
	require.NotNil(t, outcome.Payload.PublishedAt)
	assert.Equal(t, src.PublishedAt, *outcome.Payload.PublishedAt)
}

func TestChain_FallbackWhenLLMAlwaysErrors(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("llm endpoint unreachable"), errors.New("llm endpoint unreachable")}}
	chain := newTestChain(llm)

	outcome := chain.Summarize(context.Background(), "7203", testSources(), nil)

	require.False(t, outcome.Valid)
	assert.NotEmpty(t, outcome.Payload.Summary)
	assert.Contains(t, outcome.FallbackReason, "unreachable")

	found := false
	for _, gap := range outcome.Payload.DataGaps {
		if strings.HasPrefix(gap, "llm_error:") {
			found = true
		}
	}
	assert.True(t, found, "data_gaps should name the llm error")

	// Fallback facts prefer XBRL figures.
	require.NotEmpty(t, outcome.Payload.Facts)
	assert.Contains(t, outcome.Payload.Facts[0], "XBRL:")
}

func TestChain_FallbackAfterFailedRepair(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"headline": "x"}`, `still broken`}}
	chain := newTestChain(llm)

	outcome := chain.Summarize(context.Background(), "7203", testSources(), nil)

	require.False(t, outcome.Valid)
	assert.Equal(t, 2, llm.calls)
	assert.Contains(t, outcome.FallbackReason, "missing required fields")
	assert.Equal(t, testSources()[0].SourceURL, outcome.Payload.SourceURL)
	assert.False(t, outcome.Payload.CriticalRisk)
	assert.Empty(t, outcome.Payload.Tags)
}

func TestCleanupText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"control marker", "thinking...<|message|>{\"a\":1}", `{"a":1}`},
		{"fence then marker", "```\n<|message|>{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanupText(tt.in))
		})
	}
}

func TestParseAndValidate(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		p, err := parseAndValidate(validJSON)
		require.NoError(t, err)
		assert.Equal(t, "Upward revision to operating income", p.Headline)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		_, err := parseAndValidate(`{"headline": "x"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required fields")
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		withExtra := validJSON[:len(validJSON)-1] + `, "confidence": 0.9}`
		_, err := parseAndValidate(withExtra)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown fields")
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		bad := `{"headline":"x","published_at":null,"source_url":"u","source_type":"t","facts":"not-a-list","tags":[],"risk_flags":[],"critical_risk":false,"evidence_refs":[],"data_gaps":[]}`
		_, err := parseAndValidate(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "field type error")
	})

	t.Run("null published_at allowed", func(t *testing.T) {
		ok := `{"headline":"x","published_at":null,"source_url":"u","source_type":"t","facts":[],"tags":[],"risk_flags":[],"critical_risk":false,"evidence_refs":[],"data_gaps":[]}`
		p, err := parseAndValidate(ok)
		require.NoError(t, err)
		assert.Nil(t, p.PublishedAt)
	})
}

func TestParsePublishedAt(t *testing.T) {
	d := "2026-02-13"
	ts := ParsePublishedAt(&d)
	require.NotNil(t, ts)
	assert.Equal(t, 2026, ts.Year())

	junk := "sometime soon"
	assert.Nil(t, ParsePublishedAt(&junk))
	assert.Nil(t, ParsePublishedAt(nil))
}
