package intel

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// Outcome is the tagged result of the summarize chain. Exactly one of
// the three shapes occurs: a validated model payload (Valid true), or
// the deterministic fallback payload with the reason it was needed
// (Valid false). The chain itself never fails.
type Outcome struct {
	Payload        *Payload
	Valid          bool
	FallbackReason string
}

// Chain runs summarize, validate, one repair attempt, then the
// deterministic fallback against an LLM service.
type Chain struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewChain creates a summarize chain.
func NewChain(llm interfaces.LLMService, logger arbor.ILogger) *Chain {
	return &Chain{
		llm:    llm,
		logger: logger,
	}
}

// Summarize produces an intelligence payload for one candidate from its
// evidence. Source URL, type, timestamp and evidence refs in the result
// always come from the evidence metadata regardless of which stage
// produced the payload.
func (c *Chain) Summarize(ctx context.Context, code string, sources []models.EvidenceSource, existingTags []string) Outcome {
	userPayload, err := buildSummarizeUserPayload(code, sources, existingTags)
	if err != nil {
		return c.fallback(code, sources, fmt.Sprintf("prompt build failed: %v", err))
	}

	raw, err := c.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: string(userPayload)},
	})
	if err != nil {
		c.logger.Warn().Str("code", code).Err(err).Msg("LLM summarize call failed, using fallback")
		return c.fallback(code, sources, err.Error())
	}

	content := cleanupText(raw)
	parsed, validationErr := parseAndValidate(content)
	if parsed == nil {
		c.logger.Info().
			Str("code", code).
			Err(validationErr).
			Msg("LLM output failed validation, attempting repair")
		parsed = c.attemptRepair(ctx, code, content, validationErr)
	}
	if parsed == nil {
		return c.fallback(code, sources, validationErr.Error())
	}

	return Outcome{
		Payload: mergeSourceFields(code, parsed, sources),
		Valid:   true,
	}
}

// attemptRepair re-prompts once with the invalid output plus the
// validation error. Returns nil when repair also fails.
func (c *Chain) attemptRepair(ctx context.Context, code, originalContent string, validationErr error) *Payload {
	errText := ""
	if validationErr != nil {
		errText = validationErr.Error()
	}
	userPayload, err := buildRepairUserPayload(originalContent, errText)
	if err != nil {
		return nil
	}

	raw, err := c.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: repairSystemPrompt},
		{Role: "user", Content: string(userPayload)},
	})
	if err != nil {
		c.logger.Warn().Str("code", code).Err(err).Msg("LLM repair call failed")
		return nil
	}

	repaired, repairErr := parseAndValidate(cleanupText(raw))
	if repaired == nil {
		c.logger.Warn().Str("code", code).Err(repairErr).Msg("LLM repair validation failed")
		return nil
	}
	return repaired
}

func (c *Chain) fallback(code string, sources []models.EvidenceSource, reason string) Outcome {
	c.logger.Warn().Str("code", code).Str("reason", cleanText(reason, 200)).Msg("Intel fallback record synthesized")
	return Outcome{
		Payload:        buildFallback(code, sources, reason),
		Valid:          false,
		FallbackReason: reason,
	}
}
