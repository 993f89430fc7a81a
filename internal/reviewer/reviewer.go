// Package reviewer runs a post-hoc LLM pass that scores a generated
// explanation against the context it was supposedly grounded in.
package reviewer

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/biokg/explorer/pkg/provider/llm"
	"github.com/biokg/explorer/pkg/types"
)

const (
	maxReasoningLen = 300
	minScore        = 1
	maxScore        = 10
)

// confidencePatterns are tried in order against the model's reply; the first
// one that matches wins. Later, looser patterns cover models that drift from
// the requested "CONFIDENCE: N/10" format.
var confidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)CONFIDENCE:\s*(\d+)\s*/\s*10`),
	regexp.MustCompile(`(\d+)\s*/\s*10`),
	regexp.MustCompile(`(?i)score[:\s]+(\d+)`),
}

var reasoningPattern = regexp.MustCompile(`(?is)REASONING:\s*(.*)`)

// Reviewer scores a generated response against its supporting context.
type Reviewer struct {
	model  llm.Provider
	logger *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Reviewer)

// WithLogger overrides the default [slog.Default] logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reviewer) { r.logger = l }
}

// New builds a Reviewer backed by model.
func New(model llm.Provider, opts ...Option) *Reviewer {
	r := &Reviewer{model: model, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review asks the model to score how well response is grounded in context
// given question, returning a confidence score in [1,10] and a reasoning
// string of at most 300 characters. Any failure — the model call, or a
// reply the extractor cannot parse — yields (0, ""), never an error.
func (r *Reviewer) Review(ctx context.Context, question, context_, response string) (score int, reasoning string) {
	resp, err := r.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: reviewPrompt,
		Messages: []types.Message{{
			Role:    "user",
			Content: buildReviewInput(question, context_, response),
		}},
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "reviewer: model call failed", "error", err)
		return 0, ""
	}

	score = extractScore(resp.Content)
	if score == 0 {
		r.logger.WarnContext(ctx, "reviewer: could not extract a confidence score", "reply", resp.Content)
		return 0, ""
	}
	return score, extractReasoning(resp.Content)
}

func extractScore(text string) int {
	for _, pattern := range confidencePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return clamp(n, minScore, maxScore)
	}
	return 0
}

func extractReasoning(text string) string {
	m := reasoningPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	reasoning := strings.TrimSpace(m[1])
	if len(reasoning) > maxReasoningLen {
		reasoning = reasoning[:maxReasoningLen]
	}
	return reasoning
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

const reviewPrompt = `You are reviewing a biomedical knowledge-graph explanation for grounding.

Given the question, the supporting context, and the generated response, judge how
well every claim in the response is supported by the context. Respond with exactly
two lines, nothing else:

CONFIDENCE: N/10
REASONING: a one or two sentence justification, 300 characters or fewer.`

func buildReviewInput(question, context_, response string) string {
	var sb strings.Builder
	sb.WriteString("QUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nCONTEXT:\n")
	sb.WriteString(context_)
	sb.WriteString("\n\nRESPONSE:\n")
	sb.WriteString(response)
	return sb.String()
}
