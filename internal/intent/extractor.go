package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/biokg/explorer/pkg/provider/llm"
	"github.com/biokg/explorer/pkg/types"
)

// LLMExtractor implements [EntityExtractor] as a JSON-only completion
// against an LLM provider, for use when the primary tool-call did not
// produce a usable result.
type LLMExtractor struct {
	provider llm.Provider
}

// NewLLMExtractor wraps provider as an [EntityExtractor].
func NewLLMExtractor(provider llm.Provider) *LLMExtractor {
	return &LLMExtractor{provider: provider}
}

// Extract asks the model to name the single entity the query is about and
// parses its JSON-only reply.
func (e *LLMExtractor) Extract(ctx context.Context, query string) (EntityRef, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractorPrompt,
		Messages: []types.Message{
			{Role: "user", Content: query},
		},
		Temperature: 0,
	})
	if err != nil {
		return EntityRef{}, fmt.Errorf("intent: extractor completion: %w", err)
	}

	var args searchEntityArgs
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &args); err != nil {
		return EntityRef{}, fmt.Errorf("intent: extractor response not valid JSON: %w", err)
	}
	if args.EntityName == "" {
		return EntityRef{}, fmt.Errorf("intent: extractor returned empty entity_name")
	}
	return EntityRef{Name: args.EntityName, Type: types.EntityType(args.EntityType)}, nil
}

// extractJSONObject trims any surrounding prose the model ignored the
// "nothing else" instruction for, returning the first {...} substring.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
