// Package intent resolves a free-text user query into either a single-entity
// search or a two-entity shortest-path request.
//
// The primary path is an LLM tool-call against exactly two declared
// functions, search_entity and find_shortest_path. When the model declines
// to call a tool (or the call fails), a single-entity extractor is used as a
// fallback, subject to a plausibility check against the original query.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/biokg/explorer/pkg/provider/llm"
	"github.com/biokg/explorer/pkg/types"
)

// ErrExtractionFailed is returned when every fallback in the resolution
// chain has been exhausted without producing a plausible entity mention.
var ErrExtractionFailed = errors.New("intent: entity_extraction_failed")

// Kind distinguishes the two shapes a resolved intent can take.
type Kind string

const (
	KindSingle Kind = "single"
	KindPair   Kind = "pair"
)

// EntityRef is one entity mention extracted from the query, paired with an
// optional type hint.
type EntityRef struct {
	Name string
	Type types.EntityType
}

// Result is the outcome of [Resolver.Resolve].
type Result struct {
	Kind     Kind
	Entity   EntityRef   // set when Kind == KindSingle
	Entities [2]EntityRef // set when Kind == KindPair
}

const (
	toolSearchEntity     = "search_entity"
	toolFindShortestPath = "find_shortest_path"
)

// searchEntityArgs is the argument shape for the search_entity tool.
type searchEntityArgs struct {
	EntityName string `json:"entity_name" jsonschema:"the name or mention of the biomedical entity to search for"`
	EntityType string `json:"entity_type,omitempty" jsonschema:"one of gene, disease, drug, pathway, protein, or other"`
}

// findShortestPathArgs is the argument shape for the find_shortest_path tool.
type findShortestPathArgs struct {
	Entity1Name string `json:"entity1_name" jsonschema:"the name or mention of the first entity"`
	Entity1Type string `json:"entity1_type,omitempty" jsonschema:"one of gene, disease, drug, pathway, protein, or other"`
	Entity2Name string `json:"entity2_name" jsonschema:"the name or mention of the second entity"`
	Entity2Type string `json:"entity2_type,omitempty" jsonschema:"one of gene, disease, drug, pathway, protein, or other"`
}

// systemPrompt instructs the model to choose exactly one of the two declared
// tools based on whether the query names one or two entities.
const systemPrompt = `You resolve biomedical knowledge-graph queries to a structured intent.
Call search_entity when the user asks about a single entity (a gene, disease, drug, pathway, or protein).
Call find_shortest_path when the user asks how two entities are connected or related.
Always call exactly one of the two available tools.`

// extractorPrompt asks for a single-entity JSON object with no surrounding prose.
const extractorPrompt = `Extract the single biomedical entity (gene, disease, drug, pathway, or protein) that
the following query is about. Respond with a single JSON object and nothing else, of the
shape {"entity_name": "...", "entity_type": "..."}. Omit entity_type if it cannot be determined.`

// EntityExtractor is the single-entity fallback used when the primary
// tool-call does not produce a usable result. The teacher's "gradio-style
// remote service or a JSON-only LLM" wording maps to this interface: an
// [LLMExtractor] is the default, but any remote classifier can implement it.
type EntityExtractor interface {
	Extract(ctx context.Context, query string) (EntityRef, error)
}

// Resolver implements the intent-resolution fallback chain described above.
type Resolver struct {
	tool      llm.Provider
	extractor EntityExtractor

	searchEntityDef     types.ToolDefinition
	findShortestPathDef types.ToolDefinition
}

// New builds a [Resolver] that issues tool-calls against toolProvider and
// falls back to extractor (usually [NewLLMExtractor] wrapping the same or a
// cheaper model) on miss.
func New(toolProvider llm.Provider, extractor EntityExtractor) (*Resolver, error) {
	searchSchema, err := jsonschema.For[searchEntityArgs](nil)
	if err != nil {
		return nil, fmt.Errorf("intent: build search_entity schema: %w", err)
	}
	pathSchema, err := jsonschema.For[findShortestPathArgs](nil)
	if err != nil {
		return nil, fmt.Errorf("intent: build find_shortest_path schema: %w", err)
	}

	searchParams, err := schemaToMap(searchSchema)
	if err != nil {
		return nil, err
	}
	pathParams, err := schemaToMap(pathSchema)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		tool:      toolProvider,
		extractor: extractor,
		searchEntityDef: types.ToolDefinition{
			Name:        toolSearchEntity,
			Description: "Search for a single biomedical entity by name.",
			Parameters:  searchParams,
		},
		findShortestPathDef: types.ToolDefinition{
			Name:        toolFindShortestPath,
			Description: "Find the shortest path between two biomedical entities.",
			Parameters:  pathParams,
		},
	}, nil
}

// schemaToMap converts a generated [jsonschema.Schema] into the
// map[string]any shape [types.ToolDefinition.Parameters] expects.
func schemaToMap(s *jsonschema.Schema) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("intent: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("intent: unmarshal schema: %w", err)
	}
	return m, nil
}

// Resolve maps query to a [Result], following the fallback chain: tool-call,
// then extractor with a plausibility check, then one retry of the extractor.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Result, error) {
	if res, ok := r.tryToolCall(ctx, query); ok {
		return res, nil
	}

	ref, err := r.extractor.Extract(ctx, query)
	if err == nil && plausible(query, ref.Name) {
		return &Result{Kind: KindSingle, Entity: ref}, nil
	}

	// Retry once; a second implausible or failed extraction is a hard failure.
	ref, err = r.extractor.Extract(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if !plausible(query, ref.Name) {
		return nil, ErrExtractionFailed
	}
	return &Result{Kind: KindSingle, Entity: ref}, nil
}

// tryToolCall attempts the primary tool-call path. ok is false when the
// model returned no function call or the call itself failed, signalling the
// caller should proceed to the extractor fallback.
func (r *Resolver) tryToolCall(ctx context.Context, query string) (*Result, bool) {
	resp, err := r.tool.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []types.Message{
			{Role: "user", Content: query},
		},
		Tools:       []types.ToolDefinition{r.searchEntityDef, r.findShortestPathDef},
		Temperature: 0,
	})
	if err != nil || len(resp.ToolCalls) == 0 {
		return nil, false
	}

	call := resp.ToolCalls[0]
	switch call.Name {
	case toolSearchEntity:
		var args searchEntityArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.EntityName == "" {
			return nil, false
		}
		return &Result{
			Kind:   KindSingle,
			Entity: EntityRef{Name: args.EntityName, Type: types.EntityType(args.EntityType)},
		}, true

	case toolFindShortestPath:
		var args findShortestPathArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil ||
			args.Entity1Name == "" || args.Entity2Name == "" {
			return nil, false
		}
		return &Result{
			Kind: KindPair,
			Entities: [2]EntityRef{
				{Name: args.Entity1Name, Type: types.EntityType(args.Entity1Type)},
				{Name: args.Entity2Name, Type: types.EntityType(args.Entity2Type)},
			},
		}, true

	default:
		return nil, false
	}
}

// plausible reports whether candidate could plausibly be the entity the
// query is about: either is a normalized substring of the other, or they
// share at least one token longer than two characters.
func plausible(query, candidate string) bool {
	q := normalize(query)
	c := normalize(candidate)
	if q == "" || c == "" {
		return false
	}
	if strings.Contains(q, c) || strings.Contains(c, q) {
		return true
	}

	qTokens := tokenSet(q)
	for _, t := range tokenSet(c) {
		if len(t) > 2 && contains(qTokens, t) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func tokenSet(s string) []string {
	return strings.Fields(s)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
