package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/biokg/explorer/pkg/provider/llm"
	llmmock "github.com/biokg/explorer/pkg/provider/llm/mock"
	"github.com/biokg/explorer/pkg/types"
)

// sequentialExtractor returns one EntityRef/error pair per call, in order,
// repeating the last entry once exhausted. Lets tests control the
// multi-attempt fallback chain without a shared mock provider.
type sequentialExtractor struct {
	refs []EntityRef
	errs []error
	n    int
}

func (e *sequentialExtractor) Extract(_ context.Context, _ string) (EntityRef, error) {
	i := e.n
	if i >= len(e.refs) {
		i = len(e.refs) - 1
	}
	e.n++
	var err error
	if i < len(e.errs) {
		err = e.errs[i]
	}
	return e.refs[i], err
}

func toolCallResponse(t *testing.T, name, argsJSON string) *llm.CompletionResponse {
	t.Helper()
	return &llm.CompletionResponse{
		ToolCalls: []types.ToolCall{{ID: "call_1", Name: name, Arguments: argsJSON}},
	}
}

func TestResolve_ToolCallSearchEntity(t *testing.T) {
	toolProvider := &llmmock.Provider{
		CompleteResponse: toolCallResponse(t, toolSearchEntity, `{"entity_name":"BRCA1","entity_type":"gene"}`),
	}
	r, err := New(toolProvider, &sequentialExtractor{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.Resolve(context.Background(), "what is BRCA1?")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindSingle {
		t.Fatalf("kind = %v, want single", res.Kind)
	}
	if res.Entity.Name != "BRCA1" || res.Entity.Type != types.EntityGene {
		t.Errorf("entity = %+v, want BRCA1/gene", res.Entity)
	}
	if len(toolProvider.CompleteCalls) != 1 {
		t.Errorf("expected 1 tool-call attempt, got %d", len(toolProvider.CompleteCalls))
	}
}

func TestResolve_ToolCallFindShortestPath(t *testing.T) {
	argsJSON := `{"entity1_name":"BRCA1","entity1_type":"gene","entity2_name":"breast cancer","entity2_type":"disease"}`
	toolProvider := &llmmock.Provider{
		CompleteResponse: toolCallResponse(t, toolFindShortestPath, argsJSON),
	}
	r, err := New(toolProvider, &sequentialExtractor{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.Resolve(context.Background(), "how is BRCA1 connected to breast cancer?")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindPair {
		t.Fatalf("kind = %v, want pair", res.Kind)
	}
	if res.Entities[0].Name != "BRCA1" || res.Entities[1].Name != "breast cancer" {
		t.Errorf("entities = %+v", res.Entities)
	}
}

func TestResolve_FallsBackToExtractorOnNoToolCall(t *testing.T) {
	toolProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "I don't know."}}
	extractor := &sequentialExtractor{refs: []EntityRef{{Name: "aspirin", Type: types.EntityDrug}}}

	r, err := New(toolProvider, extractor)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.Resolve(context.Background(), "tell me about aspirin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindSingle || res.Entity.Name != "aspirin" {
		t.Errorf("result = %+v", res)
	}
}

func TestResolve_RetriesExtractorOnceWhenImplausible(t *testing.T) {
	toolProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{}}
	extractor := &sequentialExtractor{
		refs: []EntityRef{
			{Name: "xyz-totally-unrelated-term"}, // implausible for the query below
			{Name: "insulin"},                    // plausible second attempt
		},
	}

	r, err := New(toolProvider, extractor)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.Resolve(context.Background(), "what does insulin do?")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Entity.Name != "insulin" {
		t.Errorf("entity = %+v, want insulin", res.Entity)
	}
	if extractor.n != 2 {
		t.Errorf("expected 2 extractor attempts, got %d", extractor.n)
	}
}

func TestResolve_HardFailureAfterAllFallbacks(t *testing.T) {
	toolProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{}}
	extractor := &sequentialExtractor{
		refs: []EntityRef{{Name: "nothing-plausible-at-all"}},
	}

	r, err := New(toolProvider, extractor)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = r.Resolve(context.Background(), "what does insulin do?")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestPlausible(t *testing.T) {
	cases := []struct {
		query, candidate string
		want             bool
	}{
		{"what is BRCA1?", "BRCA1", true},
		{"tell me about insulin resistance", "insulin", true},
		{"aspirin", "acetylsalicylic acid aspirin", true},
		{"what is BRCA1?", "completely unrelated term", false},
		{"", "anything", false},
	}
	for _, c := range cases {
		if got := plausible(c.query, c.candidate); got != c.want {
			t.Errorf("plausible(%q, %q) = %v, want %v", c.query, c.candidate, got, c.want)
		}
	}
}
