package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/biokg/explorer/internal/rag"
	"github.com/biokg/explorer/pkg/provider/llm"
	llmmock "github.com/biokg/explorer/pkg/provider/llm/mock"
	"github.com/biokg/explorer/pkg/types"
)

func bigEvidence(n int) []types.Evidence {
	snippet := strings.Repeat("x", 1000)
	out := make([]types.Evidence, n)
	for i := range out {
		out[i] = types.Evidence{PMID: "1", Snippet: snippet}
	}
	return out
}

func TestApplyCompression_NoopBelowThreshold(t *testing.T) {
	model := &llmmock.Provider{}
	s := New(model, "primary")

	req := Request{Variant: VariantDeepThinkChat, Evidence: bigEvidence(5)}
	s.applyCompression(context.Background(), &req)

	if req.CompressedContext != "" {
		t.Errorf("CompressedContext = %q, want empty below threshold", req.CompressedContext)
	}
	if len(model.CompleteCalls) != 0 {
		t.Errorf("Complete called %d times, want 0", len(model.CompleteCalls))
	}
}

func TestApplyCompression_CallsPrimaryModelAboveThreshold(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "condensed summary"}}
	s := New(model, "primary")

	req := Request{
		Variant:  VariantDeepThinkChat,
		Question: "how are these linked?",
		Path:     []PathNode{{Name: "BRCA1"}, {Name: "Breast Cancer"}},
		Evidence: bigEvidence(120),
	}
	s.applyCompression(context.Background(), &req)

	if req.CompressedContext != "condensed summary" {
		t.Errorf("CompressedContext = %q, want %q", req.CompressedContext, "condensed summary")
	}
	if len(model.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(model.CompleteCalls))
	}
	call := model.CompleteCalls[0].Req
	if !strings.Contains(call.Messages[0].Content, "how are these linked?") {
		t.Errorf("compression input missing question: %q", call.Messages[0].Content)
	}
	if !strings.Contains(call.Messages[0].Content, "BRCA1 (") {
		t.Errorf("compression input missing path, got %q", call.Messages[0].Content)
	}
}

func TestApplyCompression_FallsBackToTruncationOnFailure(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("provider down")}
	s := New(model, "primary")

	req := Request{Variant: VariantDeepThinkChat, Evidence: bigEvidence(120)}
	s.applyCompression(context.Background(), &req)

	if len(req.CompressedContext) != compressionThresholdChars {
		t.Errorf("CompressedContext length = %d, want %d (truncated fallback)", len(req.CompressedContext), compressionThresholdChars)
	}
}

func TestApplyCompression_UsesRAGChunksToo(t *testing.T) {
	chunks := make([]rag.Chunk, 50)
	for i := range chunks {
		chunks[i] = rag.Chunk{Text: strings.Repeat("y", 2000)}
	}
	if len(concatenatedContext(Request{RAGChunks: chunks})) <= compressionThresholdChars {
		t.Fatal("test fixture too small to exceed the compression threshold")
	}
}

func TestBuildPrompt_UsesCompressedContextWhenSet(t *testing.T) {
	p := buildPrompt(Request{SourceName: "A", TargetName: "B", CompressedContext: "condensed facts here"})
	if !strings.Contains(p, "condensed facts here") {
		t.Errorf("expected compressed context in prompt, got:\n%s", p)
	}
	if strings.Contains(p, "Primary evidence:") {
		t.Errorf("expected evidence section to be suppressed when compressed context is set, got:\n%s", p)
	}
}

func TestRun_ChatVariantInvokesCompressionWhenOverThreshold(t *testing.T) {
	model := &llmmock.Provider{
		StreamChunks:     []llm.Chunk{{Text: "explanation", FinishReason: "stop"}},
		CompleteResponse: &llm.CompletionResponse{Content: "condensed"},
	}
	s := New(model, "primary")

	events := drain(s.Run(context.Background(), Request{
		Variant:    VariantDeepThinkChat,
		SourceName: "A", TargetName: "B",
		Evidence: bigEvidence(120),
		Question: "why?",
	}))

	if len(model.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(model.CompleteCalls))
	}
	done := events[len(events)-1].Data.(DoneData)
	if done.Text != "explanation" {
		t.Errorf("done.Text = %q, want %q", done.Text, "explanation")
	}
}
