package reviewer

import (
	"context"
	"errors"
	"testing"

	"github.com/biokg/explorer/pkg/provider/llm"
	llmmock "github.com/biokg/explorer/pkg/provider/llm/mock"
)

func TestReview_ParsesStructuredReply(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: "CONFIDENCE: 8/10\nREASONING: Claims map to the cited PMIDs.",
	}}
	r := New(model)

	score, reasoning := r.Review(context.Background(), "why?", "ctx", "resp")
	if score != 8 {
		t.Errorf("score = %d, want 8", score)
	}
	if reasoning != "Claims map to the cited PMIDs." {
		t.Errorf("reasoning = %q", reasoning)
	}
}

func TestReview_FallsBackToBareFraction(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "I'd say 6/10 overall."}}
	r := New(model)

	score, _ := r.Review(context.Background(), "q", "c", "r")
	if score != 6 {
		t.Errorf("score = %d, want 6", score)
	}
}

func TestReview_ClampsOutOfRangeScore(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "CONFIDENCE: 15/10\nREASONING: too high"}}
	r := New(model)

	score, _ := r.Review(context.Background(), "q", "c", "r")
	if score != 10 {
		t.Errorf("score = %d, want clamped to 10", score)
	}
}

func TestReview_TruncatesLongReasoning(t *testing.T) {
	long := ""
	for i := 0; i < 400; i++ {
		long += "x"
	}
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "CONFIDENCE: 5/10\nREASONING: " + long}}
	r := New(model)

	_, reasoning := r.Review(context.Background(), "q", "c", "r")
	if len(reasoning) != 300 {
		t.Errorf("len(reasoning) = %d, want 300", len(reasoning))
	}
}

func TestReview_ModelErrorReturnsZeroValue(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("boom")}
	r := New(model)

	score, reasoning := r.Review(context.Background(), "q", "c", "r")
	if score != 0 || reasoning != "" {
		t.Errorf("score=%d reasoning=%q, want 0/\"\"", score, reasoning)
	}
}

func TestReview_UnparsableReplyReturnsZeroValue(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "I'm not sure."}}
	r := New(model)

	score, reasoning := r.Review(context.Background(), "q", "c", "r")
	if score != 0 || reasoning != "" {
		t.Errorf("score=%d reasoning=%q, want 0/\"\"", score, reasoning)
	}
}
