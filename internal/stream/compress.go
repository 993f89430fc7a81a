package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/biokg/explorer/pkg/provider/llm"
	"github.com/biokg/explorer/pkg/types"
)

const (
	// compressionThresholdChars is the concatenated-context length above
	// which the chat variant compresses instead of sending everything to
	// the model as-is.
	compressionThresholdChars = 100000
	// compressionWindowChars is how much of the concatenated context (from
	// the start) is handed to the compression call.
	compressionWindowChars = 80000
	// compressedBudgetChars is the target length requested of the
	// compression call's output.
	compressedBudgetChars = 6000
)

const compressionPrompt = `You compress biomedical paper context for a downstream explanation model.
Given a researcher's question, the exploration path, and a block of raw evidence/chunk text, produce a
dense summary that keeps every fact relevant to the question and path, preserving PMID/DOI/source
identifiers verbatim so later citation matching still works. Drop redundant or irrelevant passages.
Do not add facts that are not present in the input.`

// concatenatedContext joins every evidence snippet and RAG chunk's full text
// in order, the same "paper context" the prompt eventually draws its
// evidence and RAG sections from, but untruncated by the per-section line
// caps buildPrompt applies.
func concatenatedContext(req Request) string {
	var sb strings.Builder
	for _, ev := range req.Evidence {
		sb.WriteString(ev.Snippet)
		sb.WriteString("\n")
	}
	for _, c := range req.RAGChunks {
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// applyCompression fills req.CompressedContext when the chat variant's raw
// evidence/chunk text exceeds compressionThresholdChars: a single call to the
// primary model compresses the first compressionWindowChars, focused by
// req.Question and the exploration path. A failed compression call falls
// back to plain truncation at compressionThresholdChars rather than sending
// nothing, per the chat variant's degrade-gracefully contract.
func (s *Streamer) applyCompression(ctx context.Context, req *Request) {
	raw := concatenatedContext(*req)
	if len(raw) <= compressionThresholdChars {
		return
	}

	primary := s.candidates[0].model
	compressed, err := compressContext(ctx, primary, req.Question, pathLine(req.Path), raw)
	if err != nil {
		s.logger.WarnContext(ctx, "stream: context compression failed, falling back to truncation", "error", err)
		req.CompressedContext = raw[:compressionThresholdChars]
		return
	}
	req.CompressedContext = compressed
}

// compressContext asks model to compress the first compressionWindowChars of
// text down to roughly compressedBudgetChars, focused by question and path.
func compressContext(ctx context.Context, model llm.Provider, question, path, text string) (string, error) {
	window := text
	if len(window) > compressionWindowChars {
		window = window[:compressionWindowChars]
	}

	input := fmt.Sprintf("Question: %s\nPath: %s\n\nBudget: ~%d characters.\n\nContext:\n%s", question, path, compressedBudgetChars, window)

	resp, err := model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: compressionPrompt,
		Messages:     []types.Message{{Role: "user", Content: input}},
		Temperature:  0.1,
		MaxTokens:    2000,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
