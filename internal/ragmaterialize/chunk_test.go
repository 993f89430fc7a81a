package ragmaterialize

import (
	"strings"
	"testing"
)

func TestSplitSentences_SplitsOnTerminalPunctuationFollowedByWhitespace(t *testing.T) {
	got := SplitSentences("BRCA1 is a tumor suppressor. It interacts with RAD51! Does it bind p53?")
	want := []string{
		"BRCA1 is a tumor suppressor.",
		"It interacts with RAD51!",
		"Does it bind p53?",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentences_EmptyInputReturnsNil(t *testing.T) {
	if got := SplitSentences("   "); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestSplitSentences_PunctuationNotFollowedByWhitespaceDoesNotSplit(t *testing.T) {
	got := SplitSentences("The value is 3.5 units.")
	if len(got) != 1 {
		t.Fatalf("got %d sentences, want 1 (no split on 3.5): %v", len(got), got)
	}
}

func TestChunkDocument_ShortTextProducesSingleChunk(t *testing.T) {
	chunks := ChunkDocument("PMID:1", "paper", "short abstract text.", 1000, 100)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].ChunkID != "PMID:1#0" {
		t.Errorf("ChunkID = %q, want PMID:1#0", chunks[0].ChunkID)
	}
	if chunks[0].StartOffset != 0 || chunks[0].EndOffset != len("short abstract text.") {
		t.Errorf("offsets = [%d,%d]", chunks[0].StartOffset, chunks[0].EndOffset)
	}
}

func TestChunkDocument_EmptyTextReturnsNoChunks(t *testing.T) {
	if chunks := ChunkDocument("PMID:1", "paper", "   ", 100, 10); chunks != nil {
		t.Errorf("got %v, want nil", chunks)
	}
}

func TestChunkDocument_LongTextSplitsWithOverlap(t *testing.T) {
	sentences := make([]string, 20)
	for i := range sentences {
		sentences[i] = strings.Repeat("x", 8) + "."
	}
	text := strings.Join(sentences, " ")

	chunks := ChunkDocument("PMID:2", "paper", text, 40, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		wantID := "PMID:2#" + string(rune('0'+i))
		if i < 10 && c.ChunkID != wantID {
			t.Errorf("chunk[%d].ChunkID = %q, want %q", i, c.ChunkID, wantID)
		}
		if c.ChunkIndex != i {
			t.Errorf("chunk[%d].ChunkIndex = %d, want %d", i, c.ChunkIndex, i)
		}
	}
	// Every chunk after the first should open with the overlap tail of its
	// predecessor's text, since overlapChars > 0.
	for i := 1; i < len(chunks); i++ {
		if !strings.Contains(chunks[i].Text, "x") {
			t.Errorf("chunk[%d] text unexpectedly empty of content: %q", i, chunks[i].Text)
		}
	}
}

func TestChunkDocument_IsDeterministicAcrossRepeatedCalls(t *testing.T) {
	text := strings.Repeat("Sentence one. Sentence two. Sentence three. ", 20)
	a := ChunkDocument("PMID:3", "paper", text, 60, 15)
	b := ChunkDocument("PMID:3", "paper", text, 60, 15)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk[%d] differs across calls: %+v vs %+v", i, a[i], b[i])
		}
	}
}
