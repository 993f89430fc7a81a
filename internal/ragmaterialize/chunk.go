// Package ragmaterialize reconstructs chunk text for a set of precomputed
// embedding shards and materializes the resulting embeddings and doc-entity
// tables in the warehouse.
package ragmaterialize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/biokg/explorer/pkg/types"
)

// SplitSentences splits text on whitespace runs immediately following a
// sentence-ending punctuation mark ('.', '!', '?'), trimming each resulting
// sentence. Empty sentences are dropped.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var out []string
	start := 0

	i := 0
	for i < len(runes) {
		c := runes[i]
		if (c == '.' || c == '!' || c == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			start = j
			i = j
			continue
		}
		i++
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ChunkDocument splits text at sentence boundaries into chunks of about
// maxChars characters, overlapping consecutive chunks by up to overlapChars
// characters of trailing context. Sentences are never split, so a chunk can
// exceed maxChars when one sentence plus the carried overlap is longer. Given identical (text, maxChars, overlapChars), it must
// produce byte-identical chunk ids and texts on every call: this is the
// invariant the RAG materializer relies on to reconstruct chunk text that
// matches the text used when embeddings were originally computed.
func ChunkDocument(docID string, docType types.DocType, text string, maxChars, overlapChars int) []types.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return []types.Chunk{{
			ChunkID: fmt.Sprintf("%s#0", docID), DocID: docID, DocType: docType,
			ChunkIndex: 0, Text: text, StartOffset: 0, EndOffset: utf8.RuneCountInString(text),
		}}
	}

	sentences := SplitSentences(text)
	var chunks []types.Chunk
	cur := ""
	start := 0
	idx := 0

	emit := func(s string, end int) {
		chunks = append(chunks, types.Chunk{
			ChunkID: fmt.Sprintf("%s#%d", docID, idx), DocID: docID, DocType: docType,
			ChunkIndex: idx, Text: s, StartOffset: start, EndOffset: end,
		})
		idx++
	}

	for _, sent := range sentences {
		candidate := strings.TrimSpace(cur + " " + sent)
		if cur != "" && utf8.RuneCountInString(candidate) > maxChars {
			curRunes := []rune(cur)
			end := start + len(curRunes)
			emit(cur, end)

			overlapStart := len(curRunes) - overlapChars
			if overlapStart < 0 {
				overlapStart = 0
			}
			overlap := string(curRunes[overlapStart:])
			start = end - utf8.RuneCountInString(overlap)
			if start < 0 {
				start = 0
			}
			cur = strings.TrimSpace(overlap + " " + sent)
		} else {
			cur = candidate
		}
	}
	if cur != "" {
		end := start + utf8.RuneCountInString(cur)
		emit(cur, end)
	}

	return chunks
}
