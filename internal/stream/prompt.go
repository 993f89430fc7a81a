package stream

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/biokg/explorer/internal/rag"
	"github.com/biokg/explorer/pkg/types"
)

const (
	maxRelationLines = 10
	maxEvidenceLines = 8
	maxRAGLines      = 8
	ragSnippetLen    = 320
	historySummaryLen = 240
)

var doiPattern = regexp.MustCompile(`DOI:\s*(10\.\S+)`)

// chunkDescriptors trims a rag.Chunk slice down to the fields the context
// event exposes to the client; the chunk text and score stay server-side.
func chunkDescriptors(chunks []rag.Chunk) []ChunkDescriptor {
	descs := make([]ChunkDescriptor, len(chunks))
	for i, c := range chunks {
		descs[i] = ChunkDescriptor{ChunkID: c.ChunkID, DocID: c.DocID, SourceID: c.SourceID, DocType: c.DocType}
	}
	return descs
}

// normalizeCitations dedupes citations across three sources, in priority
// order: direct evidence PMIDs, RAG chunk source/doc ids, then DOIs mined
// out of any external contribution text. Earlier sources win ties.
func normalizeCitations(evidence []types.Evidence, chunks []rag.Chunk, external string) []types.Citation {
	var out []types.Citation
	seen := map[string]bool{}

	for _, ev := range evidence {
		if ev.PMID == "" {
			continue
		}
		id := "PMID:" + ev.PMID
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, types.Citation{ID: id, Kind: "evidence", Title: ev.Snippet, Snippet: ev.Snippet})
	}

	for _, c := range chunks {
		key := c.SourceID
		if key == "" {
			key = c.DocID
		}
		if key == "" {
			continue
		}
		id := key
		if !strings.Contains(id, ":") {
			id = "DOC:" + id
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, types.Citation{ID: id, Kind: "rag", Snippet: truncate(c.Text, ragSnippetLen)})
	}

	for _, m := range doiPattern.FindAllStringSubmatch(external, -1) {
		id := "DOI:" + m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, types.Citation{ID: id, Kind: "external", URL: "https://doi.org/" + m[1]})
	}

	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// buildPrompt assembles the system prompt for req: hard grounding rules, a
// selected-connection summary, and whichever context sections req has data
// for, ending with a selection-type-dependent instruction.
func buildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("You are explaining a biomedical knowledge-graph connection to a researcher.\n\n")
	sb.WriteString("Hard rules:\n")
	sb.WriteString("1. Never invent a fact that is not present in the context below.\n")
	sb.WriteString("2. Every substantive claim must map to one of the provided citation ids, referenced inline as [n].\n")
	sb.WriteString("3. If evidence is weak or absent for a claim, say so explicitly rather than omitting it.\n")
	sb.WriteString(fmt.Sprintf("4. Write %s.\n\n", req.Variant.wordBudget()))

	sb.WriteString("Selected connection:\n")
	sb.WriteString("- source: " + req.SourceName + "\n")
	sb.WriteString("- target: " + req.TargetName + "\n")
	if req.Predicate != "" {
		sb.WriteString("- predicate: " + req.Predicate + "\n")
	}
	sb.WriteString("- selection_type: " + req.SelectionType + "\n")
	sb.WriteString(fmt.Sprintf("- center_overview: %v\n", req.CenterOverview))
	sb.WriteString(fmt.Sprintf("- cooccurrence: %d papers, %d trials, %d patents\n\n", req.PaperCount, req.TrialCount, req.PatentCount))

	if req.CenterOverview {
		if lines := relationLines(req.RelatedEdges); lines != "" {
			sb.WriteString("Visible center-node relations:\n")
			sb.WriteString(lines)
			sb.WriteString("\n")
		}
	}

	if req.CompressedContext != "" {
		sb.WriteString("Compressed supporting context (evidence and RAG chunks merged and condensed, focused on the question and path below):\n")
		sb.WriteString(req.CompressedContext)
		sb.WriteString("\n\n")
	} else {
		if lines := evidenceLines(req.Evidence); lines != "" {
			sb.WriteString("Primary evidence:\n")
			sb.WriteString(lines)
			sb.WriteString("\n")
		}

		if lines := ragLines(req.RAGChunks); lines != "" {
			sb.WriteString("RAG supporting context:\n")
			sb.WriteString(lines)
			sb.WriteString("\n")
		}
	}

	if req.External != "" {
		sb.WriteString("ORKG scholarly contributions:\n")
		sb.WriteString(req.External)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Exploration path: ")
	sb.WriteString(pathLine(req.Path))
	sb.WriteString("\n\n")

	if lines := historyLines(req.History); lines != "" {
		sb.WriteString("Previous session summaries:\n")
		sb.WriteString(lines)
		sb.WriteString("\n")
	}

	if req.Variant == VariantDeepThinkChat && req.Question != "" {
		sb.WriteString("Researcher question: " + req.Question + "\n\n")
	}

	sb.WriteString(selectionInstruction(req))
	return sb.String()
}

func relationLines(edges []RelatedEdgeSummary) string {
	if len(edges) > maxRelationLines {
		edges = edges[:maxRelationLines]
	}
	var sb strings.Builder
	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("- %s -> %s: %s (score=%.2f)\n", e.SourceName, e.OtherName, e.Label, e.Score))
	}
	return sb.String()
}

func evidenceLines(evidence []types.Evidence) string {
	if len(evidence) > maxEvidenceLines {
		evidence = evidence[:maxEvidenceLines]
	}
	var sb strings.Builder
	for _, ev := range evidence {
		sb.WriteString(fmt.Sprintf("- PMID:%s (%d): %s\n", ev.PMID, ev.PubYear, ev.Snippet))
	}
	return sb.String()
}

func ragLines(chunks []rag.Chunk) string {
	if len(chunks) > maxRAGLines {
		chunks = chunks[:maxRAGLines]
	}
	var sb strings.Builder
	for _, c := range chunks {
		id := c.SourceID
		if id == "" {
			id = c.DocID
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", id, truncate(c.Text, ragSnippetLen)))
	}
	return sb.String()
}

func pathLine(path []PathNode) string {
	if len(path) == 0 {
		return "direct query"
	}
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = fmt.Sprintf("%s (%s)", n.Name, n.Type)
	}
	return strings.Join(parts, " → ")
}

func historyLines(history []HistoryEntry) string {
	var sb strings.Builder
	for _, h := range history {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", h.SelectionKey, truncate(h.Summary, historySummaryLen)))
	}
	return sb.String()
}

func selectionInstruction(req Request) string {
	switch {
	case len(req.Path) >= 2:
		return "Explain the full multi-hop exploration path above, describing how each step connects to the next."
	case req.CenterOverview:
		return "Explain how the center node is related to all currently visible connected nodes, grouping related relations where it helps clarity."
	default:
		return "Explain why this specific selected connection exists."
	}
}
