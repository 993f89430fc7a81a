// Package rag retrieves the literature chunks that ground an explanation:
// it embeds a query composed from the selected edge or node, ANN-searches
// the vector index, resolves candidate chunks from the warehouse, applies
// the co-mention filter, and reranks by a blend of vector similarity and
// lexical overlap.
package rag

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/biokg/explorer/pkg/provider/embeddings"
	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

const (
	// DefaultFetchK is how many ANN neighbors are requested before filtering
	// and reranking.
	DefaultFetchK = 150

	// DefaultTopK is how many reranked chunks are returned.
	DefaultTopK = 20

	// maxQueryEvidence bounds how many evidence snippets feed the query text.
	maxQueryEvidence = 3

	// maxCenterRelatedEdges bounds how many adjacent edges contribute
	// evidence when the selection is a center-node overview.
	maxCenterRelatedEdges = 6

	// maxCenterEvidencePerEdge bounds how many evidence items are pulled
	// from each contributing adjacent edge.
	maxCenterEvidencePerEdge = 2

	simWeight     = 0.75
	overlapWeight = 0.25
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// RelatedEdge is one adjacent edge contributing context and evidence to a
// center-node overview's query text.
type RelatedEdge struct {
	OtherName string
	Label     string
	Evidence  []types.Evidence
}

// Selection describes what the user picked: an edge between two entities, or
// a single entity (CenterOverview) summarized over its visible neighbors.
type Selection struct {
	SourceName string
	TargetName string

	// SourceID and TargetID identify the two endpoints for the co-mention
	// filter. Leave TargetID empty (or set CenterOverview) to skip it.
	SourceID string
	TargetID string

	Predicate string
	Label     string

	Evidence     []types.Evidence
	RelatedEdges []RelatedEdge

	// CenterOverview selects the whole-node summary: evidence is merged from
	// RelatedEdges instead of Evidence, and the co-mention filter is skipped.
	CenterOverview bool
}

// Chunk is a ranked retrieval result, resolved from the warehouse and scored
// against the query.
type Chunk struct {
	ChunkID  string
	DocID    string
	DocType  types.DocType
	SourceID string
	Text     string
	Score    float64
}

// Retriever finds chunks grounding a [Selection].
type Retriever struct {
	warehouse store.Warehouse
	vectors   store.VectorIndex
	embedder  embeddings.Provider
	fetchK    int
	topK      int
	logger    *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Retriever)

// WithFetchK overrides [DefaultFetchK].
func WithFetchK(n int) Option {
	return func(r *Retriever) { r.fetchK = n }
}

// WithTopK overrides [DefaultTopK].
func WithTopK(n int) Option {
	return func(r *Retriever) { r.topK = n }
}

// WithLogger overrides the default [slog.Default] logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// New builds a [Retriever]. embedder may itself be a resilience.FallbackGroup
// wrapping a primary and fallback embedding model; Retriever treats any
// failure from it the same as a transient vector-store failure.
func New(warehouse store.Warehouse, vectors store.VectorIndex, embedder embeddings.Provider, opts ...Option) *Retriever {
	r := &Retriever{
		warehouse: warehouse,
		vectors:   vectors,
		embedder:  embedder,
		fetchK:    DefaultFetchK,
		topK:      DefaultTopK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the top reranked chunks grounding sel. It never returns an
// error: a missing vector configuration, an embedding failure, or any
// transient store error all degrade to an empty result with a logged
// warning, per the retriever's failure contract.
func (r *Retriever) Retrieve(ctx context.Context, sel Selection) []Chunk {
	queryText := buildQueryText(sel)

	vector, err := r.embedder.Embed(ctx, queryText)
	if err != nil || len(vector) == 0 {
		r.logger.WarnContext(ctx, "rag: query embedding unavailable", "error", err)
		return nil
	}

	matches, err := r.vectors.Search(ctx, vector, r.fetchK)
	if err != nil {
		r.logger.WarnContext(ctx, "rag: vector search failed", "error", err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	distanceOf := make(map[string]float64, len(matches))
	chunkIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		distanceOf[m.ChunkID] = m.Distance
		chunkIDs = append(chunkIDs, m.ChunkID)
	}

	sources, err := r.warehouse.ResolveChunks(ctx, chunkIDs)
	if err != nil {
		r.logger.WarnContext(ctx, "rag: chunk resolution failed", "error", err)
		return nil
	}

	if !sel.CenterOverview && sel.TargetID != "" {
		eligible, err := r.warehouse.CoMentioningDocs(ctx, sel.SourceID, sel.TargetID)
		if err != nil {
			r.logger.WarnContext(ctx, "rag: co-mention lookup failed", "error", err)
			return nil
		}
		filtered := sources[:0]
		for _, s := range sources {
			if eligible[s.DocID] {
				filtered = append(filtered, s)
			}
		}
		sources = filtered
	}
	if len(sources) == 0 {
		return nil
	}

	queryTokens := tokenize(queryText)
	ranked := make([]Chunk, len(sources))
	for i, s := range sources {
		sim := 1.0 / (1.0 + maxFloat(distanceOf[s.ChunkID], 0))
		overlap := overlapRatio(s.Text, queryTokens)
		ranked[i] = Chunk{
			ChunkID:  s.ChunkID,
			DocID:    s.DocID,
			DocType:  s.DocType,
			SourceID: s.SourceID,
			Text:     s.Text,
			Score:    simWeight*sim + overlapWeight*overlap,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	return ranked
}

func overlapRatio(text string, queryTokens map[string]struct{}) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	chunkTokens := tokenize(text)
	matched := 0
	for tok := range chunkTokens {
		if _, ok := queryTokens[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// buildQueryText composes the text embedded for retrieval: source/target
// names, the relation predicate or label, and up to maxQueryEvidence
// evidence snippets. Center-node overviews additionally list the top
// adjacent relations and merge their evidence instead of sel.Evidence.
func buildQueryText(sel Selection) string {
	predicate := sel.Label
	if predicate == "" {
		predicate = sel.Predicate
	}

	lines := []string{
		"source: " + sel.SourceName,
		"target: " + sel.TargetName,
		"predicate: " + predicate,
	}

	evidenceSource := sel.Evidence
	if sel.CenterOverview {
		lines = append(lines, "relations:")
		related := sel.RelatedEdges
		if len(related) > maxCenterRelatedEdges {
			related = related[:maxCenterRelatedEdges]
		}
		if len(related) == 0 {
			lines = append(lines, "none")
		}
		for _, re := range related {
			lines = append(lines, sel.SourceName+" -> "+re.OtherName+": "+re.Label)
		}

		var merged []types.Evidence
		for _, re := range related {
			evs := re.Evidence
			if len(evs) > maxCenterEvidencePerEdge {
				evs = evs[:maxCenterEvidencePerEdge]
			}
			merged = append(merged, evs...)
		}
		evidenceSource = merged
	}

	lines = append(lines, "evidence:")
	added := 0
	for _, ev := range evidenceSource {
		if added >= maxQueryEvidence {
			break
		}
		snippet := strings.TrimSpace(ev.Snippet)
		if snippet == "" {
			continue
		}
		lines = append(lines, snippet)
		added++
	}

	return strings.Join(lines, "\n")
}
