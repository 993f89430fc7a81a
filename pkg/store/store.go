// Package store defines the storage interfaces the explorer backend depends
// on, mirroring the layered design of a knowledge-graph memory system:
//
//   - [Warehouse]: the typed-row source of entities, relationships, and the
//     documents (papers/trials/patents) that back co-occurrence and evidence
//     queries. Analogous to an L1/L3 combined store.
//   - [GraphStore]: the graph database used by the Path Engine for the
//     ANY-SHORTEST fast path and bidirectional-BFS neighbor expansion.
//   - [VectorIndex]: the ANN index over chunk embeddings used by the RAG
//     Retriever.
//   - [SnapshotStore]: opaque, process-scoped persistence for shared graph
//     snapshots (out of scope per spec.md — treated as a key/value box).
//
// All interfaces are public so alternative backends (Postgres/pgvector,
// Spanner, an in-memory fake) can be supplied without depending on explorer
// internals. Every implementation must be safe for concurrent use.
package store

import (
	"context"

	"github.com/biokg/explorer/pkg/types"
)

// ChunkSource is the warehouse-side record backing a chunk id returned by the
// vector index: enough to apply the co-mention filter and build a Chunk.
type ChunkSource struct {
	ChunkID  string
	DocID    string
	DocType  types.DocType
	Text     string
	SourceID string
}

// ChunkMatch pairs a chunk id with its vector-space distance from a query
// embedding, as returned by [VectorIndex.Search]. Lower Distance is closer.
type ChunkMatch struct {
	ChunkID  string
	Distance float64
}

// NeighborHop is a single 1-hop edge discovered by [GraphStore.BatchNeighbors],
// keyed by the source node it was expanded from.
type NeighborHop struct {
	NeighborID   string
	RelationType string
}

// ─────────────────────────────────────────────────────────────────────────────
// Warehouse
// ─────────────────────────────────────────────────────────────────────────────

// Warehouse is the typed-row source backing entity lookup, neighborhood
// ranking, evidence enrichment, and RAG chunk/doc resolution.
//
// Implementations must be safe for concurrent use.
type Warehouse interface {
	// GetEntity returns the canonical entity for id, or (nil, nil) if absent.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// SearchEntities returns candidate entities whose mention or id contains
	// query (case-insensitive). When entityType is non-empty it additionally
	// filters by type. Ranking into exact/prefix/substring tiers is the
	// caller's responsibility (see internal/entitylookup); this method only
	// narrows the candidate set.
	SearchEntities(ctx context.Context, query string, entityType types.EntityType) ([]types.Entity, error)

	// Neighborhood returns the top-limit related entities for seedID, ranked
	// by combined co-occurrence score then evidence count, collapsed by
	// (other, relation_type, direction) with PMIDs capped at 5 per edge.
	Neighborhood(ctx context.Context, seedID string, limit int) ([]types.NeighborEdge, error)

	// FetchPaperDetails batch-resolves PMIDs to title/year. Non-integer PMIDs
	// are silently skipped; missing PMIDs produce no entry in the result.
	FetchPaperDetails(ctx context.Context, pmids []string) (map[string]types.PaperDetail, error)

	// FetchEdgePMIDs resolves, for each path segment, up to cap PMIDs
	// supporting that edge, checking both (from,to) and (to,from) orderings.
	// Results are keyed "{from}--{to}--{relation_type}" in the direction
	// originally requested.
	FetchEdgePMIDs(ctx context.Context, segments []types.PathSegment, cap int) (map[string][]string, error)

	// ResolveChunks returns the warehouse-side record for each chunk id, used
	// to apply the co-mention filter and to build the final Chunk value.
	// Chunk ids with no matching row are silently omitted.
	ResolveChunks(ctx context.Context, chunkIDs []string) ([]ChunkSource, error)

	// CoMentioningDocs returns the set of doc ids in which both entityA and
	// entityB are mentioned (per the DocEntity join), for the RAG co-mention
	// filter.
	CoMentioningDocs(ctx context.Context, entityA, entityB string) (map[string]bool, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// GraphStore
// ─────────────────────────────────────────────────────────────────────────────

// GraphStore is the graph database backing the Path Engine (C4).
//
// Implementations must be safe for concurrent use.
type GraphStore interface {
	// TryDirectPath attempts a single ANY-SHORTEST query of length 1..maxHops,
	// treating edges as undirected. found is false when the store lacks the
	// operator or no path of that length exists; callers fall back to
	// bidirectional BFS via BatchNeighbors.
	TryDirectPath(ctx context.Context, startID, endID string, maxHops int) (segments []types.PathSegment, found bool, err error)

	// BatchNeighbors returns, for each id in ids, its 1-hop neighbors. The
	// input slice is used as given (callers are responsible for any frontier
	// cap truncation before calling, per spec §4.4).
	BatchNeighbors(ctx context.Context, ids []string) (map[string][]NeighborHop, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// VectorIndex
// ─────────────────────────────────────────────────────────────────────────────

// VectorIndex is the ANN index over chunk embeddings backing the RAG
// Retriever (C7).
//
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Search returns the topK chunk ids whose embeddings are closest to
	// embedding, ordered by ascending distance. Returns an empty (non-nil)
	// slice, never an error, when the index is unconfigured — callers treat
	// that the same as a transient retrieval failure (spec §4.7).
	Search(ctx context.Context, embedding []float32, topK int) ([]ChunkMatch, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// SnapshotStore
// ─────────────────────────────────────────────────────────────────────────────

// SnapshotStore is an opaque, process-scoped key/value box for shared graph
// snapshots, keyed by a 10-hex-char id (spec §5, §6). Treated as an external
// collaborator — this repo only needs a minimal in-memory implementation.
//
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Put stores payload and returns a freshly generated 10-hex-char id.
	Put(ctx context.Context, payload types.GraphPayload) (id string, err error)

	// Get returns the payload stored under id, or ok=false if absent.
	Get(ctx context.Context, id string) (payload types.GraphPayload, ok bool, err error)
}
