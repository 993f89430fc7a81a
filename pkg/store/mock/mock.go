// Package mock provides in-memory test doubles for the storage interfaces
// defined in [github.com/biokg/explorer/pkg/store].
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	wh := &mock.Warehouse{}
//	wh.GetEntityResult = &types.Entity{ID: "gene:BRCA1", Type: types.EntityGene}
//
//	// inject wh into the system under test …
//
//	if got := wh.CallCount("GetEntity"); got != 1 {
//	    t.Errorf("expected 1 GetEntity call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// ─────────────────────────────────────────────────────────────────────────────
// Warehouse mock
// ─────────────────────────────────────────────────────────────────────────────

// Warehouse is a configurable test double for [store.Warehouse].
type Warehouse struct {
	mu    sync.Mutex
	calls []Call

	GetEntityResult *types.Entity
	GetEntityErr    error

	// SearchEntitiesResult is returned by [Warehouse.SearchEntities] for
	// every call, regardless of query/entityType. Use SearchEntitiesFunc for
	// per-call control (e.g. to simulate the type-filter retry miss).
	SearchEntitiesResult []types.Entity
	SearchEntitiesErr    error
	SearchEntitiesFunc   func(query string, entityType types.EntityType) ([]types.Entity, error)

	NeighborhoodResult []types.NeighborEdge
	NeighborhoodErr    error

	FetchPaperDetailsResult map[string]types.PaperDetail
	FetchPaperDetailsErr    error

	FetchEdgePMIDsResult map[string][]string
	FetchEdgePMIDsErr    error

	ResolveChunksResult []store.ChunkSource
	ResolveChunksErr    error

	CoMentioningDocsResult map[string]bool
	CoMentioningDocsErr    error
}

// Calls returns all recorded calls in order.
func (m *Warehouse) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (m *Warehouse) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Warehouse) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Reset clears the recorded call log. Configured results/errs are untouched.
func (m *Warehouse) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Warehouse) GetEntity(_ context.Context, id string) (*types.Entity, error) {
	m.record("GetEntity", id)
	return m.GetEntityResult, m.GetEntityErr
}

func (m *Warehouse) SearchEntities(_ context.Context, query string, entityType types.EntityType) ([]types.Entity, error) {
	m.record("SearchEntities", query, entityType)
	if m.SearchEntitiesFunc != nil {
		return m.SearchEntitiesFunc(query, entityType)
	}
	return m.SearchEntitiesResult, m.SearchEntitiesErr
}

func (m *Warehouse) Neighborhood(_ context.Context, seedID string, limit int) ([]types.NeighborEdge, error) {
	m.record("Neighborhood", seedID, limit)
	return m.NeighborhoodResult, m.NeighborhoodErr
}

func (m *Warehouse) FetchPaperDetails(_ context.Context, pmids []string) (map[string]types.PaperDetail, error) {
	m.record("FetchPaperDetails", pmids)
	return m.FetchPaperDetailsResult, m.FetchPaperDetailsErr
}

func (m *Warehouse) FetchEdgePMIDs(_ context.Context, segments []types.PathSegment, cap int) (map[string][]string, error) {
	m.record("FetchEdgePMIDs", segments, cap)
	return m.FetchEdgePMIDsResult, m.FetchEdgePMIDsErr
}

func (m *Warehouse) ResolveChunks(_ context.Context, chunkIDs []string) ([]store.ChunkSource, error) {
	m.record("ResolveChunks", chunkIDs)
	return m.ResolveChunksResult, m.ResolveChunksErr
}

func (m *Warehouse) CoMentioningDocs(_ context.Context, entityA, entityB string) (map[string]bool, error) {
	m.record("CoMentioningDocs", entityA, entityB)
	return m.CoMentioningDocsResult, m.CoMentioningDocsErr
}

// ─────────────────────────────────────────────────────────────────────────────
// GraphStore mock
// ─────────────────────────────────────────────────────────────────────────────

// GraphStore is a configurable test double for [store.GraphStore].
type GraphStore struct {
	mu    sync.Mutex
	calls []Call

	TryDirectPathSegments []types.PathSegment
	TryDirectPathFound    bool
	TryDirectPathErr      error

	// BatchNeighborsResult is returned for every call when BatchNeighborsFunc
	// is nil. Use BatchNeighborsFunc for per-call control (e.g. to simulate
	// successive BFS expansion levels returning different neighbor sets).
	BatchNeighborsResult map[string][]store.NeighborHop
	BatchNeighborsErr    error
	BatchNeighborsFunc   func(ids []string) (map[string][]store.NeighborHop, error)
}

func (m *GraphStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *GraphStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *GraphStore) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Reset clears the recorded call log. Configured results/errs are untouched.
func (m *GraphStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *GraphStore) TryDirectPath(_ context.Context, startID, endID string, maxHops int) ([]types.PathSegment, bool, error) {
	m.record("TryDirectPath", startID, endID, maxHops)
	return m.TryDirectPathSegments, m.TryDirectPathFound, m.TryDirectPathErr
}

func (m *GraphStore) BatchNeighbors(_ context.Context, ids []string) (map[string][]store.NeighborHop, error) {
	m.record("BatchNeighbors", ids)
	if m.BatchNeighborsFunc != nil {
		return m.BatchNeighborsFunc(ids)
	}
	return m.BatchNeighborsResult, m.BatchNeighborsErr
}

// ─────────────────────────────────────────────────────────────────────────────
// VectorIndex mock
// ─────────────────────────────────────────────────────────────────────────────

// VectorIndex is a configurable test double for [store.VectorIndex].
type VectorIndex struct {
	mu    sync.Mutex
	calls []Call

	SearchResult []store.ChunkMatch
	SearchErr    error
}

func (m *VectorIndex) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *VectorIndex) Search(_ context.Context, embedding []float32, topK int) ([]store.ChunkMatch, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{embedding, topK}})
	m.mu.Unlock()
	return m.SearchResult, m.SearchErr
}

// Reset clears the recorded call log. Configured results/errs are untouched.
func (m *VectorIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SnapshotStore mock
// ─────────────────────────────────────────────────────────────────────────────

// SnapshotStore is an in-memory test double for [store.SnapshotStore].
type SnapshotStore struct {
	mu      sync.Mutex
	nextID  int
	payload map[string]types.GraphPayload
}

func (m *SnapshotStore) Put(_ context.Context, payload types.GraphPayload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		m.payload = make(map[string]types.GraphPayload)
	}
	m.nextID++
	id := idFor(m.nextID)
	m.payload[id] = payload
	return id, nil
}

func (m *SnapshotStore) Get(_ context.Context, id string) (types.GraphPayload, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payload[id]
	return p, ok, nil
}

func idFor(n int) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 10)
	for i := range b {
		b[i] = hex[(n>>(i*4))&0xf]
	}
	return string(b)
}

// Ensure the mocks implement their respective interfaces at compile time.
var (
	_ store.Warehouse     = (*Warehouse)(nil)
	_ store.GraphStore    = (*GraphStore)(nil)
	_ store.VectorIndex   = (*VectorIndex)(nil)
	_ store.SnapshotStore = (*SnapshotStore)(nil)
)
