// Package evidence batch-enriches edges with supporting PMIDs and PMIDs with
// paper title/year, for attachment to a [types.GraphPayload] before it is
// returned to a client.
package evidence

import (
	"context"
	"fmt"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

// DefaultPMIDsPerEdge caps how many PMIDs [Fetcher.EdgePMIDs] returns per edge.
const DefaultPMIDsPerEdge = 5

// Fetcher enriches path segments and PMIDs from a [store.Warehouse].
type Fetcher struct {
	warehouse   store.Warehouse
	pmidsPerEdge int
}

// Option is a functional option for [New].
type Option func(*Fetcher)

// WithPMIDsPerEdge overrides [DefaultPMIDsPerEdge].
func WithPMIDsPerEdge(n int) Option {
	return func(f *Fetcher) { f.pmidsPerEdge = n }
}

// New builds a [Fetcher] backed by warehouse.
func New(warehouse store.Warehouse, opts ...Option) *Fetcher {
	f := &Fetcher{warehouse: warehouse, pmidsPerEdge: DefaultPMIDsPerEdge}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PaperDetails batch-resolves pmids to title/year. Non-integer PMIDs are
// silently skipped by the warehouse; missing PMIDs produce no entry and
// callers must tolerate that.
func (f *Fetcher) PaperDetails(ctx context.Context, pmids []string) (map[string]types.PaperDetail, error) {
	details, err := f.warehouse.FetchPaperDetails(ctx, pmids)
	if err != nil {
		return nil, fmt.Errorf("evidence: paper details: %w", err)
	}
	return details, nil
}

// EdgePMIDs resolves, for each path segment, up to the configured number of
// PMIDs supporting that edge. Results are keyed "{from}--{to}--{relation_type}"
// in the direction the segment was given in, regardless of which ordering the
// underlying store matched against.
func (f *Fetcher) EdgePMIDs(ctx context.Context, segments []types.PathSegment) (map[string][]string, error) {
	out, err := f.warehouse.FetchEdgePMIDs(ctx, segments, f.pmidsPerEdge)
	if err != nil {
		return nil, fmt.Errorf("evidence: edge pmids: %w", err)
	}
	return out, nil
}
