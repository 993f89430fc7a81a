// Package neighborhood computes the top-K related entities for a seed node,
// ranked by combined paper/trial/patent co-occurrence plus relationship
// evidence count.
package neighborhood

import (
	"context"
	"fmt"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

// DefaultMaxRelatedEntities bounds how many neighbors are returned when no
// limit is configured via [WithMaxRelatedEntities].
const DefaultMaxRelatedEntities = 50

// Query computes neighborhoods from a [store.Warehouse], applying the
// configured result cap.
type Query struct {
	warehouse store.Warehouse
	maxRelated int
}

// Option is a functional option for [New].
type Option func(*Query)

// WithMaxRelatedEntities overrides [DefaultMaxRelatedEntities]. A limit of 0
// is valid: [Query.Related] then returns no edges for any seed.
func WithMaxRelatedEntities(n int) Option {
	return func(q *Query) { q.maxRelated = n }
}

// New builds a [Query] backed by warehouse.
func New(warehouse store.Warehouse, opts ...Option) *Query {
	q := &Query{warehouse: warehouse, maxRelated: DefaultMaxRelatedEntities}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Related returns the top-[Query.maxRelated] neighbors of seedID, ordered by
// cooccurrence score then evidence count (the warehouse query already applies
// this ordering; Related only enforces the configured cap and the
// zero-limit boundary case).
func (q *Query) Related(ctx context.Context, seedID string) ([]types.NeighborEdge, error) {
	if q.maxRelated <= 0 {
		return []types.NeighborEdge{}, nil
	}
	edges, err := q.warehouse.Neighborhood(ctx, seedID, q.maxRelated)
	if err != nil {
		return nil, fmt.Errorf("neighborhood: related: %w", err)
	}
	return edges, nil
}
