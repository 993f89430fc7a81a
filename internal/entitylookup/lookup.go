// Package entitylookup resolves a free-text name or canonical id to a single
// entity in the knowledge graph.
package entitylookup

import (
	"context"
	"sort"
	"strings"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

// tier ranks how a candidate matched the query; lower is better.
type tier int

const (
	tierExact tier = iota
	tierPrefix
	tierSubstring
	tierIDSubstring
	tierOther
)

// Lookup resolves entity names and ids against a [store.Warehouse].
type Lookup struct {
	warehouse store.Warehouse
}

// New builds a [Lookup] backed by warehouse.
func New(warehouse store.Warehouse) *Lookup {
	return &Lookup{warehouse: warehouse}
}

// Find resolves query to the best-matching entity. When entityType is
// non-empty and the filtered search yields no candidates, it retries once
// without the type filter. Returns (nil, nil) when nothing matches.
func (l *Lookup) Find(ctx context.Context, query string, entityType types.EntityType) (*types.Entity, error) {
	candidates, err := l.warehouse.SearchEntities(ctx, query, entityType)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && entityType != "" {
		candidates, err = l.warehouse.SearchEntities(ctx, query, "")
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := rank(query, candidates)
	return &best, nil
}

// FindByID returns the canonical entity for id, or (nil, nil) if absent.
// Unlike Find, there is no fallback retry: an id is either present or not.
func (l *Lookup) FindByID(ctx context.Context, id string) (*types.Entity, error) {
	return l.warehouse.GetEntity(ctx, id)
}

// rank orders candidates by (exact > prefix > substring > id-substring >
// other) then by shorter mention, and returns the best match.
func rank(query string, candidates []types.Entity) types.Entity {
	q := strings.ToLower(strings.TrimSpace(query))

	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := classify(q, candidates[i]), classify(q, candidates[j])
		if ti != tj {
			return ti < tj
		}
		return len(candidates[i].Mention) < len(candidates[j].Mention)
	})
	return candidates[0]
}

// classify determines which match tier a candidate falls into relative to
// the normalized query.
func classify(q string, e types.Entity) tier {
	mention := strings.ToLower(e.Mention)
	switch {
	case mention == q:
		return tierExact
	case strings.HasPrefix(mention, q):
		return tierPrefix
	case strings.Contains(mention, q):
		return tierSubstring
	case strings.Contains(strings.ToLower(e.ID), q):
		return tierIDSubstring
	default:
		return tierOther
	}
}
