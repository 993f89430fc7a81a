package postgres

import (
	"context"
	"fmt"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

// TryDirectPath implements [store.GraphStore]. It attempts a single recursive
// query treating relationships as undirected, mirroring the database's
// ANY-SHORTEST operator where one is available: a bounded-depth search that
// returns the first path found ordered by ascending depth.
//
// found is false when no path of length 1..maxHops exists, signalling the
// caller (internal/pathengine) to fall back to bidirectional BFS via
// [Store.BatchNeighbors].
func (s *Store) TryDirectPath(ctx context.Context, startID, endID string, maxHops int) ([]types.PathSegment, bool, error) {
	if startID == endID {
		return []types.PathSegment{}, true, nil
	}

	const q = `
		WITH RECURSIVE edges AS (
		    SELECT entity_id1 AS src, entity_id2 AS dst, relation_type FROM relationships
		    UNION
		    SELECT entity_id2 AS src, entity_id1 AS dst, relation_type FROM relationships
		),
		path_search AS (
		    SELECT id, ARRAY[id]::text[] AS path, ARRAY[]::text[] AS rel_types, 0 AS depth
		    FROM   entities
		    WHERE  id = $1

		    UNION ALL

		    SELECT e.dst, ps.path || e.dst, ps.rel_types || e.relation_type, ps.depth + 1
		    FROM   path_search ps
		    JOIN   edges e ON e.src = ps.id
		    WHERE  ps.depth < $3
		      AND  NOT (e.dst = ANY(ps.path))
		)
		SELECT path, rel_types
		FROM   path_search
		WHERE  id = $2
		ORDER  BY depth
		LIMIT  1`

	row := s.pool.QueryRow(ctx, q, startID, endID, maxHops)

	var path, relTypes []string
	if err := row.Scan(&path, &relTypes); err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("graph store: try direct path: %w", err)
	}

	segments := make([]types.PathSegment, 0, len(relTypes))
	for i, relType := range relTypes {
		segments = append(segments, types.PathSegment{
			From:         path[i],
			To:           path[i+1],
			RelationType: relType,
		})
	}
	return segments, true, nil
}

// BatchNeighbors implements [store.GraphStore]. It fetches 1-hop undirected
// neighbors for every id in a single round trip, used by the bidirectional
// BFS frontier expansion in internal/pathengine.
func (s *Store) BatchNeighbors(ctx context.Context, ids []string) (map[string][]store.NeighborHop, error) {
	out := make(map[string][]store.NeighborHop, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const q = `
		SELECT entity_id1 AS src, entity_id2 AS nbr, relation_type FROM relationships WHERE entity_id1 = ANY($1)
		UNION ALL
		SELECT entity_id2 AS src, entity_id1 AS nbr, relation_type FROM relationships WHERE entity_id2 = ANY($1)`

	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("graph store: batch neighbors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, nbr, relType string
		if err := rows.Scan(&src, &nbr, &relType); err != nil {
			return nil, fmt.Errorf("graph store: batch neighbors: scan: %w", err)
		}
		out[src] = append(out[src], store.NeighborHop{NeighborID: nbr, RelationType: relType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph store: batch neighbors: rows: %w", err)
	}
	return out, nil
}
