package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

// GetEntity implements [store.Warehouse]. It retrieves an entity by ID,
// returning (nil, nil) when it does not exist.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	const q = `SELECT id, type, mention FROM entities WHERE id = $1`

	row := s.pool.QueryRow(ctx, q, id)
	var e types.Entity
	if err := row.Scan(&e.ID, &e.Type, &e.Mention); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("warehouse: get entity: %w", err)
	}
	return &e, nil
}

// SearchEntities implements [store.Warehouse]. It returns candidates whose
// mention or id contains query (case-insensitive), optionally narrowed by
// entityType. Ranking into exact/prefix/substring tiers happens in
// internal/entitylookup, not here.
func (s *Store) SearchEntities(ctx context.Context, query string, entityType types.EntityType) ([]types.Entity, error) {
	args := []any{"%" + query + "%"}
	q := `
		SELECT id, type, mention
		FROM   entities
		WHERE  (mention ILIKE $1 OR id ILIKE $1)`
	if entityType != "" {
		args = append(args, entityType)
		q += fmt.Sprintf("\n  AND  type = $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse: search entities: %w", err)
	}
	return collectEntities(rows)
}

// Neighborhood implements [store.Warehouse]. A single query collapses
// relationships touching seedID by (other, relation_type, direction), caps
// evidence PMIDs at 5, and joins in co-occurrence counts derived from the
// doc_entities table, ordered per spec §4.3.
func (s *Store) Neighborhood(ctx context.Context, seedID string, limit int) ([]types.NeighborEdge, error) {
	const q = `
		WITH rel AS (
		    SELECT
		        CASE WHEN entity_id1 = $1 THEN entity_id2 ELSE entity_id1 END AS other_id,
		        relation_type,
		        CASE WHEN entity_id1 = $1 THEN '->' ELSE '<-' END AS direction,
		        pmid
		    FROM relationships
		    WHERE entity_id1 = $1 OR entity_id2 = $1
		),
		rel_agg AS (
		    SELECT other_id, relation_type, direction,
		           count(*)                               AS evidence_count,
		           (array_agg(pmid ORDER BY pmid))[1:5]    AS pmids
		    FROM   rel
		    GROUP  BY other_id, relation_type, direction
		),
		seed_docs AS (
		    SELECT doc_id, source_table FROM doc_entities WHERE entity_id = $1
		),
		cooc AS (
		    SELECT de.entity_id AS other_id,
		           count(DISTINCT CASE WHEN de.source_table = 'papers'  THEN de.doc_id END) AS paper_count,
		           count(DISTINCT CASE WHEN de.source_table = 'trials' THEN de.doc_id END) AS trial_count,
		           count(DISTINCT CASE WHEN de.source_table = 'patents' THEN de.doc_id END) AS patent_count
		    FROM   doc_entities de
		    JOIN   seed_docs sd ON sd.doc_id = de.doc_id AND sd.source_table = de.source_table
		    WHERE  de.entity_id != $1
		    GROUP  BY de.entity_id
		)
		SELECT ra.other_id, ra.relation_type, ra.direction, ra.evidence_count, ra.pmids,
		       e.type, e.mention,
		       COALESCE(c.paper_count, 0), COALESCE(c.trial_count, 0), COALESCE(c.patent_count, 0)
		FROM   rel_agg ra
		JOIN   entities e ON e.id = ra.other_id
		LEFT   JOIN cooc c ON c.other_id = ra.other_id
		ORDER  BY (COALESCE(c.paper_count, 0) + COALESCE(c.trial_count, 0) + COALESCE(c.patent_count, 0)) DESC,
		          ra.evidence_count DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, seedID, limit)
	if err != nil {
		return nil, fmt.Errorf("warehouse: neighborhood: %w", err)
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.NeighborEdge, error) {
		var n types.NeighborEdge
		var direction string
		if err := row.Scan(
			&n.OtherEntityID,
			&n.RelationType,
			&direction,
			&n.EvidenceCount,
			&n.PMIDs,
			&n.OtherType,
			&n.OtherMention,
			&n.CoOccurrence.PaperCount,
			&n.CoOccurrence.TrialCount,
			&n.CoOccurrence.PatentCount,
		); err != nil {
			return types.NeighborEdge{}, err
		}
		n.Direction = types.Direction(direction)
		n.CooccurrenceScore = n.CoOccurrence.Score()
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("warehouse: neighborhood: scan: %w", err)
	}
	if result == nil {
		result = []types.NeighborEdge{}
	}
	return result, nil
}

// FetchPaperDetails implements [store.Warehouse]. Non-integer PMIDs are
// silently skipped; missing PMIDs produce no entry.
func (s *Store) FetchPaperDetails(ctx context.Context, pmids []string) (map[string]types.PaperDetail, error) {
	out := map[string]types.PaperDetail{}

	var valid []string
	for _, p := range pmids {
		if _, err := strconv.Atoi(p); err == nil {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return out, nil
	}

	const q = `SELECT pmid, title, year FROM papers WHERE pmid = ANY($1)`
	rows, err := s.pool.Query(ctx, q, valid)
	if err != nil {
		return nil, fmt.Errorf("warehouse: fetch paper details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d types.PaperDetail
		if err := rows.Scan(&d.PMID, &d.Title, &d.Year); err != nil {
			return nil, fmt.Errorf("warehouse: fetch paper details: scan: %w", err)
		}
		out[d.PMID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: fetch paper details: rows: %w", err)
	}
	return out, nil
}

// FetchEdgePMIDs implements [store.Warehouse]. For each segment it checks
// both (from,to) and (to,from) orderings and keys the result in the
// direction originally requested by the caller.
func (s *Store) FetchEdgePMIDs(ctx context.Context, segments []types.PathSegment, cap int) (map[string][]string, error) {
	out := make(map[string][]string, len(segments))

	const q = `
		SELECT pmid
		FROM   relationships
		WHERE  relation_type = $3
		  AND  ((entity_id1 = $1 AND entity_id2 = $2) OR (entity_id1 = $2 AND entity_id2 = $1))
		ORDER  BY pmid
		LIMIT  $4`

	for _, seg := range segments {
		key := seg.From + "--" + seg.To + "--" + seg.RelationType
		rows, err := s.pool.Query(ctx, q, seg.From, seg.To, seg.RelationType, cap)
		if err != nil {
			return nil, fmt.Errorf("warehouse: fetch edge pmids: %w", err)
		}
		var pmids []string
		for rows.Next() {
			var pmid string
			if err := rows.Scan(&pmid); err != nil {
				rows.Close()
				return nil, fmt.Errorf("warehouse: fetch edge pmids: scan: %w", err)
			}
			pmids = append(pmids, pmid)
		}
		rowsErr := rows.Err()
		rows.Close()
		if rowsErr != nil {
			return nil, fmt.Errorf("warehouse: fetch edge pmids: rows: %w", rowsErr)
		}
		out[key] = pmids
	}
	return out, nil
}

// ResolveChunks implements [store.Warehouse]. Chunk ids with no matching row
// are silently omitted from the result.
func (s *Store) ResolveChunks(ctx context.Context, chunkIDs []string) ([]store.ChunkSource, error) {
	if len(chunkIDs) == 0 {
		return []store.ChunkSource{}, nil
	}

	const q = `
		SELECT chunk_id, doc_id, doc_type, text, source_id
		FROM   chunks
		WHERE  chunk_id = ANY($1)`

	rows, err := s.pool.Query(ctx, q, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("warehouse: resolve chunks: %w", err)
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ChunkSource, error) {
		var c store.ChunkSource
		var docType string
		if err := row.Scan(&c.ChunkID, &c.DocID, &docType, &c.Text, &c.SourceID); err != nil {
			return store.ChunkSource{}, err
		}
		c.DocType = types.DocType(docType)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("warehouse: resolve chunks: scan: %w", err)
	}
	if result == nil {
		result = []store.ChunkSource{}
	}
	return result, nil
}

// CoMentioningDocs implements [store.Warehouse].
func (s *Store) CoMentioningDocs(ctx context.Context, entityA, entityB string) (map[string]bool, error) {
	const q = `
		SELECT da.doc_id
		FROM   doc_entities da
		JOIN   doc_entities db ON db.doc_id = da.doc_id
		WHERE  da.entity_id = $1 AND db.entity_id = $2`

	rows, err := s.pool.Query(ctx, q, entityA, entityB)
	if err != nil {
		return nil, fmt.Errorf("warehouse: co-mentioning docs: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("warehouse: co-mentioning docs: scan: %w", err)
		}
		out[docID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: co-mentioning docs: rows: %w", err)
	}
	return out, nil
}

// collectEntities scans pgx rows into a slice of Entity values.
func collectEntities(rows pgx.Rows) ([]types.Entity, error) {
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Entity, error) {
		var e types.Entity
		var entityType string
		if err := row.Scan(&e.ID, &entityType, &e.Mention); err != nil {
			return types.Entity{}, err
		}
		e.Type = types.EntityType(entityType)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan entities: %w", err)
	}
	if entities == nil {
		entities = []types.Entity{}
	}
	return entities, nil
}
