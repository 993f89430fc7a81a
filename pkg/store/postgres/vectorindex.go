package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/biokg/explorer/pkg/store"
)

// Search implements [store.VectorIndex]. It returns the topK chunk ids whose
// embeddings are closest (cosine distance) to embedding, ordered by ascending
// distance.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]store.ChunkMatch, error) {
	queryVec := pgvector.NewVector(embedding)

	const q = `
		SELECT chunk_id, embedding <=> $1 AS distance
		FROM   chunks
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ChunkMatch, error) {
		var m store.ChunkMatch
		if err := row.Scan(&m.ChunkID, &m.Distance); err != nil {
			return store.ChunkMatch{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vector index: search: scan: %w", err)
	}
	if results == nil {
		results = []store.ChunkMatch{}
	}
	return results, nil
}
