// Package postgres provides a PostgreSQL + pgvector backed implementation of
// the explorer storage interfaces ([store.Warehouse], [store.GraphStore],
// [store.VectorIndex]).
//
// All three share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS. The schema is loaded by
// the offline ingest pipeline (C10/C11); this package only reads it, except
// for [Migrate] which is also used by tests to stand up a scratch schema.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Warehouse DDL — entities, relationships, documents, doc↔entity join
// ─────────────────────────────────────────────────────────────────────────────

const ddlEntities = `
CREATE TABLE IF NOT EXISTS entities (
    id      TEXT PRIMARY KEY,
    type    TEXT NOT NULL,
    mention TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type    ON entities (type);
CREATE INDEX IF NOT EXISTS idx_entities_mention ON entities (mention);
`

const ddlRelationships = `
CREATE TABLE IF NOT EXISTS relationships (
    entity_id1    TEXT NOT NULL REFERENCES entities (id),
    entity_id2    TEXT NOT NULL REFERENCES entities (id),
    relation_type TEXT NOT NULL,
    pmid          TEXT NOT NULL,
    PRIMARY KEY (entity_id1, entity_id2, relation_type, pmid)
);

CREATE INDEX IF NOT EXISTS idx_rel_entity1 ON relationships (entity_id1);
CREATE INDEX IF NOT EXISTS idx_rel_entity2 ON relationships (entity_id2);
`

const ddlDocuments = `
CREATE TABLE IF NOT EXISTS papers (
    pmid     TEXT PRIMARY KEY,
    title    TEXT NOT NULL DEFAULT '',
    year     INT  NOT NULL DEFAULT 0,
    abstract TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trials (
    nct_id   TEXT PRIMARY KEY,
    title    TEXT NOT NULL DEFAULT '',
    year     INT  NOT NULL DEFAULT 0,
    abstract TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS patents (
    patent_id TEXT PRIMARY KEY,
    title     TEXT NOT NULL DEFAULT '',
    year      INT  NOT NULL DEFAULT 0,
    abstract  TEXT NOT NULL DEFAULT ''
);
`

const ddlDocEntities = `
CREATE TABLE IF NOT EXISTS doc_entities (
    doc_id       TEXT NOT NULL,
    entity_id    TEXT NOT NULL REFERENCES entities (id),
    entity_type  TEXT NOT NULL,
    mention      TEXT NOT NULL,
    source_table TEXT NOT NULL,
    PRIMARY KEY (doc_id, entity_id, source_table)
);

CREATE INDEX IF NOT EXISTS idx_doc_entities_entity ON doc_entities (entity_id);
CREATE INDEX IF NOT EXISTS idx_doc_entities_doc    ON doc_entities (doc_id);
`

// ddlChunks returns the RAG chunk table DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time, matching the configured embedding model (spec §4.7).
func ddlChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
    chunk_id     TEXT PRIMARY KEY,
    doc_id       TEXT NOT NULL,
    doc_type     TEXT NOT NULL,
    chunk_index  INT  NOT NULL,
    text         TEXT NOT NULL,
    start_offset INT  NOT NULL DEFAULT 0,
    end_offset   INT  NOT NULL DEFAULT 0,
    source_id    TEXT NOT NULL DEFAULT '',
    embedding    vector(%d),
    run_id       TEXT NOT NULL DEFAULT '',
    model_id     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks (doc_id);

CREATE INDEX IF NOT EXISTS idx_chunks_embedding
    ON chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent (CREATE TABLE/INDEX IF NOT EXISTS) and safe to call on every
// application start.
//
// embeddingDimensions must match the configured embedding model (e.g. 1536
// for OpenAI text-embedding-3-small). Changing it after the first migration
// requires a manual schema update — this store never alters existing columns.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlEntities,
		ddlRelationships,
		ddlDocuments,
		ddlDocEntities,
		ddlChunks(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
