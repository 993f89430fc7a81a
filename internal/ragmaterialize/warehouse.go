package ragmaterialize

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/biokg/explorer/pkg/types"
)

var stageSchema = bigquery.Schema{
	{Name: "id", Type: bigquery.StringFieldType},
	{Name: "embedding", Type: bigquery.FloatFieldType, Repeated: true},
	{Name: "embedding_metadata", Type: bigquery.RecordFieldType, Schema: bigquery.Schema{
		{Name: "doc_id", Type: bigquery.StringFieldType},
		{Name: "doc_type", Type: bigquery.StringFieldType},
		{Name: "source_id", Type: bigquery.StringFieldType},
		{Name: "chunk_index", Type: bigquery.IntegerFieldType},
		{Name: "entity_count", Type: bigquery.IntegerFieldType},
		{Name: "run_id", Type: bigquery.StringFieldType},
		{Name: "model_id", Type: bigquery.StringFieldType},
	}},
}

var chunkTextStageSchema = bigquery.Schema{
	{Name: "chunk_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "chunk_text", Type: bigquery.StringFieldType, Required: true},
}

// chunkTextRow is one row written into the chunk-text staging table ahead of
// a MERGE into the embeddings table.
type chunkTextRow struct {
	ChunkID   string `bigquery:"chunk_id"`
	ChunkText string `bigquery:"chunk_text"`
}

// Warehouse wraps the BigQuery operations the materializer needs: loading
// shard JSONL, building/refreshing the embeddings and entity tables, and
// batched chunk-text backfill via a staging table plus MERGE.
type Warehouse struct {
	client *bigquery.Client
}

// NewWarehouse wraps an already-constructed BigQuery client.
func NewWarehouse(client *bigquery.Client) *Warehouse { return &Warehouse{client: client} }

func (w *Warehouse) fqn(projectID, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, dataset, table)
}

// TableExists reports whether table exists in dataset.
func (w *Warehouse) TableExists(ctx context.Context, projectID, dataset, table string) (bool, error) {
	_, err := w.client.DatasetInProject(projectID, dataset).Table(table).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 404 {
		return false, nil
	}
	return false, fmt.Errorf("ragmaterialize: table exists: %w", err)
}

// LoadShardsToStage loads every object under gcsPrefix (newline-delimited
// JSON matching the embedding shard format) into a fresh staging table.
func (w *Warehouse) LoadShardsToStage(ctx context.Context, projectID, dataset, stageTable, gcsGlob string) error {
	ref := bigquery.NewGCSReference(gcsGlob)
	ref.SourceFormat = bigquery.JSON
	ref.Schema = stageSchema
	ref.IgnoreUnknownValues = true
	ref.MaxBadRecords = 0

	loader := w.client.DatasetInProject(projectID, dataset).Table(stageTable).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteTruncate

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("ragmaterialize: load shards: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ragmaterialize: load shards: wait: %w", err)
	}
	if status.Err() != nil {
		return fmt.Errorf("ragmaterialize: load shards: job: %w", status.Err())
	}
	return nil
}

// BuildEmbeddingsTable (re)creates the target embeddings table from the
// staging table, with chunk_text initially NULL pending reconstruction.
func (w *Warehouse) BuildEmbeddingsTable(ctx context.Context, projectID, dataset, stageTable, embedTable string) error {
	sql := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT
		  CAST(id AS STRING) AS chunk_id,
		  CAST(embedding_metadata.doc_id AS STRING) AS doc_id,
		  CAST(embedding_metadata.doc_type AS STRING) AS doc_type,
		  CAST(embedding_metadata.source_id AS STRING) AS source_id,
		  SAFE_CAST(embedding_metadata.chunk_index AS INT64) AS chunk_index,
		  CAST(NULL AS STRING) AS chunk_text,
		  embedding AS embedding,
		  CAST(embedding_metadata.run_id AS STRING) AS run_id,
		  CAST(embedding_metadata.model_id AS STRING) AS model_id
		FROM %s
		WHERE id IS NOT NULL AND embedding_metadata.doc_id IS NOT NULL`,
		w.fqn(projectID, dataset, embedTable), w.fqn(projectID, dataset, stageTable))
	return w.run(ctx, sql)
}

// DocsNeedingText returns the distinct (doc_id, doc_type) pairs that still
// have a null or empty chunk_text in the embeddings table.
func (w *Warehouse) DocsNeedingText(ctx context.Context, projectID, dataset, embedTable string) ([]DocRef, error) {
	sql := fmt.Sprintf(`
		SELECT DISTINCT doc_id, doc_type
		FROM %s
		WHERE chunk_text IS NULL OR TRIM(chunk_text) = ''`, w.fqn(projectID, dataset, embedTable))

	it, err := w.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ragmaterialize: docs needing text: %w", err)
	}
	var out []DocRef
	for {
		var row struct {
			DocID   string `bigquery:"doc_id"`
			DocType string `bigquery:"doc_type"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ragmaterialize: docs needing text: scan: %w", err)
		}
		out = append(out, DocRef{DocID: row.DocID, DocType: types.DocType(row.DocType)})
	}
	return out, nil
}

// DocRef identifies one document by id and kind.
type DocRef struct {
	DocID   string
	DocType types.DocType
}

// RunVersion identifies the chunking/embedding run that produced a set of
// rows in the embeddings table.
type RunVersion struct {
	RunID   string
	ModelID string
}

// DistinctRunVersions returns every distinct (run_id, model_id) pair present
// in the embeddings table. An embeddings table should carry exactly one
// version: mixing rows from two chunking runs means chunk_id values that
// look alike actually disagree on chunk boundaries.
func (w *Warehouse) DistinctRunVersions(ctx context.Context, projectID, dataset, embedTable string) ([]RunVersion, error) {
	sql := fmt.Sprintf(`
		SELECT DISTINCT run_id, model_id
		FROM %s`, w.fqn(projectID, dataset, embedTable))

	it, err := w.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ragmaterialize: distinct run versions: %w", err)
	}
	var out []RunVersion
	for {
		var row struct {
			RunID   string `bigquery:"run_id"`
			ModelID string `bigquery:"model_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ragmaterialize: distinct run versions: scan: %w", err)
		}
		out = append(out, RunVersion{RunID: row.RunID, ModelID: row.ModelID})
	}
	return out, nil
}

// EnsureChunkTextStage creates the chunk-text staging table if absent.
func (w *Warehouse) EnsureChunkTextStage(ctx context.Context, projectID, dataset, stageTable string) error {
	_, err := w.client.DatasetInProject(projectID, dataset).Table(stageTable).Metadata(ctx)
	if err == nil {
		return nil
	}
	err = w.client.DatasetInProject(projectID, dataset).Table(stageTable).Create(ctx, &bigquery.TableMetadata{Schema: chunkTextStageSchema})
	if err != nil {
		return fmt.Errorf("ragmaterialize: ensure chunk text stage: %w", err)
	}
	return nil
}

// FlushChunkTextBatch appends a batch of reconstructed chunk texts into the
// staging table via a streaming insert.
func (w *Warehouse) FlushChunkTextBatch(ctx context.Context, projectID, dataset, stageTable string, rows []chunkTextRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := w.client.DatasetInProject(projectID, dataset).Table(stageTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("ragmaterialize: flush chunk text batch: %w", err)
	}
	return nil
}

// MergeChunkText merges every row of the chunk-text staging table into the
// embeddings table by chunk_id, then truncates the staging table so a
// subsequent run starts clean.
func (w *Warehouse) MergeChunkText(ctx context.Context, projectID, dataset, embedTable, chunkStageTable string) error {
	sql := fmt.Sprintf(`
		MERGE %s T
		USING %s S
		ON T.chunk_id = S.chunk_id
		WHEN MATCHED THEN UPDATE SET chunk_text = S.chunk_text`,
		w.fqn(projectID, dataset, embedTable), w.fqn(projectID, dataset, chunkStageTable))
	if err := w.run(ctx, sql); err != nil {
		return err
	}
	return w.run(ctx, fmt.Sprintf("TRUNCATE TABLE %s", w.fqn(projectID, dataset, chunkStageTable)))
}

// BuildEntityTable (re)creates the doc-entity materialized table, limited to
// doc ids present in the embeddings table.
func (w *Warehouse) BuildEntityTable(ctx context.Context, projectID, dataset, embedTable, sourceEntityTable, entityTable string) error {
	sql := fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s AS
		SELECT de.*
		FROM %s de
		WHERE de.doc_id IN (SELECT DISTINCT doc_id FROM %s)`,
		w.fqn(projectID, dataset, entityTable),
		w.fqn(projectID, dataset, sourceEntityTable),
		w.fqn(projectID, dataset, embedTable))
	return w.run(ctx, sql)
}

func (w *Warehouse) run(ctx context.Context, sql string) error {
	job, err := w.client.Query(sql).Run(ctx)
	if err != nil {
		return fmt.Errorf("ragmaterialize: query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ragmaterialize: query wait: %w", err)
	}
	if status.Err() != nil {
		return fmt.Errorf("ragmaterialize: query job: %w", status.Err())
	}
	return nil
}

// stageTableName derives a timestamp-stable staging table name, mirroring
// the reference job's "_tmp_rag_stage_{unix_ts}" convention.
func stageTableName(prefix string, ts time.Time) string {
	return fmt.Sprintf("_tmp_%s_%d", prefix, ts.Unix())
}
