package ragmaterialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrVersionMismatch is returned by [Materializer.Run] when the embeddings
// table's recorded run_id/model_id disagree with cfg's, or the table mixes
// more than one version, so chunk-text reconstruction would silently merge
// text computed under different chunking parameters.
var ErrVersionMismatch = errors.New("ragmaterialize: embeddings table version mismatch")

// DefaultChunkTextFlush is how many reconstructed chunk-text rows accumulate
// before a batch is written to the staging table.
const DefaultChunkTextFlush = 25000

// DefaultDocBatchSize bounds how many documents' text is fetched from the
// source tables in a single DocSource call.
const DefaultDocBatchSize = 2000

// RunConfig parametrizes one materialization run. The source dataset that
// document text is read from is configured separately, on the DocSource
// passed to New.
type RunConfig struct {
	GCSPrefix         string
	ProjectID         string
	TargetDataset     string
	EmbedTable        string
	EntityTable       string
	SourceEntityTable string
	DocBatchSize      int
	ChunkTextFlush    int
	MaxChunkChars     int
	ChunkOverlapChars int
	Resume            bool
	SkipEntityRefresh bool

	// RunID and ModelID identify the chunking/embedding version this run
	// expects the embeddings table to already carry (or to be freshly built
	// with). Both are required; Run refuses to proceed if the table already
	// holds a different version or mixes more than one.
	RunID   string
	ModelID string
}

// Stats summarizes a completed run.
type Stats struct {
	DocsReconstructed   int
	ChunksWritten       int
	EntityTableRefreshed bool
	Elapsed             time.Duration
}

// warehouseOps is the subset of *Warehouse the materializer drives, narrowed
// to an interface so the orchestration logic can be exercised against a fake
// in tests without a real BigQuery client.
type warehouseOps interface {
	TableExists(ctx context.Context, projectID, dataset, table string) (bool, error)
	LoadShardsToStage(ctx context.Context, projectID, dataset, stageTable, gcsGlob string) error
	BuildEmbeddingsTable(ctx context.Context, projectID, dataset, stageTable, embedTable string) error
	DocsNeedingText(ctx context.Context, projectID, dataset, embedTable string) ([]DocRef, error)
	DistinctRunVersions(ctx context.Context, projectID, dataset, embedTable string) ([]RunVersion, error)
	EnsureChunkTextStage(ctx context.Context, projectID, dataset, stageTable string) error
	FlushChunkTextBatch(ctx context.Context, projectID, dataset, stageTable string, rows []chunkTextRow) error
	MergeChunkText(ctx context.Context, projectID, dataset, embedTable, chunkStageTable string) error
	BuildEntityTable(ctx context.Context, projectID, dataset, embedTable, sourceEntityTable, entityTable string) error
}

// Materializer reconstructs chunk text for embedding shards and builds the
// embeddings and doc-entity warehouse tables from them.
type Materializer struct {
	warehouse warehouseOps
	docs      DocSource
	logger    *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Materializer)

// WithLogger overrides the default [slog.Default] logger.
func WithLogger(l *slog.Logger) Option { return func(m *Materializer) { m.logger = l } }

// New builds a Materializer.
func New(warehouse warehouseOps, docs DocSource, opts ...Option) *Materializer {
	m := &Materializer{warehouse: warehouse, docs: docs, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes the five materialization phases described for the doc-batch
// and chunk-text reconstruction stages: stage load, embeddings table build,
// chunk-text reconstruction, chunk-text merge, entity table build, with
// resume mode skipping phases 1-2 when the embeddings table already exists.
func (m *Materializer) Run(ctx context.Context, cfg RunConfig) (Stats, error) {
	start := time.Now()
	cfg = withDefaults(cfg)

	exists, err := m.warehouse.TableExists(ctx, cfg.ProjectID, cfg.TargetDataset, cfg.EmbedTable)
	if err != nil {
		return Stats{}, err
	}

	if cfg.Resume && exists {
		m.logger.InfoContext(ctx, "ragmaterialize: resume mode, using existing embeddings table", "table", cfg.EmbedTable)
	} else {
		stageTable := stageTableName("rag_stage", start)
		shardsGlob := cfg.GCSPrefix + "/shards/*"

		m.logger.InfoContext(ctx, "ragmaterialize: loading shards into staging table", "glob", shardsGlob)
		if err := m.warehouse.LoadShardsToStage(ctx, cfg.ProjectID, cfg.TargetDataset, stageTable, shardsGlob); err != nil {
			return Stats{}, err
		}

		m.logger.InfoContext(ctx, "ragmaterialize: building embeddings table", "table", cfg.EmbedTable)
		if err := m.warehouse.BuildEmbeddingsTable(ctx, cfg.ProjectID, cfg.TargetDataset, stageTable, cfg.EmbedTable); err != nil {
			return Stats{}, err
		}
	}

	if err := m.checkRunVersion(ctx, cfg); err != nil {
		return Stats{}, err
	}

	chunkStageTable := fmt.Sprintf("_tmp_rag_chunk_text_stage_%s", cfg.EmbedTable)
	if err := m.warehouse.EnsureChunkTextStage(ctx, cfg.ProjectID, cfg.TargetDataset, chunkStageTable); err != nil {
		return Stats{}, err
	}

	docs, err := m.warehouse.DocsNeedingText(ctx, cfg.ProjectID, cfg.TargetDataset, cfg.EmbedTable)
	if err != nil {
		return Stats{}, err
	}
	m.logger.InfoContext(ctx, "ragmaterialize: reconstructing chunk text", "docs", len(docs))

	docsReconstructed, chunksWritten, err := m.reconstructChunkText(ctx, cfg, docs, chunkStageTable)
	if err != nil {
		return Stats{}, err
	}

	if err := m.warehouse.MergeChunkText(ctx, cfg.ProjectID, cfg.TargetDataset, cfg.EmbedTable, chunkStageTable); err != nil {
		return Stats{}, err
	}

	refreshed := false
	if !cfg.SkipEntityRefresh {
		m.logger.InfoContext(ctx, "ragmaterialize: refreshing entity table", "table", cfg.EntityTable)
		if err := m.warehouse.BuildEntityTable(ctx, cfg.ProjectID, cfg.TargetDataset, cfg.EmbedTable, cfg.SourceEntityTable, cfg.EntityTable); err != nil {
			return Stats{}, err
		}
		refreshed = true
	}

	return Stats{
		DocsReconstructed:    docsReconstructed,
		ChunksWritten:        chunksWritten,
		EntityTableRefreshed: refreshed,
		Elapsed:              time.Since(start),
	}, nil
}

// checkRunVersion refuses to proceed if the embeddings table carries rows
// from more than one chunking/embedding run, or from a run other than the
// one cfg declares: chunk text reconstructed under cfg's MaxChunkChars/
// ChunkOverlapChars would otherwise be merged by chunk_id into rows whose
// boundaries were computed with different parameters, silently corrupting
// the table without a schema-visible trace.
func (m *Materializer) checkRunVersion(ctx context.Context, cfg RunConfig) error {
	versions, err := m.warehouse.DistinctRunVersions(ctx, cfg.ProjectID, cfg.TargetDataset, cfg.EmbedTable)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return nil
	}
	if len(versions) > 1 {
		return fmt.Errorf("%w: table %q holds %d distinct run/model versions", ErrVersionMismatch, cfg.EmbedTable, len(versions))
	}
	got := versions[0]
	if got.RunID != cfg.RunID || got.ModelID != cfg.ModelID {
		return fmt.Errorf("%w: table %q holds run_id=%q model_id=%q, run configured for run_id=%q model_id=%q",
			ErrVersionMismatch, cfg.EmbedTable, got.RunID, got.ModelID, cfg.RunID, cfg.ModelID)
	}
	return nil
}

// reconstructChunkText fetches document text in DocBatchSize batches,
// re-chunks each document, and flushes accumulated chunk-text rows to the
// staging table every ChunkTextFlush rows.
func (m *Materializer) reconstructChunkText(ctx context.Context, cfg RunConfig, docs []DocRef, chunkStageTable string) (int, int, error) {
	var pending []chunkTextRow
	docsReconstructed, chunksWritten := 0, 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := m.warehouse.FlushChunkTextBatch(ctx, cfg.ProjectID, cfg.TargetDataset, chunkStageTable, pending); err != nil {
			return err
		}
		chunksWritten += len(pending)
		pending = pending[:0]
		return nil
	}

	for batchStart := 0; batchStart < len(docs); batchStart += cfg.DocBatchSize {
		end := batchStart + cfg.DocBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[batchStart:end]

		ids := make([]string, len(batch))
		for i, d := range batch {
			ids[i] = d.DocID
		}
		texts, err := m.docs.FetchTexts(ctx, ids)
		if err != nil {
			return 0, 0, fmt.Errorf("ragmaterialize: fetch doc texts: %w", err)
		}

		for _, d := range batch {
			doc, ok := texts[d.DocID]
			if !ok {
				continue
			}
			chunks := ChunkDocument(d.DocID, d.DocType, doc.Text, cfg.MaxChunkChars, cfg.ChunkOverlapChars)
			for _, c := range chunks {
				pending = append(pending, chunkTextRow{ChunkID: c.ChunkID, ChunkText: c.Text})
				if len(pending) >= cfg.ChunkTextFlush {
					if err := flush(); err != nil {
						return 0, 0, err
					}
				}
			}
			docsReconstructed++
		}
	}
	if err := flush(); err != nil {
		return 0, 0, err
	}
	return docsReconstructed, chunksWritten, nil
}

func withDefaults(cfg RunConfig) RunConfig {
	if cfg.DocBatchSize <= 0 {
		cfg.DocBatchSize = DefaultDocBatchSize
	}
	if cfg.ChunkTextFlush <= 0 {
		cfg.ChunkTextFlush = DefaultChunkTextFlush
	}
	return cfg
}
