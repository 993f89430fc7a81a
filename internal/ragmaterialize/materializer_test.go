package ragmaterialize

import (
	"context"
	"errors"
	"testing"

	"github.com/biokg/explorer/pkg/types"
)

type fakeWarehouse struct {
	embedTableExists bool
	docsNeedingText  []DocRef
	runVersions      []RunVersion
	loadedStage      bool
	builtEmbed       bool
	flushed          []chunkTextRow
	merged           bool
	entityBuilt      bool
}

func (f *fakeWarehouse) DistinctRunVersions(ctx context.Context, projectID, dataset, embedTable string) ([]RunVersion, error) {
	return f.runVersions, nil
}

func (f *fakeWarehouse) TableExists(ctx context.Context, projectID, dataset, table string) (bool, error) {
	return f.embedTableExists, nil
}

func (f *fakeWarehouse) LoadShardsToStage(ctx context.Context, projectID, dataset, stageTable, gcsGlob string) error {
	f.loadedStage = true
	return nil
}

func (f *fakeWarehouse) BuildEmbeddingsTable(ctx context.Context, projectID, dataset, stageTable, embedTable string) error {
	f.builtEmbed = true
	return nil
}

func (f *fakeWarehouse) DocsNeedingText(ctx context.Context, projectID, dataset, embedTable string) ([]DocRef, error) {
	return f.docsNeedingText, nil
}

func (f *fakeWarehouse) EnsureChunkTextStage(ctx context.Context, projectID, dataset, stageTable string) error {
	return nil
}

func (f *fakeWarehouse) FlushChunkTextBatch(ctx context.Context, projectID, dataset, stageTable string, rows []chunkTextRow) error {
	f.flushed = append(f.flushed, rows...)
	return nil
}

func (f *fakeWarehouse) MergeChunkText(ctx context.Context, projectID, dataset, embedTable, chunkStageTable string) error {
	f.merged = true
	return nil
}

func (f *fakeWarehouse) BuildEntityTable(ctx context.Context, projectID, dataset, embedTable, sourceEntityTable, entityTable string) error {
	f.entityBuilt = true
	return nil
}

type fakeDocSource struct {
	texts map[string]DocText
}

func (f fakeDocSource) FetchTexts(ctx context.Context, docIDs []string) (map[string]DocText, error) {
	out := map[string]DocText{}
	for _, id := range docIDs {
		if d, ok := f.texts[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func baseConfig() RunConfig {
	return RunConfig{
		GCSPrefix: "gs://bucket/run1", ProjectID: "proj",
		TargetDataset: "kg_raw", EmbedTable: "embed", EntityTable: "entities",
		SourceEntityTable: "doc_entities", MaxChunkChars: 1000, ChunkOverlapChars: 100,
		RunID: "run1", ModelID: "text-embedding-3-small",
	}
}

func TestMaterializer_RefusesWhenTableMixesMultipleVersions(t *testing.T) {
	wh := &fakeWarehouse{
		embedTableExists: true,
		runVersions: []RunVersion{
			{RunID: "run1", ModelID: "text-embedding-3-small"},
			{RunID: "run2", ModelID: "text-embedding-3-small"},
		},
	}
	m := New(wh, fakeDocSource{})

	cfg := baseConfig()
	cfg.Resume = true
	if _, err := m.Run(context.Background(), cfg); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("Run: err = %v, want ErrVersionMismatch", err)
	}
	if wh.merged {
		t.Error("expected merge to be skipped when versions mismatch")
	}
}

func TestMaterializer_RefusesWhenConfiguredVersionDisagreesWithTable(t *testing.T) {
	wh := &fakeWarehouse{
		embedTableExists: true,
		runVersions:      []RunVersion{{RunID: "old-run", ModelID: "text-embedding-3-small"}},
	}
	m := New(wh, fakeDocSource{})

	cfg := baseConfig()
	cfg.Resume = true
	cfg.RunID = "new-run"
	if _, err := m.Run(context.Background(), cfg); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("Run: err = %v, want ErrVersionMismatch", err)
	}
}

func TestMaterializer_FreshRunLoadsStageAndBuildsEmbeddings(t *testing.T) {
	wh := &fakeWarehouse{
		docsNeedingText: []DocRef{{DocID: "PMID:1", DocType: types.DocPaper}},
	}
	docs := fakeDocSource{texts: map[string]DocText{
		"PMID:1": {DocID: "PMID:1", DocType: types.DocPaper, Text: "BRCA1 is a tumor suppressor gene."},
	}}
	m := New(wh, docs)

	stats, err := m.Run(context.Background(), baseConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wh.loadedStage || !wh.builtEmbed {
		t.Error("expected stage load and embeddings build on a fresh run")
	}
	if !wh.merged {
		t.Error("expected chunk text merge")
	}
	if !wh.entityBuilt {
		t.Error("expected entity table refresh by default")
	}
	if stats.DocsReconstructed != 1 || stats.ChunksWritten != 1 {
		t.Errorf("stats = %+v, want DocsReconstructed=1 ChunksWritten=1", stats)
	}
}

func TestMaterializer_ResumeModeSkipsStageLoadWhenTableExists(t *testing.T) {
	wh := &fakeWarehouse{embedTableExists: true}
	m := New(wh, fakeDocSource{})

	cfg := baseConfig()
	cfg.Resume = true
	if _, err := m.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if wh.loadedStage || wh.builtEmbed {
		t.Error("resume mode must skip phases 1-2 when the embeddings table already exists")
	}
}

func TestMaterializer_ResumeModeStillLoadsWhenTableMissing(t *testing.T) {
	wh := &fakeWarehouse{embedTableExists: false}
	m := New(wh, fakeDocSource{})

	cfg := baseConfig()
	cfg.Resume = true
	if _, err := m.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !wh.loadedStage || !wh.builtEmbed {
		t.Error("resume mode with no existing table must still run phases 1-2")
	}
}

func TestMaterializer_SkipEntityRefreshLeavesEntityTableUntouched(t *testing.T) {
	wh := &fakeWarehouse{}
	m := New(wh, fakeDocSource{})

	cfg := baseConfig()
	cfg.SkipEntityRefresh = true
	stats, err := m.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if wh.entityBuilt {
		t.Error("expected entity table to be left untouched")
	}
	if stats.EntityTableRefreshed {
		t.Error("Stats.EntityTableRefreshed should be false")
	}
}

func TestMaterializer_DocMissingFromSourceIsSkippedNotErrored(t *testing.T) {
	wh := &fakeWarehouse{
		docsNeedingText: []DocRef{
			{DocID: "PMID:1", DocType: types.DocPaper},
			{DocID: "PMID:2", DocType: types.DocPaper},
		},
	}
	docs := fakeDocSource{texts: map[string]DocText{
		"PMID:1": {DocID: "PMID:1", DocType: types.DocPaper, Text: "short text."},
	}}
	m := New(wh, docs)

	stats, err := m.Run(context.Background(), baseConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.DocsReconstructed != 1 {
		t.Errorf("DocsReconstructed = %d, want 1 (PMID:2 has no source text)", stats.DocsReconstructed)
	}
}

func TestMaterializer_FlushesChunkTextInConfiguredBatches(t *testing.T) {
	docRefs := make([]DocRef, 0, 5)
	texts := map[string]DocText{}
	for i := 0; i < 5; i++ {
		id := "PMID:" + string(rune('1'+i))
		docRefs = append(docRefs, DocRef{DocID: id, DocType: types.DocPaper})
		texts[id] = DocText{DocID: id, DocType: types.DocPaper, Text: "one short sentence."}
	}
	wh := &fakeWarehouse{docsNeedingText: docRefs}
	m := New(wh, fakeDocSource{texts: texts})

	cfg := baseConfig()
	cfg.ChunkTextFlush = 2
	cfg.DocBatchSize = 2
	stats, err := m.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.ChunksWritten != 5 {
		t.Errorf("ChunksWritten = %d, want 5", stats.ChunksWritten)
	}
	if len(wh.flushed) != 5 {
		t.Errorf("flushed %d rows total, want 5", len(wh.flushed))
	}
}
