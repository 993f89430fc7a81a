// Command ragmaterialize builds the BigQuery embeddings and doc-entity
// tables that back the RAG retriever from a set of precomputed embedding
// shards, reconstructing chunk text deterministically from the warehouse's
// source tables rather than storing it redundantly in the shards themselves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/bigquery"

	"github.com/biokg/explorer/internal/ragmaterialize"
)

func main() {
	os.Exit(run())
}

func run() int {
	projectID := flag.String("project", "", "GCP project id")
	sourceDataset := flag.String("source-dataset", "", "dataset holding the paper/trial/patent source tables")
	targetDataset := flag.String("target-dataset", "", "dataset to build the embeddings/entity tables in")
	embedTable := flag.String("embed-table", "rag_embeddings", "target embeddings table name")
	entityTable := flag.String("entity-table", "rag_doc_entities", "target doc-entity table name")
	sourceEntityTable := flag.String("source-entity-table", "doc_entities", "source doc-entity materialized view")
	papersTable := flag.String("papers-table", "A01_Articles", "source papers table")
	trialsTable := flag.String("trials-table", "C11_ClinicalTrials", "source clinical trials table")
	patentsTable := flag.String("patents-table", "C15_Patents", "source patents table")
	gcsPrefix := flag.String("gcs-prefix", "", "gs://bucket/prefix holding the embedding shards")
	maxChunkChars := flag.Int("max-chunk-chars", 1200, "chunking max characters, must match the run that produced the shards")
	chunkOverlapChars := flag.Int("chunk-overlap-chars", 200, "chunking overlap characters, must match the run that produced the shards")
	runID := flag.String("run-id", "", "embedding run identifier this invocation expects the embeddings table to carry (required)")
	modelID := flag.String("model-id", "", "embedding model identifier this invocation expects the embeddings table to carry (required)")
	resume := flag.Bool("resume", false, "skip stage load and embeddings table build if it already exists, only backfill missing chunk text")
	skipEntityRefresh := flag.Bool("skip-entity-refresh", false, "skip rebuilding the doc-entity table")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *projectID == "" || *targetDataset == "" || *gcsPrefix == "" {
		fmt.Fprintln(os.Stderr, "ragmaterialize: -project, -target-dataset, and -gcs-prefix are required")
		return 1
	}
	if *runID == "" || *modelID == "" {
		fmt.Fprintln(os.Stderr, "ragmaterialize: -run-id and -model-id are required, to refuse merging chunk text across mismatched embedding versions")
		return 1
	}
	if *sourceDataset == "" {
		*sourceDataset = *targetDataset
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragmaterialize: create bigquery client: %v\n", err)
		return 1
	}
	defer client.Close()

	warehouse := ragmaterialize.NewWarehouse(client)
	docs := ragmaterialize.BQDocSource{
		Client:        client,
		ProjectID:     *projectID,
		SourceDataset: *sourceDataset,
		PapersTable:   *papersTable,
		TrialsTable:   *trialsTable,
		PatentsTable:  *patentsTable,
	}

	materializer := ragmaterialize.New(warehouse, docs, ragmaterialize.WithLogger(logger))

	cfg := ragmaterialize.RunConfig{
		GCSPrefix:         *gcsPrefix,
		ProjectID:         *projectID,
		TargetDataset:     *targetDataset,
		EmbedTable:        *embedTable,
		EntityTable:       *entityTable,
		SourceEntityTable: *sourceEntityTable,
		MaxChunkChars:     *maxChunkChars,
		ChunkOverlapChars: *chunkOverlapChars,
		RunID:             *runID,
		ModelID:           *modelID,
		Resume:            *resume,
		SkipEntityRefresh: *skipEntityRefresh,
	}

	stats, err := materializer.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragmaterialize: %v\n", err)
		return 1
	}

	fmt.Printf("Docs reconstructed: %d\n", stats.DocsReconstructed)
	fmt.Printf("Chunks written:     %d\n", stats.ChunksWritten)
	fmt.Printf("Entity table:       refreshed=%v\n", stats.EntityTableRefreshed)
	fmt.Printf("Elapsed:            %s\n", stats.Elapsed)
	return 0
}
