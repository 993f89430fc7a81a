package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/biokg/explorer/pkg/provider/embeddings/mock"
	"github.com/biokg/explorer/pkg/store"
	storemock "github.com/biokg/explorer/pkg/store/mock"
	"github.com/biokg/explorer/pkg/types"
)

func TestBuildQueryText_IncludesSourceTargetPredicateEvidence(t *testing.T) {
	sel := Selection{
		SourceName: "BRCA1",
		TargetName: "Breast Cancer",
		Predicate:  "biolink:gene_associated_with_condition",
		Evidence: []types.Evidence{
			{Snippet: "A germline study"},
			{Snippet: "A replication cohort"},
		},
	}
	text := buildQueryText(sel)

	for _, want := range []string{"source: BRCA1", "target: Breast Cancer", "predicate: biolink:gene_associated_with_condition", "A germline study", "A replication cohort"} {
		if !strings.Contains(text, want) {
			t.Errorf("query text missing %q:\n%s", want, text)
		}
	}
}

func TestBuildQueryText_PrefersLabelOverPredicate(t *testing.T) {
	text := buildQueryText(Selection{Label: "treats", Predicate: "biolink:treats"})
	if !strings.Contains(text, "predicate: treats") {
		t.Errorf("expected label to win over predicate:\n%s", text)
	}
}

func TestBuildQueryText_CapsEvidenceAtThree(t *testing.T) {
	sel := Selection{Evidence: []types.Evidence{
		{Snippet: "one"}, {Snippet: "two"}, {Snippet: "three"}, {Snippet: "four"},
	}}
	text := buildQueryText(sel)
	if strings.Contains(text, "four") {
		t.Errorf("expected evidence capped at 3, got:\n%s", text)
	}
	if !strings.Contains(text, "three") {
		t.Errorf("expected third evidence item present:\n%s", text)
	}
}

func TestBuildQueryText_CenterOverviewMergesRelatedEdgeEvidence(t *testing.T) {
	sel := Selection{
		SourceName:     "BRCA1",
		CenterOverview: true,
		RelatedEdges: []RelatedEdge{
			{OtherName: "Breast Cancer", Label: "associated with", Evidence: []types.Evidence{{Snippet: "study A"}}},
			{OtherName: "Ovarian Cancer", Label: "associated with", Evidence: []types.Evidence{{Snippet: "study B"}}},
		},
	}
	text := buildQueryText(sel)
	if !strings.Contains(text, "BRCA1 -> Breast Cancer: associated with") {
		t.Errorf("expected relation bit, got:\n%s", text)
	}
	if !strings.Contains(text, "study A") {
		t.Errorf("expected merged related-edge evidence, got:\n%s", text)
	}
}

func TestBuildQueryText_CenterOverviewNoRelationsWritesNone(t *testing.T) {
	text := buildQueryText(Selection{SourceName: "BRCA1", CenterOverview: true})
	if !strings.Contains(text, "relations:\nnone") {
		t.Errorf("expected 'none' placeholder, got:\n%s", text)
	}
}

func TestRetrieve_MissingEmbeddingReturnsNil(t *testing.T) {
	embedder := &mock.Provider{EmbedErr: errors.New("endpoint unconfigured")}
	wh := &storemock.Warehouse{}
	vi := &storemock.VectorIndex{}
	r := New(wh, vi, embedder)

	got := r.Retrieve(context.Background(), Selection{SourceName: "A", TargetName: "B"})
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
	if n := vi.Calls(); len(n) != 0 {
		t.Errorf("expected no vector search when embedding failed, got %d calls", len(n))
	}
}

func TestRetrieve_VectorSearchFailureReturnsNil(t *testing.T) {
	embedder := &mock.Provider{EmbedResult: []float32{0.1, 0.2}}
	wh := &storemock.Warehouse{}
	vi := &storemock.VectorIndex{SearchErr: errors.New("boom")}
	r := New(wh, vi, embedder)

	got := r.Retrieve(context.Background(), Selection{SourceName: "A", TargetName: "B"})
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestRetrieve_CoMentionFilterExcludesIneligibleDocs(t *testing.T) {
	embedder := &mock.Provider{EmbedResult: []float32{1, 0}}
	vi := &storemock.VectorIndex{SearchResult: []store.ChunkMatch{
		{ChunkID: "c1", Distance: 0.1},
		{ChunkID: "c2", Distance: 0.1},
	}}
	wh := &storemock.Warehouse{
		ResolveChunksResult: []store.ChunkSource{
			{ChunkID: "c1", DocID: "docA", Text: "brca1 breast cancer study"},
			{ChunkID: "c2", DocID: "docB", Text: "unrelated chunk text"},
		},
		CoMentioningDocsResult: map[string]bool{"docA": true},
	}
	r := New(wh, vi, embedder)

	got := r.Retrieve(context.Background(), Selection{SourceID: "gene:BRCA1", TargetID: "disease:breast_cancer"})
	if len(got) != 1 || got[0].ChunkID != "c1" {
		t.Fatalf("got = %+v, want only c1", got)
	}
}

func TestRetrieve_CenterOverviewSkipsCoMentionFilter(t *testing.T) {
	embedder := &mock.Provider{EmbedResult: []float32{1, 0}}
	vi := &storemock.VectorIndex{SearchResult: []store.ChunkMatch{{ChunkID: "c1", Distance: 0.2}}}
	wh := &storemock.Warehouse{
		ResolveChunksResult: []store.ChunkSource{{ChunkID: "c1", DocID: "docA", Text: "brca1 overview"}},
	}
	r := New(wh, vi, embedder)

	got := r.Retrieve(context.Background(), Selection{SourceID: "gene:BRCA1", CenterOverview: true})
	if len(got) != 1 {
		t.Fatalf("got = %+v, want 1 chunk", got)
	}
	if n := wh.CallCount("CoMentioningDocs"); n != 0 {
		t.Errorf("expected co-mention filter skipped for center overview, got %d calls", n)
	}
}

func TestRetrieve_RerankOrdersByScoreAndTruncatesTopK(t *testing.T) {
	// Query tokens (6, from buildQueryText's source/target/predicate/evidence
	// lines): source, gene, target, disease, predicate, evidence.
	embedder := &mock.Provider{EmbedResult: []float32{1, 0}}
	vi := &storemock.VectorIndex{SearchResult: []store.ChunkMatch{
		{ChunkID: "near-no-overlap", Distance: 0.0},
		{ChunkID: "farther-full-overlap", Distance: 0.3},
	}}
	wh := &storemock.Warehouse{
		ResolveChunksResult: []store.ChunkSource{
			{ChunkID: "near-no-overlap", DocID: "d1", Text: "completely unrelated words"},
			{ChunkID: "farther-full-overlap", DocID: "d2", Text: "source gene target disease predicate evidence"},
		},
	}
	r := New(wh, vi, embedder, WithTopK(1))

	got := r.Retrieve(context.Background(), Selection{SourceName: "gene", TargetName: "disease"})
	if len(got) != 1 {
		t.Fatalf("got = %+v, want 1 (topK truncation)", got)
	}
	if got[0].ChunkID != "farther-full-overlap" {
		t.Errorf("got = %+v, want full lexical overlap (score 0.827) to beat zero-distance zero-overlap (score 0.75)", got)
	}
}

func TestRetrieve_EmptySearchResultReturnsNil(t *testing.T) {
	embedder := &mock.Provider{EmbedResult: []float32{1, 0}}
	vi := &storemock.VectorIndex{}
	wh := &storemock.Warehouse{}
	r := New(wh, vi, embedder)

	got := r.Retrieve(context.Background(), Selection{SourceName: "A"})
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
	if n := wh.CallCount("ResolveChunks"); n != 0 {
		t.Errorf("expected no chunk resolution on empty ANN result, got %d calls", n)
	}
}
