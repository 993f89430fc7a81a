package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	embmock "github.com/biokg/explorer/pkg/provider/embeddings/mock"
	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/store/mock"
)

func TestHandleOverviewVerify_OK(t *testing.T) {
	embedder := &embmock.Provider{EmbedResult: []float32{0.1, 0.2}}
	vectors := &mock.VectorIndex{SearchResult: []store.ChunkMatch{
		{ChunkID: "chunk:1", Distance: 0.01},
		{ChunkID: "chunk:2", Distance: 0.02},
	}}
	s := newTestServer(&mock.SnapshotStore{}, embedder, vectors)

	req := httptest.NewRequest(http.MethodGet, "/api/overview/verify", nil)
	rec := httptest.NewRecorder()
	s.handleOverviewVerify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got verifyResponse
	decodeBody(t, rec, &got)
	if !got.OK {
		t.Fatalf("ok = false, reason = %q", got.Reason)
	}
	if got.NeighborsFound != 2 {
		t.Errorf("neighbors_found = %d, want 2", got.NeighborsFound)
	}
	if len(got.SampleIDs) != 2 || got.SampleIDs[0] != "chunk:1" {
		t.Errorf("sample_ids = %v", got.SampleIDs)
	}
}

func TestHandleOverviewVerify_EmbeddingFailure(t *testing.T) {
	embedder := &embmock.Provider{EmbedErr: errors.New("model unavailable")}
	s := newTestServer(&mock.SnapshotStore{}, embedder, &mock.VectorIndex{})

	req := httptest.NewRequest(http.MethodGet, "/api/overview/verify", nil)
	rec := httptest.NewRecorder()
	s.handleOverviewVerify(rec, req)

	var got verifyResponse
	decodeBody(t, rec, &got)
	if got.OK {
		t.Fatal("ok = true, want false")
	}
	if got.Reason == "" {
		t.Error("reason is empty, want an explanation")
	}
}

func TestHandleOverviewVerify_NoNeighbors(t *testing.T) {
	embedder := &embmock.Provider{EmbedResult: []float32{0.1}}
	s := newTestServer(&mock.SnapshotStore{}, embedder, &mock.VectorIndex{})

	req := httptest.NewRequest(http.MethodGet, "/api/overview/verify", nil)
	rec := httptest.NewRecorder()
	s.handleOverviewVerify(rec, req)

	var got verifyResponse
	decodeBody(t, rec, &got)
	if got.OK {
		t.Fatal("ok = true, want false")
	}
}
