package neighborhood

import (
	"context"
	"testing"

	storemock "github.com/biokg/explorer/pkg/store/mock"
	"github.com/biokg/explorer/pkg/types"
)

func TestRelated_UsesDefaultLimit(t *testing.T) {
	wh := &storemock.Warehouse{
		NeighborhoodResult: []types.NeighborEdge{
			{OtherEntityID: "MESH:D001943", RelationType: "biolink:related_to"},
		},
	}
	q := New(wh)

	edges, err := q.Related(context.Background(), "NCBIGene:672")
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(edges) != 1 || edges[0].OtherEntityID != "MESH:D001943" {
		t.Errorf("edges = %+v", edges)
	}

	calls := wh.Calls()
	if len(calls) != 1 || calls[0].Method != "Neighborhood" {
		t.Fatalf("calls = %+v", calls)
	}
	if limit := calls[0].Args[1]; limit != DefaultMaxRelatedEntities {
		t.Errorf("limit passed = %v, want %d", limit, DefaultMaxRelatedEntities)
	}
}

func TestRelated_ZeroLimitReturnsEmptyWithoutQuerying(t *testing.T) {
	wh := &storemock.Warehouse{
		NeighborhoodResult: []types.NeighborEdge{{OtherEntityID: "should not be returned"}},
	}
	q := New(wh, WithMaxRelatedEntities(0))

	edges, err := q.Related(context.Background(), "NCBIGene:672")
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("edges = %+v, want empty", edges)
	}
	if n := wh.CallCount("Neighborhood"); n != 0 {
		t.Errorf("expected no warehouse call with a zero limit, got %d", n)
	}
}

func TestRelated_CustomLimitPassedThrough(t *testing.T) {
	wh := &storemock.Warehouse{}
	q := New(wh, WithMaxRelatedEntities(10))

	if _, err := q.Related(context.Background(), "seed"); err != nil {
		t.Fatalf("Related: %v", err)
	}
	calls := wh.Calls()
	if limit := calls[0].Args[1]; limit != 10 {
		t.Errorf("limit passed = %v, want 10", limit)
	}
}
