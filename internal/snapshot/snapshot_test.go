package snapshot

import (
	"context"
	"regexp"
	"testing"

	"github.com/biokg/explorer/pkg/types"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{10}$`)

func TestStore_PutReturnsTenCharHexID(t *testing.T) {
	s := New()
	id, err := s.Put(context.Background(), types.GraphPayload{CenterNodeID: "gene:BRCA1"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !hexID.MatchString(id) {
		t.Errorf("id = %q, want 10 lowercase hex characters", id)
	}
}

func TestStore_GetReturnsStoredPayload(t *testing.T) {
	s := New()
	want := types.GraphPayload{CenterNodeID: "gene:BRCA1", Message: "test"}
	id, err := s.Put(context.Background(), want)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get: ok = false, want true")
	}
	if got.CenterNodeID != want.CenterNodeID || got.Message != want.Message {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestStore_GetMissingIDReturnsNotOK(t *testing.T) {
	s := New()
	_, ok, err := s.Get(context.Background(), "0000000000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get: ok = true for an id that was never stored")
	}
}

func TestStore_PutGeneratesDistinctIDsAcrossCalls(t *testing.T) {
	s := New()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := s.Put(context.Background(), types.GraphPayload{})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d puts", id, i)
		}
		seen[id] = true
	}
}
