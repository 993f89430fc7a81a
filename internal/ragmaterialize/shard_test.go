package ragmaterialize

import (
	"strings"
	"testing"
)

func TestReadShard_ParsesRecordsAndSkipsIncomplete(t *testing.T) {
	body := `{"id":"PMID:1#0","embedding":[0.1,0.2],"embedding_metadata":{"doc_id":"PMID:1","doc_type":"paper","source_id":"1","chunk_index":0,"run_id":"r1","model_id":"m1"}}
{"id":"","embedding":[0.1],"embedding_metadata":{"doc_id":"PMID:2"}}
{"id":"PMID:3#0","embedding":[0.3],"embedding_metadata":{}}
`
	var got []ShardRecord
	err := ReadShard(strings.NewReader(body), func(r ShardRecord) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadShard: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1 (others missing id or doc_id)", len(got))
	}
	if got[0].Metadata.DocID != "PMID:1" || got[0].Metadata.RunID != "r1" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestReadShard_MalformedLineReturnsError(t *testing.T) {
	if err := ReadShard(strings.NewReader("not json\n"), func(ShardRecord) error { return nil }); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestReadShard_EmptyInputCallsFnZeroTimes(t *testing.T) {
	calls := 0
	if err := ReadShard(strings.NewReader(""), func(ShardRecord) error { calls++; return nil }); err != nil {
		t.Fatalf("ReadShard: %v", err)
	}
	if calls != 0 {
		t.Errorf("fn called %d times, want 0", calls)
	}
}
