// Package snapshot implements the in-memory, process-scoped key/value box
// for shared graph snapshots described in spec §5 and §6: a client can POST
// the graph it currently has on screen and later hand a short id to someone
// else to GET the same payload back.
package snapshot

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

// idLength is the fixed length of a snapshot id: 10 hex characters, per
// spec §5's "keyed by a 10-hex-char id".
const idLength = 10

// Store is an in-memory [store.SnapshotStore]. Entries live for the lifetime
// of the process; there is no eviction or persistence.
type Store struct {
	mu   sync.RWMutex
	data map[string]types.GraphPayload
}

var _ store.SnapshotStore = (*Store)(nil)

// New returns an empty, ready-to-use Store.
func New() *Store {
	return &Store{data: make(map[string]types.GraphPayload)}
}

// Put stores payload under a freshly generated id, retrying on the
// astronomically unlikely event of a collision.
func (s *Store) Put(_ context.Context, payload types.GraphPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		id := newID()
		if _, exists := s.data[id]; !exists {
			s.data[id] = payload
			return id, nil
		}
	}
}

// Get returns the payload stored under id, or ok=false if absent.
func (s *Store) Get(_ context.Context, id string) (types.GraphPayload, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.data[id]
	return payload, ok, nil
}

// newID hex-encodes a fresh random UUID and truncates it to idLength
// characters, rather than reusing uuid.UUID's dashed String form.
func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:idLength]
}
