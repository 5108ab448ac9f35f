package memory

import (
	"context"
	"sync"

	"ifrs17-training-service/internal/domain"
)

// SnapshotStore keeps progression snapshots in process memory. It serves as
// the always-available local tier of the persistence gateway.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string]domain.Snapshot),
	}
}

func (s *SnapshotStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Identity.ID] = snap
	return nil
}

func (s *SnapshotStore) Load(_ context.Context, identity domain.Identity) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[identity.ID]
	if !ok {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *SnapshotStore) Clear(_ context.Context, identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, identity.ID)
	return nil
}
