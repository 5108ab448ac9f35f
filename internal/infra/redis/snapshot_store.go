package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ifrs17-training-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore persists progression snapshots as JSON blobs in Redis, keyed
// per identity. Guest snapshots expire after guestTTL; authenticated ones are
// kept until cleared.
type SnapshotStore struct {
	client   *redis.Client
	guestTTL time.Duration
}

func NewSnapshotStore(client *redis.Client, guestTTL time.Duration) *SnapshotStore {
	return &SnapshotStore{
		client:   client,
		guestTTL: guestTTL,
	}
}

func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	ttl := time.Duration(0)
	if snap.Identity.Guest {
		ttl = s.guestTTL
	}
	if err := s.client.Set(ctx, s.key(snap.Identity.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Identity.ID, err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, identity domain.Identity) (domain.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(identity.ID)).Bytes()
	if err == redis.Nil {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot %s: %w", identity.ID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", identity.ID, err)
	}
	return snap, nil
}

func (s *SnapshotStore) Clear(ctx context.Context, identity domain.Identity) error {
	if err := s.client.Del(ctx, s.key(identity.ID)).Err(); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", identity.ID, err)
	}
	return nil
}

func (s *SnapshotStore) key(userID string) string {
	return "progress:" + userID
}
