package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ifrs17-training-service/internal/domain"
)

// SnapshotStore persists progression snapshots for one backing store.
type SnapshotStore interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Load(ctx context.Context, identity domain.Identity) (domain.Snapshot, error)
	Clear(ctx context.Context, identity domain.Identity) error
}

// Gateway mirrors progression snapshots to a local store (always) and a
// remote store (authenticated identities only). Saves are asynchronous,
// serialized per identity, and coalesced last-write-wins so a stored snapshot
// is never a mix of two states. The in-memory session stays the source of
// truth; persistence is a best-effort mirror.
type Gateway struct {
	local  SnapshotStore
	remote SnapshotStore // nil when no remote store is configured

	mu   sync.Mutex
	idle *sync.Cond // signalled when a drain goroutine finishes

	slots map[string]*saveSlot
	wg    sync.WaitGroup
}

type saveSlot struct {
	pending *domain.Snapshot
	running bool
}

func NewGateway(local, remote SnapshotStore) *Gateway {
	g := &Gateway{
		local:  local,
		remote: remote,
		slots:  make(map[string]*saveSlot),
	}
	g.idle = sync.NewCond(&g.mu)
	return g
}

// Save queues an asynchronous write. A save requested while one is in flight
// for the same identity replaces any still-queued snapshot.
func (g *Gateway) Save(snap domain.Snapshot) {
	g.mu.Lock()
	slot, ok := g.slots[snap.Identity.ID]
	if !ok {
		slot = &saveSlot{}
		g.slots[snap.Identity.ID] = slot
	}
	slot.pending = &snap
	if slot.running {
		g.mu.Unlock()
		return
	}
	slot.running = true
	g.wg.Add(1)
	g.mu.Unlock()

	go g.drain(snap.Identity.ID)
}

func (g *Gateway) drain(id string) {
	defer g.wg.Done()
	for {
		g.mu.Lock()
		slot := g.slots[id]
		snap := slot.pending
		slot.pending = nil
		if snap == nil {
			slot.running = false
			g.idle.Broadcast()
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
		g.write(*snap)
	}
}

func (g *Gateway) write(snap domain.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.local.Save(ctx, snap); err != nil {
		// Degraded mode: the session keeps running in memory only.
		log.Printf("local save failed for %s: %v", snap.Identity.ID, err)
	}
	if g.remote == nil || snap.Identity.Guest {
		return
	}
	if err := g.remote.Save(ctx, snap); err != nil {
		log.Printf("remote save failed for %s, local copy stays authoritative: %v", snap.Identity.ID, err)
	}
}

// SaveNow writes synchronously to both stores; used by migration where the
// caller needs the remote copy before proceeding.
func (g *Gateway) SaveNow(ctx context.Context, snap domain.Snapshot) error {
	if err := g.local.Save(ctx, snap); err != nil {
		return err
	}
	if g.remote != nil && !snap.Identity.Guest {
		if err := g.remote.Save(ctx, snap); err != nil {
			log.Printf("remote save failed for %s: %v", snap.Identity.ID, err)
		}
	}
	return nil
}

// Load prefers the remote store for authenticated identities and falls back
// to local when the remote read fails or has nothing.
func (g *Gateway) Load(ctx context.Context, identity domain.Identity) (domain.Snapshot, bool) {
	if !identity.Guest && g.remote != nil {
		snap, err := g.remote.Load(ctx, identity)
		if err == nil {
			return snap, true
		}
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			log.Printf("remote load failed for %s, falling back to local: %v", identity.ID, err)
		}
	}
	snap, err := g.local.Load(ctx, identity)
	if err != nil {
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			log.Printf("local load failed for %s: %v", identity.ID, err)
		}
		return domain.Snapshot{}, false
	}
	return snap, true
}

// LoadRemote reads only the remote store. Migration uses it to decide whether
// the authenticated identity already has progress.
func (g *Gateway) LoadRemote(ctx context.Context, identity domain.Identity) (domain.Snapshot, bool, error) {
	if g.remote == nil {
		return domain.Snapshot{}, false, nil
	}
	snap, err := g.remote.Load(ctx, identity)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Clear deletes the persisted copies for an identity. Any queued or in-flight
// save for the identity is dropped or waited out first so it cannot resurrect
// the cleared data.
func (g *Gateway) Clear(ctx context.Context, identity domain.Identity) error {
	g.mu.Lock()
	if slot, ok := g.slots[identity.ID]; ok {
		slot.pending = nil
		for slot.running {
			g.idle.Wait()
		}
	}
	g.mu.Unlock()

	err := g.local.Clear(ctx, identity)
	if g.remote != nil && !identity.Guest {
		if rerr := g.remote.Clear(ctx, identity); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// Flush waits for every queued save to land. Test helper and shutdown hook.
func (g *Gateway) Flush() {
	g.wg.Wait()
}
