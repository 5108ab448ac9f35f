package redis

import (
	"context"
	"sync"
	"time"

	"ifrs17-training-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionRegistry is a Redis-aware implementation of app.SessionRegistry.
// Notes:
//   - It still keeps a local in-memory map of sessions because the attempt
//     state machine and its subscriber broadcast are in-process.
//   - Redis marks session liveness so an operator can see which identities
//     are active across instances.
type SessionRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionRegistry) GetOrCreate(id string, create func() *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		return session
	}
	session := create()
	s.sessions[id] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(id), "1", s.ttl).Err()
	return session
}

func (s *SessionRegistry) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionRegistry) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	_ = s.client.Del(context.Background(), s.key(id)).Err()
}

func (s *SessionRegistry) key(id string) string {
	return "session:" + id
}
