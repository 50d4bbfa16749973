package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process denylist for single-instance deployments and
// tests. Expired entries are pruned lazily on write.
type MemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiry
	users   map[string]time.Time // userID -> expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked: make(map[string]time.Time),
		users:   make(map[string]time.Time),
	}
}

func (s *MemoryStore) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, expiry := range s.revoked {
		if now.After(expiry) {
			delete(s.revoked, id)
		}
	}
	s.revoked[jti] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}

func (s *MemoryStore) RevokeUser(_ context.Context, userID string, ttl time.Duration) error {
	if userID == "" || ttl <= 0 {
		return nil
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, expiry := range s.users {
		if now.After(expiry) {
			delete(s.users, id)
		}
	}
	s.users[userID] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) IsUserRevoked(_ context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}
