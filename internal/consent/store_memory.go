package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/requestcontext"
)

// InMemoryStore keeps consents in a mutex-guarded map. The single lock makes
// check-and-insert atomic, which is what closes the duplicate-request race
// the postgres store closes with a partial unique index.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[domain.ConsentID]*Consent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{consents: make(map[domain.ConsentID]*Consent)}
}

func (s *InMemoryStore) Create(ctx context.Context, c *Consent) error {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.consents {
		if existing.DataID == c.DataID && existing.RequesterID == c.RequesterID && existing.Blocks(now) {
			return dErrors.New(dErrors.CodeConflict, "an active or pending consent already exists")
		}
	}
	s.consents[c.ID] = cloneConsent(c)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id domain.ConsentID) (*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.consents[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	return cloneConsent(c), nil
}

func (s *InMemoryStore) GetCurrent(_ context.Context, dataID domain.DataID, requesterID domain.UserID) (*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *Consent
	for _, c := range s.consents {
		if c.DataID != dataID || c.RequesterID != requesterID {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	return cloneConsent(newest), nil
}

func (s *InMemoryStore) Approve(_ context.Context, id domain.ConsentID, approvedAt, expiresAt time.Time) (*Consent, error) {
	return s.transition(id, StatusPending, func(c *Consent) {
		c.Status = StatusApproved
		at := approvedAt
		c.ApprovedAt = &at
		c.ExpiresAt = expiresAt
	})
}

func (s *InMemoryStore) Reject(_ context.Context, id domain.ConsentID) (*Consent, error) {
	return s.transition(id, StatusPending, func(c *Consent) {
		c.Status = StatusRejected
	})
}

func (s *InMemoryStore) Revoke(_ context.Context, id domain.ConsentID, revokedAt time.Time) (*Consent, error) {
	return s.transition(id, StatusApproved, func(c *Consent) {
		c.Status = StatusRevoked
		at := revokedAt
		c.RevokedAt = &at
	})
}

func (s *InMemoryStore) transition(id domain.ConsentID, from Status, apply func(*Consent)) (*Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consents[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	if c.Status != from {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "consent is %s, expected %s", c.Status, from)
	}
	apply(c)
	return cloneConsent(c), nil
}

func (s *InMemoryStore) HasActive(_ context.Context, dataID domain.DataID, requesterID domain.UserID, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.consents {
		if c.DataID == dataID && c.RequesterID == requesterID && c.IsActive(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListByData(_ context.Context, dataID domain.DataID) ([]*Consent, error) {
	return s.listWhere(func(c *Consent) bool { return c.DataID == dataID }), nil
}

func (s *InMemoryStore) ListByRequester(_ context.Context, requesterID domain.UserID) ([]*Consent, error) {
	return s.listWhere(func(c *Consent) bool { return c.RequesterID == requesterID }), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID domain.UserID, status Status) ([]*Consent, error) {
	return s.listWhere(func(c *Consent) bool {
		return c.OwnerID == ownerID && (status == "" || c.Status == status)
	}), nil
}

func (s *InMemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, c := range s.consents {
		if c.Status == StatusApproved && !c.ExpiresAt.After(now) {
			c.Status = StatusRevoked
			at := now
			c.RevokedAt = &at
			swept++
		}
	}
	return swept, nil
}

func (s *InMemoryStore) ListAll(_ context.Context, status Status, limit int) ([]*Consent, error) {
	out := s.listWhere(func(c *Consent) bool { return status == "" || c.Status == status })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int)
	for _, c := range s.consents {
		counts[c.Status]++
	}
	return counts, nil
}

func (s *InMemoryStore) listWhere(match func(*Consent) bool) []*Consent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Consent
	for _, c := range s.consents {
		if match(c) {
			out = append(out, cloneConsent(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneConsent(c *Consent) *Consent {
	cp := *c
	if c.ApprovedAt != nil {
		at := *c.ApprovedAt
		cp.ApprovedAt = &at
	}
	if c.RevokedAt != nil {
		at := *c.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}
