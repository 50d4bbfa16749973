package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

// InMemoryStore keeps users in process memory. Used in tests and when no
// DATABASE_URL is configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[domain.UserID]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[domain.UserID]*User)}
}

func clone(u *User) *User {
	c := *u
	return &c
}

func (s *InMemoryStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return dErrors.New(dErrors.CodeConflict, "email already registered")
		}
	}
	s.users[user.ID] = clone(user)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id domain.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return clone(user), nil
}

func (s *InMemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return clone(user), nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

func (s *InMemoryStore) GetByPhone(_ context.Context, phoneNormalized string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.PhoneNormalized != "" && user.PhoneNormalized == phoneNormalized {
			return clone(user), nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

func (s *InMemoryStore) GetByRefID(_ context.Context, refID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.RefID, refID) {
			return clone(user), nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

func (s *InMemoryStore) Update(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	s.users[user.ID] = clone(user)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	delete(s.users, id)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter ListFilter) ([]*User, int, error) {
	filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*User
	for _, user := range s.users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if q := strings.ToLower(filter.Search); q != "" {
			if !strings.Contains(strings.ToLower(user.Name), q) &&
				!strings.Contains(strings.ToLower(user.Email), q) &&
				!strings.Contains(strings.ToLower(user.RefID), q) {
				continue
			}
		}
		matched = append(matched, clone(user))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *InMemoryStore) ListPurgeDue(_ context.Context, now time.Time) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*User
	for _, user := range s.users {
		if user.PurgeEligible(now) {
			due = append(due, clone(user))
		}
	}
	return due, nil
}

func (s *InMemoryStore) Identify(_ context.Context, q IdentifyQuery, limit int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*User
	for _, user := range s.users {
		if q.RefID != "" && !strings.EqualFold(user.RefID, q.RefID) {
			continue
		}
		if q.UUID != "" && !strings.EqualFold(user.ID.String(), q.UUID) {
			continue
		}
		if q.Email != "" && !strings.EqualFold(user.Email, q.Email) {
			continue
		}
		matched = append(matched, clone(user))
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func (s *InMemoryStore) CountByRole(_ context.Context) (map[domain.Role]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.Role]int)
	for _, user := range s.users {
		counts[user.Role]++
	}
	return counts, nil
}
