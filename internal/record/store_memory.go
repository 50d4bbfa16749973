package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

// InMemoryStore keeps records in process memory. Used in tests and when no
// DATABASE_URL is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.DataID]*DataRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.DataID]*DataRecord)}
}

func cloneRecord(rec *DataRecord) *DataRecord {
	c := *rec
	c.Tags = append([]string(nil), rec.Tags...)
	return &c
}

func (s *InMemoryStore) Create(_ context.Context, rec *DataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id domain.DataID) (*DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "data record not found")
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) Update(_ context.Context, rec *DataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "data record not found")
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID domain.UserID) ([]*DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*DataRecord
	for _, rec := range s.records {
		if rec.OwnerID == ownerID && !rec.Deleted {
			out = append(out, cloneRecord(rec))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*DataRecord, int, error) {
	filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*DataRecord
	for _, rec := range s.records {
		if filter.Matches(rec) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	sortNewestFirst(matched)

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

func (s *InMemoryStore) SoftDeleteByOwner(_ context.Context, ownerID domain.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.OwnerID == ownerID && !rec.Deleted {
			rec.Deleted = true
			rec.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) RefreshOwnerSnapshot(_ context.Context, ownerID domain.UserID, snap OwnerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			rec.Owner = snap
		}
	}
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if !rec.Deleted {
			n++
		}
	}
	return n, nil
}

func sortNewestFirst(recs []*DataRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
