package report

import (
	"context"
	"sort"
	"sync"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

// InMemoryStore keeps reports in a mutex-guarded map.
type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[domain.ReportID]*Report
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[domain.ReportID]*Report)}
}

func (s *InMemoryStore) Create(_ context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = cloneReport(r)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id domain.ReportID) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	return cloneReport(r), nil
}

func (s *InMemoryStore) Update(_ context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[r.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	s.reports[r.ID] = cloneReport(r)
	return nil
}

func (s *InMemoryStore) ListByReporter(_ context.Context, reporterID domain.UserID) ([]*Report, error) {
	return s.listWhere(func(r *Report) bool { return r.ReporterID == reporterID }), nil
}

func (s *InMemoryStore) List(_ context.Context, status Status) ([]*Report, error) {
	return s.listWhere(func(r *Report) bool { return status == "" || r.Status == status }), nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int)
	for _, r := range s.reports {
		counts[r.Status]++
	}
	return counts, nil
}

func (s *InMemoryStore) listWhere(match func(*Report) bool) []*Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Report
	for _, r := range s.reports {
		if match(r) {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneReport(r *Report) *Report {
	cp := *r
	if r.ReviewerID != nil {
		id := *r.ReviewerID
		cp.ReviewerID = &id
	}
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		cp.ReviewedAt = &at
	}
	return &cp
}
