package report

import (
	"context"

	"datashare/pkg/domain"
)

// Store persists reports.
type Store interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id domain.ReportID) (*Report, error)
	Update(ctx context.Context, r *Report) error

	// ListByReporter returns a user's own reports, newest first.
	ListByReporter(ctx context.Context, reporterID domain.UserID) ([]*Report, error)

	// List returns reports newest first, optionally narrowed to one status.
	List(ctx context.Context, status Status) ([]*Report, error)

	CountByStatus(ctx context.Context) (map[Status]int, error)
}
