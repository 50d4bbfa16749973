package report

import (
	"context"
	"log/slog"
	"strings"

	"datashare/internal/audit"
	"datashare/internal/identity"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/requestcontext"
)

// UserResolver turns a user identifier (UUID or reference ID) into an account.
type UserResolver interface {
	Resolve(ctx context.Context, identifier string) (*identity.User, error)
}

// Suspender flips a user's suspension flag.
type Suspender interface {
	SetSuspended(ctx context.Context, actorID, id domain.UserID, suspended bool) (*identity.User, error)
}

// AuditSink records audit events.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Service owns the report lifecycle: creation by any user, review by admins.
type Service struct {
	store     Store
	users     UserResolver
	suspender Suspender
	auditor   AuditSink
	logger    *slog.Logger
}

func NewService(store Store, users UserResolver, suspender Suspender, auditor AuditSink, logger *slog.Logger) *Service {
	return &Service{store: store, users: users, suspender: suspender, auditor: auditor, logger: logger}
}

// CreateInput carries a new complaint. Target accepts a UUID or a reference
// ID so users can report from either identifier they have in hand.
type CreateInput struct {
	Target   string
	Category Category
	Reason   string
	Details  string
}

// Create files a report against the target user.
func (s *Service) Create(ctx context.Context, reporterID domain.UserID, in CreateInput) (*Report, error) {
	if !in.Category.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown report category: %s", in.Category)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reason is required")
	}

	target, err := s.users.Resolve(ctx, in.Target)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeNotFound, "reported user not found")
	}
	if target.ID == reporterID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot report yourself")
	}

	r := &Report{
		ID:         domain.NewReportID(),
		ReporterID: reporterID,
		ReportedID: target.ID,
		Category:   in.Category,
		Reason:     strings.TrimSpace(in.Reason),
		Details:    strings.TrimSpace(in.Details),
		Status:     StatusPending,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      reporterID.String(),
		Action:       audit.ActionReportCreated,
		ResourceType: "report",
		ResourceID:   r.ID.String(),
	})
	return r, nil
}

// ListMine returns the reports a user has filed, newest first.
func (s *Service) ListMine(ctx context.Context, reporterID domain.UserID) ([]*Report, error) {
	return s.store.ListByReporter(ctx, reporterID)
}

// ListAll returns reports for the admin queue, optionally narrowed by status.
func (s *Service) ListAll(ctx context.Context, status Status) ([]*Report, error) {
	if status != "" && status != StatusPending && status != StatusValidated && status != StatusRejected {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown report status: %s", status)
	}
	return s.store.List(ctx, status)
}

// ReviewInput carries an admin verdict.
type ReviewInput struct {
	// Validated accepts the complaint; false rejects it.
	Validated bool
	Note      string

	// Suspend suspends the reported user. Only honored on validation.
	Suspend bool
}

// Review closes a pending report. Validating with Suspend set suspends the
// reported user immediately, revoking their live sessions.
func (s *Service) Review(ctx context.Context, reviewerID domain.UserID, id domain.ReportID, in ReviewInput) (*Report, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "report is already %s", r.Status)
	}

	now := requestcontext.Now(ctx)
	if in.Validated {
		r.Status = StatusValidated
	} else {
		r.Status = StatusRejected
	}
	r.ReviewNote = strings.TrimSpace(in.Note)
	r.ReviewerID = &reviewerID
	r.ReviewedAt = &now

	if in.Validated && in.Suspend {
		if _, err := s.suspender.SetSuspended(ctx, reviewerID, r.ReportedID, true); err != nil {
			return nil, err
		}
		r.SuspensionApplied = true
	}

	if err := s.store.Update(ctx, r); err != nil {
		return nil, err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      reviewerID.String(),
		Action:       audit.ActionReportReviewed,
		ResourceType: "report",
		ResourceID:   r.ID.String(),
	})
	return r, nil
}

// CountByStatus feeds the admin statistics endpoint.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.store.CountByStatus(ctx)
}
