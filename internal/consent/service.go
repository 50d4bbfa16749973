package consent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"datashare/internal/audit"
	"datashare/internal/identity"
	"datashare/internal/notify"
	"datashare/internal/record"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/requestcontext"
)

var tracer = otel.Tracer("datashare/internal/consent")

// RecordSource resolves data records, including soft-deleted ones: a deleted
// record rejects new requests but its consent history stays readable.
type RecordSource interface {
	GetByID(ctx context.Context, id domain.DataID) (*record.DataRecord, error)
}

// UserDirectory resolves users for notification addressing.
type UserDirectory interface {
	GetByID(ctx context.Context, id domain.UserID) (*identity.User, error)
}

// Dispatcher queues a notification without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// AuditSink records audit events.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Service enforces the consent state machine. Every owner-side transition
// checks ownership here; the store enforces the state precondition so racing
// actors cannot both win.
type Service struct {
	store    Store
	records  RecordSource
	users    UserDirectory
	notifier Dispatcher
	auditor  AuditSink
	logger   *slog.Logger

	// grace is how long an approval stays valid.
	grace time.Duration
}

func NewService(store Store, records RecordSource, users UserDirectory, notifier Dispatcher, auditor AuditSink, logger *slog.Logger, grace time.Duration) *Service {
	return &Service{
		store:    store,
		records:  records,
		users:    users,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger,
		grace:    grace,
	}
}

// RequestAccess creates a pending consent for (data, requester). A prior
// consent blocks the request only while pending or approved-and-unexpired;
// a lapsed approval is revoked in passing so the store constraint stays
// consistent.
func (s *Service) RequestAccess(ctx context.Context, requesterID domain.UserID, dataID domain.DataID, purpose string) (*Consent, error) {
	ctx, span := tracer.Start(ctx, "consent.RequestAccess",
		trace.WithAttributes(attribute.String("data.id", dataID.String())))
	defer span.End()

	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "purpose is required")
	}

	rec, err := s.records.GetByID(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, dErrors.New(dErrors.CodeNotFound, "data record not found")
	}
	if rec.OwnerID == requesterID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot request access to your own data")
	}

	now := requestcontext.Now(ctx)

	cur, err := s.store.GetCurrent(ctx, dataID, requesterID)
	switch {
	case err == nil:
		if cur.Status == StatusPending {
			return nil, dErrors.New(dErrors.CodeConflict, "a pending request already exists for this data")
		}
		if cur.IsActive(now) {
			return nil, dErrors.New(dErrors.CodeConflict, "access to this data is already approved")
		}
		if cur.Status == StatusApproved {
			// Lapsed approval the sweep has not reached yet. Revoke it
			// now so the new request can go through.
			if _, err := s.store.Revoke(ctx, cur.ID, now); err != nil && !dErrors.HasCode(err, dErrors.CodeInvalidState) {
				return nil, err
			}
		}
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		return nil, err
	}

	c := &Consent{
		ID:          domain.NewConsentID(),
		DataID:      dataID,
		RequesterID: requesterID,
		OwnerID:     rec.OwnerID,
		Status:      StatusPending,
		Purpose:     purpose,
		CreatedAt:   now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("consent.id", c.ID.String()))

	s.notifyOwner(ctx, c, rec)
	s.auditor.Publish(ctx, audit.Event{
		ActorID:      requesterID.String(),
		Action:       audit.ActionConsentRequested,
		ResourceType: "consent",
		ResourceID:   c.ID.String(),
	})
	return c, nil
}

// Approve moves a pending consent to approved and starts the expiry clock.
// Only the data owner may approve.
func (s *Service) Approve(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*Consent, error) {
	ctx, span := tracer.Start(ctx, "consent.Approve",
		trace.WithAttributes(attribute.String("consent.id", id.String())))
	defer span.End()

	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != actorID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the data owner can approve this request")
	}

	now := requestcontext.Now(ctx)
	updated, err := s.store.Approve(ctx, id, now, now.Add(s.grace))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.notifyRequester(ctx, updated, notify.TemplateConsentApproved, map[string]any{
		"expiresAt": updated.ExpiresAt.Format(time.RFC3339),
	})
	s.auditor.Publish(ctx, audit.Event{
		ActorID:      actorID.String(),
		Action:       audit.ActionConsentApproved,
		ResourceType: "consent",
		ResourceID:   id.String(),
	})
	return updated, nil
}

// Reject moves a pending consent to rejected. Terminal; the requester may
// ask again.
func (s *Service) Reject(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*Consent, error) {
	ctx, span := tracer.Start(ctx, "consent.Reject",
		trace.WithAttributes(attribute.String("consent.id", id.String())))
	defer span.End()

	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != actorID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the data owner can reject this request")
	}

	updated, err := s.store.Reject(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.notifyRequester(ctx, updated, notify.TemplateConsentRejected, nil)
	s.auditor.Publish(ctx, audit.Event{
		ActorID:      actorID.String(),
		Action:       audit.ActionConsentRejected,
		ResourceType: "consent",
		ResourceID:   id.String(),
	})
	return updated, nil
}

// Revoke moves an approved consent to revoked, cutting access immediately.
func (s *Service) Revoke(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*Consent, error) {
	ctx, span := tracer.Start(ctx, "consent.Revoke",
		trace.WithAttributes(attribute.String("consent.id", id.String())))
	defer span.End()

	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != actorID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the data owner can revoke this consent")
	}

	updated, err := s.store.Revoke(ctx, id, requestcontext.Now(ctx))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.notifyRequester(ctx, updated, notify.TemplateConsentRevoked, nil)
	s.auditor.Publish(ctx, audit.Event{
		ActorID:      actorID.String(),
		Action:       audit.ActionConsentRevoked,
		ResourceType: "consent",
		ResourceID:   id.String(),
	})
	return updated, nil
}

// Get returns one consent. Only the requester and the data owner are
// parties to it; everyone else sees forbidden.
func (s *Service) Get(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*Consent, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RequesterID != actorID && c.OwnerID != actorID {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a party to this consent")
	}
	return c, nil
}

// AccessHistory returns every consent ever recorded against a data record,
// newest first. Owner only; the record stays addressable even after
// soft-deletion.
func (s *Service) AccessHistory(ctx context.Context, actorID domain.UserID, dataID domain.DataID) ([]*Consent, error) {
	rec, err := s.records.GetByID(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != actorID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the data owner can view access history")
	}
	return s.store.ListByData(ctx, dataID)
}

// CurrentFor returns the newest consent a requester holds against a data
// record. The record surface uses it to attach consent details when serving
// a consented viewer; callers only ever pass their own requester ID.
func (s *Service) CurrentFor(ctx context.Context, dataID domain.DataID, requesterID domain.UserID) (*Consent, error) {
	return s.store.GetCurrent(ctx, dataID, requesterID)
}

// ListRequests returns the consents a user has requested, newest first.
func (s *Service) ListRequests(ctx context.Context, requesterID domain.UserID) ([]*Consent, error) {
	return s.store.ListByRequester(ctx, requesterID)
}

// ListIncoming returns consents against a user's records, newest first,
// optionally narrowed to one status.
func (s *Service) ListIncoming(ctx context.Context, ownerID domain.UserID, status Status) ([]*Consent, error) {
	if status != "" && !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown status: %s", status)
	}
	return s.store.ListByOwner(ctx, ownerID, status)
}

// SweepExpired revokes every approved consent whose expiry has passed,
// stamping RevokedAt with the sweep time. Safe to run concurrently with
// itself.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "consent.SweepExpired")
	defer span.End()

	n, err := s.store.SweepExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("consents.swept", n))
	if n > 0 {
		s.auditor.Publish(ctx, audit.Event{
			ActorID:      "system",
			Action:       audit.ActionConsentSwept,
			ResourceType: "consent",
		})
	}
	return n, nil
}

// AdminList returns the newest consents across all users, optionally
// narrowed to one status.
func (s *Service) AdminList(ctx context.Context, status Status, limit int) ([]*Consent, error) {
	if status != "" && !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown status: %s", status)
	}
	return s.store.ListAll(ctx, status, limit)
}

// CountByStatus feeds the admin statistics endpoint.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.store.CountByStatus(ctx)
}

func (s *Service) notifyOwner(ctx context.Context, c *Consent, rec *record.DataRecord) {
	if rec.Owner.Email == "" {
		return
	}
	requesterName := c.RequesterID.String()
	if requester, err := s.users.GetByID(ctx, c.RequesterID); err == nil {
		requesterName = requester.Name
	} else {
		s.logger.WarnContext(ctx, "failed to resolve requester for notification",
			"requester_id", c.RequesterID, "error", err)
	}
	s.notifier.Dispatch(ctx, notify.Message{
		To:       rec.Owner.Email,
		Template: notify.TemplateConsentRequested,
		Data: map[string]any{
			"requesterName": requesterName,
			"dataTitle":     rec.Title,
			"purpose":       c.Purpose,
		},
	})
}

func (s *Service) notifyRequester(ctx context.Context, c *Consent, template string, extra map[string]any) {
	requester, err := s.users.GetByID(ctx, c.RequesterID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve requester for notification",
			"requester_id", c.RequesterID, "error", err)
		return
	}
	data := map[string]any{"dataTitle": c.DataID.String()}
	if rec, err := s.records.GetByID(ctx, c.DataID); err == nil {
		data["dataTitle"] = rec.Title
	}
	for k, v := range extra {
		data[k] = v
	}
	s.notifier.Dispatch(ctx, notify.Message{
		To:       requester.Email,
		Template: template,
		Data:     data,
	})
}
