package consent

import (
	"context"
	"time"

	"datashare/pkg/domain"
)

// Store persists consents. Transitions are compare-and-set: each one names
// the state it moves from, and a consent no longer in that state fails with
// CodeInvalidState so two racing actors cannot both win.
type Store interface {
	// Create inserts a pending consent. It fails with CodeConflict when a
	// blocking consent (pending, or approved and unexpired) already exists
	// for the same (data, requester) pair.
	Create(ctx context.Context, c *Consent) error

	GetByID(ctx context.Context, id domain.ConsentID) (*Consent, error)

	// GetCurrent returns the newest consent for (data, requester), or
	// CodeNotFound when the pair has no history.
	GetCurrent(ctx context.Context, dataID domain.DataID, requesterID domain.UserID) (*Consent, error)

	// Approve moves pending → approved, stamping the approval time and
	// expiry. CodeInvalidState when the row is not pending.
	Approve(ctx context.Context, id domain.ConsentID, approvedAt, expiresAt time.Time) (*Consent, error)

	// Reject moves pending → rejected.
	Reject(ctx context.Context, id domain.ConsentID) (*Consent, error)

	// Revoke moves approved → revoked, stamping the revocation time.
	Revoke(ctx context.Context, id domain.ConsentID, revokedAt time.Time) (*Consent, error)

	// HasActive reports whether (data, requester) holds an approved consent
	// with expiry after now. The access gate calls this on every read.
	HasActive(ctx context.Context, dataID domain.DataID, requesterID domain.UserID, now time.Time) (bool, error)

	// ListByData returns every consent for a record, newest first.
	ListByData(ctx context.Context, dataID domain.DataID) ([]*Consent, error)

	// ListByRequester returns every consent a user has requested, newest first.
	ListByRequester(ctx context.Context, requesterID domain.UserID) ([]*Consent, error)

	// ListByOwner returns consents against a user's records, newest first,
	// optionally narrowed to one status.
	ListByOwner(ctx context.Context, ownerID domain.UserID, status Status) ([]*Consent, error)

	// SweepExpired bulk-revokes approved consents whose expiry has passed,
	// stamping RevokedAt with each row's own expiry. Returns the number of
	// rows transitioned. Idempotent.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// ListAll returns the newest consents across all users, for moderation,
	// optionally narrowed to one status.
	ListAll(ctx context.Context, status Status, limit int) ([]*Consent, error)

	CountByStatus(ctx context.Context) (map[Status]int, error)
}
