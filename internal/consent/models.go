// Package consent owns the access-grant ledger: one row per attempt by a
// service user to gain time-limited access to a data record. Rows are never
// deleted; the ledger doubles as the access history.
package consent

import (
	"time"

	"datashare/pkg/domain"
)

// Status is the consent lifecycle state.
//
// pending  → approved | rejected
// approved → revoked (by owner, or by the expiry sweep)
//
// rejected and revoked are terminal. A lapsed approval is folded into
// revoked rather than a separate expired status; a RevokedAt equal to
// ExpiresAt marks a sweep transition.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusRevoked  Status = "revoked"
)

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusRevoked:
		return true
	}
	return false
}

// Consent is one access-grant attempt. OwnerID is denormalized from the data
// record so owner-side queries avoid a join.
type Consent struct {
	ID          domain.ConsentID `json:"id"`
	DataID      domain.DataID    `json:"dataId"`
	RequesterID domain.UserID    `json:"requesterId"`
	OwnerID     domain.UserID    `json:"ownerId"`
	Status      Status           `json:"status"`
	Purpose     string           `json:"purpose"`
	ExpiresAt   time.Time        `json:"expiryDate,omitzero"`
	ApprovedAt  *time.Time       `json:"approvedAt,omitempty"`
	RevokedAt   *time.Time       `json:"revokedAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// IsActive reports whether the consent currently grants access.
func (c *Consent) IsActive(now time.Time) bool {
	return c.Status == StatusApproved && now.Before(c.ExpiresAt)
}

// Blocks reports whether this consent prevents a new request for the same
// (data, requester) pair. Pending rows and unexpired approvals block;
// rejected, revoked, and lapsed approvals do not.
func (c *Consent) Blocks(now time.Time) bool {
	return c.Status == StatusPending || c.IsActive(now)
}
