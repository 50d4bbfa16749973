// Package identity manages user accounts: registration, authentication,
// password reset, profile upkeep, suspension, and the scheduled-deletion
// lifecycle.
package identity

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"datashare/internal/record"
	"datashare/pkg/domain"
)

// User is an account. PasswordHash and the OTP pair never serialize.
type User struct {
	ID                   domain.UserID `json:"id"`
	RefID                string        `json:"refId"`
	Email                string        `json:"email"`
	Name                 string        `json:"name"`
	PasswordHash         string        `json:"-"`
	Role                 domain.Role   `json:"role"`
	Phone                string        `json:"phone,omitempty"`
	PhoneNormalized      string        `json:"-"`
	ReferenceDescription string        `json:"referenceDescription,omitempty"`
	Suspended            bool          `json:"suspended"`
	DeletionRequestedAt  *time.Time    `json:"deletionRequestedAt,omitempty"`
	DeletionScheduledFor *time.Time    `json:"deletionScheduledFor,omitempty"`
	ResetOTP             *string       `json:"-"`
	ResetOTPExpires      *time.Time    `json:"-"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// Snapshot captures the identifying fields denormalized onto owned records.
func (u *User) Snapshot() record.OwnerSnapshot {
	return record.OwnerSnapshot{
		RefID:                u.RefID,
		UUID:                 u.ID.String(),
		Name:                 u.Name,
		Email:                u.Email,
		Phone:                u.Phone,
		ReferenceDescription: u.ReferenceDescription,
	}
}

// PurgeEligible reports whether the account's deletion grace has lapsed.
func (u *User) PurgeEligible(now time.Time) bool {
	return u.DeletionScheduledFor != nil && !u.DeletionScheduledFor.After(now)
}

const refIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewRefID generates a human-quotable reference ID in the form
// USER_<ts36>_<rand>, e.g. USER_LXK29A_F3QZ8M.
func NewRefID(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = refIDAlphabet[int(buf[i])%len(refIDAlphabet)]
	}
	return "USER_" + ts + "_" + string(buf)
}
