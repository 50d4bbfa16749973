package identity

import (
	"context"
	"time"

	"datashare/pkg/domain"
)

// ListFilter narrows the admin user listing.
type ListFilter struct {
	Role   domain.Role
	Search string // matches name, email, or refId, case-insensitive
	Page   int
	Limit  int
}

// Normalize clamps pagination to sane bounds.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
}

// IdentifyQuery looks users up by one of their public identifiers.
type IdentifyQuery struct {
	RefID string
	UUID  string
	Email string
}

// Store persists users. Create returns CodeConflict on a duplicate email.
type Store interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id domain.UserID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phoneNormalized string) (*User, error)
	GetByRefID(ctx context.Context, refID string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id domain.UserID) error
	List(ctx context.Context, filter ListFilter) ([]*User, int, error)
	ListPurgeDue(ctx context.Context, now time.Time) ([]*User, error)
	Identify(ctx context.Context, q IdentifyQuery, limit int) ([]*User, error)
	CountByRole(ctx context.Context) (map[domain.Role]int, error)
}
