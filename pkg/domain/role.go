package domain

import dErrors "datashare/pkg/domain-errors"

// Role tags a user with one of the three capability sets. Services switch on
// Role exhaustively; parsing here keeps string comparisons out of business
// logic.
type Role string

const (
	RoleDataOwner   Role = "data_owner"
	RoleServiceUser Role = "service_user"
	RoleAdmin       Role = "admin"
)

// ParseRole validates a role string from the API boundary.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDataOwner, RoleServiceUser, RoleAdmin:
		return Role(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role: %s", s)
}

func (r Role) String() string { return string(r) }

// IsAdmin reports whether the role carries admin capabilities.
func (r Role) IsAdmin() bool { return r == RoleAdmin }
