// Package revocation tracks revoked token IDs so logout and account
// suspension take effect before tokens naturally expire.
package revocation

import (
	"context"
	"time"
)

// Store is a token denylist. Entries carry a TTL matching the token lifetime
// so the list never grows past the set of still-live tokens. User-level
// entries deny every outstanding token for an account, which is how
// suspension takes effect immediately.
type Store interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	IsUserRevoked(ctx context.Context, userID string) (bool, error)
}
