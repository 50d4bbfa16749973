package audit

import "context"

// Filter narrows an audit log query. Zero values mean "no constraint".
type Filter struct {
	Action  Action
	ActorID string
	Limit   int
}

// Store persists audit events. Append-only; List exists for the admin
// surface, never for request-path decisions.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}
