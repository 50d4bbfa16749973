package record

import (
	"context"

	"datashare/pkg/domain"
)

// Store persists data records. GetByID returns soft-deleted rows as well;
// callers decide whether a deleted row is visible.
type Store interface {
	Create(ctx context.Context, rec *DataRecord) error
	GetByID(ctx context.Context, id domain.DataID) (*DataRecord, error)
	Update(ctx context.Context, rec *DataRecord) error
	ListByOwner(ctx context.Context, ownerID domain.UserID) ([]*DataRecord, error)
	List(ctx context.Context, filter Filter) ([]*DataRecord, int, error)
	SoftDeleteByOwner(ctx context.Context, ownerID domain.UserID) (int, error)
	RefreshOwnerSnapshot(ctx context.Context, ownerID domain.UserID, snap OwnerSnapshot) error
	Count(ctx context.Context) (int, error)
}
