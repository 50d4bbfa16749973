// Package access is the read-side gate consulted on every view and download.
// It holds no state of its own: every decision is re-evaluated against the
// consent ledger and the record's current flags, since both expiry and the
// download permission are time- and owner-mutable.
package access

import (
	"context"
	"time"

	"datashare/internal/record"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/requestcontext"
)

// ConsentChecker reports whether an approved, unexpired consent exists for
// (data, requester).
type ConsentChecker interface {
	HasActive(ctx context.Context, dataID domain.DataID, requesterID domain.UserID, now time.Time) (bool, error)
}

// RecordSource resolves data records including soft-deleted rows; the gate
// treats a deleted record as invisible to everyone.
type RecordSource interface {
	GetByID(ctx context.Context, id domain.DataID) (*record.DataRecord, error)
}

// Gate decides view and download permission per (record, user).
type Gate struct {
	records  RecordSource
	consents ConsentChecker
}

func NewGate(records RecordSource, consents ConsentChecker) *Gate {
	return &Gate{records: records, consents: consents}
}

// CanView reports whether userID may read the record's content right now.
// Owners always may; anyone else needs an active consent. Soft-deleted
// records are invisible to everyone, owner included.
func (g *Gate) CanView(ctx context.Context, dataID domain.DataID, userID domain.UserID) (bool, error) {
	rec, err := g.records.GetByID(ctx, dataID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return g.canView(ctx, rec, userID)
}

// CanDownload reports whether userID may download the record's file right
// now. Non-owners additionally need the record's download flag, read fresh
// on every call: an owner flipping it off blocks downloads immediately, no
// revocation required.
func (g *Gate) CanDownload(ctx context.Context, dataID domain.DataID, userID domain.UserID) (bool, error) {
	rec, err := g.records.GetByID(ctx, dataID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if rec.Deleted {
		return false, nil
	}
	if rec.OwnerID == userID {
		return true, nil
	}
	if !rec.AllowDownload {
		return false, nil
	}
	return g.canView(ctx, rec, userID)
}

func (g *Gate) canView(ctx context.Context, rec *record.DataRecord, userID domain.UserID) (bool, error) {
	if rec.Deleted {
		return false, nil
	}
	if rec.OwnerID == userID {
		return true, nil
	}
	return g.consents.HasActive(ctx, rec.ID, userID, requestcontext.Now(ctx))
}
