package record

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"datashare/internal/audit"
	"datashare/internal/blob"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/requestcontext"
)

// AuditSink records audit events.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Service owns the record lifecycle. Access decisions live in the access
// package; this service only enforces ownership.
type Service struct {
	store   Store
	blobs   blob.Store
	auditor AuditSink
	logger  *slog.Logger
}

func NewService(store Store, blobs blob.Store, auditor AuditSink, logger *slog.Logger) *Service {
	return &Service{store: store, blobs: blobs, auditor: auditor, logger: logger}
}

// UploadInput carries a new record. Exactly one of Content (text) or
// FileBytes (file) must be set, matching Kind.
type UploadInput struct {
	Title         string
	Description   string
	Category      string
	Tags          []string
	Kind          Kind
	Content       string
	FileBytes     []byte
	FileName      string
	FileMime      string
	ReferenceHint string
	OwnerIdent    string
	AllowDownload bool
}

// Upload stores a record on behalf of its owner, wiring file bytes into the
// blob store and stamping the owner snapshot.
func (s *Service) Upload(ctx context.Context, ownerID domain.UserID, owner OwnerSnapshot, in UploadInput) (*DataRecord, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	if in.Kind == "" {
		in.Kind = KindText
	}

	now := requestcontext.Now(ctx)
	rec := &DataRecord{
		ID:            domain.NewDataID(),
		OwnerID:       ownerID,
		Owner:         owner,
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		Category:      strings.TrimSpace(in.Category),
		Tags:          in.Tags,
		Kind:          in.Kind,
		ReferenceHint: strings.TrimSpace(in.ReferenceHint),
		OwnerIdent:    strings.TrimSpace(in.OwnerIdent),
		AllowDownload: in.AllowDownload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if rec.Category == "" {
		rec.Category = "General"
	}

	switch in.Kind {
	case KindText:
		if in.Content == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "content is required for text data")
		}
		rec.Content = in.Content
	case KindFile:
		if len(in.FileBytes) == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "file is required for file data")
		}
		mime := in.FileMime
		if mime == "" || mime == "application/octet-stream" {
			mime = blob.GuessContentType(in.FileName)
		}
		key := fmt.Sprintf("records/%s/%s", rec.ID.String(), in.FileName)
		ref, err := s.blobs.Put(ctx, key, in.FileBytes, mime)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store file")
		}
		rec.FileRef = ref
		rec.FileName = in.FileName
		rec.FileSize = int64(len(in.FileBytes))
		rec.FileMime = mime
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown data type: %s", in.Kind)
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      ownerID.String(),
		Action:       audit.ActionDataUpload,
		ResourceType: "data",
		ResourceID:   rec.ID.String(),
	})
	return rec, nil
}

// Get returns an active record; soft-deleted rows read as not found.
func (s *Service) Get(ctx context.Context, id domain.DataID) (*DataRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, dErrors.New(dErrors.CodeNotFound, "data record not found")
	}
	return rec, nil
}

// UpdateInput carries partial metadata edits; nil means "keep".
type UpdateInput struct {
	Title         *string
	Description   *string
	Category      *string
	Tags          []string
	Content       *string
	ReferenceHint *string
	OwnerIdent    *string
	AllowDownload *bool
}

// Update applies owner-only metadata edits.
func (s *Service) Update(ctx context.Context, callerID domain.UserID, id domain.DataID, in UpdateInput) (*DataRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != callerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the owner can modify this data")
	}

	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		rec.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		rec.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil && strings.TrimSpace(*in.Category) != "" {
		rec.Category = strings.TrimSpace(*in.Category)
	}
	if in.Tags != nil {
		rec.Tags = in.Tags
	}
	if in.Content != nil && rec.Kind == KindText {
		rec.Content = *in.Content
	}
	if in.ReferenceHint != nil {
		rec.ReferenceHint = strings.TrimSpace(*in.ReferenceHint)
	}
	if in.OwnerIdent != nil {
		rec.OwnerIdent = strings.TrimSpace(*in.OwnerIdent)
	}
	if in.AllowDownload != nil {
		rec.AllowDownload = *in.AllowDownload
	}
	rec.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      callerID.String(),
		Action:       audit.ActionDataUpdate,
		ResourceType: "data",
		ResourceID:   rec.ID.String(),
	})
	return rec, nil
}

// SoftDelete hides a record from every non-admin surface. Owner only.
func (s *Service) SoftDelete(ctx context.Context, callerID domain.UserID, id domain.DataID) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.OwnerID != callerID {
		return dErrors.New(dErrors.CodeForbidden, "only the owner can delete this data")
	}
	rec.Deleted = true
	rec.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, rec); err != nil {
		return err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      callerID.String(),
		Action:       audit.ActionDataDelete,
		ResourceType: "data",
		ResourceID:   rec.ID.String(),
	})
	return nil
}

// Discover lists other users' active records matching the filter.
func (s *Service) Discover(ctx context.Context, callerID domain.UserID, filter Filter) ([]*DataRecord, Pagination, error) {
	filter.ExcludeOwner = callerID
	filter.IncludeDeleted = false
	filter.Normalize()
	recs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, Pagination{}, err
	}
	return recs, NewPagination(total, filter.Page, filter.Limit), nil
}

// ListOwn lists the caller's own active records.
func (s *Service) ListOwn(ctx context.Context, ownerID domain.UserID) ([]*DataRecord, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// AdminList lists all records, including soft-deleted ones.
func (s *Service) AdminList(ctx context.Context, filter Filter) ([]*DataRecord, Pagination, error) {
	filter.IncludeDeleted = true
	filter.Normalize()
	recs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, Pagination{}, err
	}
	return recs, NewPagination(total, filter.Page, filter.Limit), nil
}

// FetchFile resolves a record's file bytes from the blob store.
func (s *Service) FetchFile(ctx context.Context, rec *DataRecord) (*blob.Object, error) {
	if rec.Kind != KindFile || rec.FileRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record has no file attachment")
	}
	obj, err := s.blobs.Fetch(ctx, rec.FileRef)
	if err != nil {
		return nil, err
	}
	if obj.ContentType == "" || obj.ContentType == "application/octet-stream" {
		name := rec.FileName
		if name == "" {
			name = rec.Title
		}
		obj.ContentType = blob.GuessContentType(name)
	}
	return obj, nil
}

// RefreshOwnerSnapshot updates the denormalized owner fields on all records
// the user owns.
func (s *Service) RefreshOwnerSnapshot(ctx context.Context, ownerID domain.UserID, snap OwnerSnapshot) error {
	return s.store.RefreshOwnerSnapshot(ctx, ownerID, snap)
}

// SoftDeleteByOwner hides every record an owner holds. Called during account
// purge.
func (s *Service) SoftDeleteByOwner(ctx context.Context, ownerID domain.UserID) (int, error) {
	return s.store.SoftDeleteByOwner(ctx, ownerID)
}

// Count feeds the admin statistics endpoint.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
