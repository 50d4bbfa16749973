package record

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datashare/internal/audit"
	"datashare/internal/blob"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

type fakeAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeAuditor) Publish(_ context.Context, event audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeAuditor) actions() []audit.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.Action, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Action)
	}
	return out
}

type serviceFixture struct {
	svc     *Service
	store   *InMemoryStore
	blobs   *blob.MemoryStore
	auditor *fakeAuditor
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:   NewInMemoryStore(),
		blobs:   blob.NewMemoryStore(),
		auditor: &fakeAuditor{},
	}
	f.svc = NewService(f.store, f.blobs, f.auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func ownerSnapshot() OwnerSnapshot {
	return OwnerSnapshot{
		RefID: "USER_ABC123_XYZ999",
		UUID:  "11111111-1111-1111-1111-111111111111",
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
	}
}

func textUpload() UploadInput {
	return UploadInput{
		Title:   "Blood Test Results",
		Kind:    KindText,
		Content: "hemoglobin 13.5 g/dL",
		Tags:    []string{"health", "lab"},
	}
}

func TestUploadTextRecord(t *testing.T) {
	f := newFixture(t)
	ownerID := domain.NewUserID()

	rec, err := f.svc.Upload(context.Background(), ownerID, ownerSnapshot(), textUpload())
	require.NoError(t, err)

	assert.Equal(t, ownerID, rec.OwnerID)
	assert.Equal(t, "General", rec.Category)
	assert.Equal(t, KindText, rec.Kind)
	assert.Equal(t, "Ada Lovelace", rec.Owner.Name)
	assert.Contains(t, f.auditor.actions(), audit.ActionDataUpload)
}

func TestUploadTextRequiresContent(t *testing.T) {
	f := newFixture(t)

	in := textUpload()
	in.Content = ""
	_, err := f.svc.Upload(context.Background(), domain.NewUserID(), ownerSnapshot(), in)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestUploadRequiresTitle(t *testing.T) {
	f := newFixture(t)

	in := textUpload()
	in.Title = "   "
	_, err := f.svc.Upload(context.Background(), domain.NewUserID(), ownerSnapshot(), in)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestUploadFileStoresBlob(t *testing.T) {
	f := newFixture(t)

	in := UploadInput{
		Title:     "Scan",
		Kind:      KindFile,
		FileBytes: []byte("%PDF-1.4 fake"),
		FileName:  "scan.pdf",
	}
	rec, err := f.svc.Upload(context.Background(), domain.NewUserID(), ownerSnapshot(), in)
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", rec.FileMime)
	assert.Equal(t, int64(len(in.FileBytes)), rec.FileSize)
	require.NotEmpty(t, rec.FileRef)

	obj, err := f.svc.FetchFile(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, in.FileBytes, obj.Content)
}

func TestUploadFileRequiresBytes(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), domain.NewUserID(), ownerSnapshot(), UploadInput{
		Title: "Scan",
		Kind:  KindFile,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestGetHidesSoftDeleted(t *testing.T) {
	f := newFixture(t)
	ownerID := domain.NewUserID()

	rec, err := f.svc.Upload(context.Background(), ownerID, ownerSnapshot(), textUpload())
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDelete(context.Background(), ownerID, rec.ID))

	_, err = f.svc.Get(context.Background(), rec.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Contains(t, f.auditor.actions(), audit.ActionDataDelete)
}

func TestUpdateOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ownerID := domain.NewUserID()

	rec, err := f.svc.Upload(context.Background(), ownerID, ownerSnapshot(), textUpload())
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), domain.NewUserID(), rec.ID, titleUpdate("Stolen"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	updated, err := f.svc.Update(context.Background(), ownerID, rec.ID, titleUpdate("Renamed"))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Contains(t, f.auditor.actions(), audit.ActionDataUpdate)
}

func titleUpdate(title string) UpdateInput {
	return UpdateInput{Title: &title}
}

func TestUpdateTogglesDownload(t *testing.T) {
	f := newFixture(t)
	ownerID := domain.NewUserID()

	rec, err := f.svc.Upload(context.Background(), ownerID, ownerSnapshot(), textUpload())
	require.NoError(t, err)
	assert.False(t, rec.AllowDownload)

	allow := true
	updated, err := f.svc.Update(context.Background(), ownerID, rec.ID, UpdateInput{AllowDownload: &allow})
	require.NoError(t, err)
	assert.True(t, updated.AllowDownload)
}

func TestSoftDeleteOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ownerID := domain.NewUserID()

	rec, err := f.svc.Upload(context.Background(), ownerID, ownerSnapshot(), textUpload())
	require.NoError(t, err)

	err = f.svc.SoftDelete(context.Background(), domain.NewUserID(), rec.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestDiscoverExcludesCallerAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()

	mine, err := f.svc.Upload(ctx, alice, ownerSnapshot(), textUpload())
	require.NoError(t, err)

	theirs := textUpload()
	theirs.Title = "X-Ray"
	visible, err := f.svc.Upload(ctx, bob, ownerSnapshot(), theirs)
	require.NoError(t, err)

	gone := textUpload()
	gone.Title = "Old Scan"
	deleted, err := f.svc.Upload(ctx, bob, ownerSnapshot(), gone)
	require.NoError(t, err)
	require.NoError(t, f.svc.SoftDelete(ctx, bob, deleted.ID))

	recs, page, err := f.svc.Discover(ctx, alice, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, visible.ID, recs[0].ID)
	assert.Equal(t, 1, page.Total)
	assert.NotEqual(t, mine.ID, recs[0].ID)
}

func TestAdminListSeesDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ownerID := domain.NewUserID()

	rec, err := f.svc.Upload(ctx, ownerID, ownerSnapshot(), textUpload())
	require.NoError(t, err)
	require.NoError(t, f.svc.SoftDelete(ctx, ownerID, rec.ID))

	recs, _, err := f.svc.AdminList(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRefreshOwnerSnapshotFansOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ownerID := domain.NewUserID()

	rec, err := f.svc.Upload(ctx, ownerID, ownerSnapshot(), textUpload())
	require.NoError(t, err)

	snap := ownerSnapshot()
	snap.Name = "Ada Byron"
	require.NoError(t, f.svc.RefreshOwnerSnapshot(ctx, ownerID, snap))

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Byron", got.Owner.Name)
}
