package identity

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datashare/internal/audit"
	"datashare/internal/notify"
	"datashare/internal/record"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/requestcontext"
)

type fakeTokenIssuer struct{}

func (fakeTokenIssuer) GenerateAccessToken(domain.UserID, domain.Role, time.Time) (string, error) {
	return "test-token", nil
}
func (fakeTokenIssuer) TokenTTL() time.Duration { return time.Hour }

type fakeRevoker struct {
	mu      sync.Mutex
	revoked []string
}

func (f *fakeRevoker) RevokeUser(_ context.Context, userID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeCatalog struct {
	mu          sync.Mutex
	refreshed   []record.OwnerSnapshot
	softDeleted []domain.UserID
}

func (f *fakeCatalog) RefreshOwnerSnapshot(_ context.Context, _ domain.UserID, snap record.OwnerSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, snap)
	return nil
}

func (f *fakeCatalog) SoftDeleteByOwner(_ context.Context, ownerID domain.UserID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.softDeleted = append(f.softDeleted, ownerID)
	return 1, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (f *fakeDispatcher) Dispatch(_ context.Context, msg notify.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

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
	var out []audit.Action
	for _, e := range f.events {
		out = append(out, e.Action)
	}
	return out
}

type serviceFixture struct {
	svc      *Service
	store    *InMemoryStore
	revoker  *fakeRevoker
	catalog  *fakeCatalog
	notifier *fakeDispatcher
	auditor  *fakeAuditor
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:    NewInMemoryStore(),
		revoker:  &fakeRevoker{},
		catalog:  &fakeCatalog{},
		notifier: &fakeDispatcher{},
		auditor:  &fakeAuditor{},
	}
	f.svc = NewService(f.store, fakeTokenIssuer{}, f.revoker, f.catalog,
		f.notifier, f.auditor, slog.New(slog.DiscardHandler), 7*24*time.Hour)
	return f
}

func validRegister() RegisterInput {
	return RegisterInput{
		Name:     "Ada Lovelace",
		Email:    "Ada@Example.com",
		Password: "secret123",
		Phone:    "+1 (555) 010-2030",
	}
}

func Test_Register_DefaultsRoleAndNormalizes(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	assert.Equal(t, domain.RoleServiceUser, user.Role)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "15550102030", user.PhoneNormalized)
	assert.True(t, len(user.RefID) > 5 && user.RefID[:5] == "USER_")
	assert.NotEqual(t, "secret123", user.PasswordHash)
	assert.Contains(t, f.auditor.actions(), audit.ActionUserRegister)
}

func Test_Register_RejectsAdminSelfAssignment(t *testing.T) {
	f := newFixture(t)
	in := validRegister()
	in.Role = "admin"

	_, err := f.svc.Register(context.Background(), in)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_Register_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), validRegister())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func Test_Register_ShortPasswordRejected(t *testing.T) {
	f := newFixture(t)
	in := validRegister()
	in.Password = "short"

	_, err := f.svc.Register(context.Background(), in)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_Login_HappyPath(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	token, user, err := f.svc.Login(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Contains(t, f.auditor.actions(), audit.ActionLogin)
}

func Test_Login_WrongPasswordUnauthorized(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	_, _, err = f.svc.Login(context.Background(), "ada@example.com", "wrong-pass")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, f.auditor.actions(), audit.ActionLoginFailed)
}

func Test_Login_UnknownEmailUnauthorized(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Login(context.Background(), "nobody@example.com", "whatever")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Login_SuspendedForbidden(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	_, err = f.svc.SetSuspended(context.Background(), domain.NewUserID(), user.ID, true)
	require.NoError(t, err)

	_, _, err = f.svc.Login(context.Background(), "ada@example.com", "secret123")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func Test_Login_PastDeletionDatePurges(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	_, err = f.svc.RequestDeletion(context.Background(), user.ID)
	require.NoError(t, err)

	// Log in after the 7-day grace has lapsed.
	later := requestcontext.WithTime(context.Background(), time.Now().Add(8*24*time.Hour))
	_, _, err = f.svc.Login(later, "ada@example.com", "secret123")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	// The account is gone and its records were soft-deleted.
	_, err = f.store.GetByID(context.Background(), user.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Equal(t, []domain.UserID{user.ID}, f.catalog.softDeleted)
}

func Test_Login_CancelsPendingDeletion(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	_, err = f.svc.RequestDeletion(context.Background(), user.ID)
	require.NoError(t, err)

	_, logged, err := f.svc.Login(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Nil(t, logged.DeletionRequestedAt)
	assert.Nil(t, logged.DeletionScheduledFor)
}

func Test_PasswordReset_Flow(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	_, err = f.svc.ForgotPassword(context.Background(), "+1 (555) 010-2030")
	require.NoError(t, err)

	stored, err := f.store.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetOTP)
	otp := *stored.ResetOTP
	assert.Len(t, otp, 6)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notify.TemplatePasswordOTP, f.notifier.sent[0].Template)

	// Wrong OTP refused.
	err = f.svc.ResetPassword(context.Background(), "15550102030", "000000", "newsecret")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	// Correct OTP resets the password.
	require.NoError(t, f.svc.ResetPassword(context.Background(), "15550102030", otp, "newsecret"))

	_, _, err = f.svc.Login(context.Background(), "ada@example.com", "newsecret")
	require.NoError(t, err)

	// OTP is single-use.
	err = f.svc.ResetPassword(context.Background(), "15550102030", otp, "anothersecret")
	require.Error(t, err)
}

func Test_PasswordReset_ExpiredOTP(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	_, err = f.svc.ForgotPassword(context.Background(), "15550102030")
	require.NoError(t, err)

	stored, err := f.store.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)

	later := requestcontext.WithTime(context.Background(), time.Now().Add(11*time.Minute))
	err = f.svc.ResetPassword(later, "15550102030", *stored.ResetOTP, "newsecret")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.Contains(t, err.Error(), "expired")
}

func Test_UpdateProfile_RefreshesSnapshots(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	newName := "Ada Byron"
	updated, err := f.svc.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Ada Byron", updated.Name)

	require.Len(t, f.catalog.refreshed, 1)
	assert.Equal(t, "Ada Byron", f.catalog.refreshed[0].Name)
	assert.Equal(t, user.RefID, f.catalog.refreshed[0].RefID)
}

func Test_SetSuspended_RevokesTokens(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	admin := domain.NewUserID()
	updated, err := f.svc.SetSuspended(context.Background(), admin, user.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Suspended)
	assert.Equal(t, []string{user.ID.String()}, f.revoker.revoked)

	// Reinstating does not revoke again.
	updated, err = f.svc.SetSuspended(context.Background(), admin, user.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Suspended)
	assert.Len(t, f.revoker.revoked, 1)
}

func Test_PurgeDue_RemovesLapsedAccounts(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)
	_, err = f.svc.RequestDeletion(context.Background(), user.ID)
	require.NoError(t, err)

	other := validRegister()
	other.Email = "grace@example.com"
	other.Phone = "+1 555 777 8888"
	kept, err := f.svc.Register(context.Background(), other)
	require.NoError(t, err)

	// Before the grace lapses nothing is purged.
	n, err := f.svc.PurgeDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.PurgeDue(context.Background(), time.Now().Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.store.GetByID(context.Background(), user.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = f.store.GetByID(context.Background(), kept.ID)
	assert.NoError(t, err)
	assert.Contains(t, f.auditor.actions(), audit.ActionUserPurged)
}

func Test_Identify_RequiresCriterion(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Identify(context.Background(), IdentifyQuery{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_Resolve_ByUUIDAndRefID(t *testing.T) {
	f := newFixture(t)
	user, err := f.svc.Register(context.Background(), validRegister())
	require.NoError(t, err)

	byUUID, err := f.svc.Resolve(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.ID, byUUID.ID)

	byRef, err := f.svc.Resolve(context.Background(), user.RefID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byRef.ID)

	_, err = f.svc.Resolve(context.Background(), "USER_NOPE_XXXXXX")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
