package identity

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"golang.org/x/crypto/bcrypt"

	"datashare/internal/audit"
	"datashare/internal/notify"
	"datashare/internal/record"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/phone"
	"datashare/pkg/requestcontext"
)

const (
	minPasswordLength = 6
	otpValidity       = 10 * time.Minute
	identifyLimit     = 10
)

// TokenIssuer mints access tokens after a successful login.
type TokenIssuer interface {
	GenerateAccessToken(userID domain.UserID, role domain.Role, now time.Time) (string, error)
	TokenTTL() time.Duration
}

// UserRevoker denylists every outstanding token for an account.
type UserRevoker interface {
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
}

// RecordCatalog is the slice of the record service identity needs: snapshot
// refresh after profile edits and soft deletion during purge.
type RecordCatalog interface {
	RefreshOwnerSnapshot(ctx context.Context, ownerID domain.UserID, snap record.OwnerSnapshot) error
	SoftDeleteByOwner(ctx context.Context, ownerID domain.UserID) (int, error)
}

// Dispatcher delivers best-effort notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// AuditSink records audit events.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Service owns the account lifecycle.
type Service struct {
	store    Store
	tokens   TokenIssuer
	revoker  UserRevoker
	records  RecordCatalog
	notifier Dispatcher
	auditor  AuditSink
	logger   *slog.Logger

	deletionGrace time.Duration
}

func NewService(
	store Store,
	tokens TokenIssuer,
	revoker UserRevoker,
	records RecordCatalog,
	notifier Dispatcher,
	auditor AuditSink,
	logger *slog.Logger,
	deletionGrace time.Duration,
) *Service {
	return &Service{
		store:         store,
		tokens:        tokens,
		revoker:       revoker,
		records:       records,
		notifier:      notifier,
		auditor:       auditor,
		logger:        logger,
		deletionGrace: deletionGrace,
	}
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	Role                 string
	Phone                string
	ReferenceDescription string
}

// Register creates an account. Role defaults to service_user; admin accounts
// are provisioned out of band, never self-assigned.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" || in.Phone == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "name, email, password, and phone are required")
	}
	if !govalidator.IsEmail(in.Email) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid email")
	}
	if len(in.Password) < minPasswordLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	role := domain.RoleServiceUser
	if in.Role != "" {
		parsed, err := domain.ParseRole(in.Role)
		if err != nil {
			return nil, err
		}
		if parsed == domain.RoleAdmin {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "admin role cannot be self-assigned")
		}
		role = parsed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	user := &User{
		ID:                   domain.NewUserID(),
		RefID:                NewRefID(now),
		Email:                strings.ToLower(strings.TrimSpace(in.Email)),
		Name:                 strings.TrimSpace(in.Name),
		PasswordHash:         string(hash),
		Role:                 role,
		Phone:                strings.TrimSpace(in.Phone),
		PhoneNormalized:      phone.Normalize(in.Phone),
		ReferenceDescription: strings.TrimSpace(in.ReferenceDescription),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      user.ID.String(),
		Action:       audit.ActionUserRegister,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return user, nil
}

// Login authenticates by email and password and returns a signed token.
// Suspended accounts are refused; accounts past their deletion date are
// purged on the spot; a pending deletion is canceled by logging in.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	if email == "" || password == "" {
		return "", nil, dErrors.New(dErrors.CodeInvalidInput, "email and password are required")
	}

	now := requestcontext.Now(ctx)
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	if user.Suspended {
		return "", nil, dErrors.New(dErrors.CodeForbidden, "account is suspended, contact admin")
	}

	if user.PurgeEligible(now) {
		if err := s.purge(ctx, user); err != nil {
			s.logger.ErrorContext(ctx, "failed to purge expired account at login",
				"user_id", user.ID.String(), "error", err)
		}
		return "", nil, dErrors.New(dErrors.CodeForbidden, "account deleted")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.auditor.Publish(ctx, audit.Event{
			ActorID:      user.ID.String(),
			Action:       audit.ActionLoginFailed,
			ResourceType: "user",
			ResourceID:   user.ID.String(),
		})
		return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	// Logging in before the grace elapses cancels the scheduled deletion.
	if user.DeletionRequestedAt != nil || user.DeletionScheduledFor != nil {
		user.DeletionRequestedAt = nil
		user.DeletionScheduledFor = nil
		user.UpdatedAt = now
		if err := s.store.Update(ctx, user); err != nil {
			return "", nil, err
		}
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Role, now)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      user.ID.String(),
		Action:       audit.ActionLogin,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return token, user, nil
}

// ForgotPassword issues a six-digit OTP bound to the account's phone number.
// The OTP is delivered via the notifier and logged for demo setups.
func (s *Service) ForgotPassword(ctx context.Context, rawPhone string) (time.Time, error) {
	if rawPhone == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "phone number is required")
	}
	user, err := s.store.GetByPhone(ctx, phone.Normalize(rawPhone))
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeNotFound, "no account found with that phone number")
	}

	otp, err := generateOTP()
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate OTP")
	}
	now := requestcontext.Now(ctx)
	expires := now.Add(otpValidity)

	user.ResetOTP = &otp
	user.ResetOTPExpires = &expires
	user.UpdatedAt = now
	if err := s.store.Update(ctx, user); err != nil {
		return time.Time{}, err
	}

	s.logger.InfoContext(ctx, "password reset OTP issued",
		"user_id", user.ID.String(), "otp", otp, "expires_at", expires)
	s.notifier.Dispatch(ctx, notify.Message{
		To:       user.Email,
		Template: notify.TemplatePasswordOTP,
		Data:     map[string]any{"otp": otp, "expiresAt": expires},
	})
	return expires, nil
}

// ResetPassword validates the OTP and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, rawPhone, otp, newPassword string) error {
	if rawPhone == "" || otp == "" || newPassword == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "phone, OTP, and new password are required")
	}
	if len(newPassword) < minPasswordLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	user, err := s.store.GetByPhone(ctx, phone.Normalize(rawPhone))
	if err != nil || user.ResetOTP == nil || user.ResetOTPExpires == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "OTP not requested")
	}
	if *user.ResetOTP != otp {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid OTP")
	}
	now := requestcontext.Now(ctx)
	if user.ResetOTPExpires.Before(now) {
		return dErrors.New(dErrors.CodeInvalidInput, "OTP expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user.PasswordHash = string(hash)
	user.ResetOTP = nil
	user.ResetOTPExpires = nil
	user.UpdatedAt = now
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      user.ID.String(),
		Action:       audit.ActionPasswordReset,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id domain.UserID) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// UpdateProfileInput carries partial profile edits; nil means "keep".
type UpdateProfileInput struct {
	Name                 *string
	Phone                *string
	ReferenceDescription *string
}

// UpdateProfile applies the edits and refreshes the owner snapshot on every
// record the user owns, so discovery filters never see stale identity fields.
func (s *Service) UpdateProfile(ctx context.Context, id domain.UserID, in UpdateProfileInput) (*User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil && *in.Name != "" {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil && *in.Phone != "" {
		user.Phone = strings.TrimSpace(*in.Phone)
		user.PhoneNormalized = phone.Normalize(*in.Phone)
	}
	if in.ReferenceDescription != nil {
		user.ReferenceDescription = strings.TrimSpace(*in.ReferenceDescription)
	}
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}

	if err := s.records.RefreshOwnerSnapshot(ctx, user.ID, user.Snapshot()); err != nil {
		// The profile change itself succeeded; stale snapshots heal on the
		// next successful refresh.
		s.logger.ErrorContext(ctx, "failed to refresh owner snapshots",
			"user_id", user.ID.String(), "error", err)
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      user.ID.String(),
		Action:       audit.ActionProfileUpdate,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return user, nil
}

// RequestDeletion schedules the account for purge after the grace period.
func (s *Service) RequestDeletion(ctx context.Context, id domain.UserID) (*User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	scheduled := now.Add(s.deletionGrace)
	user.DeletionRequestedAt = &now
	user.DeletionScheduledFor = &scheduled
	user.UpdatedAt = now
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      user.ID.String(),
		Action:       audit.ActionDeletionRequested,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return user, nil
}

// CancelDeletion clears a pending deletion schedule.
func (s *Service) CancelDeletion(ctx context.Context, id domain.UserID) (*User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.DeletionRequestedAt = nil
	user.DeletionScheduledFor = nil
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}

	s.auditor.Publish(ctx, audit.Event{
		ActorID:      user.ID.String(),
		Action:       audit.ActionDeletionCanceled,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return user, nil
}

// SetSuspended toggles suspension. Suspending pushes the account into the
// token denylist so in-flight bearers die immediately; standing consent
// approvals are deliberately left untouched.
func (s *Service) SetSuspended(ctx context.Context, actorID, id domain.UserID, suspended bool) (*User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Suspended == suspended {
		return user, nil
	}
	user.Suspended = suspended
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}

	action := audit.ActionUserReinstated
	if suspended {
		action = audit.ActionUserSuspended
		if err := s.revoker.RevokeUser(ctx, user.ID.String(), s.tokens.TokenTTL()); err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke tokens for suspended user",
				"user_id", user.ID.String(), "error", err)
		}
	}
	s.auditor.Publish(ctx, audit.Event{
		ActorID:      actorID.String(),
		Action:       action,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return user, nil
}

// PurgeDue permanently removes every account whose deletion grace has lapsed.
// Returns the number purged; individual failures are logged and skipped.
func (s *Service) PurgeDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListPurgeDue(ctx, now)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, user := range due {
		if err := s.purge(ctx, user); err != nil {
			s.logger.ErrorContext(ctx, "failed to purge account",
				"user_id", user.ID.String(), "error", err)
			continue
		}
		purged++
	}
	return purged, nil
}

// purge hard-deletes the user row, soft-deletes their records, and kills any
// outstanding tokens. Consents survive as history rows.
func (s *Service) purge(ctx context.Context, user *User) error {
	if _, err := s.records.SoftDeleteByOwner(ctx, user.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, user.ID); err != nil {
		return err
	}
	if err := s.revoker.RevokeUser(ctx, user.ID.String(), s.tokens.TokenTTL()); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke tokens for purged user",
			"user_id", user.ID.String(), "error", err)
	}
	s.auditor.Publish(ctx, audit.Event{
		Action:       audit.ActionUserPurged,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	return nil
}

// Identify looks users up by a public identifier for owner disambiguation
// before an upload or a consent request. Requires at least one criterion.
func (s *Service) Identify(ctx context.Context, q IdentifyQuery) ([]*User, error) {
	if q.RefID == "" && q.UUID == "" && q.Email == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "provide refId, uuid, or email")
	}
	return s.store.Identify(ctx, q, identifyLimit)
}

// Resolve finds a user by UUID or reference ID, used when reports name their
// target either way.
func (s *Service) Resolve(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user identifier is required")
	}
	if id, err := domain.ParseUserID(identifier); err == nil {
		return s.store.GetByID(ctx, id)
	}
	return s.store.GetByRefID(ctx, identifier)
}

// List is the admin user listing.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*User, int, error) {
	return s.store.List(ctx, filter)
}

// CountByRole feeds the admin statistics endpoint.
func (s *Service) CountByRole(ctx context.Context) (map[domain.Role]int, error) {
	return s.store.CountByRole(ctx)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
