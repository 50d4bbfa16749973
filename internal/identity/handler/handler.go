// Package handler exposes the auth and account endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"datashare/internal/identity"
	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/platform/httputil"
	"datashare/pkg/requestcontext"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

// Service is the slice of the identity service the HTTP layer needs.
type Service interface {
	Register(ctx context.Context, in identity.RegisterInput) (*identity.User, error)
	Login(ctx context.Context, email, password string) (string, *identity.User, error)
	ForgotPassword(ctx context.Context, phone string) (time.Time, error)
	ResetPassword(ctx context.Context, phone, otp, newPassword string) error
	Get(ctx context.Context, id domain.UserID) (*identity.User, error)
	UpdateProfile(ctx context.Context, id domain.UserID, in identity.UpdateProfileInput) (*identity.User, error)
	RequestDeletion(ctx context.Context, id domain.UserID) (*identity.User, error)
	CancelDeletion(ctx context.Context, id domain.UserID) (*identity.User, error)
	Identify(ctx context.Context, q identity.IdentifyQuery) ([]*identity.User, error)
}

// JTIExtractor pulls the token ID and expiry out of a raw bearer token so
// logout can denylist exactly that token for exactly its remaining life.
type JTIExtractor interface {
	ExtractJTI(tokenString string) (string, time.Time, error)
}

// TokenRevoker denylists a token ID.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// Handler handles auth and account endpoints.
type Handler struct {
	svc         Service
	tokens      JTIExtractor
	revocations TokenRevoker
	logger      *slog.Logger
	metrics     *metrics.Metrics

	validator  middleware.JWTValidator
	revChecker middleware.TokenRevocationChecker
}

func New(svc Service, tokens JTIExtractor, revocations TokenRevoker, logger *slog.Logger, m *metrics.Metrics, validator middleware.JWTValidator, revChecker middleware.TokenRevocationChecker) *Handler {
	return &Handler{
		svc:         svc,
		tokens:      tokens,
		revocations: revocations,
		logger:      logger,
		metrics:     m,
		validator:   validator,
		revChecker:  revChecker,
	}
}

// Register mounts the auth routes.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.Latency(h.metrics))

	// Credential endpoints take unauthenticated traffic, so they get a per-IP
	// rate limit against credential stuffing and OTP brute force.
	router.Group(func(pub chi.Router) {
		pub.Use(middleware.RateLimit(authRateLimit, authRateWindow))
		pub.Post("/register", h.handleRegister)
		pub.Post("/login", h.handleLogin)
		pub.Post("/forgot-password", h.handleForgotPassword)
		pub.Post("/reset-password", h.handleResetPassword)
	})

	router.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireAuth(h.validator, h.revChecker, h.logger))
		pr.Post("/logout", h.handleLogout)
		pr.Get("/me", h.handleMe)
		pr.Put("/profile", h.handleUpdateProfile)
		pr.Post("/delete-account", h.handleRequestDeletion)
		pr.Post("/cancel-deletion", h.handleCancelDeletion)
		pr.Post("/identify-user", h.handleIdentify)
	})

	r.Mount("/auth", router)
}

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	Role                 string `json:"role"`
	Phone                string `json:"phone"`
	ReferenceDescription string `json:"referenceDescription"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	user, err := h.svc.Register(ctx, identity.RegisterInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		Role:                 req.Role,
		Phone:                req.Phone,
		ReferenceDescription: req.ReferenceDescription,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "registration failed")
		return
	}

	h.metrics.UsersRegistered.Inc()
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"user": user}, "account created")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	token, user, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.metrics.Logins.WithLabelValues("failure").Inc()
		h.writeServiceError(ctx, w, err, "login failed")
		return
	}

	h.metrics.Logins.WithLabelValues("success").Inc()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	}, "login successful")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	jti, expiresAt, err := h.tokens.ExtractJTI(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if ttl := time.Until(expiresAt); ttl > 0 {
		if err := h.revocations.Revoke(ctx, jti, ttl); err != nil {
			h.logger.ErrorContext(ctx, "failed to revoke token on logout",
				"request_id", requestcontext.RequestID(ctx), "error", err)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "logout failed"))
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, nil, "logged out")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.svc.Get(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": user}, "")
}

type updateProfileRequest struct {
	Name                 *string `json:"name"`
	Phone                *string `json:"phone"`
	ReferenceDescription *string `json:"referenceDescription"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	user, err := h.svc.UpdateProfile(ctx, requestcontext.UserID(ctx), identity.UpdateProfileInput{
		Name:                 req.Name,
		Phone:                req.Phone,
		ReferenceDescription: req.ReferenceDescription,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "profile update failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": user}, "profile updated")
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	expiresAt, err := h.svc.ForgotPassword(ctx, req.Phone)
	if err != nil {
		h.writeServiceError(ctx, w, err, "password reset request failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"expiresAt": expiresAt.Format(time.RFC3339),
	}, "OTP sent")
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Phone       string `json:"phone"`
		OTP         string `json:"otp"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	if err := h.svc.ResetPassword(ctx, req.Phone, req.OTP, req.NewPassword); err != nil {
		h.writeServiceError(ctx, w, err, "password reset failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil, "password updated")
}

func (h *Handler) handleRequestDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.svc.RequestDeletion(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "deletion request failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": user}, "account deletion scheduled")
}

func (h *Handler) handleCancelDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.svc.CancelDeletion(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "deletion cancellation failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": user}, "account deletion canceled")
}

type identifyRequest struct {
	RefID string `json:"refId"`
	UUID  string `json:"uuid"`
	Email string `json:"email"`
}

// handleIdentify looks up users by stable identifiers so a service user can
// confirm who they are about to request data from.
func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	users, err := h.svc.Identify(ctx, identity.IdentifyQuery{
		RefID: req.RefID,
		UUID:  req.UUID,
		Email: req.Email,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "user identification failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"users": users}, "")
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, logMsg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
