// Package handler exposes the consent lifecycle endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"datashare/internal/consent"
	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/platform/httputil"
	"datashare/pkg/requestcontext"
)

// Service is the slice of the consent service the HTTP layer needs.
type Service interface {
	RequestAccess(ctx context.Context, requesterID domain.UserID, dataID domain.DataID, purpose string) (*consent.Consent, error)
	Approve(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	Reject(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	Revoke(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	Get(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	AccessHistory(ctx context.Context, actorID domain.UserID, dataID domain.DataID) ([]*consent.Consent, error)
	ListRequests(ctx context.Context, requesterID domain.UserID) ([]*consent.Consent, error)
	ListIncoming(ctx context.Context, ownerID domain.UserID, status consent.Status) ([]*consent.Consent, error)
}

// Handler handles consent endpoints.
type Handler struct {
	svc     Service
	logger  *slog.Logger
	metrics *metrics.Metrics

	validator  middleware.JWTValidator
	revChecker middleware.TokenRevocationChecker
}

func New(svc Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.JWTValidator, revChecker middleware.TokenRevocationChecker) *Handler {
	return &Handler{
		svc:        svc,
		logger:     logger,
		metrics:    m,
		validator:  validator,
		revChecker: revChecker,
	}
}

// Register mounts the consent routes.
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
	router.Use(middleware.RequireAuth(h.validator, h.revChecker, h.logger))

	router.Post("/request", h.handleRequest)
	router.Get("/my-requests", h.handleListRequests)
	router.Get("/incoming", h.handleListIncoming)
	router.Get("/data/{dataId}/history", h.handleAccessHistory)
	router.Get("/{id}", h.handleGet)
	router.Post("/{id}/approve", h.handleApprove)
	router.Post("/{id}/reject", h.handleReject)
	router.Post("/{id}/revoke", h.handleRevoke)

	r.Mount("/consent", router)
}

type requestAccessRequest struct {
	DataID  string `json:"dataId"`
	Purpose string `json:"purpose"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req requestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	dataID, err := domain.ParseDataID(req.DataID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.svc.RequestAccess(ctx, requestcontext.UserID(ctx), dataID, req.Purpose)
	if err != nil {
		h.writeServiceError(ctx, w, err, "consent request failed")
		return
	}

	h.metrics.ConsentTransitions.WithLabelValues("requested").Inc()
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"consent": c}, "access requested")
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approved", h.svc.Approve, "access approved")
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "rejected", h.svc.Reject, "access rejected")
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "revoked", h.svc.Revoke, "access revoked")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, label string,
	op func(context.Context, domain.UserID, domain.ConsentID) (*consent.Consent, error), message string) {
	ctx := r.Context()

	id, err := domain.ParseConsentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := op(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "consent transition failed")
		return
	}

	h.metrics.ConsentTransitions.WithLabelValues(label).Inc()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consent": c}, message)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseConsentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.svc.Get(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load consent")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consent": c}, "")
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	consents, err := h.svc.ListRequests(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list requests")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": consents}, "")
}

func (h *Handler) handleListIncoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := consent.Status(r.URL.Query().Get("status"))
	consents, err := h.svc.ListIncoming(ctx, requestcontext.UserID(ctx), status)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list incoming requests")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": consents}, "")
}

func (h *Handler) handleAccessHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dataID, err := domain.ParseDataID(chi.URLParam(r, "dataId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	consents, err := h.svc.AccessHistory(ctx, requestcontext.UserID(ctx), dataID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load access history")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": consents}, "")
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, logMsg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
