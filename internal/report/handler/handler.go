// Package handler exposes the user-facing report endpoints. Review lives on
// the admin surface.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/internal/report"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/platform/httputil"
	"datashare/pkg/requestcontext"
)

// Service is the slice of the report service the HTTP layer needs.
type Service interface {
	Create(ctx context.Context, reporterID domain.UserID, in report.CreateInput) (*report.Report, error)
	ListMine(ctx context.Context, reporterID domain.UserID) ([]*report.Report, error)
}

// Handler handles report endpoints.
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

// Register mounts the report routes.
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
	// Admins review reports, they do not file them.
	router.Use(middleware.RequireRole(h.logger, domain.RoleDataOwner, domain.RoleServiceUser))

	router.Post("/", h.handleCreate)
	router.Get("/mine", h.handleListMine)

	r.Mount("/reports", router)
}

type createRequest struct {
	Target   string `json:"target"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
	Details  string `json:"details"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	rep, err := h.svc.Create(ctx, requestcontext.UserID(ctx), report.CreateInput{
		Target:   req.Target,
		Category: report.Category(req.Category),
		Reason:   req.Reason,
		Details:  req.Details,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "report creation failed")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"report": rep}, "report filed")
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reports, err := h.svc.ListMine(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list reports")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reports": reports}, "")
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, logMsg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
