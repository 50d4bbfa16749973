// Package handler exposes the admin moderation surface. Every route requires
// the admin role on top of authentication.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"datashare/internal/admin"
	"datashare/internal/audit"
	"datashare/internal/consent"
	"datashare/internal/identity"
	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/internal/record"
	"datashare/internal/report"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/platform/httputil"
	"datashare/pkg/requestcontext"
)

// UserAdmin is the slice of the identity service the admin surface needs.
type UserAdmin interface {
	List(ctx context.Context, filter identity.ListFilter) ([]*identity.User, int, error)
	SetSuspended(ctx context.Context, actorID, id domain.UserID, suspended bool) (*identity.User, error)
}

// RecordAdmin lists all records, soft-deleted included.
type RecordAdmin interface {
	AdminList(ctx context.Context, filter record.Filter) ([]*record.DataRecord, record.Pagination, error)
}

// ConsentAdmin lists the consent ledger.
type ConsentAdmin interface {
	AdminList(ctx context.Context, status consent.Status, limit int) ([]*consent.Consent, error)
}

// ReportAdmin lists and reviews reports.
type ReportAdmin interface {
	ListAll(ctx context.Context, status report.Status) ([]*report.Report, error)
	Review(ctx context.Context, reviewerID domain.UserID, id domain.ReportID, in report.ReviewInput) (*report.Report, error)
}

// AuditReader reads the audit log.
type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// StatisticsSource computes the dashboard aggregate.
type StatisticsSource interface {
	Statistics(ctx context.Context) (*admin.Statistics, error)
}

// Handler handles the admin endpoints.
type Handler struct {
	users    UserAdmin
	records  RecordAdmin
	consents ConsentAdmin
	reports  ReportAdmin
	audits   AuditReader
	stats    StatisticsSource
	logger   *slog.Logger
	metrics  *metrics.Metrics

	validator  middleware.JWTValidator
	revChecker middleware.TokenRevocationChecker
}

func New(users UserAdmin, records RecordAdmin, consents ConsentAdmin, reports ReportAdmin, audits AuditReader, stats StatisticsSource, logger *slog.Logger, m *metrics.Metrics, validator middleware.JWTValidator, revChecker middleware.TokenRevocationChecker) *Handler {
	return &Handler{
		users:      users,
		records:    records,
		consents:   consents,
		reports:    reports,
		audits:     audits,
		stats:      stats,
		logger:     logger,
		metrics:    m,
		validator:  validator,
		revChecker: revChecker,
	}
}

// Register mounts the admin routes.
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
	router.Use(middleware.RequireRole(h.logger, domain.RoleAdmin))

	router.Get("/statistics", h.handleStatistics)
	router.Get("/users", h.handleListUsers)
	router.Patch("/users/{id}", h.handleUpdateUser)
	router.Get("/data", h.handleListData)
	router.Get("/consents", h.handleListConsents)
	router.Get("/reports", h.handleListReports)
	router.Patch("/reports/{id}/review", h.handleReviewReport)
	router.Get("/audit-logs", h.handleListAuditLogs)

	r.Mount("/admin", router)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.stats.Statistics(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to compute statistics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"statistics": stats}, "")
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := identity.ListFilter{
		Role:   domain.Role(q.Get("role")),
		Search: q.Get("search"),
		Page:   atoiDefault(q.Get("page"), 1),
		Limit:  atoiDefault(q.Get("limit"), 20),
	}
	users, total, err := h.users.List(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list users")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
	}, "")
}

type updateUserRequest struct {
	Suspended *bool   `json:"suspended"`
	Role      *string `json:"role"`
}

// handleUpdateUser toggles suspension. Role changes are rejected outright:
// roles are fixed at registration and admin accounts are provisioned out of
// band.
func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if req.Role != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "role cannot be changed"))
		return
	}
	if req.Suspended == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "suspended is required"))
		return
	}

	user, err := h.users.SetSuspended(ctx, requestcontext.UserID(ctx), id, *req.Suspended)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to update user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": user}, "user updated")
}

func (h *Handler) handleListData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := record.Filter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Page:     atoiDefault(q.Get("page"), 1),
		Limit:    atoiDefault(q.Get("limit"), 20),
	}
	recs, page, err := h.records.AdminList(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list data")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":       recs,
		"pagination": page,
	}, "")
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	consents, err := h.consents.AdminList(ctx,
		consent.Status(r.URL.Query().Get("status")),
		atoiDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list consents")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": consents}, "")
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reports, err := h.reports.ListAll(ctx, report.Status(r.URL.Query().Get("status")))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list reports")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reports": reports}, "")
}

type reviewRequest struct {
	Validated bool   `json:"validated"`
	Note      string `json:"note"`
	Suspend   bool   `json:"suspend"`
}

func (h *Handler) handleReviewReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseReportID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	rep, err := h.reports.Review(ctx, requestcontext.UserID(ctx), id, report.ReviewInput{
		Validated: req.Validated,
		Note:      req.Note,
		Suspend:   req.Suspend,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "report review failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"report": rep}, "report reviewed")
}

func (h *Handler) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	events, err := h.audits.List(ctx, audit.Filter{
		Action:  audit.Action(q.Get("action")),
		ActorID: q.Get("actor"),
		Limit:   atoiDefault(q.Get("limit"), 100),
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list audit logs")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events}, "")
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, logMsg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}

func atoiDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
