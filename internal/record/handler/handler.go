// Package handler exposes the data record endpoints: upload, discovery,
// owner management, and the consent-gated view/download surface.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"datashare/internal/audit"
	"datashare/internal/blob"
	"datashare/internal/consent"
	"datashare/internal/identity"
	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/internal/record"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
	"datashare/pkg/platform/httputil"
	"datashare/pkg/requestcontext"
)

const maxUploadBytes = 64 << 20

// Service is the slice of the record service the HTTP layer needs.
type Service interface {
	Upload(ctx context.Context, ownerID domain.UserID, owner record.OwnerSnapshot, in record.UploadInput) (*record.DataRecord, error)
	Get(ctx context.Context, id domain.DataID) (*record.DataRecord, error)
	Update(ctx context.Context, callerID domain.UserID, id domain.DataID, in record.UpdateInput) (*record.DataRecord, error)
	SoftDelete(ctx context.Context, callerID domain.UserID, id domain.DataID) error
	Discover(ctx context.Context, callerID domain.UserID, filter record.Filter) ([]*record.DataRecord, record.Pagination, error)
	ListOwn(ctx context.Context, ownerID domain.UserID) ([]*record.DataRecord, error)
	FetchFile(ctx context.Context, rec *record.DataRecord) (*blob.Object, error)
}

// Gate decides view/download permission per request.
type Gate interface {
	CanView(ctx context.Context, dataID domain.DataID, userID domain.UserID) (bool, error)
	CanDownload(ctx context.Context, dataID domain.DataID, userID domain.UserID) (bool, error)
}

// ConsentSource resolves the caller's current consent against a record so the
// detail response can show when access was granted and when it lapses.
type ConsentSource interface {
	CurrentFor(ctx context.Context, dataID domain.DataID, requesterID domain.UserID) (*consent.Consent, error)
}

// UserSource resolves the uploader so their identity snapshot can be stamped
// onto the record.
type UserSource interface {
	Get(ctx context.Context, id domain.UserID) (*identity.User, error)
}

// AuditSink records audit events.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event)
}

// Handler handles data record endpoints.
type Handler struct {
	svc      Service
	gate     Gate
	consents ConsentSource
	users    UserSource
	auditor  AuditSink
	logger   *slog.Logger
	metrics  *metrics.Metrics

	validator  middleware.JWTValidator
	revChecker middleware.TokenRevocationChecker
}

func New(svc Service, gate Gate, consents ConsentSource, users UserSource, auditor AuditSink, logger *slog.Logger, m *metrics.Metrics, validator middleware.JWTValidator, revChecker middleware.TokenRevocationChecker) *Handler {
	return &Handler{
		svc:        svc,
		gate:       gate,
		consents:   consents,
		users:      users,
		auditor:    auditor,
		logger:     logger,
		metrics:    m,
		validator:  validator,
		revChecker: revChecker,
	}
}

// Register mounts the data routes.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middleware.Latency(h.metrics))
	router.Use(queryToken)
	router.Use(middleware.RequireAuth(h.validator, h.revChecker, h.logger))

	// Upload accepts multipart bodies, so the JSON content-type check applies
	// only to the metadata routes.
	router.Post("/", h.handleUpload)
	router.Get("/discover", h.handleDiscover)
	router.Get("/my-data", h.handleListOwn)
	router.Get("/{id}", h.handleGet)
	router.Get("/{id}/view", h.handleView)
	router.Get("/{id}/download", h.handleDownload)

	router.Group(func(jr chi.Router) {
		jr.Use(middleware.ContentTypeJSON)
		jr.Put("/{id}", h.handleUpdate)
		jr.Delete("/{id}", h.handleDelete)
	})

	r.Mount("/data", router)
}

// queryToken lets browser-initiated views and downloads authenticate with a
// ?token= parameter, since plain links cannot set an Authorization header.
func queryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

type uploadRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	DataType      string   `json:"dataType"`
	Content       string   `json:"content"`
	ReferenceHint string   `json:"ownerReferenceHint"`
	OwnerIdent    string   `json:"ownerIdentifier"`
	AllowDownload bool     `json:"allowDownload"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := requestcontext.UserID(ctx)

	owner, err := h.users.Get(ctx, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to resolve uploader")
		return
	}

	in, err := h.parseUpload(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.svc.Upload(ctx, callerID, owner.Snapshot(), in)
	if err != nil {
		h.writeServiceError(ctx, w, err, "upload failed")
		return
	}

	h.metrics.RecordsUploaded.Inc()
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"data": rec}, "data uploaded")
}

func (h *Handler) parseUpload(r *http.Request) (record.UploadInput, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return h.parseMultipartUpload(r)
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return record.UploadInput{}, dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
	}
	return record.UploadInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Tags:          req.Tags,
		Kind:          record.Kind(defaultString(req.DataType, string(record.KindText))),
		Content:       req.Content,
		ReferenceHint: req.ReferenceHint,
		OwnerIdent:    req.OwnerIdent,
		AllowDownload: req.AllowDownload,
	}, nil
}

func (h *Handler) parseMultipartUpload(r *http.Request) (record.UploadInput, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return record.UploadInput{}, dErrors.New(dErrors.CodeInvalidInput, "invalid multipart body")
	}

	in := record.UploadInput{
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		Category:      r.FormValue("category"),
		Tags:          splitTags(r.FormValue("tags")),
		Kind:          record.KindFile,
		ReferenceHint: r.FormValue("ownerReferenceHint"),
		OwnerIdent:    r.FormValue("ownerIdentifier"),
		AllowDownload: r.FormValue("allowDownload") == "true",
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return record.UploadInput{}, dErrors.New(dErrors.CodeInvalidInput, "file is required for file data")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return record.UploadInput{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to read file")
	}
	if len(data) > maxUploadBytes {
		return record.UploadInput{}, dErrors.New(dErrors.CodeInvalidInput, "file exceeds the size limit")
	}

	in.FileBytes = data
	in.FileName = header.Filename
	in.FileMime = header.Header.Get("Content-Type")
	return in, nil
}

func (h *Handler) handleDiscover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recs, page, err := h.svc.Discover(ctx, requestcontext.UserID(ctx), filterFromQuery(r))
	if err != nil {
		h.writeServiceError(ctx, w, err, "discovery failed")
		return
	}

	// Discovery returns metadata only; content is gated behind /view.
	out := make([]*record.DataRecord, len(recs))
	for i, rec := range recs {
		out[i] = withoutContent(rec)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":       out,
		"pagination": page,
	}, "")
}

func (h *Handler) handleListOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recs, err := h.svc.ListOwn(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list own data")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": recs}, "")
}

// handleGet returns the record with the caller's current permissions.
// Owners see their record unconditionally; anyone else must hold an active
// consent, and gets its grant window echoed back alongside the data.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := requestcontext.UserID(ctx)

	dataID, err := domain.ParseDataID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.svc.Get(ctx, dataID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load data record")
		return
	}

	canView, err := h.gate.CanView(ctx, dataID, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "access check failed")
		return
	}
	if !canView {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "you do not have access to this data"))
		return
	}
	canDownload, err := h.gate.CanDownload(ctx, dataID, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "access check failed")
		return
	}

	payload := map[string]any{
		"data":        rec,
		"canView":     canView,
		"canDownload": canDownload,
	}
	if rec.OwnerID != callerID {
		c, err := h.consents.CurrentFor(ctx, dataID, callerID)
		if err != nil {
			h.writeServiceError(ctx, w, err, "failed to load consent")
			return
		}
		now := requestcontext.Now(ctx)
		payload["consentInfo"] = map[string]any{
			"approvedAt":    c.ApprovedAt,
			"expiresAt":     c.ExpiresAt,
			"daysRemaining": daysUntil(now, c.ExpiresAt),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, payload, "")
}

// daysUntil rounds the remaining window up, so a consent with an hour left
// still reads as one day.
func daysUntil(now, until time.Time) int {
	if !now.Before(until) {
		return 0
	}
	const day = 24 * time.Hour
	return int((until.Sub(now) + day - 1) / day)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := requestcontext.UserID(ctx)

	dataID, err := domain.ParseDataID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ok, err := h.gate.CanView(ctx, dataID, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "access check failed")
		return
	}
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "you do not have access to this data"))
		return
	}

	rec, err := h.svc.Get(ctx, dataID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load data record")
		return
	}

	h.auditor.Publish(ctx, audit.Event{
		ActorID:      callerID.String(),
		Action:       audit.ActionDataView,
		ResourceType: "data",
		ResourceID:   dataID.String(),
	})

	if rec.Kind == record.KindText {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": rec}, "")
		return
	}

	obj, err := h.svc.FetchFile(ctx, rec)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to fetch file")
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Content)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", sanitizeFilename(rec.FileName)))
	_, _ = w.Write(obj.Content)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := requestcontext.UserID(ctx)

	dataID, err := domain.ParseDataID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ok, err := h.gate.CanDownload(ctx, dataID, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "access check failed")
		return
	}
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "downloading this data is not permitted"))
		return
	}

	rec, err := h.svc.Get(ctx, dataID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load data record")
		return
	}

	h.auditor.Publish(ctx, audit.Event{
		ActorID:      callerID.String(),
		Action:       audit.ActionDataDownload,
		ResourceType: "data",
		ResourceID:   dataID.String(),
	})

	if rec.Kind == record.KindText {
		name := sanitizeFilename(rec.Title) + ".txt"
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = w.Write([]byte(rec.Content))
		return
	}

	obj, err := h.svc.FetchFile(ctx, rec)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to fetch file")
		return
	}
	name := rec.FileName
	if name == "" {
		name = rec.Title
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Content)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sanitizeFilename(name)))
	_, _ = w.Write(obj.Content)
}

type updateRequest struct {
	Title         *string  `json:"title"`
	Description   *string  `json:"description"`
	Category      *string  `json:"category"`
	Tags          []string `json:"tags"`
	Content       *string  `json:"content"`
	ReferenceHint *string  `json:"ownerReferenceHint"`
	OwnerIdent    *string  `json:"ownerIdentifier"`
	AllowDownload *bool    `json:"allowDownload"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dataID, err := domain.ParseDataID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	rec, err := h.svc.Update(ctx, requestcontext.UserID(ctx), dataID, record.UpdateInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Tags:          req.Tags,
		Content:       req.Content,
		ReferenceHint: req.ReferenceHint,
		OwnerIdent:    req.OwnerIdent,
		AllowDownload: req.AllowDownload,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "update failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": rec}, "data updated")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dataID, err := domain.ParseDataID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.svc.SoftDelete(ctx, requestcontext.UserID(ctx), dataID); err != nil {
		h.writeServiceError(ctx, w, err, "delete failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil, "data deleted")
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, logMsg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}

func filterFromQuery(r *http.Request) record.Filter {
	q := r.URL.Query()
	return record.Filter{
		Title:      q.Get("title"),
		Category:   q.Get("category"),
		Tags:       splitTags(q.Get("tags")),
		Search:     q.Get("search"),
		OwnerRefID: q.Get("ownerRefId"),
		OwnerUUID:  q.Get("ownerUuid"),
		OwnerEmail: q.Get("ownerEmail"),
		OwnerPhone: q.Get("ownerPhone"),
		OwnerName:  q.Get("ownerName"),
		Page:       atoiDefault(q.Get("page"), 1),
		Limit:      atoiDefault(q.Get("limit"), 20),
	}
}

func withoutContent(rec *record.DataRecord) *record.DataRecord {
	cp := *rec
	cp.Content = ""
	return &cp
}

// sanitizeFilename strips characters that would break or smuggle through a
// Content-Disposition header.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r == '/' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "download"
	}
	return out
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
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
