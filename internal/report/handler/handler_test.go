package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/internal/report"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

type stubService struct {
	createFn   func(ctx context.Context, reporterID domain.UserID, in report.CreateInput) (*report.Report, error)
	listMineFn func(ctx context.Context, reporterID domain.UserID) ([]*report.Report, error)
}

func (s stubService) Create(ctx context.Context, reporterID domain.UserID, in report.CreateInput) (*report.Report, error) {
	return s.createFn(ctx, reporterID, in)
}

func (s stubService) ListMine(ctx context.Context, reporterID domain.UserID) ([]*report.Report, error) {
	return s.listMineFn(ctx, reporterID)
}

// fakeValidator maps bearer tokens to claims.
type fakeValidator struct {
	claims map[string]*middleware.JWTClaims
}

func (f fakeValidator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	c, ok := f.claims[tokenString]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return c, nil
}

type fakeRevocations struct{}

func (fakeRevocations) IsTokenRevoked(context.Context, string) (bool, error) { return false, nil }

func (fakeRevocations) IsUserRevoked(context.Context, string) (bool, error) { return false, nil }

type handlerFixture struct {
	router chi.Router
	userID domain.UserID
}

func newHandlerFixture(t *testing.T, svc stubService) *handlerFixture {
	t.Helper()
	userID := domain.NewUserID()
	m := metrics.NewWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	validator := fakeValidator{claims: map[string]*middleware.JWTClaims{
		"owner-token":        {UserID: userID, Role: domain.RoleDataOwner, JTI: "jti-1"},
		"service-user-token": {UserID: userID, Role: domain.RoleServiceUser, JTI: "jti-2"},
		"admin-token":        {UserID: domain.NewUserID(), Role: domain.RoleAdmin, JTI: "jti-3"},
	}}

	r := chi.NewRouter()
	New(svc, logger, m, validator, fakeRevocations{}).Register(r)
	return &handlerFixture{router: r, userID: userID}
}

func (f *handlerFixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestHandleCreate_Filed(t *testing.T) {
	reported := domain.NewUserID()
	f := newHandlerFixture(t, stubService{
		createFn: func(_ context.Context, reporterID domain.UserID, in report.CreateInput) (*report.Report, error) {
			assert.Equal(t, "spam", string(in.Category))
			return &report.Report{
				ID:         domain.NewReportID(),
				ReporterID: reporterID,
				ReportedID: reported,
				Category:   in.Category,
				Reason:     in.Reason,
				Status:     report.StatusPending,
				CreatedAt:  time.Now(),
			}, nil
		},
	})

	rr := f.do(t, http.MethodPost, "/reports/", "service-user-token", map[string]string{
		"target":   reported.String(),
		"category": "spam",
		"reason":   "unsolicited requests",
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), "report filed")
}

func TestHandleCreate_AdminRoleRefused(t *testing.T) {
	f := newHandlerFixture(t, stubService{
		createFn: func(context.Context, domain.UserID, report.CreateInput) (*report.Report, error) {
			t.Fatal("service must not be reached for an admin caller")
			return nil, nil
		},
	})

	rr := f.do(t, http.MethodPost, "/reports/", "admin-token", map[string]string{
		"target":   domain.NewUserID().String(),
		"category": "spam",
		"reason":   "unsolicited requests",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandleListMine_BothReporterRoles(t *testing.T) {
	f := newHandlerFixture(t, stubService{
		listMineFn: func(_ context.Context, reporterID domain.UserID) ([]*report.Report, error) {
			return []*report.Report{{
				ID:         domain.NewReportID(),
				ReporterID: reporterID,
				Status:     report.StatusPending,
			}}, nil
		},
	})

	for _, bearer := range []string{"owner-token", "service-user-token"} {
		rr := f.do(t, http.MethodGet, "/reports/mine", bearer, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := f.do(t, http.MethodGet, "/reports/mine", "admin-token", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
