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
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datashare/internal/consent"
	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

type stubService struct {
	requestFn  func(ctx context.Context, requesterID domain.UserID, dataID domain.DataID, purpose string) (*consent.Consent, error)
	approveFn  func(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	rejectFn   func(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	revokeFn   func(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	getFn      func(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error)
	historyFn  func(ctx context.Context, actorID domain.UserID, dataID domain.DataID) ([]*consent.Consent, error)
	requestsFn func(ctx context.Context, requesterID domain.UserID) ([]*consent.Consent, error)
	incomingFn func(ctx context.Context, ownerID domain.UserID, status consent.Status) ([]*consent.Consent, error)
}

func (s stubService) RequestAccess(ctx context.Context, requesterID domain.UserID, dataID domain.DataID, purpose string) (*consent.Consent, error) {
	return s.requestFn(ctx, requesterID, dataID, purpose)
}

func (s stubService) Approve(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error) {
	return s.approveFn(ctx, actorID, id)
}

func (s stubService) Reject(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error) {
	return s.rejectFn(ctx, actorID, id)
}

func (s stubService) Revoke(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error) {
	return s.revokeFn(ctx, actorID, id)
}

func (s stubService) Get(ctx context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error) {
	return s.getFn(ctx, actorID, id)
}

func (s stubService) AccessHistory(ctx context.Context, actorID domain.UserID, dataID domain.DataID) ([]*consent.Consent, error) {
	return s.historyFn(ctx, actorID, dataID)
}

func (s stubService) ListRequests(ctx context.Context, requesterID domain.UserID) ([]*consent.Consent, error) {
	return s.requestsFn(ctx, requesterID)
}

func (s stubService) ListIncoming(ctx context.Context, ownerID domain.UserID, status consent.Status) ([]*consent.Consent, error) {
	return s.incomingFn(ctx, ownerID, status)
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

type fakeRevocations struct {
	revokedJTIs map[string]bool
}

func (f fakeRevocations) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revokedJTIs[jti], nil
}

func (f fakeRevocations) IsUserRevoked(context.Context, string) (bool, error) {
	return false, nil
}

type handlerFixture struct {
	router  chi.Router
	metrics *metrics.Metrics
	userID  domain.UserID
	token   string
}

func newHandlerFixture(t *testing.T, svc stubService) *handlerFixture {
	t.Helper()
	userID := domain.NewUserID()
	m := metrics.NewWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	validator := fakeValidator{claims: map[string]*middleware.JWTClaims{
		"good-token": {UserID: userID, Role: domain.RoleServiceUser, JTI: "jti-1"},
	}}
	revocations := fakeRevocations{revokedJTIs: map[string]bool{}}

	r := chi.NewRouter()
	New(svc, logger, m, validator, revocations).Register(r)
	return &handlerFixture{router: r, metrics: m, userID: userID, token: "good-token"}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleRequest_Created(t *testing.T) {
	dataID := domain.NewDataID()
	granted := &consent.Consent{
		ID:      domain.NewConsentID(),
		DataID:  dataID,
		Status:  consent.StatusPending,
		Purpose: "research",
	}
	var gotPurpose string
	fix := newHandlerFixture(t, stubService{
		requestFn: func(_ context.Context, requesterID domain.UserID, id domain.DataID, purpose string) (*consent.Consent, error) {
			gotPurpose = purpose
			assert.Equal(t, dataID, id)
			return granted, nil
		},
	})

	w := fix.do(t, http.MethodPost, "/consent/request", map[string]string{
		"dataId":  dataID.String(),
		"purpose": "research",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "research", gotPurpose)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, "access requested", resp["message"])
	payload := resp["data"].(map[string]any)["consent"].(map[string]any)
	assert.Equal(t, "pending", payload["status"])
	assert.Equal(t, 1.0, testutil.ToFloat64(fix.metrics.ConsentTransitions.WithLabelValues("requested")))
}

func TestHandleRequest_BadDataID(t *testing.T) {
	fix := newHandlerFixture(t, stubService{})

	w := fix.do(t, http.MethodPost, "/consent/request", map[string]string{
		"dataId":  "not-a-uuid",
		"purpose": "research",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRequest_ConflictFromService(t *testing.T) {
	fix := newHandlerFixture(t, stubService{
		requestFn: func(context.Context, domain.UserID, domain.DataID, string) (*consent.Consent, error) {
			return nil, dErrors.New(dErrors.CodeConflict, "an active request already exists for this data")
		},
	})

	w := fix.do(t, http.MethodPost, "/consent/request", map[string]string{
		"dataId":  domain.NewDataID().String(),
		"purpose": "research",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, "an active request already exists for this data", resp["message"])
}

func TestRequireAuth_MissingToken(t *testing.T) {
	fix := newHandlerFixture(t, stubService{})

	req := httptest.NewRequest(http.MethodGet, "/consent/my-requests", nil)
	w := httptest.NewRecorder()
	fix.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_RevokedToken(t *testing.T) {
	fix := newHandlerFixture(t, stubService{})

	userID := domain.NewUserID()
	m := metrics.NewWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := fakeValidator{claims: map[string]*middleware.JWTClaims{
		"revoked-token": {UserID: userID, Role: domain.RoleServiceUser, JTI: "jti-gone"},
	}}
	revocations := fakeRevocations{revokedJTIs: map[string]bool{"jti-gone": true}}

	r := chi.NewRouter()
	New(stubService{}, logger, m, validator, revocations).Register(r)
	fix.router = r
	fix.token = "revoked-token"

	w := fix.do(t, http.MethodGet, "/consent/my-requests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleApprove_TransitionAndMetric(t *testing.T) {
	consentID := domain.NewConsentID()
	now := time.Now().UTC().Truncate(time.Second)
	expiry := now.Add(72 * time.Hour)

	var gotActor domain.UserID
	fix := newHandlerFixture(t, stubService{
		approveFn: func(_ context.Context, actorID domain.UserID, id domain.ConsentID) (*consent.Consent, error) {
			gotActor = actorID
			require.Equal(t, consentID, id)
			return &consent.Consent{
				ID:         id,
				Status:     consent.StatusApproved,
				ApprovedAt: &now,
				ExpiresAt:  expiry,
			}, nil
		},
	})

	w := fix.do(t, http.MethodPost, "/consent/"+consentID.String()+"/approve", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, fix.userID, gotActor)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, "access approved", resp["message"])
	payload := resp["data"].(map[string]any)["consent"].(map[string]any)
	assert.Equal(t, "approved", payload["status"])
	assert.NotEmpty(t, payload["expiryDate"])
	assert.Equal(t, 1.0, testutil.ToFloat64(fix.metrics.ConsentTransitions.WithLabelValues("approved")))
	assert.Equal(t, 0.0, testutil.ToFloat64(fix.metrics.ConsentTransitions.WithLabelValues("rejected")))
}

func TestHandleRevoke_InvalidStateMapsToConflict(t *testing.T) {
	fix := newHandlerFixture(t, stubService{
		revokeFn: func(context.Context, domain.UserID, domain.ConsentID) (*consent.Consent, error) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "consent is rejected, expected approved")
		},
	})

	w := fix.do(t, http.MethodPost, "/consent/"+domain.NewConsentID().String()+"/revoke", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0.0, testutil.ToFloat64(fix.metrics.ConsentTransitions.WithLabelValues("revoked")))
}

func TestHandleGet_ForbiddenForOutsider(t *testing.T) {
	fix := newHandlerFixture(t, stubService{
		getFn: func(context.Context, domain.UserID, domain.ConsentID) (*consent.Consent, error) {
			return nil, dErrors.New(dErrors.CodeForbidden, "not a party to this consent")
		},
	})

	w := fix.do(t, http.MethodGet, "/consent/"+domain.NewConsentID().String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleListIncoming_PassesStatusFilter(t *testing.T) {
	var gotStatus consent.Status
	fix := newHandlerFixture(t, stubService{
		incomingFn: func(_ context.Context, ownerID domain.UserID, status consent.Status) ([]*consent.Consent, error) {
			gotStatus = status
			return []*consent.Consent{}, nil
		},
	})

	w := fix.do(t, http.MethodGet, "/consent/incoming?status=pending", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, consent.StatusPending, gotStatus)
}

func TestHandleAccessHistory(t *testing.T) {
	dataID := domain.NewDataID()
	fix := newHandlerFixture(t, stubService{
		historyFn: func(_ context.Context, actorID domain.UserID, id domain.DataID) ([]*consent.Consent, error) {
			require.Equal(t, dataID, id)
			return []*consent.Consent{
				{ID: domain.NewConsentID(), DataID: dataID, Status: consent.StatusRevoked},
				{ID: domain.NewConsentID(), DataID: dataID, Status: consent.StatusPending},
			}, nil
		},
	})

	w := fix.do(t, http.MethodGet, "/consent/data/"+dataID.String()+"/history", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	consents := resp["data"].(map[string]any)["consents"].([]any)
	assert.Len(t, consents, 2)
}
