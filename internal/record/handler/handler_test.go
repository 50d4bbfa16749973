package handler

import (
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

	"datashare/internal/access"
	"datashare/internal/audit"
	"datashare/internal/blob"
	"datashare/internal/consent"
	"datashare/internal/identity"
	"datashare/internal/platform/metrics"
	"datashare/internal/platform/middleware"
	"datashare/internal/record"
	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

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

type stubUsers struct{}

func (stubUsers) Get(context.Context, domain.UserID) (*identity.User, error) {
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

// consentSource adapts the memory store to the handler's consent lookup.
type consentSource struct {
	store *consent.InMemoryStore
}

func (c consentSource) CurrentFor(ctx context.Context, dataID domain.DataID, requesterID domain.UserID) (*consent.Consent, error) {
	return c.store.GetCurrent(ctx, dataID, requesterID)
}

type getFixture struct {
	router   chi.Router
	records  *record.InMemoryStore
	consents *consent.InMemoryStore

	owner     domain.UserID
	requester domain.UserID
	stranger  domain.UserID
	data      domain.DataID
}

func newGetFixture(t *testing.T) *getFixture {
	t.Helper()
	f := &getFixture{
		records:   record.NewInMemoryStore(),
		consents:  consent.NewInMemoryStore(),
		owner:     domain.NewUserID(),
		requester: domain.NewUserID(),
		stranger:  domain.NewUserID(),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	auditor := audit.NewPublisher(audit.NewInMemoryStore(), log)

	svc := record.NewService(f.records, blob.NewMemoryStore(), auditor, log)
	gate := access.NewGate(f.records, f.consents)

	validator := fakeValidator{claims: map[string]*middleware.JWTClaims{
		"owner-token":     {UserID: f.owner, Role: domain.RoleDataOwner, JTI: "jti-owner"},
		"requester-token": {UserID: f.requester, Role: domain.RoleServiceUser, JTI: "jti-req"},
		"stranger-token":  {UserID: f.stranger, Role: domain.RoleServiceUser, JTI: "jti-str"},
	}}

	r := chi.NewRouter()
	New(svc, gate, consentSource{store: f.consents}, stubUsers{}, auditor, log, m, validator, fakeRevocations{}).Register(r)
	f.router = r

	rec := &record.DataRecord{
		ID:        domain.NewDataID(),
		OwnerID:   f.owner,
		Title:     "Lab Results",
		Category:  "General",
		Kind:      record.KindText,
		Content:   "results",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, f.records.Create(context.Background(), rec))
	f.data = rec.ID
	return f
}

// approveConsent seeds an approved consent for the requester expiring at the
// given time.
func (f *getFixture) approveConsent(t *testing.T, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	c := &consent.Consent{
		ID:          domain.NewConsentID(),
		DataID:      f.data,
		RequesterID: f.requester,
		OwnerID:     f.owner,
		Status:      consent.StatusPending,
		Purpose:     "research",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.consents.Create(ctx, c))
	_, err := f.consents.Approve(ctx, c.ID, time.Now(), expiresAt)
	require.NoError(t, err)
}

func (f *getFixture) get(t *testing.T, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/data/"+f.data.String(), nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var env struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env.Data
}

func TestHandleGet_StrangerForbidden(t *testing.T) {
	f := newGetFixture(t)

	rr := f.get(t, "stranger-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "you do not have access to this data")
}

func TestHandleGet_OwnerSeesRecordWithoutConsentInfo(t *testing.T) {
	f := newGetFixture(t)

	rr := f.get(t, "owner-token")
	require.Equal(t, http.StatusOK, rr.Code)

	data := decodeEnvelope(t, rr)
	assert.Contains(t, data, "data")
	assert.NotContains(t, data, "consentInfo")

	var canView bool
	require.NoError(t, json.Unmarshal(data["canView"], &canView))
	assert.True(t, canView)
}

func TestHandleGet_ConsentedViewerGetsConsentInfo(t *testing.T) {
	f := newGetFixture(t)
	f.approveConsent(t, time.Now().Add(72*time.Hour))

	rr := f.get(t, "requester-token")
	require.Equal(t, http.StatusOK, rr.Code)

	data := decodeEnvelope(t, rr)
	require.Contains(t, data, "consentInfo")

	var info struct {
		ApprovedAt    *time.Time `json:"approvedAt"`
		ExpiresAt     time.Time  `json:"expiresAt"`
		DaysRemaining int        `json:"daysRemaining"`
	}
	require.NoError(t, json.Unmarshal(data["consentInfo"], &info))
	assert.NotNil(t, info.ApprovedAt)
	assert.False(t, info.ExpiresAt.IsZero())
	assert.Equal(t, 3, info.DaysRemaining)

	var rec struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(data["data"], &rec))
	assert.Equal(t, "results", rec.Content)
}

func TestHandleGet_LapsedConsentForbidden(t *testing.T) {
	f := newGetFixture(t)
	f.approveConsent(t, time.Now().Add(-time.Minute))

	rr := f.get(t, "requester-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, daysUntil(now, now.Add(72*time.Hour)))
	assert.Equal(t, 1, daysUntil(now, now.Add(time.Hour)))
	assert.Equal(t, 0, daysUntil(now, now))
	assert.Equal(t, 0, daysUntil(now, now.Add(-time.Hour)))
}
