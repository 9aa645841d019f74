package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	integrationApp "github.com/cassiomorais/integrations/internal/application/integration"
	"github.com/cassiomorais/integrations/internal/domain/audit"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/infrastructure/config"
	"github.com/cassiomorais/integrations/internal/middleware"
	"github.com/cassiomorais/integrations/internal/partner"
	"github.com/cassiomorais/integrations/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routerSecret = "router-test-secret-long-enough-for-hs256"

type apiFixture struct {
	handler http.Handler
	repo    *testutil.MockIntegrationRepository
	audit   *testutil.MockAuditRepository
	partner *testutil.MockPartnerClient
	watch   *testutil.MockWatchList
	token   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		repo:    testutil.NewMockIntegrationRepository(),
		audit:   testutil.NewMockAuditRepository(),
		partner: &testutil.MockPartnerClient{},
		watch:   &testutil.MockWatchList{},
	}
	credentials := &testutil.MockCredentialVault{}
	deps := integrationApp.LifecycleDeps{
		Repo:      f.repo,
		Tx:        testutil.NewMockTransactionManager(f.repo, f.audit),
		Vault:     credentials,
		Signer:    partner.NewSigner("https://partner.example.com", "https://app.example.com/callback", "https://app.example.com/cancelled"),
		Partner:   f.partner,
		WatchList: f.watch,
		Audit:     f.audit,
		Logger:    zerolog.Nop(),
	}
	gate := integrationApp.NewAccessGate(f.repo, credentials, &testutil.MockTokenSource{}, 4*time.Hour, zerolog.Nop(), nil)

	f.handler = NewRouter(RouterDeps{
		Lifecycle:    integrationApp.NewLifecycle(deps),
		AccessGate:   gate,
		DatabasePing: func(context.Context) error { return nil },
		RedisPing:    func(context.Context) error { return nil },
		Server:       config.ServerConfig{AccessTokenRateLimit: 100},
		JWTSecret:    routerSecret,
	})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID: "42",
		Name:   "Maria",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := f.request(t, method, path, body)
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return httptest.NewRequest(method, path, &buf)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestIntegrationAPI_RequiresSession(t *testing.T) {
	f := newAPIFixture(t)
	w := httptest.NewRecorder()

	f.handler.ServeHTTP(w, f.request(t, http.MethodGet, "/api/v1/integrations", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIntegrationAPI_CreateAndAuthorize(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/integrations", CreateIntegrationRequest{
		Name: "Loja A", PartnerID: "1001", PartnerKey: "key",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[InitiateResponse](t, w)
	assert.Equal(t, "wait_auth", created.Integration.Status)
	assert.True(t, strings.HasPrefix(created.AuthorizationURL, "https://partner.example.com"))
	assert.NotContains(t, created.AuthorizationURL, "partner_key")

	w = f.do(t, http.MethodPost, "/api/v1/integrations/callback", CallbackRequest{
		Code: "code-9", State: created.Integration.ID, SellerID: "seller-9",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	authorized := decodeBody[IntegrationResponse](t, w)
	assert.Equal(t, "active", authorized.Status)
	assert.Equal(t, "seller-9", authorized.SellerID)
	assert.Equal(t, []string{created.Integration.ID}, f.watch.IDs())

	entries := f.audit.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionAuthorized, entries[1].Action)
	assert.Equal(t, "42", entries[1].ActorID)
	assert.Equal(t, "Maria", entries[1].ActorName)
}

func TestIntegrationAPI_DeclinedCallbackDiscardsRecord(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/integrations", CreateIntegrationRequest{
		Name: "Loja A", PartnerID: "1001", PartnerKey: "key",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[InitiateResponse](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/integrations/callback", CallbackRequest{State: created.Integration.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.partner.Calls())

	w = f.do(t, http.MethodGet, "/api/v1/integrations/"+created.Integration.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntegrationAPI_CreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/integrations", map[string]string{"name": "Loja A"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeBody[ErrorResponse](t, w).Code)
	assert.Equal(t, 0, f.repo.Count())
}

func TestIntegrationAPI_CreateDuplicateName(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.AddIntegration(testutil.NewMockedIntegration("Loja A", integration.StatusActive))

	w := f.do(t, http.MethodPost, "/api/v1/integrations", CreateIntegrationRequest{
		Name: "Loja A", PartnerID: "2002", PartnerKey: "other",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_name", decodeBody[ErrorResponse](t, w).Code)
}

func TestIntegrationAPI_GetShowsCredentials(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusActive)
	f.repo.AddIntegration(rec)

	w := f.do(t, http.MethodGet, "/api/v1/integrations/"+rec.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[IntegrationDetailResponse](t, w)
	assert.Equal(t, "1001", got.PartnerID)
	assert.Equal(t, "key-loja-a", got.PartnerKey)
}

func TestIntegrationAPI_UnknownAndMalformedIDs(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/v1/integrations/not-a-uuid", "/api/v1/integrations/00000000-0000-0000-0000-000000000001"} {
		w := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestIntegrationAPI_List(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.AddIntegration(testutil.NewMockedIntegration("Loja A", integration.StatusActive))
	f.repo.AddIntegration(testutil.NewMockedIntegration("Loja B", integration.StatusPaused))

	w := f.do(t, http.MethodGet, "/api/v1/integrations", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[ListIntegrationsResponse](t, w).Integrations, 2)
}

func TestIntegrationAPI_PauseAndActivate(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusActive)
	f.repo.AddIntegration(rec)
	base := "/api/v1/integrations/" + rec.ID.String()

	w := f.do(t, http.MethodPost, base+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", decodeBody[IntegrationResponse](t, w).Status)

	w = f.do(t, http.MethodPost, base+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", decodeBody[IntegrationResponse](t, w).Status)
}

func TestIntegrationAPI_PauseWaitingRecordConflicts(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusWaitAuth)
	f.repo.AddIntegration(rec)

	w := f.do(t, http.MethodPost, "/api/v1/integrations/"+rec.ID.String()+"/pause", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state_transition", decodeBody[ErrorResponse](t, w).Code)
}

func TestIntegrationAPI_Edit(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusPaused)
	f.repo.AddIntegration(rec)

	w := f.do(t, http.MethodPatch, "/api/v1/integrations/"+rec.ID.String(), map[string]any{"nome": "Loja Nova", "ordem": 4})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeBody[IntegrationResponse](t, w)
	assert.Equal(t, "Loja Nova", got.Name)
	assert.Equal(t, 4, got.Order)
	assert.Equal(t, "active", got.Status)
}

func TestIntegrationAPI_EditRejectsBadBody(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusActive)
	f.repo.AddIntegration(rec)
	path := "/api/v1/integrations/" + rec.ID.String()

	w := f.do(t, http.MethodPatch, path, map[string]any{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+f.token)
	rw := httptest.NewRecorder()
	f.handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestIntegrationAPI_DeleteWaitingRecord(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusWaitAuth)
	f.repo.AddIntegration(rec)

	w := f.do(t, http.MethodDelete, "/api/v1/integrations/"+rec.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[DeletionResponse](t, w).Deleted)
	assert.Equal(t, 0, f.repo.Count())
}

func TestIntegrationAPI_DeletionRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusActive)
	f.repo.AddIntegration(rec)
	base := "/api/v1/integrations/" + rec.ID.String()

	w := f.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	pending := decodeBody[DeletionResponse](t, w)
	assert.False(t, pending.Deleted)
	assert.True(t, strings.HasPrefix(pending.CancellationURL, "https://partner.example.com"))
	assert.Equal(t, "pending_deletion", pending.Integration.Status)

	w = f.do(t, http.MethodPost, base+"/deletion/abort", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", decodeBody[IntegrationResponse](t, w).Status)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodDelete, base, nil).Code)
	w = f.do(t, http.MethodPost, base+"/deletion/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.repo.Stored(rec.ID))
}

func TestIntegrationAPI_AuthorizationURLOnlyWhileWaiting(t *testing.T) {
	f := newAPIFixture(t)
	waiting := testutil.NewMockedIntegration("Loja A", integration.StatusWaitAuth)
	active := testutil.NewMockedIntegration("Loja B", integration.StatusActive)
	f.repo.AddIntegration(waiting)
	f.repo.AddIntegration(active)

	w := f.do(t, http.MethodGet, "/api/v1/integrations/"+waiting.ID.String()+"/authorization-url", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody[AuthorizationURLResponse](t, w).AuthorizationURL, "state%3D"+waiting.ID.String())

	w = f.do(t, http.MethodGet, "/api/v1/integrations/"+active.ID.String()+"/authorization-url", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIntegrationAPI_SecretAndAccessToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusActive)
	rec.AllowAPI = true
	f.repo.AddIntegration(rec)

	w := f.do(t, http.MethodPost, "/api/v1/integrations/"+rec.ID.String()+"/secret", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	secret := decodeBody[SecretResponse](t, w).Secret
	require.NotEmpty(t, secret)

	// the token endpoint takes no session
	tokenReq := func(s string) *httptest.ResponseRecorder {
		rw := httptest.NewRecorder()
		f.handler.ServeHTTP(rw, f.request(t, http.MethodPost, "/api/v1/access-token", AccessTokenRequest{
			IntegrationID: rec.ID.String(), Secret: s,
		}))
		return rw
	}

	w = tokenReq(secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	grant := decodeBody[AccessTokenResponse](t, w)
	assert.Equal(t, "at-stored", grant.AccessToken)
	assert.Equal(t, "1001", grant.PartnerID)
	assert.Equal(t, "seller-1", grant.SellerID)

	w = tokenReq("wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "secret_mismatch", decodeBody[ErrorResponse](t, w).Code)
}

func TestIntegrationAPI_AccessTokenValidation(t *testing.T) {
	f := newAPIFixture(t)
	w := httptest.NewRecorder()

	f.handler.ServeHTTP(w, f.request(t, http.MethodPost, "/api/v1/access-token", map[string]string{"integration_id": "nope"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
