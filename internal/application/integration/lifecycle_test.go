package integration_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	integrationApp "github.com/cassiomorais/integrations/internal/application/integration"
	"github.com/cassiomorais/integrations/internal/domain/audit"
	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/partner"
	"github.com/cassiomorais/integrations/internal/testutil"
	"github.com/cassiomorais/integrations/internal/vault"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	operator = audit.Actor{ID: "42", Name: "Maria"}
	signedAt = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
)

type harness struct {
	lc      *integrationApp.Lifecycle
	repo    *testutil.MockIntegrationRepository
	audit   *testutil.MockAuditRepository
	partner *testutil.MockPartnerClient
	watch   *testutil.MockWatchList
	vault   *vault.Vault
	deps    integrationApp.LifecycleDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	v, err := vault.New("lifecycle-test-master-secret")
	require.NoError(t, err)

	h := &harness{
		repo:    testutil.NewMockIntegrationRepository(),
		audit:   testutil.NewMockAuditRepository(),
		partner: &testutil.MockPartnerClient{},
		watch:   &testutil.MockWatchList{},
		vault:   v,
	}
	signer := partner.NewSigner("https://partner.example.com", "https://app.example.com/callback", "https://app.example.com/cancelled").
		WithClock(func() time.Time { return signedAt })

	h.deps = integrationApp.LifecycleDeps{
		Repo:      h.repo,
		Tx:        testutil.NewMockTransactionManager(h.repo, h.audit),
		Vault:     v,
		Signer:    signer,
		Partner:   h.partner,
		WatchList: h.watch,
		Audit:     h.audit,
		Logger:    zerolog.Nop(),
	}
	h.lc = integrationApp.NewLifecycle(h.deps)
	return h
}

// seed stores a record whose credentials are real vault ciphertext.
func (h *harness) seed(t *testing.T, name string, status integration.Status) *integration.Integration {
	t.Helper()
	id, err := h.vault.Encrypt("1001")
	require.NoError(t, err)
	key, err := h.vault.Encrypt("key-" + name)
	require.NoError(t, err)
	rec := testutil.NewTestIntegration(name, status, id, key)
	rec.CredentialFingerprint = h.vault.Fingerprint("1001", "key-"+name)
	h.repo.AddIntegration(rec)
	return rec
}

func (h *harness) initiate(t *testing.T, name, partnerID, partnerKey string) *integrationApp.InitiateResult {
	t.Helper()
	res, err := h.lc.Initiate(context.Background(), integrationApp.InitiateInput{
		Name: name, PartnerID: partnerID, PartnerKey: partnerKey,
	}, operator)
	require.NoError(t, err)
	return res
}

func expectedSign(partnerID, partnerKey, path string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(partnerKey))
	mac.Write([]byte(partnerID + path + strconv.FormatInt(ts, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// --- Initiate ---

func TestInitiate_Success(t *testing.T) {
	h := newHarness(t)

	res := h.initiate(t, "Loja A", "123", "abc")

	rec := h.repo.Stored(res.Integration.ID)
	require.NotNil(t, rec)
	assert.Equal(t, integration.StatusWaitAuth, rec.Status)
	assert.Equal(t, "loja-a", rec.ShortName)
	assert.Equal(t, 1, rec.Order)
	assert.Empty(t, rec.RefreshToken)
	assert.NotEqual(t, "123", rec.PartnerID)
	assert.NotEqual(t, "abc", rec.PartnerKey)

	plainID, err := h.vault.Decrypt(rec.PartnerID)
	require.NoError(t, err)
	plainKey, err := h.vault.Decrypt(rec.PartnerKey)
	require.NoError(t, err)
	assert.Equal(t, "123", plainID)
	assert.Equal(t, "abc", plainKey)

	assert.Equal(t, []audit.Action{audit.ActionCreated}, h.audit.Actions())
	entry := h.audit.Entries()[0]
	assert.Equal(t, "Loja A", entry.IntegrationName)
	assert.Equal(t, "Maria", entry.ActorName)
}

func TestInitiate_AuthorizationURLIsSigned(t *testing.T) {
	h := newHarness(t)

	res := h.initiate(t, "Loja A", "123", "abc")

	u, err := url.Parse(res.AuthorizationURL)
	require.NoError(t, err)
	assert.Equal(t, "partner.example.com", u.Host)
	assert.Equal(t, partner.PathAuthorize, u.Path)

	q := u.Query()
	ts, err := strconv.ParseInt(q.Get("timestamp"), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, signedAt.Unix(), ts)
	assert.Equal(t, "123", q.Get("partner_id"))
	assert.Equal(t, expectedSign("123", "abc", partner.PathAuthorize, ts), q.Get("sign"))

	redirect, err := url.Parse(q.Get("redirect"))
	require.NoError(t, err)
	assert.Equal(t, res.Integration.ID.String(), redirect.Query().Get("state"))
}

func TestInitiate_SecondRecordGetsNextOrder(t *testing.T) {
	h := newHarness(t)
	h.initiate(t, "Loja A", "123", "abc")

	res := h.initiate(t, "Loja B", "456", "def")
	assert.Equal(t, 2, res.Integration.Order)
}

func TestInitiate_Duplicates(t *testing.T) {
	tests := []struct {
		name    string
		input   integrationApp.InitiateInput
		wantErr error
	}{
		{"same name", integrationApp.InitiateInput{Name: "Loja A", PartnerID: "999", PartnerKey: "zzz"}, domainErrors.ErrDuplicateName},
		{"same short name", integrationApp.InitiateInput{Name: "Outra", ShortName: "Loja A", PartnerID: "999", PartnerKey: "zzz"}, domainErrors.ErrDuplicateShortName},
		{"same credentials", integrationApp.InitiateInput{Name: "Loja C", PartnerID: "123", PartnerKey: "abc"}, domainErrors.ErrDuplicateCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.initiate(t, "Loja A", "123", "abc")

			_, err := h.lc.Initiate(context.Background(), tt.input, operator)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, h.repo.Count())
			assert.Len(t, h.audit.Entries(), 1)
		})
	}
}

func TestInitiate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input integrationApp.InitiateInput
		field string
	}{
		{"empty name", integrationApp.InitiateInput{Name: " ", PartnerID: "1", PartnerKey: "k"}, "name"},
		{"missing partner id", integrationApp.InitiateInput{Name: "Loja", PartnerKey: "k"}, "partner_id"},
		{"missing partner key", integrationApp.InitiateInput{Name: "Loja", PartnerID: "1"}, "partner_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.lc.Initiate(context.Background(), tt.input, operator)

			var ve *domainErrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, h.repo.Count())
		})
	}
}

func TestInitiate_AuditFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.audit.InsertFunc = func(context.Context, *audit.Entry) error { return errors.New("db down") }

	_, err := h.lc.Initiate(context.Background(), integrationApp.InitiateInput{
		Name: "Loja A", PartnerID: "123", PartnerKey: "abc",
	}, operator)

	require.Error(t, err)
	assert.Zero(t, h.repo.Count())
}

// --- CompleteHandshake ---

func TestCompleteHandshake_ActivatesAndWatches(t *testing.T) {
	h := newHarness(t)
	res := h.initiate(t, "Loja A", "123", "abc")

	var gotCreds partner.Credentials
	var gotCode string
	h.partner.ExchangeTokenFunc = func(_ context.Context, creds partner.Credentials, code, sellerID string) (*partner.TokenGrant, error) {
		gotCreds, gotCode = creds, code
		return &partner.TokenGrant{AccessToken: "at1", RefreshToken: "rt1", SellerID: sellerID}, nil
	}

	rec, err := h.lc.CompleteHandshake(context.Background(), integrationApp.CallbackInput{
		Code: "c0de", State: res.Integration.ID.String(), SellerID: "777",
	}, operator)
	require.NoError(t, err)

	assert.Equal(t, partner.Credentials{PartnerID: "123", PartnerKey: "abc"}, gotCreds)
	assert.Equal(t, "c0de", gotCode)

	stored := h.repo.Stored(rec.ID)
	assert.Equal(t, integration.StatusActive, stored.Status)
	assert.Equal(t, "rt1", stored.RefreshToken)
	assert.Equal(t, "777", stored.SellerID)
	assert.Equal(t, "c0de", stored.Code)
	require.NotNil(t, stored.LastAccessToken)
	assert.Equal(t, "at1", stored.LastAccessToken.Token)

	assert.Equal(t, []string{rec.ID.String()}, h.watch.IDs())
	assert.Equal(t, []audit.Action{audit.ActionCreated, audit.ActionAuthorized}, h.audit.Actions())
}

func TestCompleteHandshake_SecondCallbackConflicts(t *testing.T) {
	h := newHarness(t)
	res := h.initiate(t, "Loja A", "123", "abc")
	callback := integrationApp.CallbackInput{Code: "c0de", State: res.Integration.ID.String(), SellerID: "777"}

	_, err := h.lc.CompleteHandshake(context.Background(), callback, operator)
	require.NoError(t, err)
	before := h.repo.Stored(res.Integration.ID)

	callback.Code = "other"
	_, err = h.lc.CompleteHandshake(context.Background(), callback, operator)

	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.Equal(t, before, h.repo.Stored(res.Integration.ID))
	assert.Equal(t, 1, h.partner.ExchangeCalls)
}

func TestCompleteHandshake_PartnerFailureDiscardsRecord(t *testing.T) {
	tests := []struct {
		name    string
		grant   *partner.TokenGrant
		err     error
		wantErr error
	}{
		{"rejected", nil, domainErrors.ErrPartnerRejected, domainErrors.ErrPartnerRejected},
		{"unavailable", nil, domainErrors.ErrPartnerUnavailable, domainErrors.ErrPartnerUnavailable},
		{"no refresh token", &partner.TokenGrant{AccessToken: "at"}, nil, domainErrors.ErrPartnerMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res := h.initiate(t, "Loja A", "123", "abc")
			h.partner.ExchangeTokenFunc = func(context.Context, partner.Credentials, string, string) (*partner.TokenGrant, error) {
				return tt.grant, tt.err
			}

			_, err := h.lc.CompleteHandshake(context.Background(), integrationApp.CallbackInput{
				Code: "c0de", State: res.Integration.ID.String(),
			}, operator)

			require.ErrorIs(t, err, tt.wantErr)
			var de *domainErrors.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "partner_call_failed", de.Code)

			assert.Nil(t, h.repo.Stored(res.Integration.ID))
			assert.Empty(t, h.watch.IDs())
			assert.Equal(t, []audit.Action{audit.ActionCreated, audit.ActionDeleted}, h.audit.Actions())
		})
	}
}

func TestCompleteHandshake_UnknownState(t *testing.T) {
	h := newHarness(t)

	for _, state := range []string{"not-a-uuid", uuid.NewString()} {
		_, err := h.lc.CompleteHandshake(context.Background(), integrationApp.CallbackInput{Code: "c", State: state}, operator)
		assert.ErrorIs(t, err, domainErrors.ErrIntegrationNotFound)
	}
	assert.Zero(t, h.partner.Calls())
}

func TestCompleteHandshake_WatchListFailureIsTolerated(t *testing.T) {
	h := newHarness(t)
	res := h.initiate(t, "Loja A", "123", "abc")
	h.watch.AddFunc = func(context.Context, string) error { return errors.New("disk full") }

	rec, err := h.lc.CompleteHandshake(context.Background(), integrationApp.CallbackInput{
		Code: "c0de", State: res.Integration.ID.String(),
	}, operator)

	require.NoError(t, err)
	assert.Equal(t, integration.StatusActive, h.repo.Stored(rec.ID).Status)
}

func TestCompleteHandshake_MissingCodeDiscardsRecord(t *testing.T) {
	for _, code := range []string{"", "   "} {
		h := newHarness(t)
		res := h.initiate(t, "Loja A", "123", "abc")

		_, err := h.lc.CompleteHandshake(context.Background(), integrationApp.CallbackInput{
			Code: code, State: res.Integration.ID.String(),
		}, operator)

		assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
		assert.Nil(t, h.repo.Stored(res.Integration.ID))
		assert.Zero(t, h.partner.Calls())
		assert.Equal(t, []audit.Action{audit.ActionCreated, audit.ActionDeleted}, h.audit.Actions())
	}
}

func TestCompleteHandshake_MissingCodeLeavesActiveRecord(t *testing.T) {
	h := newHarness(t)
	active := h.seed(t, "Loja A", integration.StatusActive)

	_, err := h.lc.CompleteHandshake(context.Background(), integrationApp.CallbackInput{State: active.ID.String()}, operator)

	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.Equal(t, integration.StatusActive, h.repo.Stored(active.ID).Status)
}

// --- RequestAuthorization ---

func TestRequestAuthorization(t *testing.T) {
	h := newHarness(t)
	waiting := h.seed(t, "Loja A", integration.StatusWaitAuth)
	active := h.seed(t, "Loja B", integration.StatusActive)

	authURL, err := h.lc.RequestAuthorization(context.Background(), waiting.ID)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, expectedSign("1001", "key-Loja A", partner.PathAuthorize, signedAt.Unix()), u.Query().Get("sign"))

	_, err = h.lc.RequestAuthorization(context.Background(), active.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

// --- SetActive ---

func TestSetActive_PauseAndResume(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)
	ctx := context.Background()

	paused, err := h.lc.SetActive(ctx, rec.ID, false, operator)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusPaused, paused.Status)

	// already paused: no write, no audit
	_, err = h.lc.SetActive(ctx, rec.ID, false, operator)
	require.NoError(t, err)

	resumed, err := h.lc.SetActive(ctx, rec.ID, true, operator)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusActive, resumed.Status)

	assert.Equal(t, []audit.Action{audit.ActionPaused, audit.ActionActivated}, h.audit.Actions())
}

func TestSetActive_Rejected(t *testing.T) {
	h := newHarness(t)
	waiting := h.seed(t, "Loja A", integration.StatusWaitAuth)
	pending := h.seed(t, "Loja B", integration.StatusPendingDeletion)
	ctx := context.Background()

	_, err := h.lc.SetActive(ctx, waiting.ID, true, operator)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	_, err = h.lc.SetActive(ctx, pending.ID, false, operator)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	_, err = h.lc.SetActive(ctx, uuid.New(), true, operator)
	assert.ErrorIs(t, err, domainErrors.ErrIntegrationNotFound)

	assert.Empty(t, h.audit.Entries())
}

// --- Edit ---

func TestEdit_WritesOnlyChangedFields(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)

	var written integration.Patch
	h.repo.UpdateFieldsFunc = func(_ context.Context, id uuid.UUID, p integration.Patch) (*integration.Integration, error) {
		written = p
		updated := h.repo.Stored(id)
		updated.Apply(p)
		return updated, nil
	}

	updated, err := h.lc.Edit(context.Background(), rec.ID, map[string]any{
		"nome":  "Loja A",
		"ordem": float64(4),
	}, operator)
	require.NoError(t, err)

	assert.Nil(t, written.Name)
	assert.Nil(t, written.Status)
	require.NotNil(t, written.Order)
	assert.Equal(t, 4, updated.Order)
	require.Len(t, h.audit.Entries(), 1)
	assert.Equal(t, "changed order", h.audit.Entries()[0].Message)
}

func TestEdit_ForcesActive(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusPaused)

	updated, err := h.lc.Edit(context.Background(), rec.ID, map[string]any{"permitirAPI": true}, operator)
	require.NoError(t, err)

	assert.Equal(t, integration.StatusActive, updated.Status)
	assert.True(t, updated.AllowAPI)
	assert.Equal(t, integration.StatusActive, h.repo.Stored(rec.ID).Status)
}

func TestEdit_NoChangesIsNoop(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)

	_, err := h.lc.Edit(context.Background(), rec.ID, map[string]any{"name": "Loja A", "shortName": "loja-a"}, operator)

	require.NoError(t, err)
	assert.Empty(t, h.audit.Entries())
}

func TestEdit_UniquenessAgainstOtherRecords(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)
	h.seed(t, "Loja B", integration.StatusActive)

	_, err := h.lc.Edit(context.Background(), rec.ID, map[string]any{"name": "Loja B"}, operator)
	assert.ErrorIs(t, err, domainErrors.ErrDuplicateName)

	_, err = h.lc.Edit(context.Background(), rec.ID, map[string]any{"short_name": "Loja B"}, operator)
	assert.ErrorIs(t, err, domainErrors.ErrDuplicateShortName)

	assert.Equal(t, "Loja A", h.repo.Stored(rec.ID).Name)
}

func TestEdit_Rejected(t *testing.T) {
	h := newHarness(t)
	waiting := h.seed(t, "Loja A", integration.StatusWaitAuth)
	pending := h.seed(t, "Loja B", integration.StatusPendingDeletion)
	active := h.seed(t, "Loja C", integration.StatusActive)
	ctx := context.Background()

	_, err := h.lc.Edit(ctx, waiting.ID, map[string]any{"name": "X"}, operator)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	_, err = h.lc.Edit(ctx, pending.ID, map[string]any{"name": "X"}, operator)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	_, err = h.lc.Edit(ctx, active.ID, map[string]any{"status": "paused"}, operator)
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}

// --- Deletion ---

func TestRequestDeletion_WaitAuthDeletesLocally(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusWaitAuth)

	res, err := h.lc.RequestDeletion(context.Background(), rec.ID, operator)
	require.NoError(t, err)

	assert.True(t, res.Deleted)
	assert.Empty(t, res.CancellationURL)
	assert.Nil(t, h.repo.Stored(rec.ID))
	assert.Zero(t, h.partner.Calls())
	assert.Equal(t, []audit.Action{audit.ActionDeleted}, h.audit.Actions())
}

func TestRequestDeletion_ActiveIsDeferredUntilConfirmed(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)
	require.NoError(t, h.watch.Add(context.Background(), rec.ID.String()))
	ctx := context.Background()

	res, err := h.lc.RequestDeletion(ctx, rec.ID, operator)
	require.NoError(t, err)
	assert.False(t, res.Deleted)

	u, err := url.Parse(res.CancellationURL)
	require.NoError(t, err)
	assert.Equal(t, partner.PathCancelAuthorization, u.Path)
	assert.Equal(t, expectedSign("1001", "key-Loja A", partner.PathCancelAuthorization, signedAt.Unix()), u.Query().Get("sign"))
	redirect, err := url.Parse(u.Query().Get("redirect"))
	require.NoError(t, err)
	assert.Equal(t, rec.ID.String(), redirect.Query().Get("state"))

	stored := h.repo.Stored(rec.ID)
	require.NotNil(t, stored)
	assert.Equal(t, integration.StatusPendingDeletion, stored.Status)
	assert.Equal(t, integration.StatusActive, *stored.PreviousStatus)

	// asking again re-issues the URL without another transition
	again, err := h.lc.RequestDeletion(ctx, rec.ID, operator)
	require.NoError(t, err)
	assert.NotEmpty(t, again.CancellationURL)

	require.NoError(t, h.lc.CompleteDeletion(ctx, rec.ID, operator))
	assert.Nil(t, h.repo.Stored(rec.ID))
	assert.Empty(t, h.watch.IDs())
	assert.Equal(t, []audit.Action{audit.ActionDeletionRequested, audit.ActionDeleted}, h.audit.Actions())
}

func TestCompleteDeletion_RequiresPending(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)

	err := h.lc.CompleteDeletion(context.Background(), rec.ID, operator)

	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.NotNil(t, h.repo.Stored(rec.ID))
}

func TestCompleteDeletion_WatchListFailureIsTolerated(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusPendingDeletion)
	h.watch.RemoveFunc = func(context.Context, string) error { return errors.New("locked") }

	require.NoError(t, h.lc.CompleteDeletion(context.Background(), rec.ID, operator))
	assert.Nil(t, h.repo.Stored(rec.ID))
}

func TestAbortDeletion_RestoresPreviousStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusPaused)
	ctx := context.Background()

	_, err := h.lc.RequestDeletion(ctx, rec.ID, operator)
	require.NoError(t, err)

	restored, err := h.lc.AbortDeletion(ctx, rec.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusPaused, restored.Status)

	stored := h.repo.Stored(rec.ID)
	assert.Equal(t, integration.StatusPaused, stored.Status)
	assert.Nil(t, stored.PreviousStatus)
	assert.Nil(t, stored.DeletionRequestedAt)

	_, err = h.lc.AbortDeletion(ctx, rec.ID, operator)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

// --- Get / List ---

func TestGet_DecryptsCredentials(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)

	details, err := h.lc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "1001", details.PartnerID)
	assert.Equal(t, "key-Loja A", details.PartnerKey)
}

func TestGet_UnreadableCredentials(t *testing.T) {
	h := newHarness(t)
	rec := testutil.NewTestIntegration("Loja A", integration.StatusActive, "zz", "zz")
	h.repo.AddIntegration(rec)

	_, err := h.lc.Get(context.Background(), rec.ID)

	assert.ErrorIs(t, err, domainErrors.ErrCredentialUnreadable)
	assert.NotContains(t, err.Error(), "1001")
}

func TestList_OrderedByDisplayOrder(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "Loja A", integration.StatusActive)
	b := h.seed(t, "Loja B", integration.StatusActive)
	a.Order, b.Order = 2, 1
	h.repo.AddIntegration(a)
	h.repo.AddIntegration(b)

	list, err := h.lc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Loja B", list[0].Name)
}

// --- GenerateSecret ---

func TestGenerateSecret(t *testing.T) {
	h := newHarness(t)
	rec := h.seed(t, "Loja A", integration.StatusActive)
	ctx := context.Background()

	first, err := h.lc.GenerateSecret(ctx, rec.ID, operator)
	require.NoError(t, err)
	assert.Len(t, first, 43)
	assert.Equal(t, first, h.repo.Stored(rec.ID).Secret)

	second, err := h.lc.GenerateSecret(ctx, rec.ID, operator)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, h.repo.Stored(rec.ID).Secret)

	_, err = h.lc.GenerateSecret(ctx, uuid.New(), operator)
	assert.ErrorIs(t, err, domainErrors.ErrIntegrationNotFound)
}
