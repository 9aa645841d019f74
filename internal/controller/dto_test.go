package controller

import (
	"encoding/json"
	"testing"
	"time"

	integrationApp "github.com/cassiomorais/integrations/internal/application/integration"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromIntegration_OmitsSecrets(t *testing.T) {
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusPendingDeletion)
	rec.Secret = "s3cret"

	resp := FromIntegration(rec)

	assert.Equal(t, "pending_deletion", resp.Status)
	assert.True(t, resp.Authorized)
	assert.True(t, resp.HasSecret)
	require.NotNil(t, resp.PreviousStatus)
	assert.Equal(t, "active", *resp.PreviousStatus)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, leaked := range []string{"s3cret", "rt-stored", "at-stored", "enc:"} {
		assert.NotContains(t, string(body), leaked)
	}
}

func TestFromIntegration_WaitingRecord(t *testing.T) {
	resp := FromIntegration(testutil.NewMockedIntegration("Loja A", integration.StatusWaitAuth))

	assert.False(t, resp.Authorized)
	assert.False(t, resp.HasSecret)
	assert.Nil(t, resp.PreviousStatus)
	assert.Empty(t, resp.SellerID)
}

func TestFromDetails(t *testing.T) {
	rec := testutil.NewMockedIntegration("Loja A", integration.StatusActive)
	at := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	rec.LastAccessToken.UpdatedAt = at

	resp := FromDetails(&integrationApp.Details{Integration: rec, PartnerID: "1001", PartnerKey: "key"})

	assert.Equal(t, "1001", resp.PartnerID)
	assert.Equal(t, "key", resp.PartnerKey)
	require.NotNil(t, resp.AccessTokenAt)
	assert.Equal(t, at, *resp.AccessTokenAt)
	assert.Equal(t, "Loja A", resp.Name)
}
