package testutil

import (
	"time"

	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// NewTestIntegration builds a record in the given status holding the supplied credential ciphertext.
// Authorized statuses carry a refresh token and a recent access token.
func NewTestIntegration(name string, status integration.Status, partnerIDCipher, partnerKeyCipher string) *integration.Integration {
	now := time.Now()
	i := &integration.Integration{
		ID:                    uuid.New(),
		Name:                  name,
		ShortName:             slug.Make(name),
		Status:                status,
		PartnerID:             partnerIDCipher,
		PartnerKey:            partnerKeyCipher,
		CredentialFingerprint: partnerIDCipher + "|" + partnerKeyCipher,
		Order:                 1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if status == integration.StatusWaitAuth {
		return i
	}

	i.RefreshToken = "rt-stored"
	i.SellerID = "seller-1"
	i.Code = "code-1"
	i.LastAccessToken = &integration.AccessToken{Token: "at-stored", UpdatedAt: now}
	if status == integration.StatusPendingDeletion {
		prev := integration.StatusActive
		requested := now.Add(-48 * time.Hour)
		i.PreviousStatus = &prev
		i.DeletionRequestedAt = &requested
	}
	return i
}

// NewMockedIntegration is NewTestIntegration with MockCredentialVault ciphertext.
func NewMockedIntegration(name string, status integration.Status) *integration.Integration {
	return NewTestIntegration(name, status, "enc:1001", "enc:key-"+slug.Make(name))
}
