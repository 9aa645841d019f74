package integration

import (
	"context"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/partner"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CredentialVault encrypts partner credentials at rest.
type CredentialVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
	Fingerprint(parts ...string) string
}

// URLSigner builds the signed redirect URLs handed back to the operator.
type URLSigner interface {
	AuthorizationURL(creds partner.Credentials, state string) (string, error)
	CancellationURL(creds partner.Credentials, state string) (string, error)
}

// PartnerClient performs the outbound token calls.
type PartnerClient interface {
	ExchangeToken(ctx context.Context, creds partner.Credentials, code, sellerID string) (*partner.TokenGrant, error)
	RefreshAccessToken(ctx context.Context, creds partner.Credentials, refreshToken, sellerID string) (*partner.TokenGrant, error)
}

// WatchList is the set of integrations the external refresh scheduler keeps warm.
type WatchList interface {
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// AuditWriter records a transition, inside the caller's transaction when there is one.
type AuditWriter interface {
	Insert(ctx context.Context, entry *audit.Entry) error
}

// TokenSource yields a current access token, refreshing it when stale.
type TokenSource interface {
	CurrentToken(ctx context.Context, i *integration.Integration, creds partner.Credentials) (*integration.AccessToken, error)
}
