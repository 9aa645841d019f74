package integration

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccessGrant is what an external caller holding the integration secret receives.
type AccessGrant struct {
	Token      string
	ValidFor   string
	ExpiresAt  time.Time
	PartnerID  string
	PartnerKey string
	SellerID   string
}

// AccessGate serves partner access tokens to callers authenticated by the
// per-integration secret instead of an operator session.
type AccessGate struct {
	repo    integration.Repository
	vault   CredentialVault
	tokens  TokenSource
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewAccessGate(repo integration.Repository, vault CredentialVault, tokens TokenSource, ttl time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *AccessGate {
	return &AccessGate{
		repo:    repo,
		vault:   vault,
		tokens:  tokens,
		ttl:     ttl,
		logger:  logger.With().Str("component", "access_gate").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

func (g *AccessGate) AccessToken(ctx context.Context, id uuid.UUID, secret string) (grant *AccessGrant, err error) {
	defer func() { g.observe(err) }()

	rec, err := g.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.AllowAPI {
		return nil, domainErrors.ErrAPINotPermitted
	}
	if rec.Secret == "" {
		return nil, domainErrors.ErrNoSecretConfigured
	}
	if subtle.ConstantTimeCompare([]byte(rec.Secret), []byte(secret)) != 1 {
		return nil, domainErrors.ErrSecretMismatch
	}
	if rec.Status != integration.StatusActive {
		return nil, domainErrors.ErrInvalidStateTransition
	}

	creds, err := decryptCredentials(g.vault, rec)
	if err != nil {
		return nil, err
	}
	token, err := g.tokens.CurrentToken(ctx, rec, creds)
	if err != nil {
		g.logger.Warn().Err(err).Str("integration_id", rec.ID.String()).Msg("Access token unavailable")
		return nil, err
	}

	expiresAt := token.ExpiresAt(g.ttl)
	return &AccessGrant{
		Token:      token.Token,
		ValidFor:   formatRemaining(expiresAt.Sub(g.now())),
		ExpiresAt:  expiresAt,
		PartnerID:  creds.PartnerID,
		PartnerKey: creds.PartnerKey,
		SellerID:   rec.SellerID,
	}, nil
}

// formatRemaining renders a duration as HH:MM, clamped at zero.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func (g *AccessGate) observe(err error) {
	if g.metrics == nil {
		return
	}
	outcome := "granted"
	switch {
	case err == nil:
	case errors.Is(err, domainErrors.ErrSecretMismatch), errors.Is(err, domainErrors.ErrNoSecretConfigured):
		outcome = "bad_secret"
	case errors.Is(err, domainErrors.ErrAPINotPermitted):
		outcome = "not_permitted"
	case errors.Is(err, domainErrors.ErrIntegrationNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	g.metrics.AccessTokenRequests.WithLabelValues(outcome).Inc()
}
