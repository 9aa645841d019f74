package integration

import (
	"context"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/partner"
)

// PartnerTokenSource hands out the stored access token while it is fresh and
// refreshes it through the partner otherwise, persisting the rotated tokens.
type PartnerTokenSource struct {
	repo    integration.Repository
	tx      TransactionManager
	partner PartnerClient
	audit   AuditWriter
	ttl     time.Duration
	now     func() time.Time
}

func NewPartnerTokenSource(repo integration.Repository, tx TransactionManager, client PartnerClient, auditWriter AuditWriter, ttl time.Duration) *PartnerTokenSource {
	return &PartnerTokenSource{
		repo:    repo,
		tx:      tx,
		partner: client,
		audit:   auditWriter,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *PartnerTokenSource) CurrentToken(ctx context.Context, i *integration.Integration, creds partner.Credentials) (*integration.AccessToken, error) {
	var token *integration.AccessToken
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.Lock(ctx, i.ID)
		if err != nil {
			return err
		}
		if s.fresh(current.LastAccessToken) {
			token = current.LastAccessToken
			return nil
		}

		grant, err := s.partner.RefreshAccessToken(ctx, creds, current.RefreshToken, current.SellerID)
		if err != nil {
			return err
		}
		current.RecordAccessToken(grant.AccessToken, grant.RefreshToken, grant.ExpiresIn, s.now())
		if err := s.repo.Update(ctx, current); err != nil {
			return err
		}
		token = current.LastAccessToken
		return s.audit.Insert(ctx, audit.NewEntry(current.ID, current.Name, audit.SystemActor,
			audit.ActionTokenRefreshed, "access token refreshed for api access"))
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (s *PartnerTokenSource) fresh(t *integration.AccessToken) bool {
	return t != nil && t.Token != "" && s.now().Before(t.ExpiresAt(s.ttl))
}
