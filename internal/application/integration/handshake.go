package integration

import (
	"context"
	"strings"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/pkg/saga"
)

// CallbackInput is what the partner appends to the authorization redirect.
type CallbackInput struct {
	Code     string
	State    string
	SellerID string
}

// CompleteHandshake exchanges the callback code for tokens and activates the integration.
// A failed handshake, including a callback without a code, removes the
// wait_auth record so the operator starts over.
func (l *Lifecycle) CompleteHandshake(ctx context.Context, in CallbackInput, actor audit.Actor) (rec *integration.Integration, err error) {
	defer func() { l.observe(string(audit.ActionAuthorized), err) }()

	code := strings.TrimSpace(in.Code)
	var pending *integration.Integration

	s := saga.New("complete-handshake").
		AddStep(saga.Step{
			Name: "resolve",
			Execute: func(ctx context.Context) error {
				found, err := l.repo.FindByState(ctx, in.State)
				if err != nil {
					return err
				}
				if found.Status != integration.StatusWaitAuth {
					return domainErrors.ErrInvalidStateTransition
				}
				pending = found
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return l.discardUnauthorized(context.WithoutCancel(ctx), pending)
			},
		}).
		AddStep(saga.Step{
			// the partner redirects without a code when the seller declines
			Name: "check-code",
			Execute: func(context.Context) error {
				if code == "" {
					return domainErrors.NewValidationError("code", "is required")
				}
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "exchange",
			Execute: func(ctx context.Context) error {
				return l.tx.WithTransaction(ctx, func(ctx context.Context) error {
					current, err := l.repo.Lock(ctx, pending.ID)
					if err != nil {
						return err
					}
					if current.Status != integration.StatusWaitAuth {
						return domainErrors.ErrInvalidStateTransition
					}
					creds, err := l.credentials(current)
					if err != nil {
						return err
					}

					grant, err := l.partner.ExchangeToken(ctx, creds, code, in.SellerID)
					if err != nil {
						return partnerFailure(err)
					}
					if err := current.Authorize(grant.RefreshToken, grant.AccessToken, grant.ExpiresIn, sellerID(grant.SellerID, in.SellerID), code, l.now()); err != nil {
						return partnerFailure(err)
					}
					if err := l.repo.Update(ctx, current); err != nil {
						return err
					}
					rec = current
					return l.record(ctx, current, actor, audit.ActionAuthorized, "partner authorization completed")
				})
			},
		}).
		AddStep(saga.Step{
			Name:     "watch",
			Optional: true,
			Execute: func(ctx context.Context) error {
				return l.watch.Add(ctx, rec.ID.String())
			},
		}).
		OnOptionalFailure(func(_ context.Context, step string, err error) {
			l.logger.Warn().Err(err).Str("step", step).Str("integration_id", rec.ID.String()).
				Msg("Integration authorized but not added to refresh watch list")
		})

	if _, err := s.Execute(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// discardUnauthorized deletes a record that never completed the handshake.
// Records another callback has activated in the meantime are left alone.
func (l *Lifecycle) discardUnauthorized(ctx context.Context, pending *integration.Integration) error {
	if pending == nil {
		return nil
	}
	err := l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := l.repo.Lock(ctx, pending.ID)
		if err != nil {
			return err
		}
		if current.Status != integration.StatusWaitAuth {
			return nil
		}
		if err := l.repo.Delete(ctx, current.ID); err != nil {
			return err
		}
		return l.record(ctx, current, audit.SystemActor, audit.ActionDeleted, "partner authorization failed, integration discarded")
	})
	if err != nil {
		l.logger.Error().Err(err).Str("integration_id", pending.ID.String()).Msg("Failed to discard unauthorized integration")
	}
	return err
}

func partnerFailure(err error) error {
	if !domainErrors.IsPartnerFailure(err) {
		return err
	}
	return domainErrors.NewDomainError("partner_call_failed",
		"partner authorization failed, the integration attempt was cancelled", err)
}

func sellerID(fromPartner, fromCallback string) string {
	if fromPartner != "" {
		return fromPartner
	}
	return fromCallback
}
