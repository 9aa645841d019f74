package integration

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/infrastructure/observability"
	"github.com/cassiomorais/integrations/internal/partner"
	"github.com/rs/zerolog"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Deleted  int
	Restored int
	Deferred int
	Failed   int
}

// Reconciler settles pending_deletion records the operator never confirmed.
// A token refresh tells whether the seller revoked access: an auth rejection
// means the cancellation went through, a fresh token means it did not. Any
// other answer leaves the record for the next run.
type Reconciler struct {
	repo    integration.Repository
	tx      TransactionManager
	vault   CredentialVault
	partner PartnerClient
	watch   WatchList
	audit   AuditWriter
	grace   time.Duration
	batch   int
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewReconciler(d LifecycleDeps, grace time.Duration, batch int) *Reconciler {
	if batch <= 0 {
		batch = 50
	}
	return &Reconciler{
		repo:    d.Repo,
		tx:      d.Tx,
		vault:   d.Vault,
		partner: d.Partner,
		watch:   d.WatchList,
		audit:   d.Audit,
		grace:   grace,
		batch:   batch,
		logger:  d.Logger.With().Str("component", "reconciler").Logger(),
		metrics: d.Metrics,
		now:     time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	stale, err := r.repo.ListPendingDeletion(ctx, r.now().Add(-r.grace), r.batch)
	if err != nil {
		return report, err
	}

	for _, rec := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		outcome := r.reconcile(ctx, rec)
		switch outcome {
		case "deleted":
			report.Deleted++
		case "restored":
			report.Restored++
		case "deferred":
			report.Deferred++
		default:
			report.Failed++
		}
		if r.metrics != nil {
			r.metrics.ReconcileOutcomes.WithLabelValues(outcome).Inc()
		}
	}

	r.logger.Info().
		Int("deleted", report.Deleted).
		Int("restored", report.Restored).
		Int("deferred", report.Deferred).
		Int("failed", report.Failed).
		Msg("Pending deletions reconciled")
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, rec *integration.Integration) string {
	log := r.logger.With().Str("integration_id", rec.ID.String()).Logger()

	creds, err := decryptCredentials(r.vault, rec)
	if err != nil {
		log.Error().Err(err).Msg("Cannot reconcile integration")
		return "failed"
	}

	grant, err := r.partner.RefreshAccessToken(ctx, creds, rec.RefreshToken, rec.SellerID)
	switch {
	case errors.Is(err, domainErrors.ErrPartnerAuthRevoked):
		if err := r.finishDeletion(ctx, rec); err != nil {
			log.Error().Err(err).Msg("Failed to delete revoked integration")
			return "failed"
		}
		return "deleted"
	case errors.Is(err, domainErrors.ErrPartnerRejected):
		log.Warn().Err(err).Msg("Partner refused refresh without revoking authorization, retrying next run")
		return "deferred"
	case err != nil:
		log.Warn().Err(err).Msg("Partner unreachable, retrying next run")
		return "deferred"
	}

	if err := r.restore(ctx, rec, grant); err != nil {
		log.Error().Err(err).Msg("Failed to restore integration")
		return "failed"
	}
	return "restored"
}

func (r *Reconciler) finishDeletion(ctx context.Context, rec *integration.Integration) error {
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := r.repo.Lock(ctx, rec.ID)
		if err != nil {
			return err
		}
		if current.Status != integration.StatusPendingDeletion {
			return domainErrors.ErrInvalidStateTransition
		}
		if err := r.repo.Delete(ctx, current.ID); err != nil {
			return err
		}
		return r.audit.Insert(ctx, audit.NewEntry(current.ID, current.Name, audit.SystemActor,
			audit.ActionDeleted, "partner authorization revoked, deletion completed"))
	})
	if err != nil {
		return err
	}

	if err := r.watch.Remove(ctx, rec.ID.String()); err != nil {
		r.logger.Warn().Err(err).Str("integration_id", rec.ID.String()).Msg("Failed to remove integration from refresh watch list")
	}
	return nil
}

func (r *Reconciler) restore(ctx context.Context, rec *integration.Integration, grant *partner.TokenGrant) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := r.repo.Lock(ctx, rec.ID)
		if err != nil {
			return err
		}
		if err := current.AbortDeletion(); err != nil {
			return err
		}
		current.RecordAccessToken(grant.AccessToken, grant.RefreshToken, grant.ExpiresIn, r.now())
		if err := r.repo.Update(ctx, current); err != nil {
			return err
		}
		return r.audit.Insert(ctx, audit.NewEntry(current.ID, current.Name, audit.SystemActor,
			audit.ActionDeletionAborted, "partner authorization still valid, restored to "+string(current.Status)))
	})
}
