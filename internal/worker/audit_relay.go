package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	"github.com/cassiomorais/integrations/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditOutbox is the transactional store audit entries are written to.
type AuditOutbox interface {
	GetPending(ctx context.Context, limit int) ([]*audit.Entry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type AuditPublisher interface {
	Publish(ctx context.Context, entry *audit.Entry) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditRelay moves pending outbox entries onto the audit stream.
type AuditRelay struct {
	tx        TransactionManager
	outbox    AuditOutbox
	publisher AuditPublisher
	batch     int
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewAuditRelay(tx TransactionManager, outbox AuditOutbox, publisher AuditPublisher, batch int, logger zerolog.Logger, metrics *observability.Metrics) *AuditRelay {
	if batch <= 0 {
		batch = 10
	}
	return &AuditRelay{
		tx:        tx,
		outbox:    outbox,
		publisher: publisher,
		batch:     batch,
		logger:    logger.With().Str("component", "audit_relay").Logger(),
		metrics:   metrics,
	}
}

// Run polls the outbox every interval until ctx is done.
func (r *AuditRelay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := r.Flush(ctx); err != nil {
			r.logger.Error().Err(err).Msg("Audit relay error")
		}
	}
}

// Flush publishes one batch and returns how many entries made it out.
// Entries that fail to publish stay pending until they run out of attempts.
func (r *AuditRelay) Flush(ctx context.Context) (int, error) {
	start := time.Now()
	published := 0
	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outbox.GetPending(txCtx, r.batch)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := r.publisher.Publish(ctx, entry); err != nil {
				r.logger.Error().Err(err).Str("audit_id", entry.ID.String()).Msg("Failed to publish audit entry")
				r.count("failed")
				if err := r.outbox.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if err := r.outbox.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			r.count("success")
			published++
		}
		return nil
	})
	if r.metrics != nil {
		r.metrics.WorkerProcessingDuration.WithLabelValues("audit_relay").Observe(time.Since(start).Seconds())
	}
	return published, err
}

func (r *AuditRelay) count(result string) {
	if r.metrics != nil {
		r.metrics.WorkerMessagesProcessed.WithLabelValues("audit", result).Inc()
	}
}
