package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository is the audit outbox table.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *AuditRepository) Insert(ctx context.Context, e *audit.Entry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO audit_outbox (id, integration_id, integration_name, actor_id, actor_name, action, message, status, attempts, max_attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.IntegrationID, e.IntegrationName, e.ActorID, e.ActorName, string(e.Action), e.Message,
		string(e.Status), e.Attempts, e.MaxAttempts, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// GetPending locks the returned rows; call it inside a transaction.
func (r *AuditRepository) GetPending(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, integration_id, integration_name, actor_id, actor_name, action, message, status, attempts, max_attempts, created_at, published_at
		 FROM audit_outbox WHERE status = 'pending'
		 ORDER BY created_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		e := &audit.Entry{}
		var action, status string
		if err := rows.Scan(&e.ID, &e.IntegrationID, &e.IntegrationName, &e.ActorID, &e.ActorName, &action, &e.Message,
			&status, &e.Attempts, &e.MaxAttempts, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		e.Status = audit.Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *AuditRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE audit_outbox SET status = 'published', published_at = $1 WHERE id = $2`, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark audit entry published: %w", err)
	}
	return nil
}

func (r *AuditRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE audit_outbox SET attempts = attempts + 1,
		        status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END
		 WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("mark audit entry failed: %w", err)
	}
	return nil
}
