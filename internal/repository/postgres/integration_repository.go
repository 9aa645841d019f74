package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const integrationColumns = `id, name, short_name, status, partner_id, partner_key, credential_fingerprint,
	refresh_token, seller_id, code, last_access_token, secret, display_order, allow_api,
	previous_status, deletion_requested_at, created_at, updated_at`

// constraintErrors maps unique constraints to the domain error reported for them.
var constraintErrors = map[string]error{
	"integrations_name_key":                   domainErrors.ErrDuplicateName,
	"integrations_short_name_key":             domainErrors.ErrDuplicateShortName,
	"integrations_credential_fingerprint_key": domainErrors.ErrDuplicateCredential,
}

type scanner interface {
	Scan(dest ...any) error
}

// IntegrationRepository implements integration.Repository using PostgreSQL.
type IntegrationRepository struct {
	pool *pgxpool.Pool
}

func NewIntegrationRepository(pool *pgxpool.Pool) *IntegrationRepository {
	return &IntegrationRepository{pool: pool}
}

func (r *IntegrationRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func scanIntegration(s scanner) (*integration.Integration, error) {
	i := &integration.Integration{}
	var (
		status    string
		lastToken []byte
		previous  *string
	)
	err := s.Scan(&i.ID, &i.Name, &i.ShortName, &status, &i.PartnerID, &i.PartnerKey, &i.CredentialFingerprint,
		&i.RefreshToken, &i.SellerID, &i.Code, &lastToken, &i.Secret, &i.Order, &i.AllowAPI,
		&previous, &i.DeletionRequestedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("scan integration: %w", err)
	}

	i.Status = integration.Status(status)
	if previous != nil {
		p := integration.Status(*previous)
		i.PreviousStatus = &p
	}
	if len(lastToken) > 0 {
		i.LastAccessToken = &integration.AccessToken{}
		if err := json.Unmarshal(lastToken, i.LastAccessToken); err != nil {
			return nil, fmt.Errorf("unmarshal last access token: %w", err)
		}
	}
	return i, nil
}

func encodeAccessToken(t *integration.AccessToken) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal last access token: %w", err)
	}
	return b, nil
}

func statusPtr(s *integration.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// mapWriteError turns unique violations into the matching domain error.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if mapped, ok := constraintErrors[pgErr.ConstraintName]; ok {
			return mapped
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *IntegrationRepository) Create(ctx context.Context, i *integration.Integration) error {
	lastToken, err := encodeAccessToken(i.LastAccessToken)
	if err != nil {
		return err
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO integrations (`+integrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		i.ID, i.Name, i.ShortName, string(i.Status), i.PartnerID, i.PartnerKey, i.CredentialFingerprint,
		i.RefreshToken, i.SellerID, i.Code, lastToken, i.Secret, i.Order, i.AllowAPI,
		statusPtr(i.PreviousStatus), i.DeletionRequestedAt, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert integration", err)
	}
	return nil
}

func (r *IntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	return scanIntegration(r.db(ctx).QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE id = $1`, id))
}

// Lock must run inside a transaction for the row lock to outlive the statement.
func (r *IntegrationRepository) Lock(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	return scanIntegration(r.db(ctx).QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE id = $1 FOR UPDATE`, id))
}

// FindByState resolves a callback state. The state is the integration id; anything
// that does not parse as one cannot match a record. Inside a transaction the row
// is locked like Lock does.
func (r *IntegrationRepository) FindByState(ctx context.Context, state string) (*integration.Integration, error) {
	id, err := uuid.Parse(strings.TrimSpace(state))
	if err != nil {
		return nil, domainErrors.ErrIntegrationNotFound
	}
	if InTransaction(ctx) {
		return r.Lock(ctx, id)
	}
	return r.GetByID(ctx, id)
}

func (r *IntegrationRepository) List(ctx context.Context) ([]*integration.Integration, error) {
	return r.query(ctx,
		`SELECT `+integrationColumns+` FROM integrations ORDER BY display_order ASC, created_at ASC`)
}

func (r *IntegrationRepository) ListPendingDeletion(ctx context.Context, requestedBefore time.Time, limit int) ([]*integration.Integration, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx,
		`SELECT `+integrationColumns+` FROM integrations
		 WHERE status = 'pending_deletion' AND deletion_requested_at < $1
		 ORDER BY deletion_requested_at ASC
		 LIMIT $2`, requestedBefore, limit)
}

func (r *IntegrationRepository) query(ctx context.Context, sql string, args ...any) ([]*integration.Integration, error) {
	rows, err := r.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query integrations: %w", err)
	}
	defer rows.Close()

	var out []*integration.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) ExistsByName(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	return r.exists(ctx, `name = $1 AND ($2::uuid IS NULL OR id <> $2::uuid)`, name, excludeID)
}

func (r *IntegrationRepository) ExistsByShortName(ctx context.Context, shortName string, excludeID *uuid.UUID) (bool, error) {
	return r.exists(ctx, `short_name = $1 AND ($2::uuid IS NULL OR id <> $2::uuid)`, shortName, excludeID)
}

func (r *IntegrationRepository) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	return r.exists(ctx, `credential_fingerprint = $1`, fingerprint)
}

func (r *IntegrationRepository) exists(ctx context.Context, where string, args ...any) (bool, error) {
	var found bool
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM integrations WHERE `+where+`)`, args...,
	).Scan(&found); err != nil {
		return false, fmt.Errorf("check integration exists: %w", err)
	}
	return found, nil
}

func (r *IntegrationRepository) NextOrder(ctx context.Context) (int, error) {
	var next int
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(display_order), 0) + 1 FROM integrations`,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("next display order: %w", err)
	}
	return next, nil
}

func (r *IntegrationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status integration.Status) (*integration.Integration, error) {
	return scanIntegration(r.db(ctx).QueryRow(ctx,
		`UPDATE integrations SET status = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING `+integrationColumns, string(status), id))
}

// UpdateFields writes only the fields the patch sets.
func (r *IntegrationRepository) UpdateFields(ctx context.Context, id uuid.UUID, patch integration.Patch) (*integration.Integration, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.ShortName != nil {
		add("short_name", *patch.ShortName)
	}
	if patch.Order != nil {
		add("display_order", *patch.Order)
	}
	if patch.AllowAPI != nil {
		add("allow_api", *patch.AllowAPI)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	args = append(args, id)

	i, err := scanIntegration(r.db(ctx).QueryRow(ctx,
		fmt.Sprintf(`UPDATE integrations SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
			strings.Join(sets, ", "), len(args), integrationColumns),
		args...))
	if err != nil && !errors.Is(err, domainErrors.ErrIntegrationNotFound) {
		return nil, mapWriteError("update integration fields", err)
	}
	return i, err
}

func (r *IntegrationRepository) Update(ctx context.Context, i *integration.Integration) error {
	lastToken, err := encodeAccessToken(i.LastAccessToken)
	if err != nil {
		return err
	}
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE integrations SET
			name = $1, short_name = $2, status = $3, refresh_token = $4, seller_id = $5, code = $6,
			last_access_token = $7, secret = $8, display_order = $9, allow_api = $10,
			previous_status = $11, deletion_requested_at = $12, updated_at = $13
		 WHERE id = $14`,
		i.Name, i.ShortName, string(i.Status), i.RefreshToken, i.SellerID, i.Code,
		lastToken, i.Secret, i.Order, i.AllowAPI,
		statusPtr(i.PreviousStatus), i.DeletionRequestedAt, i.UpdatedAt, i.ID,
	)
	if err != nil {
		return mapWriteError("update integration", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrIntegrationNotFound
	}
	return nil
}

func (r *IntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrIntegrationNotFound
	}
	return nil
}
