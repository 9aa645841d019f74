package integration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/infrastructure/observability"
	"github.com/cassiomorais/integrations/internal/partner"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const secretBytes = 32

// LifecycleDeps groups the collaborators of a Lifecycle.
type LifecycleDeps struct {
	Repo      integration.Repository
	Tx        TransactionManager
	Vault     CredentialVault
	Signer    URLSigner
	Partner   PartnerClient
	WatchList WatchList
	Audit     AuditWriter
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// Lifecycle drives an integration from creation through authorization,
// pausing, editing and deletion. Every operation runs in one transaction.
type Lifecycle struct {
	repo    integration.Repository
	tx      TransactionManager
	vault   CredentialVault
	signer  URLSigner
	partner PartnerClient
	watch   WatchList
	audit   AuditWriter
	logger  zerolog.Logger
	metrics *observability.Metrics

	now    func() time.Time
	random io.Reader
}

func NewLifecycle(d LifecycleDeps) *Lifecycle {
	return &Lifecycle{
		repo:    d.Repo,
		tx:      d.Tx,
		vault:   d.Vault,
		signer:  d.Signer,
		partner: d.Partner,
		watch:   d.WatchList,
		audit:   d.Audit,
		logger:  d.Logger.With().Str("component", "lifecycle").Logger(),
		metrics: d.Metrics,
		now:     time.Now,
		random:  rand.Reader,
	}
}

// InitiateInput carries the operator's creation request. Credentials are plaintext.
type InitiateInput struct {
	Name       string
	ShortName  string
	PartnerID  string
	PartnerKey string
}

type InitiateResult struct {
	Integration      *integration.Integration
	AuthorizationURL string
}

// Initiate creates a wait_auth integration and returns the URL the seller must visit.
func (l *Lifecycle) Initiate(ctx context.Context, in InitiateInput, actor audit.Actor) (res *InitiateResult, err error) {
	defer func() { l.observe("initiate", err) }()

	creds := partner.Credentials{
		PartnerID:  strings.TrimSpace(in.PartnerID),
		PartnerKey: strings.TrimSpace(in.PartnerKey),
	}
	if creds.PartnerID == "" {
		return nil, domainErrors.NewValidationError("partner_id", "is required")
	}
	if creds.PartnerKey == "" {
		return nil, domainErrors.NewValidationError("partner_key", "is required")
	}

	idCipher, err := l.vault.Encrypt(creds.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("encrypt partner id: %w", err)
	}
	keyCipher, err := l.vault.Encrypt(creds.PartnerKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt partner key: %w", err)
	}

	rec, err := integration.NewIntegration(in.Name, in.ShortName, idCipher, keyCipher,
		l.vault.Fingerprint(creds.PartnerID, creds.PartnerKey), 0)
	if err != nil {
		return nil, err
	}

	var authURL string
	err = l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := l.ensureUnique(ctx, rec.Name, rec.ShortName, nil); err != nil {
			return err
		}
		dup, err := l.repo.ExistsByFingerprint(ctx, rec.CredentialFingerprint)
		if err != nil {
			return err
		}
		if dup {
			return domainErrors.ErrDuplicateCredential
		}

		if rec.Order, err = l.repo.NextOrder(ctx); err != nil {
			return err
		}
		if err := l.repo.Create(ctx, rec); err != nil {
			return err
		}

		// signed with the caller's plaintext, which is discarded afterwards
		if authURL, err = l.signer.AuthorizationURL(creds, rec.ID.String()); err != nil {
			return err
		}
		return l.record(ctx, rec, actor, audit.ActionCreated, "integration created, waiting for partner authorization")
	})
	if err != nil {
		return nil, err
	}

	return &InitiateResult{Integration: rec, AuthorizationURL: authURL}, nil
}

// RequestAuthorization re-issues the authorization URL of a stalled wait_auth integration.
func (l *Lifecycle) RequestAuthorization(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Status != integration.StatusWaitAuth {
		return "", domainErrors.ErrInvalidStateTransition
	}
	creds, err := l.credentials(rec)
	if err != nil {
		return "", err
	}
	return l.signer.AuthorizationURL(creds, rec.ID.String())
}

// SetActive toggles between active and paused. Asking for the current status is a no-op.
func (l *Lifecycle) SetActive(ctx context.Context, id uuid.UUID, active bool, actor audit.Actor) (rec *integration.Integration, err error) {
	action := audit.ActionPaused
	if active {
		action = audit.ActionActivated
	}
	defer func() { l.observe(string(action), err) }()

	err = l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := l.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		before := current.Status
		if active {
			err = current.Resume()
		} else {
			err = current.Pause()
		}
		if err != nil {
			return err
		}
		if current.Status == before {
			rec = current
			return nil
		}

		if rec, err = l.repo.UpdateStatus(ctx, id, current.Status); err != nil {
			return err
		}
		return l.record(ctx, rec, actor, action, fmt.Sprintf("status changed from %s to %s", before, rec.Status))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Edit applies a loosely keyed patch. Only fields that actually change are written,
// and a successful edit always leaves the integration active.
func (l *Lifecycle) Edit(ctx context.Context, id uuid.UUID, raw map[string]any, actor audit.Actor) (rec *integration.Integration, err error) {
	defer func() { l.observe(string(audit.ActionEdited), err) }()

	patch, err := integration.ParsePatch(raw)
	if err != nil {
		return nil, err
	}

	err = l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := l.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == integration.StatusWaitAuth || current.Status == integration.StatusPendingDeletion {
			return domainErrors.ErrInvalidStateTransition
		}

		var name, shortName string
		if patch.Name != nil {
			name = *patch.Name
		}
		if patch.ShortName != nil {
			shortName = *patch.ShortName
		}
		if err := l.ensureUnique(ctx, name, shortName, &id); err != nil {
			return err
		}

		active := integration.StatusActive
		patch.Status = &active
		diff := current.Diff(patch)
		if diff.Empty() {
			rec = current
			return nil
		}

		if rec, err = l.repo.UpdateFields(ctx, id, diff); err != nil {
			return err
		}
		return l.record(ctx, rec, actor, audit.ActionEdited, "changed "+strings.Join(diff.Fields(), ", "))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeletionResult tells the caller whether the record is gone or waits for the partner.
type DeletionResult struct {
	Deleted         bool
	CancellationURL string
	Integration     *integration.Integration
}

// RequestDeletion deletes a wait_auth integration outright. An authorized one is parked in
// pending_deletion and the seller must revoke access through the returned URL first.
func (l *Lifecycle) RequestDeletion(ctx context.Context, id uuid.UUID, actor audit.Actor) (res *DeletionResult, err error) {
	defer func() { l.observe(string(audit.ActionDeletionRequested), err) }()

	err = l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := l.repo.Lock(ctx, id)
		if err != nil {
			return err
		}

		if current.Status == integration.StatusWaitAuth {
			if err := l.repo.Delete(ctx, id); err != nil {
				return err
			}
			res = &DeletionResult{Deleted: true, Integration: current}
			return l.record(ctx, current, actor, audit.ActionDeleted, "deleted before partner authorization")
		}

		reissue := current.Status == integration.StatusPendingDeletion
		if err := current.BeginDeletion(l.now()); err != nil {
			return err
		}
		creds, err := l.credentials(current)
		if err != nil {
			return err
		}
		cancelURL, err := l.signer.CancellationURL(creds, current.ID.String())
		if err != nil {
			return err
		}
		res = &DeletionResult{CancellationURL: cancelURL, Integration: current}
		if reissue {
			return nil
		}

		if err := l.repo.Update(ctx, current); err != nil {
			return err
		}
		return l.record(ctx, current, actor, audit.ActionDeletionRequested, "waiting for partner to confirm cancellation")
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CompleteDeletion removes a pending_deletion integration once the partner confirmed revocation.
func (l *Lifecycle) CompleteDeletion(ctx context.Context, id uuid.UUID, actor audit.Actor) (err error) {
	defer func() { l.observe(string(audit.ActionDeleted), err) }()

	err = l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := l.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != integration.StatusPendingDeletion {
			return domainErrors.ErrInvalidStateTransition
		}
		if err := l.repo.Delete(ctx, id); err != nil {
			return err
		}
		return l.record(ctx, current, actor, audit.ActionDeleted, "partner authorization cancelled")
	})
	if err != nil {
		return err
	}

	l.unwatch(ctx, id)
	return nil
}

// AbortDeletion returns a pending_deletion integration to the status it had before.
func (l *Lifecycle) AbortDeletion(ctx context.Context, id uuid.UUID, actor audit.Actor) (rec *integration.Integration, err error) {
	defer func() { l.observe(string(audit.ActionDeletionAborted), err) }()

	err = l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := l.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := current.AbortDeletion(); err != nil {
			return err
		}
		if err := l.repo.Update(ctx, current); err != nil {
			return err
		}
		rec = current
		return l.record(ctx, current, actor, audit.ActionDeletionAborted, "deletion aborted, status restored to "+string(current.Status))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Details is an integration with its partner credentials decrypted for display.
type Details struct {
	Integration *integration.Integration
	PartnerID   string
	PartnerKey  string
}

func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*Details, error) {
	rec, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	creds, err := l.credentials(rec)
	if err != nil {
		return nil, err
	}
	return &Details{Integration: rec, PartnerID: creds.PartnerID, PartnerKey: creds.PartnerKey}, nil
}

func (l *Lifecycle) List(ctx context.Context) ([]*integration.Integration, error) {
	recs, err := l.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if l.metrics != nil {
		counts := map[integration.Status]int{}
		for _, r := range recs {
			counts[r.Status]++
		}
		for _, s := range []integration.Status{integration.StatusWaitAuth, integration.StatusActive, integration.StatusPaused, integration.StatusPendingDeletion} {
			l.metrics.IntegrationsByState.WithLabelValues(string(s)).Set(float64(counts[s]))
		}
	}
	return recs, nil
}

// GenerateSecret mints a new bearer secret for the token gate, replacing any previous one.
func (l *Lifecycle) GenerateSecret(ctx context.Context, id uuid.UUID, actor audit.Actor) (secret string, err error) {
	defer func() { l.observe(string(audit.ActionSecretGenerated), err) }()

	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(l.random, buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)

	err = l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := l.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		current.Secret = secret
		current.UpdatedAt = l.now()
		if err := l.repo.Update(ctx, current); err != nil {
			return err
		}
		return l.record(ctx, current, actor, audit.ActionSecretGenerated, "access secret generated")
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

func (l *Lifecycle) ensureUnique(ctx context.Context, name, shortName string, exclude *uuid.UUID) error {
	if name != "" {
		taken, err := l.repo.ExistsByName(ctx, name, exclude)
		if err != nil {
			return err
		}
		if taken {
			return domainErrors.ErrDuplicateName
		}
	}
	if shortName != "" {
		taken, err := l.repo.ExistsByShortName(ctx, shortName, exclude)
		if err != nil {
			return err
		}
		if taken {
			return domainErrors.ErrDuplicateShortName
		}
	}
	return nil
}

func (l *Lifecycle) credentials(rec *integration.Integration) (partner.Credentials, error) {
	return decryptCredentials(l.vault, rec)
}

func decryptCredentials(v CredentialVault, rec *integration.Integration) (partner.Credentials, error) {
	id, err := v.Decrypt(rec.PartnerID)
	if err != nil {
		return partner.Credentials{}, domainErrors.NewDomainError("credential_unreadable",
			"stored partner credentials cannot be decrypted", errors.Join(domainErrors.ErrCredentialUnreadable, err))
	}
	key, err := v.Decrypt(rec.PartnerKey)
	if err != nil {
		return partner.Credentials{}, domainErrors.NewDomainError("credential_unreadable",
			"stored partner credentials cannot be decrypted", errors.Join(domainErrors.ErrCredentialUnreadable, err))
	}
	return partner.Credentials{PartnerID: id, PartnerKey: key}, nil
}

func (l *Lifecycle) record(ctx context.Context, rec *integration.Integration, actor audit.Actor, action audit.Action, message string) error {
	return l.audit.Insert(ctx, audit.NewEntry(rec.ID, rec.Name, actor, action, message))
}

func (l *Lifecycle) unwatch(ctx context.Context, id uuid.UUID) {
	if err := l.watch.Remove(ctx, id.String()); err != nil {
		l.logger.Warn().Err(err).Str("integration_id", id.String()).Msg("Failed to remove integration from refresh watch list")
	}
}

func (l *Lifecycle) observe(action string, err error) {
	if l.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	l.metrics.TransitionsTotal.WithLabelValues(action, outcome).Inc()
}
