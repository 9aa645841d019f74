package integration

import (
	"strings"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type Status string

const (
	StatusWaitAuth        Status = "wait_auth"
	StatusActive          Status = "active"
	StatusPaused          Status = "paused"
	StatusPendingDeletion Status = "pending_deletion"
)

// AccessToken is the most recent short-lived bearer token fetched from the partner.
// ExpireIn is the lifetime in seconds the partner announced, zero when unknown.
type AccessToken struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpireIn  int64     `json:"expireIn,omitempty"`
}

func newAccessToken(token string, lifetime time.Duration, at time.Time) *AccessToken {
	return &AccessToken{Token: token, UpdatedAt: at, ExpireIn: int64(lifetime / time.Second)}
}

// ExpiresAt is when the token stops being usable: the partner's lifetime when
// it is shorter than limit, limit otherwise.
func (t *AccessToken) ExpiresAt(limit time.Duration) time.Time {
	ttl := limit
	if t.ExpireIn > 0 {
		if announced := time.Duration(t.ExpireIn) * time.Second; limit <= 0 || announced < limit {
			ttl = announced
		}
	}
	return t.UpdatedAt.Add(ttl)
}

// Integration links the platform to one marketplace seller account.
// PartnerID and PartnerKey hold vault ciphertext, never plaintext.
type Integration struct {
	ID                    uuid.UUID
	Name                  string
	ShortName             string
	Status                Status
	PartnerID             string
	PartnerKey            string
	CredentialFingerprint string
	RefreshToken          string
	SellerID              string
	Code                  string
	LastAccessToken       *AccessToken
	Secret                string
	Order                 int
	AllowAPI              bool
	PreviousStatus        *Status
	DeletionRequestedAt   *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewIntegration builds a record waiting for the partner handshake.
func NewIntegration(name, shortName, partnerIDCipher, partnerKeyCipher, fingerprint string, order int) (*Integration, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewValidationError("name", "cannot be empty")
	}
	shortName = NormalizeShortName(shortName, name)
	if shortName == "" {
		return nil, errors.NewValidationError("short_name", "cannot be derived from name")
	}
	if partnerIDCipher == "" || partnerKeyCipher == "" {
		return nil, errors.NewValidationError("partner_credentials", "cannot be empty")
	}

	now := time.Now()
	return &Integration{
		ID:                    uuid.New(),
		Name:                  name,
		ShortName:             shortName,
		Status:                StatusWaitAuth,
		PartnerID:             partnerIDCipher,
		PartnerKey:            partnerKeyCipher,
		CredentialFingerprint: fingerprint,
		Order:                 order,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// NormalizeShortName slugifies the requested short name, falling back to the name.
func NormalizeShortName(shortName, name string) string {
	if s := slug.Make(strings.TrimSpace(shortName)); s != "" {
		return s
	}
	return slug.Make(name)
}

// Authorize completes the handshake.
func (i *Integration) Authorize(refreshToken, accessToken string, lifetime time.Duration, sellerID, code string, at time.Time) error {
	if i.Status != StatusWaitAuth {
		return errors.ErrInvalidStateTransition
	}
	if refreshToken == "" {
		return errors.ErrPartnerMalformedResponse
	}
	i.Status = StatusActive
	i.RefreshToken = refreshToken
	i.SellerID = sellerID
	i.Code = code
	i.LastAccessToken = newAccessToken(accessToken, lifetime, at)
	i.UpdatedAt = at
	return nil
}

func (i *Integration) Pause() error {
	switch i.Status {
	case StatusPaused:
		return nil
	case StatusActive:
		i.Status = StatusPaused
		i.UpdatedAt = time.Now()
		return nil
	default:
		return errors.ErrInvalidStateTransition
	}
}

func (i *Integration) Resume() error {
	switch i.Status {
	case StatusActive:
		return nil
	case StatusPaused:
		i.Status = StatusActive
		i.UpdatedAt = time.Now()
		return nil
	default:
		return errors.ErrInvalidStateTransition
	}
}

// BeginDeletion parks an authorized integration until the partner confirms revocation.
// Calling it again while already pending is a no-op.
func (i *Integration) BeginDeletion(at time.Time) error {
	switch i.Status {
	case StatusPendingDeletion:
		return nil
	case StatusActive, StatusPaused:
		prev := i.Status
		i.PreviousStatus = &prev
		i.Status = StatusPendingDeletion
		i.DeletionRequestedAt = &at
		i.UpdatedAt = at
		return nil
	default:
		return errors.ErrInvalidStateTransition
	}
}

// AbortDeletion restores the status held before deletion was requested.
func (i *Integration) AbortDeletion() error {
	if i.Status != StatusPendingDeletion {
		return errors.ErrInvalidStateTransition
	}
	restored := StatusActive
	if i.PreviousStatus != nil && *i.PreviousStatus == StatusPaused {
		restored = StatusPaused
	}
	i.Status = restored
	i.PreviousStatus = nil
	i.DeletionRequestedAt = nil
	i.UpdatedAt = time.Now()
	return nil
}

// RecordAccessToken stores a freshly fetched token. An empty refresh token keeps the current one.
func (i *Integration) RecordAccessToken(token, refreshToken string, lifetime time.Duration, at time.Time) {
	i.LastAccessToken = newAccessToken(token, lifetime, at)
	if refreshToken != "" {
		i.RefreshToken = refreshToken
	}
	i.UpdatedAt = at
}

// Authorized reports whether the integration holds a usable refresh token.
func (i *Integration) Authorized() bool {
	return i.Status != StatusWaitAuth && i.RefreshToken != ""
}
