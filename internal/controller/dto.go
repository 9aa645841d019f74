package controller

import (
	"time"

	integrationApp "github.com/cassiomorais/integrations/internal/application/integration"
	"github.com/cassiomorais/integrations/internal/domain/integration"
)

// --- Request DTOs ---
// Edits arrive as a loose JSON object and are mapped by the domain, so they have no DTO here.

// CreateIntegrationRequest holds the operator's plaintext partner credentials.
type CreateIntegrationRequest struct {
	Name       string `json:"name" validate:"required,max=120"`
	ShortName  string `json:"short_name,omitempty" validate:"omitempty,max=120"`
	PartnerID  string `json:"partner_id" validate:"required,max=64"`
	PartnerKey string `json:"partner_key" validate:"required,max=256"`
}

// CallbackRequest relays the query parameters the partner appended to the redirect.
type CallbackRequest struct {
	Code     string `json:"code"`
	State    string `json:"state" validate:"required"`
	SellerID string `json:"seller_id,omitempty"`
}

// AccessTokenRequest authenticates with the integration secret instead of a session.
// An empty secret is left to the gate so its checks keep their order.
type AccessTokenRequest struct {
	IntegrationID string `json:"integration_id" validate:"required,uuid"`
	Secret        string `json:"secret"`
}

// --- Response DTOs ---

// IntegrationResponse never carries credentials or tokens.
type IntegrationResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	ShortName           string     `json:"short_name"`
	Status              string     `json:"status"`
	Order               int        `json:"order"`
	AllowAPI            bool       `json:"allow_api"`
	SellerID            string     `json:"seller_id,omitempty"`
	Authorized          bool       `json:"authorized"`
	HasSecret           bool       `json:"has_secret"`
	PreviousStatus      *string    `json:"previous_status,omitempty"`
	DeletionRequestedAt *time.Time `json:"deletion_requested_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IntegrationDetailResponse adds the decrypted partner credentials for the edit screen.
type IntegrationDetailResponse struct {
	IntegrationResponse
	PartnerID     string     `json:"partner_id"`
	PartnerKey    string     `json:"partner_key"`
	AccessTokenAt *time.Time `json:"access_token_updated_at,omitempty"`
}

type ListIntegrationsResponse struct {
	Integrations []*IntegrationResponse `json:"integrations"`
}

type InitiateResponse struct {
	Integration      *IntegrationResponse `json:"integration"`
	AuthorizationURL string               `json:"authorization_url"`
}

type AuthorizationURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type DeletionResponse struct {
	Deleted         bool                 `json:"deleted"`
	CancellationURL string               `json:"cancellation_url,omitempty"`
	Integration     *IntegrationResponse `json:"integration,omitempty"`
}

type SecretResponse struct {
	Secret string `json:"secret"`
}

type AccessTokenResponse struct {
	AccessToken string    `json:"access_token"`
	ValidFor    string    `json:"valid_for"`
	ExpiresAt   time.Time `json:"expires_at"`
	PartnerID   string    `json:"partner_id"`
	PartnerKey  string    `json:"partner_key"`
	SellerID    string    `json:"seller_id"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func FromIntegration(i *integration.Integration) *IntegrationResponse {
	resp := &IntegrationResponse{
		ID:                  i.ID.String(),
		Name:                i.Name,
		ShortName:           i.ShortName,
		Status:              string(i.Status),
		Order:               i.Order,
		AllowAPI:            i.AllowAPI,
		SellerID:            i.SellerID,
		Authorized:          i.Authorized(),
		HasSecret:           i.Secret != "",
		DeletionRequestedAt: i.DeletionRequestedAt,
		CreatedAt:           i.CreatedAt,
		UpdatedAt:           i.UpdatedAt,
	}
	if i.PreviousStatus != nil {
		prev := string(*i.PreviousStatus)
		resp.PreviousStatus = &prev
	}
	return resp
}

func FromDetails(d *integrationApp.Details) *IntegrationDetailResponse {
	resp := &IntegrationDetailResponse{
		IntegrationResponse: *FromIntegration(d.Integration),
		PartnerID:           d.PartnerID,
		PartnerKey:          d.PartnerKey,
	}
	if t := d.Integration.LastAccessToken; t != nil {
		at := t.UpdatedAt
		resp.AccessTokenAt = &at
	}
	return resp
}

func FromAccessGrant(g *integrationApp.AccessGrant) *AccessTokenResponse {
	return &AccessTokenResponse{
		AccessToken: g.Token,
		ValidFor:    g.ValidFor,
		ExpiresAt:   g.ExpiresAt,
		PartnerID:   g.PartnerID,
		PartnerKey:  g.PartnerKey,
		SellerID:    g.SellerID,
	}
}
