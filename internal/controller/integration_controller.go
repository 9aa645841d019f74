package controller

import (
	"encoding/json"
	"net/http"

	integrationApp "github.com/cassiomorais/integrations/internal/application/integration"
	"github.com/cassiomorais/integrations/internal/domain/audit"
	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/middleware"
	"github.com/google/uuid"
)

// IntegrationController exposes the integration lifecycle to operators and
// the token gate to partner-facing callers.
type IntegrationController struct {
	lifecycle *integrationApp.Lifecycle
	gate      *integrationApp.AccessGate
}

func NewIntegrationController(lifecycle *integrationApp.Lifecycle, gate *integrationApp.AccessGate) *IntegrationController {
	return &IntegrationController{lifecycle: lifecycle, gate: gate}
}

// Create handles POST /api/v1/integrations
func (h *IntegrationController) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req CreateIntegrationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.lifecycle.Initiate(r.Context(), integrationApp.InitiateInput{
		Name:       req.Name,
		ShortName:  req.ShortName,
		PartnerID:  req.PartnerID,
		PartnerKey: req.PartnerKey,
	}, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, InitiateResponse{
		Integration:      FromIntegration(res.Integration),
		AuthorizationURL: res.AuthorizationURL,
	})
}

// List handles GET /api/v1/integrations
func (h *IntegrationController) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.lifecycle.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ListIntegrationsResponse{Integrations: make([]*IntegrationResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Integrations = append(resp.Integrations, FromIntegration(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/integrations/{id}
func (h *IntegrationController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	details, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDetails(details))
}

// Edit handles PATCH /api/v1/integrations/{id}. The body is a loose object
// whose keys the domain maps onto editable fields.
func (h *IntegrationController) Edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, domainErrors.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}

	rec, err := h.lifecycle.Edit(r.Context(), id, raw, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromIntegration(rec))
}

// AuthorizationURL handles GET /api/v1/integrations/{id}/authorization-url
func (h *IntegrationController) AuthorizationURL(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := h.lifecycle.RequestAuthorization(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthorizationURLResponse{AuthorizationURL: u})
}

// Callback handles POST /api/v1/integrations/callback with the values the
// partner appended to the seller's redirect.
func (h *IntegrationController) Callback(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req CallbackRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.lifecycle.CompleteHandshake(r.Context(), integrationApp.CallbackInput{
		Code:     req.Code,
		State:    req.State,
		SellerID: req.SellerID,
	}, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromIntegration(rec))
}

// Activate handles POST /api/v1/integrations/{id}/activate
func (h *IntegrationController) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Pause handles POST /api/v1/integrations/{id}/pause
func (h *IntegrationController) Pause(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *IntegrationController) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.lifecycle.SetActive(r.Context(), id, active, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromIntegration(rec))
}

// RequestDeletion handles DELETE /api/v1/integrations/{id}. A record that was
// never authorized is removed at once; otherwise the seller must revoke access
// through the cancellation URL and the request is only accepted.
func (h *IntegrationController) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.lifecycle.RequestDeletion(r.Context(), id, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	if res.Deleted {
		writeJSON(w, http.StatusOK, DeletionResponse{Deleted: true})
		return
	}
	writeJSON(w, http.StatusAccepted, DeletionResponse{
		CancellationURL: res.CancellationURL,
		Integration:     FromIntegration(res.Integration),
	})
}

// ConfirmDeletion handles POST /api/v1/integrations/{id}/deletion/confirm
func (h *IntegrationController) ConfirmDeletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.lifecycle.CompleteDeletion(r.Context(), id, actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeletionResponse{Deleted: true})
}

// AbortDeletion handles POST /api/v1/integrations/{id}/deletion/abort
func (h *IntegrationController) AbortDeletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.lifecycle.AbortDeletion(r.Context(), id, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromIntegration(rec))
}

// GenerateSecret handles POST /api/v1/integrations/{id}/secret. The secret
// is shown once; later reads only report that one exists.
func (h *IntegrationController) GenerateSecret(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	secret, err := h.lifecycle.GenerateSecret(r.Context(), id, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SecretResponse{Secret: secret})
}

// AccessToken handles POST /api/v1/access-token. Callers authenticate with the
// integration secret, not a session.
func (h *IntegrationController) AccessToken(w http.ResponseWriter, r *http.Request) {
	var req AccessTokenRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := uuid.Parse(req.IntegrationID)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("integration_id", "must be a valid UUID"))
		return
	}

	grant, err := h.gate.AccessToken(r.Context(), id, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromAccessGrant(grant))
}

func actorOrFail(w http.ResponseWriter, r *http.Request) (audit.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
	}
	return actor, ok
}
