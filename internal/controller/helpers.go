package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrIntegrationNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrDuplicateName, http.StatusConflict, "duplicate_name"},
	{domainErrors.ErrDuplicateShortName, http.StatusConflict, "duplicate_short_name"},
	{domainErrors.ErrDuplicateCredential, http.StatusConflict, "duplicate_credential"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrPartnerUnavailable, http.StatusServiceUnavailable, "partner_unavailable"},
	{domainErrors.ErrPartnerRejected, http.StatusBadGateway, "partner_rejected"},
	{domainErrors.ErrPartnerMalformedResponse, http.StatusBadGateway, "partner_malformed_response"},
	{domainErrors.ErrAPINotPermitted, http.StatusForbidden, "api_not_permitted"},
	{domainErrors.ErrNoSecretConfigured, http.StatusForbidden, "no_secret_configured"},
	{domainErrors.ErrSecretMismatch, http.StatusUnauthorized, "secret_mismatch"},
	{domainErrors.ErrCredentialUnreadable, http.StatusInternalServerError, "credential_unreadable"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and a stable code. Unmapped errors are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationErr.Error(), Code: "validation_error"})
		return
	}

	var domainErr *domainErrors.DomainError
	hasDomainErr := errors.As(err, &domainErr)

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			if hasDomainErr {
				msg = domainErr.Message
			}
			writeJSON(w, m.status, ErrorResponse{Error: msg, Code: m.code})
			return
		}
	}

	if hasDomainErr {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: domainErr.Message, Code: domainErr.Code})
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// pathID parses the {id} URL parameter. A malformed id cannot name a record.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domainErrors.ErrIntegrationNotFound
	}
	return id, nil
}
