package errors

import (
	"errors"
	"fmt"
)

var (
	// Integration errors
	ErrIntegrationNotFound    = errors.New("integration not found")
	ErrDuplicateName          = errors.New("integration name already in use")
	ErrDuplicateShortName     = errors.New("integration short name already in use")
	ErrDuplicateCredential    = errors.New("partner credentials already linked to another integration")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrCredentialUnreadable   = errors.New("stored partner credentials cannot be decrypted")

	// Partner errors
	ErrPartnerUnavailable       = errors.New("partner platform unavailable")
	ErrPartnerRejected          = errors.New("request rejected by partner platform")
	ErrPartnerAuthRevoked       = errors.New("partner authorization revoked")
	ErrPartnerMalformedResponse = errors.New("malformed partner response")

	// Token access errors
	ErrAPINotPermitted    = errors.New("api access not permitted for this integration")
	ErrNoSecretConfigured = errors.New("no access secret configured for this integration")
	ErrSecretMismatch     = errors.New("access secret does not match")

	// Session errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with a stable machine-readable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation failure with errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsPartnerFailure reports whether err came from a call to the partner platform.
func IsPartnerFailure(err error) bool {
	return errors.Is(err, ErrPartnerUnavailable) ||
		errors.Is(err, ErrPartnerRejected) ||
		errors.Is(err, ErrPartnerMalformedResponse)
}
