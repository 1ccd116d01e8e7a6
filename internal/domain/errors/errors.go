package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment resource errors
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrOptimisticLockFailed = errors.New("optimistic lock conflict")
	ErrMaxRetriesExceeded   = errors.New("max retries exceeded")
	ErrResourceUnavailable  = errors.New("resource api unavailable")

	// Notification errors
	ErrMissingSignature         = errors.New("notification has no hmac signature")
	ErrInvalidSignature         = errors.New("hmac signature mismatch")
	ErrMissingHMACKey           = errors.New("no hmac key configured for merchant account")
	ErrMissingMerchantReference = errors.New("notification has no merchant reference")
	ErrUnknownTransactionState  = errors.New("unknown transaction state")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ConflictError is returned by a payment repository when the version sent with an
// update no longer matches the stored one.
type ConflictError struct {
	PaymentID        string
	AttemptedVersion int64
	CurrentVersion   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of payment %s: version tried %d, current version %d",
		e.PaymentID, e.AttemptedVersion, e.CurrentVersion)
}

func (e *ConflictError) Unwrap() error {
	return ErrOptimisticLockFailed
}

// NewConflictError creates a new conflict error
func NewConflictError(paymentID string, attempted, current int64) *ConflictError {
	return &ConflictError{
		PaymentID:        paymentID,
		AttemptedVersion: attempted,
		CurrentVersion:   current,
	}
}

// ReconcileError carries what operators need to act on a failed reconciliation.
// Actions holds the JSON of the last attempted update actions with sensitive
// notification fields already removed.
type ReconcileError struct {
	PaymentID        string
	AttemptedVersion int64
	CurrentVersion   int64
	Retries          int
	MaxRetries       int
	Actions          string
	Err              error
}

func (e *ReconcileError) Error() string {
	if errors.Is(e.Err, ErrMaxRetriesExceeded) {
		return fmt.Sprintf(
			"got a concurrent modification error when updating payment with id %q. Version tried %d, currentVersion: %d. Won't retry again because of a reached limit %d max retries. Failed actions: %s",
			e.PaymentID, e.AttemptedVersion, e.CurrentVersion, e.MaxRetries, e.Actions)
	}
	return fmt.Sprintf("unexpected error on payment update with id %s. Failed actions: %s: %v",
		e.PaymentID, e.Actions, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}
