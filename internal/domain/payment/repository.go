package payment

import (
	"context"
)

// Repository is the port to the versioned payment resource API.
//
// Implementations classify failures so callers never inspect transport details:
// a missing payment is errors.ErrPaymentNotFound and a version mismatch on Update
// is an *errors.ConflictError. Anything else is an unexpected failure.
type Repository interface {
	// GetByKey retrieves a payment by its business key (the merchant reference)
	GetByKey(ctx context.Context, key string) (*Payment, error)

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id string) (*Payment, error)

	// Update applies actions if the stored version still equals version and
	// returns the updated payment
	Update(ctx context.Context, id string, version int64, actions []UpdateAction) (*Payment, error)
}
