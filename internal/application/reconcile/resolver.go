package reconcile

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/payment"
)

// ReferenceResolver finds the payment a notification refers to.
type ReferenceResolver struct {
	repo payment.Repository
}

// NewReferenceResolver creates a new ReferenceResolver.
func NewReferenceResolver(repo payment.Repository) *ReferenceResolver {
	return &ReferenceResolver{repo: repo}
}

// Resolve looks a payment up by its merchant reference. A missing payment is an
// expected outcome and is reported with found=false and a nil error.
func (r *ReferenceResolver) Resolve(ctx context.Context, merchantReference string) (*payment.Payment, bool, error) {
	p, err := r.repo.GetByKey(ctx, merchantReference)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch payment with merchant reference %s: %w", merchantReference, err)
	}
	if p == nil {
		return nil, false, nil
	}
	return p, true, nil
}
