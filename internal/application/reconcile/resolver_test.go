package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/notifications/internal/application/reconcile"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/cassiomorais/notifications/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Found(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "visa", 1000, "EUR")
	repo.Add(p)

	got, found, err := reconcile.NewReferenceResolver(repo).Resolve(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, p.ID, got.ID)
}

func TestResolve_NotFoundIsNotAnError(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()

	got, found, err := reconcile.NewReferenceResolver(repo).Resolve(context.Background(), "order-404")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestResolve_TransportError(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	boom := errors.New("connection reset")
	repo.GetByKeyFunc = func(ctx context.Context, key string) (*payment.Payment, error) {
		return nil, boom
	}

	_, found, err := reconcile.NewReferenceResolver(repo).Resolve(context.Background(), "order-1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, found)
	assert.Contains(t, err.Error(), "order-1")
}
