package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cassiomorais/notifications/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/cassiomorais/notifications/internal/infrastructure/observability"
	"github.com/cassiomorais/notifications/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(t *testing.T, repo payment.Repository, opts ...reconcile.ReconcilerOption) *reconcile.Reconciler {
	t.Helper()
	return reconcile.NewReconciler(repo, newCompiler(t, reconcile.CompilerOptions{}), opts...)
}

func TestReconcile_AppliesActions(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)

	res, err := newReconciler(t, repo).Reconcile(ctx, p, authorisation())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 0, res.Retries)
	assert.Equal(t, 1, repo.UpdateCalls)

	stored := repo.Stored(p.ID)
	assert.Equal(t, int64(2), stored.Version)
	require.Len(t, stored.Transactions, 1)
	assert.Equal(t, payment.StateSuccess, stored.Transactions[0].State)
	assert.Equal(t, "klarna", stored.PaymentMethodInfo.Method)
	assert.Len(t, stored.InterfaceInteractions, 1)
}

func TestReconcile_NoActionsSkipsSubmit(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)
	r := newReconciler(t, repo)

	_, err := r.Reconcile(ctx, p, authorisation())
	require.NoError(t, err)

	fresh := repo.Stored(p.ID)
	res, err := r.Reconcile(ctx, fresh, authorisation())
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, res.Actions)
	assert.Equal(t, 1, repo.UpdateCalls)
	assert.Equal(t, int64(2), repo.Stored(p.ID).Version)
}

func TestReconcile_RetriesConflictsWithinBound(t *testing.T) {
	for _, conflicts := range []int{1, 5, reconcile.DefaultMaxRetries} {
		t.Run(fmt.Sprintf("%d conflicts", conflicts), func(t *testing.T) {
			ctx := context.Background()
			repo := testutil.NewMockPaymentRepository()
			p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
			repo.Add(p)
			repo.ConflictsBeforeSuccess = conflicts

			res, err := newReconciler(t, repo).Reconcile(ctx, p, authorisation())
			require.NoError(t, err)
			assert.True(t, res.Applied)
			assert.Equal(t, conflicts, res.Retries)
			assert.Equal(t, conflicts, repo.GetByIDCalls)
			assert.Equal(t, conflicts+1, repo.UpdateCalls)

			stored := repo.Stored(p.ID)
			assert.Len(t, stored.Transactions, 1)
			assert.Len(t, stored.InterfaceInteractions, 1)
		})
	}
}

func TestReconcile_FailsPastRetryBound(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)
	repo.ConflictsBeforeSuccess = reconcile.DefaultMaxRetries + 1

	res, err := newReconciler(t, repo).Reconcile(ctx, p, authorisation())
	require.Error(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, reconcile.DefaultMaxRetries+1, repo.UpdateCalls)

	var reconcileErr *domainErrors.ReconcileError
	require.ErrorAs(t, err, &reconcileErr)
	assert.ErrorIs(t, err, domainErrors.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, domainErrors.ErrOptimisticLockFailed)
	assert.Equal(t, p.ID, reconcileErr.PaymentID)
	assert.Equal(t, reconcile.DefaultMaxRetries+1, reconcileErr.Retries)
	assert.Equal(t, reconcile.DefaultMaxRetries, reconcileErr.MaxRetries)
	assert.Equal(t, reconcileErr.AttemptedVersion+1, reconcileErr.CurrentVersion)
	assert.Contains(t, err.Error(), "20 max retries")
	assert.Contains(t, reconcileErr.Actions, payment.ActionAddTransaction)
	assert.NotContains(t, reconcileErr.Actions, "cardSummary")
}

func TestReconcile_CustomRetryBound(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)
	repo.ConflictsBeforeSuccess = 3

	_, err := newReconciler(t, repo, reconcile.WithMaxRetries(2)).Reconcile(ctx, p, authorisation())
	assert.ErrorIs(t, err, domainErrors.ErrMaxRetriesExceeded)
	assert.Equal(t, 3, repo.UpdateCalls)
}

func TestReconcile_RecomputesAfterConcurrentChange(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)

	// another writer records the same authorisation before our first submit lands
	n := authorisation()
	serialized, err := n.Serialize()
	require.NoError(t, err)
	concurrent := repo.Stored(p.ID)
	testutil.WithTransaction(concurrent, payment.TypeAuthorization, payment.StateSuccess, "P1")
	testutil.WithInteraction(concurrent, "authorisation", serialized)
	concurrent.PaymentMethodInfo.Method = "klarna"
	concurrent.Version = p.Version + 1
	repo.Add(concurrent)

	res, err := newReconciler(t, repo).Reconcile(ctx, p, n)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 1, res.Retries)
	assert.Empty(t, res.Actions)
	assert.Len(t, repo.Stored(p.ID).Transactions, 1)
}

func TestReconcile_NonConflictErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)
	boom := errors.New("resource api returned 500")
	repo.UpdateFunc = func(ctx context.Context, id string, version int64, actions []payment.UpdateAction) (*payment.Payment, error) {
		return nil, boom
	}

	_, err := newReconciler(t, repo).Reconcile(ctx, p, authorisation())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domainErrors.ErrMaxRetriesExceeded)
	assert.Equal(t, 1, repo.UpdateCalls)
	assert.Equal(t, 0, repo.GetByIDCalls)

	var reconcileErr *domainErrors.ReconcileError
	require.ErrorAs(t, err, &reconcileErr)
	assert.Contains(t, err.Error(), "unexpected error on payment update")
	assert.Contains(t, reconcileErr.Actions, payment.ActionAddInterfaceInteraction)
}

func TestReconcile_RefreshErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)
	repo.ConflictsBeforeSuccess = 1
	repo.GetByIDFunc = func(ctx context.Context, id string) (*payment.Payment, error) {
		return nil, domainErrors.ErrResourceUnavailable
	}

	_, err := newReconciler(t, repo).Reconcile(ctx, p, authorisation())
	assert.ErrorIs(t, err, domainErrors.ErrResourceUnavailable)
	assert.Equal(t, 1, repo.UpdateCalls)
}

func TestReconcile_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("order-1", "unknown", 1000, "EUR")
	repo.Add(p)
	repo.ConflictsBeforeSuccess = 2
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	_, err := newReconciler(t, repo, reconcile.WithMetrics(metrics)).Reconcile(ctx, p, authorisation())
	require.NoError(t, err)

	assert.Equal(t, float64(2), promtest.ToFloat64(metrics.ReconcileConflicts))
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.UpdateActions.WithLabelValues(payment.ActionAddTransaction)))
}
