package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/cassiomorais/notifications/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxRetries bounds the refresh cycles after concurrent modification conflicts.
const DefaultMaxRetries = 20

var tracer = otel.Tracer("github.com/cassiomorais/notifications/internal/application/reconcile")

type phase int

const (
	phaseCompute phase = iota
	phaseSubmit
	phaseRefresh
)

func (p phase) String() string {
	switch p {
	case phaseCompute:
		return "compute"
	case phaseSubmit:
		return "submit"
	case phaseRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Result describes a finished reconciliation.
type Result struct {
	// Applied is true when an update was accepted by the repository.
	Applied bool
	// Retries is the number of refresh cycles caused by conflicts.
	Retries int
	// Actions are the actions of the last compute phase.
	Actions []payment.UpdateAction
	// Payment is the latest known snapshot.
	Payment *payment.Payment
}

// Reconciler applies the actions compiled for a notification to a payment,
// resolving concurrent modifications by refreshing and recomputing.
type Reconciler struct {
	repo       payment.Repository
	compiler   *ActionCompiler
	maxRetries int
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// ReconcilerOption customizes a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithMaxRetries sets the refresh cycle bound. Negative values are ignored.
func WithMaxRetries(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

// WithMetrics enables metrics recording.
func WithMetrics(m *observability.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// NewReconciler creates a new Reconciler.
func NewReconciler(repo payment.Repository, compiler *ActionCompiler, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		repo:       repo,
		compiler:   compiler,
		maxRetries: DefaultMaxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile runs compute, submit and refresh phases until the payment reflects the
// notification, the retry bound is reached, or a non-conflict error occurs.
// Failures are returned as *errors.ReconcileError.
func (r *Reconciler) Reconcile(ctx context.Context, p *payment.Payment, n *notification.Notification) (Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.id", p.ID),
		attribute.String("notification.event_code", n.NotificationRequestItem.EventCode),
		attribute.String("notification.psp_reference", n.NotificationRequestItem.PSPReference),
	)

	start := time.Now()
	res, err := r.run(ctx, p, n)

	outcome := "no_changes"
	switch {
	case err != nil:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Applied:
		outcome = "applied"
	}
	span.SetAttributes(attribute.Int("reconcile.retries", res.Retries), attribute.String("reconcile.outcome", outcome))

	if r.metrics != nil {
		r.metrics.ReconcileDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		r.metrics.ReconcileRetries.Observe(float64(res.Retries))
		if res.Applied {
			for _, name := range payment.ActionNames(res.Actions) {
				r.metrics.UpdateActions.WithLabelValues(name).Inc()
			}
		}
	}
	return res, err
}

func (r *Reconciler) run(ctx context.Context, p *payment.Payment, n *notification.Notification) (Result, error) {
	res := Result{Payment: p}
	current := p
	var conflict *domainErrors.ConflictError
	span := trace.SpanFromContext(ctx)

	for state := phaseCompute; ; {
		span.AddEvent(state.String(), trace.WithAttributes(attribute.Int("reconcile.retries", res.Retries)))
		switch state {
		case phaseCompute:
			actions, err := r.compiler.Compile(current, n)
			if err != nil {
				return res, r.failure(current, res, err)
			}
			res.Actions = actions
			if len(actions) == 0 {
				r.logger.Debug().Str("payment_id", current.ID).Int("retries", res.Retries).Msg("payment already reflects notification")
				return res, nil
			}
			state = phaseSubmit

		case phaseSubmit:
			updated, err := r.repo.Update(ctx, current.ID, current.Version, res.Actions)
			if err == nil {
				res.Applied = true
				if updated != nil {
					res.Payment = updated
				}
				r.logger.Info().
					Str("payment_id", current.ID).
					Int64("version", current.Version).
					Strs("actions", payment.ActionNames(res.Actions)).
					Int("retries", res.Retries).
					Msg("payment updated")
				return res, nil
			}
			if !errors.As(err, &conflict) {
				return res, r.failure(current, res, err)
			}
			if r.metrics != nil {
				r.metrics.ReconcileConflicts.Inc()
			}
			state = phaseRefresh

		case phaseRefresh:
			if res.Retries >= r.maxRetries {
				return res, r.exhausted(current, res, conflict)
			}
			res.Retries++
			r.logger.Debug().
				Str("payment_id", current.ID).
				Int64("version_tried", conflict.AttemptedVersion).
				Int64("current_version", conflict.CurrentVersion).
				Int("retry", res.Retries).
				Msg("concurrent modification, refreshing payment")

			fresh, err := r.repo.GetByID(ctx, current.ID)
			if err != nil {
				return res, r.failure(current, res, fmt.Errorf("refresh payment: %w", err))
			}
			current = fresh
			res.Payment = fresh
			state = phaseCompute
		}
	}
}

func (r *Reconciler) failure(current *payment.Payment, res Result, err error) error {
	return &domainErrors.ReconcileError{
		PaymentID:        current.ID,
		AttemptedVersion: current.Version,
		CurrentVersion:   current.Version,
		Retries:          res.Retries,
		MaxRetries:       r.maxRetries,
		Actions:          describeActions(res.Actions),
		Err:              err,
	}
}

func (r *Reconciler) exhausted(current *payment.Payment, res Result, conflict *domainErrors.ConflictError) error {
	return &domainErrors.ReconcileError{
		PaymentID:        current.ID,
		AttemptedVersion: conflict.AttemptedVersion,
		CurrentVersion:   conflict.CurrentVersion,
		// the failed submit counts as the attempt past the bound
		Retries:    res.Retries + 1,
		MaxRetries: r.maxRetries,
		Actions:    describeActions(res.Actions),
		Err:        fmt.Errorf("%w: %w", domainErrors.ErrMaxRetriesExceeded, conflict),
	}
}
