package reconcile

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Outcome is the terminal result of processing one notification.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoChanges Outcome = "no_changes"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

// Reasons reported with dropped and failed outcomes.
const (
	ReasonInvalidSignature = "invalid_signature"
	ReasonMissingReference = "missing_merchant_reference"
	ReasonPaymentNotFound  = "payment_not_found"
	ReasonMissingHMACKey   = "missing_hmac_key"
	ReasonInvalidHMACKey   = "invalid_hmac_key"
	ReasonReconcileFailed  = "reconcile_failed"
	ReasonResolveFailed    = "resolve_failed"
)

// KeyProvider returns the HMAC key configured for a merchant account.
type KeyProvider interface {
	HMACKey(merchantAccount string) (string, bool)
}

// ProcessResult describes how a notification was handled.
type ProcessResult struct {
	Outcome   Outcome
	Reason    string
	PaymentID string
	Retries   int
}

// ProcessNotificationUseCase verifies a notification, finds its payment and
// reconciles the payment with it.
type ProcessNotificationUseCase struct {
	resolver        *ReferenceResolver
	reconciler      *Reconciler
	verifySignature bool
	keys            KeyProvider
	logger          zerolog.Logger
	metrics         *observability.Metrics
}

// NewProcessNotificationUseCase creates a new ProcessNotificationUseCase. Signature
// checks run only when keys is non-nil.
func NewProcessNotificationUseCase(
	resolver *ReferenceResolver,
	reconciler *Reconciler,
	keys KeyProvider,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *ProcessNotificationUseCase {
	return &ProcessNotificationUseCase{
		resolver:        resolver,
		reconciler:      reconciler,
		verifySignature: keys != nil,
		keys:            keys,
		logger:          logger,
		metrics:         metrics,
	}
}

// Execute processes a single notification. Droppable conditions are logged and
// reported through the result with a nil error; only failures that warrant
// operator attention are returned as errors.
func (uc *ProcessNotificationUseCase) Execute(ctx context.Context, n *notification.Notification) (ProcessResult, error) {
	logger := observability.ForNotification(uc.logger, n)
	item := &n.NotificationRequestItem

	if uc.verifySignature {
		if reason, err := uc.verify(n); err != nil {
			logger.Error().Err(err).Interface("notification", n.ForTracking()).Msg("notification signature is not valid, skipping")
			return uc.finish(ProcessResult{Outcome: OutcomeDropped, Reason: reason}), nil
		}
	}

	if item.MerchantReference == "" {
		logger.Error().Err(domainErrors.ErrMissingMerchantReference).Msg("notification has no merchant reference, skipping")
		return uc.finish(ProcessResult{Outcome: OutcomeDropped, Reason: ReasonMissingReference}), nil
	}

	p, found, err := uc.resolver.Resolve(ctx, item.MerchantReference)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve payment")
		return uc.finish(ProcessResult{Outcome: OutcomeFailed, Reason: ReasonResolveFailed}), err
	}
	if !found {
		logger.Error().Msg("payment with merchant reference was not found, skipping")
		return uc.finish(ProcessResult{Outcome: OutcomeDropped, Reason: ReasonPaymentNotFound}), nil
	}

	logger = logger.With().Str("payment_id", p.ID).Logger()
	res, err := uc.reconciler.Reconcile(ctx, p, n)
	result := ProcessResult{PaymentID: p.ID, Retries: res.Retries}
	switch {
	case err != nil:
		result.Outcome, result.Reason = OutcomeFailed, ReasonReconcileFailed
		logger.Error().Err(err).Int("retries", res.Retries).Msg("failed to reconcile payment")
		return uc.finish(result), err
	case res.Applied:
		result.Outcome = OutcomeApplied
	default:
		result.Outcome = OutcomeNoChanges
	}
	logger.Info().Str("outcome", string(result.Outcome)).Int("retries", res.Retries).Msg("notification processed")
	return uc.finish(result), nil
}

func (uc *ProcessNotificationUseCase) verify(n *notification.Notification) (string, error) {
	key, ok := uc.keys.HMACKey(n.NotificationRequestItem.MerchantAccountCode)
	if !ok {
		return ReasonMissingHMACKey, fmt.Errorf("merchant account %q: %w",
			n.NotificationRequestItem.MerchantAccountCode, domainErrors.ErrMissingHMACKey)
	}
	if err := notification.VerifySignature(n, key); err != nil {
		if errors.Is(err, domainErrors.ErrMissingSignature) || errors.Is(err, domainErrors.ErrInvalidSignature) {
			return ReasonInvalidSignature, err
		}
		return ReasonInvalidHMACKey, err
	}
	return "", nil
}

func (uc *ProcessNotificationUseCase) finish(result ProcessResult) ProcessResult {
	if uc.metrics != nil {
		uc.metrics.NotificationsProcessed.WithLabelValues(string(result.Outcome), result.Reason).Inc()
	}
	return result
}
