package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const (
	outcomeDropped            = "dropped"
	reasonInvalidNotification = "invalid_notification"
)

// NotificationPublisher hands a notification to the reconciliation workers.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n *notification.Notification) (string, error)
}

// NotificationController receives notification batches from the payment gateway.
type NotificationController struct {
	publisher NotificationPublisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewNotificationController(publisher NotificationPublisher, metrics *observability.Metrics, logger zerolog.Logger) *NotificationController {
	return &NotificationController{publisher: publisher, metrics: metrics, logger: logger}
}

// Receive enqueues every valid item of the batch and acknowledges it with [accepted].
// Invalid items are logged and dropped. The acknowledgment does not depend on how
// reconciliation later turns out; it is only withheld when an item could not be
// enqueued, so the gateway redelivers.
func (c *NotificationController) Receive(w http.ResponseWriter, r *http.Request) {
	var batch notification.Batch
	if err := decodeAndValidate(w, r, &batch); err != nil {
		writeError(w, err)
		return
	}

	for i := range batch.NotificationItems {
		n := &batch.NotificationItems[i]
		logger := observability.ForNotification(c.logger, n)

		if c.metrics != nil {
			c.metrics.NotificationsReceived.WithLabelValues(n.NotificationRequestItem.EventCode).Inc()
		}

		if err := validateStruct(n); err != nil {
			logger.Warn().Err(err).Int("item", i).Msg("dropping invalid notification")
			if c.metrics != nil {
				c.metrics.NotificationsProcessed.WithLabelValues(outcomeDropped, reasonInvalidNotification).Inc()
			}
			continue
		}

		id, err := c.publisher.PublishNotification(r.Context(), n)
		if err != nil {
			logger.Error().Err(err).Msg("failed to enqueue notification")
			writeError(w, err)
			return
		}
		logger.Debug().Str("message_id", id).Msg("notification enqueued")
	}

	writeText(w, http.StatusOK, acceptedBody)
}
