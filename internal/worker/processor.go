// Package worker consumes queued notifications and runs them through the
// reconciliation engine.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/notifications/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/notifications/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Message statuses recorded in the worker metrics.
const (
	StatusProcessed    = "processed"
	StatusDropped      = "dropped"
	StatusDeadLettered = "dead_lettered"
	StatusRequeued     = "requeued"
	StatusInvalid      = "invalid"
)

// Consumer reads notification messages from a stream consumer group.
type Consumer interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XStream, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

// DeadLetterPublisher parks notifications that failed reconciliation.
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, n *notification.Notification, reason string) error
}

// NotificationProcessor runs one notification through the engine.
type NotificationProcessor interface {
	Execute(ctx context.Context, n *notification.Notification) (reconcile.ProcessResult, error)
}

// Processor drives the consumer loop. Each message is acknowledged once it reached
// a terminal outcome; messages that failed on an unavailable resource API stay
// pending and are picked up again by the claim loop.
type Processor struct {
	consumer       Consumer
	dlq            DeadLetterPublisher
	processor      NotificationProcessor
	logger         zerolog.Logger
	metrics        *observability.Metrics
	processTimeout time.Duration
	readBackoff    time.Duration
}

func NewProcessor(
	consumer Consumer,
	dlq DeadLetterPublisher,
	processor NotificationProcessor,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	processTimeout time.Duration,
) *Processor {
	return &Processor{
		consumer:       consumer,
		dlq:            dlq,
		processor:      processor,
		logger:         logger,
		metrics:        metrics,
		processTimeout: processTimeout,
		readBackoff:    time.Second,
	}
}

// Run reads new messages until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := p.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("Failed to read from stream")
			if !sleep(ctx, p.readBackoff) {
				return nil
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				p.Handle(ctx, msg)
			}
		}
	}
}

// RunClaimer periodically takes over messages left pending for longer than minIdle.
func (p *Processor) RunClaimer(ctx context.Context, interval, minIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		messages, err := p.consumer.ClaimStale(ctx, minIdle)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to claim stale messages")
			continue
		}
		if len(messages) > 0 {
			p.logger.Info().Int("count", len(messages)).Msg("Claimed stale messages")
		}
		for _, msg := range messages {
			p.Handle(ctx, msg)
		}
	}
}

// Handle processes one stream message and returns the status it was recorded with.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) string {
	start := time.Now()
	logger := p.logger.With().Str("message_id", msg.ID).Logger()

	status := p.handle(ctx, logger, msg)

	if p.metrics != nil {
		p.metrics.WorkerMessagesProcessed.WithLabelValues(p.consumer.Stream(), status).Inc()
		p.metrics.WorkerProcessingDuration.WithLabelValues(p.consumer.Stream()).Observe(time.Since(start).Seconds())
	}
	return status
}

func (p *Processor) handle(ctx context.Context, logger zerolog.Logger, msg redis.XMessage) string {
	n, err := infraRedis.DecodeNotification(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid notification in stream message")
		p.ack(ctx, logger, msg.ID)
		return StatusInvalid
	}
	logger = observability.ForNotification(logger, n)

	procCtx := ctx
	if p.processTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, p.processTimeout)
		defer cancel()
	}

	result, err := p.processor.Execute(procCtx, n)
	if err != nil {
		if retryable(err) && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("Resource unavailable, leaving notification pending")
			return StatusRequeued
		}
		if ctx.Err() != nil {
			return StatusRequeued
		}
		if dlqErr := p.dlq.PublishToDLQ(ctx, n, err.Error()); dlqErr != nil {
			logger.Error().Err(dlqErr).Msg("Failed to dead-letter notification, leaving it pending")
			return StatusRequeued
		}
		p.ack(ctx, logger, msg.ID)
		return StatusDeadLettered
	}

	p.ack(ctx, logger, msg.ID)
	if result.Outcome == reconcile.OutcomeDropped {
		return StatusDropped
	}
	return StatusProcessed
}

func (p *Processor) ack(ctx context.Context, logger zerolog.Logger, id string) {
	if err := p.consumer.Ack(ctx, id); err != nil {
		logger.Error().Err(err).Msg("Failed to ack message")
	}
}

// retryable reports failures worth another delivery rather than a dead letter.
func retryable(err error) bool {
	return errors.Is(err, domainErrors.ErrResourceUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
