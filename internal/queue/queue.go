// Package queue provides SQS-based message producers: the recurring tick
// chain that drives polling, the one-shot downstream dispatch enqueued when a
// trigger fires, and the fire-and-forget threshold notification event.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"floodline/internal/observability"
	"floodline/internal/types"
)

// maxSQSDelay is the hard ceiling SQS imposes on DelaySeconds. Intervals
// longer than this are handled by the executor re-arming short ticks against
// the registration's due time.
const maxSQSDelay = 900 * time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ClampDelay bounds a delay to the range SQS accepts for DelaySeconds.
func ClampDelay(delay time.Duration) int32 {
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}
	sec := int32(delay.Seconds())
	if sec < 0 {
		sec = 0
	}
	return sec
}

// ============================================================
// TickProducer
// ============================================================

// TickProducer sends delayed tick messages on the recurring-job queue. Each
// tick re-arms its successor, forming the chain that stands in for a
// persistent timer.
type TickProducer struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewTickProducer creates a producer targeting the tick queue.
func NewTickProducer(client SQSSender, queueURL string, logger *slog.Logger) *TickProducer {
	return &TickProducer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// SendTick serializes a tick message and sends it with the given delay,
// clamped to the SQS maximum of 900 seconds.
func (p *TickProducer) SendTick(ctx context.Context, msg types.TickMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal tick message", err)
	}

	delaySec := ClampDelay(delay)
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send tick message to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "tick message sent",
		"repeat_key", msg.RepeatKey,
		"job_id", msg.JobID,
		"data_source", string(msg.DataSource),
		"delay_seconds", delaySec,
		"trace_id", msg.TraceID,
	)

	return nil
}

// ============================================================
// DispatchProducer
// ============================================================

// DispatchProducer enqueues the one-shot trigger.reached message consumed by
// downstream phase-advancement workers.
type DispatchProducer struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewDispatchProducer creates a producer targeting the dispatch queue.
func NewDispatchProducer(client SQSSender, queueURL string, logger *slog.Logger) *DispatchProducer {
	return &DispatchProducer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// SendTriggerReached serializes and enqueues a trigger.reached message.
func (p *DispatchProducer) SendTriggerReached(ctx context.Context, msg types.TriggerReachedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal trigger.reached message", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send trigger.reached message to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "trigger.reached dispatched",
		"trigger_uuid", msg.Trigger.UUID,
		"phase_id", msg.PhaseID,
		"is_mandatory", msg.IsMandatory,
		"trace_id", msg.TraceID,
	)

	return nil
}

// ============================================================
// NotificationProducer
// ============================================================

// NotificationProducer emits threshold notification events for the notify
// worker. Emission is fire-and-forget from the caller's perspective; errors
// are returned so the caller can log them, but never fail a tick.
type NotificationProducer struct {
	client   SQSSender
	queueURL string
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewNotificationProducer creates a producer targeting the notification queue.
func NewNotificationProducer(client SQSSender, queueURL string, metrics *observability.Metrics, logger *slog.Logger) *NotificationProducer {
	return &NotificationProducer{
		client:   client,
		queueURL: queueURL,
		metrics:  metrics,
		logger:   logger,
	}
}

// Emit serializes and enqueues a notification event.
func (p *NotificationProducer) Emit(ctx context.Context, msg types.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal notification message", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send notification message to %s", p.queueURL), err)
	}

	p.metrics.NotificationsEmitted.Inc()
	p.logger.InfoContext(ctx, "notification event emitted",
		"data_source", string(msg.DataSource),
		"location", msg.Location,
		"status", string(msg.Status),
		"trace_id", msg.TraceID,
	)

	return nil
}
