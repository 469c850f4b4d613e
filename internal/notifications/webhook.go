// Package notifications implements the delivery side of threshold events:
// the notify worker consumes the notification queue and forwards each event
// to the configured webhook endpoint.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"floodline/internal/config"
	"floodline/internal/external"
	"floodline/internal/observability"
	"floodline/internal/types"
)

// WebhookChannel delivers notification events by HTTP POST. Delivery goes
// through the BaseClient, so the endpoint gets circuit breaking and bounded
// retries; failures beyond that fall back to SQS redelivery.
type WebhookChannel struct {
	client  *external.BaseClient
	cfg     config.WebhookConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWebhookChannel creates a webhook delivery channel.
func NewWebhookChannel(client *external.BaseClient, cfg config.WebhookConfig, metrics *observability.Metrics, logger *slog.Logger) *WebhookChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookChannel{
		client:  client,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Deliver posts the event to the configured endpoint. A missing endpoint URL
// drops the event with a warning rather than erroring, so deployments without
// a webhook consumer can still run the notify worker.
func (c *WebhookChannel) Deliver(ctx context.Context, msg types.NotificationMessage) error {
	if c.cfg.URL == "" {
		c.logger.WarnContext(ctx, "no webhook endpoint configured, dropping notification",
			"data_source", string(msg.DataSource),
			"location", msg.Location,
		)
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.observe("error")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe("rejected")
		return types.NewAppError(types.ErrCodeUpstreamWebhook,
			fmt.Sprintf("webhook endpoint returned %d", resp.StatusCode), nil)
	}

	c.observe("delivered")
	c.logger.InfoContext(ctx, "notification delivered",
		"data_source", string(msg.DataSource),
		"location", msg.Location,
		"status", string(msg.Status),
		"trace_id", msg.TraceID,
	)
	return nil
}

func (c *WebhookChannel) observe(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

// Handler adapts the channel to the queue consumer: it decodes one raw
// notification message and delivers it. Undecodable bodies are logged and
// dropped; redelivering them can never succeed.
func (c *WebhookChannel) Handler() func(ctx context.Context, body string) error {
	return func(ctx context.Context, body string) error {
		var msg types.NotificationMessage
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			c.logger.ErrorContext(ctx, "dropping malformed notification message", "error", err)
			return nil
		}
		ctx = types.WithRequestID(ctx, msg.TraceID)
		return c.Deliver(ctx, msg)
	}
}
