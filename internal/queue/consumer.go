package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSReceiver abstracts the SQS operations the consumer loop needs.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler processes one raw message body. A nil return deletes the message;
// an error leaves it on the queue for redelivery after the visibility
// timeout.
type Handler func(ctx context.Context, body string) error

// Consumer is a long-polling SQS consumer loop.
type Consumer struct {
	client   SQSReceiver
	queueURL string
	handler  Handler
	logger   *slog.Logger

	// MaxMessages per receive batch (1..10).
	MaxMessages int32
	// WaitTime is the long-poll duration in seconds (0..20).
	WaitTime int32
}

// NewConsumer creates a consumer with long polling enabled.
func NewConsumer(client SQSReceiver, queueURL string, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		handler:     handler,
		logger:      logger,
		MaxMessages: 10,
		WaitTime:    20,
	}
}

// Run receives and processes messages until the context is cancelled.
// Receive errors are logged and the loop continues; only context
// cancellation ends it.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started", "queue_url", c.queueURL)

	for {
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: c.MaxMessages,
			WaitTimeSeconds:     c.WaitTime,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.InfoContext(ctx, "consumer stopped", "queue_url", c.queueURL)
				return nil
			}
			c.logger.ErrorContext(ctx, "receive failed", "queue_url", c.queueURL, "error", err)
			continue
		}

		for _, m := range out.Messages {
			body := aws.ToString(m.Body)
			if err := c.handler(ctx, body); err != nil {
				// Leave the message for redelivery.
				c.logger.ErrorContext(ctx, "message handling failed",
					"queue_url", c.queueURL,
					"message_id", aws.ToString(m.MessageId),
					"error", err,
				)
				continue
			}

			if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(c.queueURL),
				ReceiptHandle: m.ReceiptHandle,
			}); err != nil {
				c.logger.ErrorContext(ctx, "failed to delete message",
					"queue_url", c.queueURL,
					"message_id", aws.ToString(m.MessageId),
					"error", err,
				)
			}
		}
	}
}
