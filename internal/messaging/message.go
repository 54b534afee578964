package messaging

import (
	"context"
	"time"
)

const (
	headerDeliveryCount         = "x-delivery-count"
	HeaderDeadLetterReason      = "x-dead-letter-reason"
	HeaderDeadLetterDescription = "x-dead-letter-description"
)

// Message is the envelope moved through the queue.
type Message struct {
	MessageID   string
	ContentType string
	Subject     string
	Body        []byte
	Headers     map[string]interface{}
	Timestamp   time.Time

	// DeliveryCount is the attempt number of a received message, starting
	// at 1. It is ignored when publishing.
	DeliveryCount int
}

// Delivery is a received message together with its settlement operations.
// Exactly one of Complete, Abandon or DeadLetter should be called.
type Delivery interface {
	Message() Message
	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
	DeadLetter(ctx context.Context, reason, description string) error
}

func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

func DeadLetterExchange(queue string) string {
	return queue + ".dlx"
}
