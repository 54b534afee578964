package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

type amqpDelivery struct {
	delivery  amqp.Delivery
	queue     string
	publisher publisher
}

func (d *amqpDelivery) Message() Message {
	return fromDelivery(d.delivery)
}

func (d *amqpDelivery) Complete(ctx context.Context) error {
	if err := d.delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to complete message: %w", err)
	}
	return nil
}

func (d *amqpDelivery) Abandon(ctx context.Context) error {
	if err := d.delivery.Nack(false, true); err != nil {
		return fmt.Errorf("failed to abandon message: %w", err)
	}
	return nil
}

// DeadLetter copies the message to the dead-letter queue annotated with
// reason and description, then acknowledges the original. If the copy cannot
// be published the message is rejected so the queue's dead-letter exchange
// still captures it.
func (d *amqpDelivery) DeadLetter(ctx context.Context, reason, description string) error {
	msg := fromDelivery(d.delivery)
	headers := make(map[string]interface{}, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderDeadLetterReason] = reason
	headers[HeaderDeadLetterDescription] = description
	msg.Headers = headers

	if err := d.publisher.Publish(ctx, DeadLetterQueue(d.queue), msg); err != nil {
		if nackErr := d.delivery.Nack(false, false); nackErr != nil {
			return fmt.Errorf("failed to dead-letter message: publish: %v, reject: %w", err, nackErr)
		}
		return nil
	}

	if err := d.delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to acknowledge dead-lettered message: %w", err)
	}
	return nil
}

func toPublishing(msg Message) amqp.Publishing {
	return amqp.Publishing{
		Headers:      amqp.Table(msg.Headers),
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Timestamp:    msg.Timestamp,
		Type:         msg.Subject,
		Body:         msg.Body,
	}
}

func fromDelivery(d amqp.Delivery) Message {
	headers := make(map[string]interface{}, len(d.Headers))
	for k, v := range d.Headers {
		if k == headerDeliveryCount {
			continue
		}
		headers[k] = v
	}
	return Message{
		MessageID:     d.MessageId,
		ContentType:   d.ContentType,
		Subject:       d.Type,
		Body:          d.Body,
		Headers:       headers,
		Timestamp:     d.Timestamp,
		DeliveryCount: deliveryCount(d.Headers) + 1,
	}
}

// deliveryCount reads the quorum queue's count of previous failed deliveries.
func deliveryCount(headers amqp.Table) int {
	switch v := headers[headerDeliveryCount].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}
