package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrPublishNacked = errors.New("broker did not confirm publish")

type RabbitMQ struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	consumers []*amqp.Channel
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewRabbitMQ dials the broker and opens a publishing channel in confirm
// mode. The returned client is safe for concurrent Publish calls.
func NewRabbitMQ(url string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	logger.Info("Connected to RabbitMQ")

	return &RabbitMQ{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

// queueArguments configures a quorum queue whose broker-side redelivery
// ceiling equals maxDeliveries. x-delivery-limit counts returns, so a limit
// of maxDeliveries-1 allows exactly maxDeliveries deliveries.
func queueArguments(queue string, maxDeliveries int) amqp.Table {
	return amqp.Table{
		amqp.QueueTypeArg:           amqp.QueueTypeQuorum,
		"x-delivery-limit":          int64(maxDeliveries - 1),
		"x-dead-letter-exchange":    DeadLetterExchange(queue),
		"x-dead-letter-routing-key": queue,
	}
}

// DeclareQueue creates the work queue, its dead-letter exchange and the
// dead-letter queue. It is idempotent and called by both producer and
// consumer at startup.
func (r *RabbitMQ) DeclareQueue(name string, maxDeliveries int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dlx := DeadLetterExchange(name)
	dlq := DeadLetterQueue(name)

	if err := r.channel.ExchangeDeclare(dlx, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}
	if _, err := r.channel.QueueDeclare(dlq, true, false, false, false, amqp.Table{
		amqp.QueueTypeArg: amqp.QueueTypeQuorum,
	}); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := r.channel.QueueBind(dlq, name, dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		queueArguments(name, maxDeliveries),
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	r.logger.Info("Queue declared",
		zap.String("queue", name),
		zap.String("dead_letter_queue", dlq),
		zap.Int("max_delivery_count", maxDeliveries))
	return nil
}

// Publish sends msg to queue through the default exchange and waits for the
// broker confirm.
func (r *RabbitMQ) Publish(ctx context.Context, queue string, msg Message) error {
	r.mu.Lock()
	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(ctx,
		"",    // exchange
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		toPublishing(msg),
	)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to await publish confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}

	r.logger.Debug("Message published",
		zap.String("queue", queue),
		zap.String("message_id", msg.MessageID))
	return nil
}

// Consume opens a dedicated channel limited to prefetch unacknowledged
// deliveries and streams them until ctx is cancelled or the broker closes the
// channel. Cancelling ctx stops new deliveries but keeps the channel open so
// a message already handed out can still be settled; the channel is closed
// by Close, which requeues anything left unsettled.
func (r *RabbitMQ) Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	tag := queue + "-" + uuid.NewString()
	messages, err := ch.Consume(
		queue, // queue name
		tag,   // consumer tag
		false, // auto-ack (false = manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	r.mu.Lock()
	r.consumers = append(r.consumers, ch)
	r.mu.Unlock()

	r.logger.Info("Listening on queue", zap.String("queue", queue), zap.Int("prefetch", prefetch))

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer func() {
			if err := ch.Cancel(tag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
				r.logger.Warn("Failed to cancel consumer", zap.String("queue", queue), zap.Error(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-messages:
				if !ok {
					r.logger.Warn("Consumer channel closed by broker", zap.String("queue", queue))
					return
				}
				delivery := &amqpDelivery{
					delivery:  d,
					queue:     queue,
					publisher: r,
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					// unsettled; requeued when the channel closes
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the connection
func (r *RabbitMQ) Close() {
	r.mu.Lock()
	consumers := r.consumers
	r.consumers = nil
	r.mu.Unlock()
	for _, ch := range consumers {
		ch.Close()
	}
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
