package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeue = append(f.requeue, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type fakePublisher struct {
	queue string
	msg   Message
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, queue string, msg Message) error {
	f.queue = queue
	f.msg = msg
	return f.err
}

func newTestDelivery(ack *fakeAcknowledger, pub *fakePublisher, headers amqp.Table) *amqpDelivery {
	return &amqpDelivery{
		delivery: amqp.Delivery{
			Acknowledger: ack,
			Headers:      headers,
			ContentType:  "application/json",
			MessageId:    "msg-1",
			Type:         "OrderPlaced",
			Body:         []byte(`{"orderId":1}`),
		},
		queue:     "order-placed",
		publisher: pub,
	}
}

func TestDeliveryMessageMapsEnvelope(t *testing.T) {
	d := newTestDelivery(&fakeAcknowledger{}, &fakePublisher{}, amqp.Table{
		"x-delivery-count": int64(2),
		"traceparent":      "00-abc",
	})

	msg := d.Message()
	if msg.MessageID != "msg-1" || msg.Subject != "OrderPlaced" || msg.ContentType != "application/json" {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	if msg.DeliveryCount != 3 {
		t.Fatalf("expected delivery count 3, got %d", msg.DeliveryCount)
	}
	if _, ok := msg.Headers["x-delivery-count"]; ok {
		t.Fatal("broker counter header must not be copied into message headers")
	}
	if msg.Headers["traceparent"] != "00-abc" {
		t.Fatalf("expected trace header to survive, got %v", msg.Headers)
	}
}

func TestFirstDeliveryCountsAsOne(t *testing.T) {
	d := newTestDelivery(&fakeAcknowledger{}, &fakePublisher{}, nil)
	if got := d.Message().DeliveryCount; got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestCompleteAcks(t *testing.T) {
	ack := &fakeAcknowledger{}
	if err := newTestDelivery(ack, &fakePublisher{}, nil).Complete(context.Background()); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected single ack, got %+v", ack)
	}
}

func TestAbandonRequeues(t *testing.T) {
	ack := &fakeAcknowledger{}
	if err := newTestDelivery(ack, &fakePublisher{}, nil).Abandon(context.Background()); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	if ack.nacks != 1 || !ack.requeue[0] {
		t.Fatalf("expected nack with requeue, got %+v", ack)
	}
}

func TestDeadLetterPublishesAnnotatedCopyThenAcks(t *testing.T) {
	ack := &fakeAcknowledger{}
	pub := &fakePublisher{}
	d := newTestDelivery(ack, pub, amqp.Table{"x-delivery-count": int64(0)})

	if err := d.DeadLetter(context.Background(), "DeserializationFailed", "bad json"); err != nil {
		t.Fatalf("dead-letter failed: %v", err)
	}
	if pub.queue != "order-placed.dlq" {
		t.Fatalf("expected copy on dlq, got %s", pub.queue)
	}
	if pub.msg.Headers[HeaderDeadLetterReason] != "DeserializationFailed" {
		t.Fatalf("expected reason header, got %v", pub.msg.Headers)
	}
	if pub.msg.Headers[HeaderDeadLetterDescription] != "bad json" {
		t.Fatalf("expected description header, got %v", pub.msg.Headers)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected original to be acked once, got %+v", ack)
	}
}

func TestDeadLetterFallsBackToReject(t *testing.T) {
	ack := &fakeAcknowledger{}
	pub := &fakePublisher{err: errors.New("channel closed")}

	if err := newTestDelivery(ack, pub, nil).DeadLetter(context.Background(), "DeserializationFailed", "x"); err != nil {
		t.Fatalf("dead-letter fallback failed: %v", err)
	}
	if ack.acks != 0 || ack.nacks != 1 || ack.requeue[0] {
		t.Fatalf("expected reject without requeue, got %+v", ack)
	}
}

func TestToPublishingSetsEnvelopeProperties(t *testing.T) {
	now := time.Now()
	p := toPublishing(Message{
		MessageID:   "id-1",
		ContentType: "application/json",
		Subject:     "OrderPlaced",
		Body:        []byte("{}"),
		Headers:     map[string]interface{}{"traceparent": "t"},
		Timestamp:   now,
	})
	if p.MessageId != "id-1" || p.Type != "OrderPlaced" || p.ContentType != "application/json" {
		t.Fatalf("unexpected publishing %+v", p)
	}
	if p.DeliveryMode != amqp.Persistent {
		t.Fatal("expected persistent delivery mode")
	}
	if p.Headers["traceparent"] != "t" {
		t.Fatalf("expected headers to be carried, got %v", p.Headers)
	}
}

func TestQueueArgumentsEncodeRedeliveryCeiling(t *testing.T) {
	args := queueArguments("order-placed", 10)
	if args["x-delivery-limit"] != int64(9) {
		t.Fatalf("expected delivery limit 9 for a ceiling of 10, got %v", args["x-delivery-limit"])
	}
	if args["x-dead-letter-exchange"] != "order-placed.dlx" {
		t.Fatalf("unexpected dlx %v", args["x-dead-letter-exchange"])
	}
	if args[amqp.QueueTypeArg] != amqp.QueueTypeQuorum {
		t.Fatalf("expected quorum queue, got %v", args[amqp.QueueTypeArg])
	}
}
