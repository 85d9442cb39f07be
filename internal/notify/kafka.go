package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// kafkaBatchTimeout caps how long a single notification waits for its batch
// to fill before it is flushed.
const kafkaBatchTimeout = 10 * time.Millisecond

// NewKafkaWriter creates a writer publishing to topic.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           kafkaBatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
}

// Kafka publishes notifications as events for downstream delivery services
// (email, push). Messages are keyed by user so each user's events stay ordered.
type Kafka struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafka creates a Kafka channel.
func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{writer: w, now: time.Now}
}

// Notify implements order.Notifier. A published event counts as delivered.
func (k *Kafka) Notify(ctx context.Context, userID, message string) (bool, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("user_id")
	e.Str(userID)
	e.FieldStart("message")
	e.Str(message)
	e.FieldStart("sent_at")
	e.Str(k.now().UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	msg := kafka.Message{
		Key:   []byte(userID),
		Value: append([]byte(nil), e.Bytes()...),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("customer.notification")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return false, errors.Wrap(err, "publish notification")
	}
	return true, nil
}
