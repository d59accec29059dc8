// Package notify forwards changes of table rows to other services
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/kadmin/core"
	"github.com/relabs-tech/kadmin/core/logger"
)

// DefaultTopic is the default topic for row change notifications
const DefaultTopic = "kadmin_notification"

// Notification is a change of a table row
type Notification struct {
	Table     string          `json:"table"`
	Operation core.Operation  `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Func is an adapter to use ordinary functions as core.Notifier
type Func func(ctx context.Context, table string, operation core.Operation, payload []byte) error

// Notify implements core.Notifier
func (f Func) Notify(ctx context.Context, table string, operation core.Operation, payload []byte) error {
	return f(ctx, table, operation, payload)
}

// KafkaBuilder is a helper builder for NewKafka
type KafkaBuilder struct {
	// Brokers are the addresses of the kafka brokers, either as list or comma separated
	Brokers []string
	// Topic defaults to DefaultTopic
	Topic string
	// Async writes do not wait for the brokers to acknowledge a message
	Async bool
}

// Kafka publishes notifications to a kafka topic. Messages are keyed by table name,
// so that all changes of a table keep their order.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka returns a notifier which publishes to kafka
func NewKafka(kb *KafkaBuilder) *Kafka {
	var brokers []string
	for _, b := range kb.Brokers {
		for _, s := range strings.Split(b, ",") {
			if s = strings.TrimSpace(s); s != "" {
				brokers = append(brokers, s)
			}
		}
	}
	topic := kb.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	logger.Default().Infoln("publishing notifications to kafka topic", topic, "on", brokers)
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  kb.Async,
		AllowAutoTopicCreation: true,
	}}
}

func message(table string, operation core.Operation, payload []byte, now time.Time) (kafka.Message, error) {
	value, err := json.Marshal(Notification{
		Table:     table,
		Operation: operation,
		Payload:   payload,
		Timestamp: now,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(table),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(operation)},
		},
	}, nil
}

// Notify implements core.Notifier
func (k *Kafka) Notify(ctx context.Context, table string, operation core.Operation, payload []byte) error {
	msg, err := message(table, operation, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
