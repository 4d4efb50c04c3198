package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	kafka "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/weaveworks/webhook-bridge/types"
)

// batchWriter is the slice of kafka.Writer that Publish depends on.
type batchWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends message batches to a single Kafka topic. The writer
// is scoped to one Publish call: opened before the send, closed on every
// exit path afterwards, so a failed send never leaks a connection.
type KafkaPublisher struct {
	brokerAddr string
	topic      string
	newWriter  func() batchWriter
}

// NewKafka creates a KafkaPublisher for the given broker address and topic.
func NewKafka(brokerAddr, topic string) (*KafkaPublisher, error) {
	if brokerAddr == "" {
		return nil, &ConfigurationError{Reason: "kafka broker address is empty"}
	}
	if topic == "" {
		return nil, &ConfigurationError{Reason: "kafka topic is empty"}
	}
	p := &KafkaPublisher{brokerAddr: brokerAddr, topic: topic}
	p.newWriter = p.defaultWriter
	return p, nil
}

func (p *KafkaPublisher) defaultWriter() batchWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.brokerAddr),
		Topic:        p.topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 5 * time.Millisecond,
	}
}

// Publish writes the whole batch in one WriteMessages call. An error while
// closing the writer is logged but never replaces the publish outcome: a
// successful publish stays a success.
func (p *KafkaPublisher) Publish(ctx context.Context, msgs []types.QueueMessage) error {
	if len(msgs) == 0 {
		return errors.New("cannot publish an empty batch")
	}

	w := p.newWriter()
	defer func() {
		if cerr := w.Close(); cerr != nil {
			log.Warnf("error closing kafka writer for topic %s: %s", p.topic, cerr)
		}
	}()

	kmsgs := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg.Body)
		if err != nil {
			return errors.Wrapf(err, "cannot marshal notification for subscription %s", msg.Body.SubscriptionID)
		}
		kmsgs = append(kmsgs, kafka.Message{
			Value: raw,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte(msg.ContentType)},
			},
		})
	}

	if err := w.WriteMessages(ctx, kmsgs...); err != nil {
		publishErrors.With(prometheus.Labels{"queue": p.topic}).Inc()
		log.Errorf("cannot publish %d messages to topic %s, error: %s", len(msgs), p.topic, err)
		return errors.Wrapf(err, "publishing %d messages to topic %s", len(msgs), p.topic)
	}

	messagesPublished.With(prometheus.Labels{"queue": p.topic}).Add(float64(len(msgs)))
	return nil
}
