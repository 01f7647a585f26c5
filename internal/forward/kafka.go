package forward

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"tkgateway/internal/core/model"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by device, so one device's
// events stay on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
		},
	}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, ev *model.Event) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msg), "kafka write")
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func kafkaMessage(ev *model.Event) (kafka.Message, error) {
	value, err := encode(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(deviceKey(ev)),
		Value: value,
		Time:  ev.Time(),
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(model.StatusDescription(ev.StatusCode))},
			{Key: "status_code", Value: []byte(strconv.Itoa(ev.StatusCode))},
			{Key: "protocol", Value: []byte(ev.Protocol)},
		},
	}, nil
}
