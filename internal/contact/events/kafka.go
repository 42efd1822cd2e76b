// Package events publishes committed identity changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"reconciler/internal/contact/models"
)

// DefaultTopic receives identity events when no topic is configured.
const DefaultTopic = "identity.events"

// message is the wire form of an IdentityEvent.
type message struct {
	Type        string    `json:"type"`
	PrimaryID   int64     `json:"primaryId"`
	ContactID   int64     `json:"contactId,omitempty"`
	AbsorbedIDs []int64   `json:"absorbedIds,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Encode builds the Kafka record for ev. Records are keyed by the surviving
// primary so every event of one identity group lands on the same partition.
func Encode(topic string, ev models.IdentityEvent) (*kgo.Record, error) {
	msg := message{
		Type:       string(ev.Type),
		PrimaryID:  ev.PrimaryID.Int64(),
		ContactID:  ev.ContactID.Int64(),
		RequestID:  ev.RequestID,
		OccurredAt: ev.OccurredAt.UTC(),
	}
	for _, absorbed := range ev.AbsorbedIDs {
		msg.AbsorbedIDs = append(msg.AbsorbedIDs, absorbed.Int64())
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode identity event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.PrimaryID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}

// KafkaPublisher implements ports.EventPublisher with a franz-go client.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish produces ev and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, ev models.IdentityEvent) error {
	record, err := Encode(p.topic, ev)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s event: %w", ev.Type, err)
	}
	return nil
}

// Ping checks that at least one broker answers.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.IdentityEvent) error { return nil }
