package repository

import (
	"context"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
)

// Producer is the part of the Kafka producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher ships composites and setups keyed by symbol, so each symbol stays ordered.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

type envelope struct {
	Type   string      `json:"type"`
	Symbol string      `json:"symbol"`
	Data   interface{} `json:"data"`
}

func (p *KafkaPublisher) PublishComposite(ctx context.Context, c *models.CompositeSignal) error {
	if c == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, []byte(c.Symbol), envelope{Type: "composite", Symbol: c.Symbol, Data: c})
}

func (p *KafkaPublisher) PublishSetup(ctx context.Context, s *models.TradingSetup) error {
	if s == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, []byte(s.Symbol), envelope{Type: "setup", Symbol: s.Symbol, Data: s})
}

// Close leaves the shared producer open; DI closes it.
func (p *KafkaPublisher) Close() error { return nil }

var _ domrepo.SignalPublisher = (*KafkaPublisher)(nil)
