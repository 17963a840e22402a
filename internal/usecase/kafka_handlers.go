package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"FKSEngine/internal/domain/models"
	domrepo "FKSEngine/internal/domain/repository"
	pkgkafka "FKSEngine/pkg/kafka"
)

var validate = validator.New()

// decode fails permanently: redelivering a malformed payload cannot help.
func decode(b []byte, v interface{}) error {
	if err := json.Unmarshal(b, v); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("decode message: %w", err))
	}
	if err := defaults.Set(v); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("apply defaults: %w", err))
	}
	if err := validate.Struct(v); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("validate message: %w", err))
	}
	return nil
}

// Retryable reports whether a handler error may succeed on redelivery.
// Engine errors describe the input or the engine state, not the transport.
func Retryable(err error) bool {
	return !pkgkafka.IsPermanent(err) && models.KindOf(err) == 0
}

// KafkaBarsHandler feeds bars from the bars topic into the processor.
type KafkaBarsHandler struct {
	topic   string
	proc    *BarProcessor
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, proc *BarProcessor, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.BarRequest
	if err := decode(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	bar := req.ToBar()
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bar.Time).Seconds())
	return h.proc.Process(ctx, &bar)
}

// KafkaSignalsHandler registers host component signals.
type KafkaSignalsHandler struct {
	topic   string
	ingest  *Ingest
	metrics domrepo.Metrics
}

func NewKafkaSignalsHandler(topic string, ingest *Ingest, metrics domrepo.Metrics) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, ingest: ingest, metrics: metrics}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

func (h *KafkaSignalsHandler) Handle(_ context.Context, b []byte) error {
	var req models.SignalRequest
	if err := decode(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	_, err := h.ingest.Signal(req)
	return err
}

// KafkaOutcomesHandler applies realised outcomes to the coordinators.
type KafkaOutcomesHandler struct {
	topic   string
	ingest  *Ingest
	metrics domrepo.Metrics
}

func NewKafkaOutcomesHandler(topic string, ingest *Ingest, metrics domrepo.Metrics) *KafkaOutcomesHandler {
	return &KafkaOutcomesHandler{topic: topic, ingest: ingest, metrics: metrics}
}

func (h *KafkaOutcomesHandler) Topic() string { return h.topic }

func (h *KafkaOutcomesHandler) Handle(_ context.Context, b []byte) error {
	var req models.OutcomeRequest
	if err := decode(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// redelivery of an applied outcome is acknowledged, not dead-lettered
	if err := h.ingest.Outcome(req); err != nil && !errors.Is(err, models.ErrOutcomeRecorded) {
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaOutcomesHandler)(nil)
)
