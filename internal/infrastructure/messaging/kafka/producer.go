// Package kafka publishes due reminder events to the notification topic.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/prescripto/prescripto/internal/config"
	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

// ErrProducerClosed is returned on publish after Close.
var ErrProducerClosed = errors.New(errors.CodeMessageQueueError, "producer closed")

// WriterInterface abstracts kafka.Writer so tests can substitute a fake.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// reminderMessage is the wire payload of one due reminder.
type reminderMessage struct {
	EventID        string    `json:"event_id"`
	PrescriptionID string    `json:"prescription_id,omitempty"`
	MedicineName   string    `json:"medicine_name"`
	Strength       string    `json:"strength,omitempty"`
	Slot           string    `json:"slot"`
	Date           string    `json:"date"`
	DoseCount      int       `json:"dose_count"`
	Notes          string    `json:"notes,omitempty"`

	// DispatchAt is the slot's wall-clock time in the deployment timezone,
	// ready for notification rendering.
	DispatchAt  time.Time `json:"dispatch_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Producer publishes reminder events. Messages are keyed by the event's
// deduplication key so retried publishes land on the same partition and
// consumers can discard duplicates.
type Producer struct {
	writer WriterInterface
	logger logging.Logger
	closed atomic.Bool
	now    func() time.Time
	loc    *time.Location
}

// Option configures a Producer.
type Option func(*Producer)

// WithTimezone sets the timezone used for the dispatch_at payload field.
// Defaults to UTC.
func WithTimezone(loc *time.Location) Option {
	return func(p *Producer) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// NewProducer builds a producer for the configured brokers and topic.
func NewProducer(cfg config.KafkaConfig, log logging.Logger, opts ...Option) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(writer, log, opts)
}

// NewProducerWithWriter wraps an existing writer, used by tests.
func NewProducerWithWriter(w WriterInterface, log logging.Logger, opts ...Option) *Producer {
	return newProducer(w, log, opts)
}

func newProducer(w WriterInterface, log logging.Logger, opts []Option) *Producer {
	p := &Producer{writer: w, logger: log, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one due reminder.
func (p *Producer) Publish(ctx context.Context, event *reminder.Event) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	payload, err := json.Marshal(reminderMessage{
		EventID:        event.ID,
		PrescriptionID: event.PrescriptionID,
		MedicineName:   event.MedicineName,
		Strength:       event.Strength,
		Slot:           string(event.Slot),
		Date:           event.Date.Format("2006-01-02"),
		DoseCount:      event.DoseCount,
		Notes:          event.Notes,
		DispatchAt:     event.At(p.loc),
		PublishedAt:    p.now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to encode reminder message")
	}

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("reminder publish failed",
			logging.String("event_id", event.ID),
			logging.Err(err),
		)
		return errors.Wrap(err, errors.CodeMessageQueueError, "failed to publish reminder")
	}
	return nil
}

// Close flushes and shuts the writer down. Safe to call more than once.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeMessageQueueError, "failed to close producer")
	}
	p.logger.Info("kafka producer closed")
	return nil
}
