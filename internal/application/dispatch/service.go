// Package dispatch drains due reminder events to the notification topic. It
// is the application service behind the worker binary: poll the store for
// events whose slot time has passed, publish each, mark it dispatched.
package dispatch

import (
	"context"
	"time"

	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

const defaultBatchSize = 100

// Publisher hands a due event to the notification transport.
type Publisher interface {
	Publish(ctx context.Context, event *reminder.Event) error
}

// Metrics receives dispatch counters.
type Metrics interface {
	AddDispatched(n int)
	AddDispatchFailures(n int)
}

type nopMetrics struct{}

func (nopMetrics) AddDispatched(int)       {}
func (nopMetrics) AddDispatchFailures(int) {}

// Service polls for due reminders and publishes them.
type Service struct {
	reminders reminder.Repository
	publisher Publisher
	logger    logging.Logger
	metrics   Metrics
	batchSize int
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBatchSize caps how many due events one poll drains.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithMetrics wires dispatch counters.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a dispatch service.
func NewService(reminders reminder.Repository, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		reminders: reminders,
		publisher: publisher,
		logger:    logging.NewNopLogger(),
		metrics:   nopMetrics{},
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DispatchDue drains one batch of due events. A publish failure skips that
// event and continues with the rest; the event stays undispatched and is
// retried on the next poll. Returns how many events were dispatched.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	asOf := s.now()
	due, err := s.reminders.FindDue(ctx, asOf, s.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeUnknown, "load due reminders")
	}

	dispatched := 0
	failures := 0
	for _, ev := range due {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			failures++
			s.logger.Error("reminder publish failed",
				logging.String("event_id", ev.ID),
				logging.String("medicine", ev.MedicineName),
				logging.Err(err),
			)
			continue
		}
		if err := s.reminders.MarkDispatched(ctx, ev.ID, asOf); err != nil {
			// The event went out but the mark failed; the next poll will
			// publish it again. Consumers deduplicate on the event key.
			failures++
			s.logger.Error("mark dispatched failed",
				logging.String("event_id", ev.ID),
				logging.Err(err),
			)
			continue
		}
		dispatched++
	}

	s.metrics.AddDispatched(dispatched)
	s.metrics.AddDispatchFailures(failures)
	if len(due) > 0 {
		s.logger.Info("dispatch batch complete",
			logging.Int("due", len(due)),
			logging.Int("dispatched", dispatched),
			logging.Int("failed", failures),
		)
	}
	return dispatched, nil
}

// Run polls on the given interval until the context is cancelled. Poll
// errors are logged and the loop continues; only context cancellation stops
// it.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("dispatch worker started", logging.Duration("interval", interval))
	for {
		if _, err := s.DispatchDue(ctx); err != nil {
			s.logger.Error("dispatch poll failed", logging.Err(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("dispatch worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
