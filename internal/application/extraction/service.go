// Package extraction is the application service orchestrating the pipeline:
// parse OCR text, expand the reminder schedule, persist, and cache. It owns
// no parsing logic itself; it wires the extraction packages to storage and
// reports.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/internal/extraction/parser"
	"github.com/prescripto/prescripto/internal/extraction/schedule"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

// Cache is the read-through result cache the service consults before running
// the pipeline. Implementations must treat misses and transport failures the
// same way: ok=false, so caching stays strictly best-effort.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Metrics receives pipeline counters. A nil-safe no-op implementation is used
// when monitoring is not wired.
type Metrics interface {
	ObserveExtraction(status string, seconds float64)
	AddEntries(confidence string, n int)
	AddReminderEvents(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveExtraction(string, float64) {}
func (nopMetrics) AddEntries(string, int)            {}
func (nopMetrics) AddReminderEvents(int)             {}

// Request is one extraction job: the OCR text plus the schedule start date.
// Either Text or Fragments is set; Fragments wins when both are present. A
// zero StartDate means today.
type Request struct {
	Text      string            `json:"text,omitempty"`
	Fragments []parser.Fragment `json:"fragments,omitempty"`
	StartDate time.Time         `json:"start_date,omitempty"`
}

// Result is the full pipeline output for one document.
type Result struct {
	Prescription *prescription.Prescription `json:"prescription"`
	Events       []*reminder.Event          `json:"events"`
}

// Service runs the extraction pipeline.
type Service struct {
	parser        *parser.Parser
	expander      *schedule.Expander
	prescriptions prescription.Repository
	reminders     reminder.Repository
	cache         Cache
	cacheTTL      time.Duration
	metrics       Metrics
	logger        logging.Logger
	now           func() time.Time
	newID         func() string
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables read-through result caching.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil && ttl > 0 {
			s.cache = c
			s.cacheTTL = ttl
		}
	}
}

// WithMetrics wires pipeline counters.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
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

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides prescription ID generation, used by tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService wires the pipeline. Repositories are required; cache and
// metrics are optional.
func NewService(p *parser.Parser, e *schedule.Expander, prescriptions prescription.Repository, reminders reminder.Repository, opts ...Option) *Service {
	s := &Service{
		parser:        p,
		expander:      e,
		prescriptions: prescriptions,
		reminders:     reminders,
		metrics:       nopMetrics{},
		logger:        logging.NewNopLogger(),
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract runs the full pipeline and persists the outcome. Identical
// (text, start date) requests within the cache TTL return the stored result
// without re-parsing or re-persisting.
func (s *Service) Extract(ctx context.Context, req Request) (*Result, error) {
	started := s.now()

	key := cacheKey(req, s.startDate(req))
	if s.cache != nil {
		var cached Result
		if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
			s.logger.Warn("result cache read failed", logging.Err(err))
		} else if ok {
			s.metrics.ObserveExtraction("cache_hit", s.now().Sub(started).Seconds())
			return &cached, nil
		}
	}

	res, err := s.run(ctx, req, true)
	if err != nil {
		s.metrics.ObserveExtraction("error", s.now().Sub(started).Seconds())
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res, s.cacheTTL); err != nil {
			s.logger.Warn("result cache write failed", logging.Err(err))
		}
	}
	s.metrics.ObserveExtraction("ok", s.now().Sub(started).Seconds())
	return res, nil
}

// Preview runs the pipeline without persisting or caching anything. The CLI
// uses it for dry runs.
func (s *Service) Preview(ctx context.Context, req Request) (*Result, error) {
	return s.run(ctx, req, false)
}

// GetPrescription loads one stored prescription.
func (s *Service) GetPrescription(ctx context.Context, id string) (*prescription.Prescription, error) {
	if id == "" {
		return nil, errors.InvalidParam("prescription id must not be empty")
	}
	return s.prescriptions.FindByID(ctx, id)
}

// ListPrescriptions returns the most recently processed prescriptions.
func (s *Service) ListPrescriptions(ctx context.Context, limit int) ([]*prescription.Prescription, error) {
	return s.prescriptions.List(ctx, limit)
}

// GetSchedule loads the reminder events of one prescription in chronological
// order.
func (s *Service) GetSchedule(ctx context.Context, prescriptionID string) ([]*reminder.Event, error) {
	if prescriptionID == "" {
		return nil, errors.InvalidParam("prescription id must not be empty")
	}
	if _, err := s.prescriptions.FindByID(ctx, prescriptionID); err != nil {
		return nil, err
	}
	return s.reminders.FindByPrescription(ctx, prescriptionID)
}

func (s *Service) run(ctx context.Context, req Request, persist bool) (*Result, error) {
	var parsed *parser.Result
	var err error
	if len(req.Fragments) > 0 {
		parsed, err = s.parser.ParseFragments(ctx, req.Fragments)
	} else {
		parsed, err = s.parser.ParseDocument(ctx, req.Text)
	}
	if err != nil {
		return nil, err
	}

	rxID := s.newID()
	events, defaultedNames, err := s.expander.Expand(parsed.Entries, rxID, s.startDate(req))
	if err != nil {
		return nil, err
	}
	parsed.Report.DefaultedDurations = defaultedNames

	rx := &prescription.Prescription{
		ID:        rxID,
		Entries:   parsed.Entries,
		Report:    parsed.Report,
		CreatedAt: s.now().UTC(),
	}

	if persist {
		if err := s.prescriptions.Save(ctx, rx); err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "save prescription")
		}
		if len(events) > 0 {
			if err := s.reminders.SaveBatch(ctx, events); err != nil {
				return nil, errors.Wrap(err, errors.CodeUnknown, "save reminder events")
			}
		}
	}

	for _, entry := range parsed.Entries {
		s.metrics.AddEntries(string(entry.Confidence), 1)
	}
	s.metrics.AddReminderEvents(len(events))

	s.logger.Info("document extracted",
		logging.String("prescription_id", rxID),
		logging.Int("entries", rx.Report.EntriesFound),
		logging.Int("events", len(events)),
		logging.Int("unparsed", len(rx.Report.UnparsedFragments)),
		logging.Bool("persisted", persist),
	)
	return &Result{Prescription: rx, Events: events}, nil
}

// startDate resolves the effective schedule start: the requested date, or
// today when unset.
func (s *Service) startDate(req Request) time.Time {
	if !req.StartDate.IsZero() {
		return req.StartDate
	}
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// cacheKey fingerprints a request. The raw text is hashed, never stored, so
// document contents stay out of cache keys.
func cacheKey(req Request, start time.Time) string {
	h := sha256.New()
	h.Write([]byte(req.Text))
	for _, f := range req.Fragments {
		h.Write([]byte{0})
		h.Write([]byte(f.Region))
		h.Write([]byte{0})
		h.Write([]byte(f.Text))
	}
	h.Write([]byte{0})
	h.Write([]byte(start.UTC().Format("2006-01-02")))
	return "extract:" + hex.EncodeToString(h.Sum(nil))
}
