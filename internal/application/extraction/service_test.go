package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/internal/extraction/dosage"
	"github.com/prescripto/prescripto/internal/extraction/normalizer"
	"github.com/prescripto/prescripto/internal/extraction/parser"
	"github.com/prescripto/prescripto/internal/extraction/schedule"
	"github.com/prescripto/prescripto/pkg/errors"
)

type mockPrescriptionRepo struct{ mock.Mock }

func (m *mockPrescriptionRepo) Save(ctx context.Context, p *prescription.Prescription) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPrescriptionRepo) FindByID(ctx context.Context, id string) (*prescription.Prescription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*prescription.Prescription), args.Error(1)
}

func (m *mockPrescriptionRepo) List(ctx context.Context, limit int) ([]*prescription.Prescription, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*prescription.Prescription), args.Error(1)
}

type mockReminderRepo struct{ mock.Mock }

func (m *mockReminderRepo) SaveBatch(ctx context.Context, events []*reminder.Event) error {
	return m.Called(ctx, events).Error(0)
}

func (m *mockReminderRepo) FindByPrescription(ctx context.Context, prescriptionID string) ([]*reminder.Event, error) {
	args := m.Called(ctx, prescriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reminder.Event), args.Error(1)
}

func (m *mockReminderRepo) FindDue(ctx context.Context, asOf time.Time, limit int) ([]*reminder.Event, error) {
	args := m.Called(ctx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reminder.Event), args.Error(1)
}

func (m *mockReminderRepo) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type memoryCache struct {
	values map[string]interface{}
	gets   int
	hits   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]interface{}{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.gets++
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	c.hits++
	*dest.(*Result) = *v.(*Result)
	return true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.values[key] = value
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func newService(rxRepo prescription.Repository, evRepo reminder.Repository, opts ...Option) *Service {
	opts = append(opts,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "rx-fixed" }),
	)
	return NewService(
		parser.New(normalizer.New(), dosage.New()),
		schedule.New(),
		rxRepo, evRepo,
		opts...,
	)
}

func TestExtractPersistsPrescriptionAndEvents(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("Save", mock.Anything, mock.MatchedBy(func(p *prescription.Prescription) bool {
		return p.ID == "rx-fixed" && p.Report.EntriesFound == 1
	})).Return(nil)
	evRepo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(evs []*reminder.Event) bool {
		return len(evs) == 10
	})).Return(nil)

	svc := newService(rxRepo, evRepo)
	res, err := svc.Extract(context.Background(), Request{
		Text:      "Paracetamol 500mg 1-0-1 5 days",
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "rx-fixed", res.Prescription.ID)
	assert.Equal(t, fixedNow, res.Prescription.CreatedAt)
	assert.Len(t, res.Events, 10)
	rxRepo.AssertExpectations(t)
	evRepo.AssertExpectations(t)
}

func TestExtractDefaultsStartDateToToday(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	evRepo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	svc := newService(rxRepo, evRepo)
	res, err := svc.Extract(context.Background(), Request{Text: "Vitamin C once daily"})
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), res.Events[0].Date)
	assert.Equal(t, []string{"Vitamin C"}, res.Prescription.Report.DefaultedDurations)
}

func TestExtractNoEventsSkipsSaveBatch(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	svc := newService(rxRepo, evRepo)
	res, err := svc.Extract(context.Background(), Request{Text: "asdf qwer zxcv\nMetformin 500mg as directed"})
	require.NoError(t, err)

	assert.Empty(t, res.Events)
	assert.Equal(t, 1, res.Prescription.Report.EntriesFound)
	assert.Equal(t, []string{"asdf qwer zxcv"}, res.Prescription.Report.UnparsedFragments)
	evRepo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
}

func TestExtractEmptyDocument(t *testing.T) {
	svc := newService(&mockPrescriptionRepo{}, &mockReminderRepo{})
	_, err := svc.Extract(context.Background(), Request{Text: "   "})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeEmptyDocument))
}

func TestExtractPropagatesSaveError(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("Save", mock.Anything, mock.Anything).
		Return(errors.New(errors.CodeDatabaseError, "connection lost"))

	svc := newService(rxRepo, evRepo)
	_, err := svc.Extract(context.Background(), Request{Text: "Paracetamol 500mg 1-0-1 5 days"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseError))
	evRepo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
}

func TestExtractUsesCacheOnRepeat(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	evRepo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil).Once()

	cache := newMemoryCache()
	svc := newService(rxRepo, evRepo, WithCache(cache, time.Minute))

	req := Request{
		Text:      "Paracetamol 500mg 1-0-1 5 days",
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	first, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Prescription.ID, second.Prescription.ID)
	assert.Equal(t, 1, cache.hits)
	rxRepo.AssertNumberOfCalls(t, "Save", 1)

	// A different start date is a different document fingerprint.
	req.StartDate = req.StartDate.AddDate(0, 0, 1)
	rxRepo.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	evRepo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil).Once()
	_, err = svc.Extract(context.Background(), req)
	require.NoError(t, err)
	rxRepo.AssertNumberOfCalls(t, "Save", 2)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}

	svc := newService(rxRepo, evRepo)
	res, err := svc.Preview(context.Background(), Request{Text: "Amoxicillin 250mg 1-1-1 7 days"})
	require.NoError(t, err)

	assert.Len(t, res.Events, 21)
	rxRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	evRepo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
}

func TestGetSchedule(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	stored := &prescription.Prescription{ID: "rx-1"}
	events := []*reminder.Event{{ID: "ev-1", PrescriptionID: "rx-1"}}
	rxRepo.On("FindByID", mock.Anything, "rx-1").Return(stored, nil)
	evRepo.On("FindByPrescription", mock.Anything, "rx-1").Return(events, nil)

	svc := newService(rxRepo, evRepo)
	got, err := svc.GetSchedule(context.Background(), "rx-1")
	require.NoError(t, err)
	assert.Equal(t, events, got)

	_, err = svc.GetSchedule(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestGetScheduleUnknownPrescription(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("FindByID", mock.Anything, "missing").
		Return(nil, errors.New(errors.CodePrescriptionNotFound, "no such prescription"))

	svc := newService(rxRepo, evRepo)
	_, err := svc.GetSchedule(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	evRepo.AssertNotCalled(t, "FindByPrescription", mock.Anything, mock.Anything)
}

func TestExtractFromFragments(t *testing.T) {
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	evRepo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(evs []*reminder.Event) bool {
		return len(evs) == 10
	})).Return(nil)

	cache := newMemoryCache()
	svc := newService(rxRepo, evRepo, WithCache(cache, time.Minute))
	req := Request{
		Fragments: []parser.Fragment{
			{Region: "row_1", Text: "Paracetamol 500mg 1-0-1 5 days"},
		},
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	res, err := svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Events, 10)

	// Same fragments hit the cache; a different region label does not.
	_, err = svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	req.Fragments[0].Region = "row_2"
	_, err = svc.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestExtractScheduleAnchorsShortDashPatternOnNight(t *testing.T) {
	// A three-position dash pattern doses morning and night, so the last
	// event of a five-day course lands on the final night.
	rxRepo := &mockPrescriptionRepo{}
	evRepo := &mockReminderRepo{}
	rxRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	evRepo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	svc := newService(rxRepo, evRepo)
	res, err := svc.Extract(context.Background(), Request{
		Text:      "Paracetamol 500mg 1-0-1 5 days",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 10)
	first, last := res.Events[0], res.Events[9]
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, prescription.SlotMorning, first.Slot)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), last.Date)
	assert.Equal(t, prescription.SlotNight, last.Slot)
}
