package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/pkg/errors"
)

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

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, event *reminder.Event) error {
	return m.Called(ctx, event).Error(0)
}

var asOf = time.Date(2024, 3, 1, 8, 5, 0, 0, time.UTC)

func dueEvent(id string) *reminder.Event {
	return &reminder.Event{
		ID:           id,
		MedicineName: "Paracetamol",
		Slot:         prescription.SlotMorning,
		Date:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DoseCount:    1,
	}
}

func TestDispatchDuePublishesAndMarks(t *testing.T) {
	repo := &mockReminderRepo{}
	pub := &mockPublisher{}
	events := []*reminder.Event{dueEvent("ev-1"), dueEvent("ev-2")}
	repo.On("FindDue", mock.Anything, asOf, 100).Return(events, nil)
	pub.On("Publish", mock.Anything, events[0]).Return(nil)
	pub.On("Publish", mock.Anything, events[1]).Return(nil)
	repo.On("MarkDispatched", mock.Anything, "ev-1", asOf).Return(nil)
	repo.On("MarkDispatched", mock.Anything, "ev-2", asOf).Return(nil)

	svc := NewService(repo, pub, WithClock(func() time.Time { return asOf }))
	n, err := svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestDispatchDueNothingDue(t *testing.T) {
	repo := &mockReminderRepo{}
	pub := &mockPublisher{}
	repo.On("FindDue", mock.Anything, mock.Anything, mock.Anything).
		Return([]*reminder.Event{}, nil)

	svc := NewService(repo, pub)
	n, err := svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestDispatchDueSkipsFailedPublish(t *testing.T) {
	repo := &mockReminderRepo{}
	pub := &mockPublisher{}
	events := []*reminder.Event{dueEvent("ev-1"), dueEvent("ev-2"), dueEvent("ev-3")}
	repo.On("FindDue", mock.Anything, asOf, 100).Return(events, nil)
	pub.On("Publish", mock.Anything, events[0]).Return(nil)
	pub.On("Publish", mock.Anything, events[1]).
		Return(errors.New(errors.CodeMessageQueueError, "broker unavailable"))
	pub.On("Publish", mock.Anything, events[2]).Return(nil)
	repo.On("MarkDispatched", mock.Anything, "ev-1", asOf).Return(nil)
	repo.On("MarkDispatched", mock.Anything, "ev-3", asOf).Return(nil)

	svc := NewService(repo, pub, WithClock(func() time.Time { return asOf }))
	n, err := svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	repo.AssertNotCalled(t, "MarkDispatched", mock.Anything, "ev-2", mock.Anything)
}

func TestDispatchDueFailedMarkNotCounted(t *testing.T) {
	repo := &mockReminderRepo{}
	pub := &mockPublisher{}
	events := []*reminder.Event{dueEvent("ev-1")}
	repo.On("FindDue", mock.Anything, asOf, 100).Return(events, nil)
	pub.On("Publish", mock.Anything, events[0]).Return(nil)
	repo.On("MarkDispatched", mock.Anything, "ev-1", asOf).
		Return(errors.New(errors.CodeDatabaseError, "write failed"))

	svc := NewService(repo, pub, WithClock(func() time.Time { return asOf }))
	n, err := svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchDueFindError(t *testing.T) {
	repo := &mockReminderRepo{}
	pub := &mockPublisher{}
	repo.On("FindDue", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.CodeDatabaseError, "connection lost"))

	svc := NewService(repo, pub)
	_, err := svc.DispatchDue(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseError))
}

func TestDispatchDueRespectsBatchSize(t *testing.T) {
	repo := &mockReminderRepo{}
	pub := &mockPublisher{}
	repo.On("FindDue", mock.Anything, mock.Anything, 5).Return([]*reminder.Event{}, nil)

	svc := NewService(repo, pub, WithBatchSize(5))
	_, err := svc.DispatchDue(context.Background())
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := &mockReminderRepo{}
	pub := &mockPublisher{}
	repo.On("FindDue", mock.Anything, mock.Anything, mock.Anything).
		Return([]*reminder.Event{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	svc := NewService(repo, pub)
	go func() { done <- svc.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
