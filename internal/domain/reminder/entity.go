// Package reminder defines the reminder-event domain model: one concrete
// (medicine, date, slot) instance the user must be notified about, produced
// by schedule expansion and consumed by the dispatch worker.
package reminder

import (
	"context"
	"strings"
	"time"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/pkg/errors"
)

// Event is a single scheduled reminder. Events are immutable value objects;
// only the dispatch bookkeeping fields change after creation, and that
// happens in the repository, not on in-memory copies.
type Event struct {
	ID             string            `json:"id"`
	PrescriptionID string            `json:"prescription_id,omitempty"`
	MedicineName   string            `json:"medicine_name"`
	Strength       string            `json:"strength,omitempty"`
	Slot           prescription.Slot `json:"slot"`

	// Date is the calendar day of the reminder, stored at UTC midnight.
	Date time.Time `json:"date"`

	DoseCount int    `json:"dose_count"`
	Notes     string `json:"notes,omitempty"`

	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// At returns the concrete dispatch timestamp: the event date combined with
// the slot's default clock time in the given location.
func (e *Event) At(loc *time.Location) time.Time {
	return e.Slot.ClockTime(e.Date, loc)
}

// Key identifies an event for deduplication: one event per
// (medicine, date, slot) within a prescription.
func (e *Event) Key() string {
	return strings.Join([]string{
		e.PrescriptionID,
		strings.ToLower(e.MedicineName),
		e.Date.Format("2006-01-02"),
		string(e.Slot),
	}, "|")
}

// Validate enforces the invariants the persistence layer relies on.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.MedicineName) == "" {
		return errors.New(errors.CodeValidation, "reminder medicine name must not be empty")
	}
	if e.DoseCount < 1 {
		return errors.Newf(errors.CodeValidation, "dose count must be positive, got %d", e.DoseCount)
	}
	if e.Date.IsZero() {
		return errors.New(errors.CodeValidation, "reminder date must be set")
	}
	if _, err := prescription.ParseSlot(string(e.Slot)); err != nil {
		return err
	}
	return nil
}

// Repository persists reminder events.
type Repository interface {
	// SaveBatch stores events atomically. Duplicate (prescription, medicine,
	// date, slot) keys are rejected with CodeConflict.
	SaveBatch(ctx context.Context, events []*Event) error

	// FindByPrescription returns all events for a prescription ordered by
	// (date, slot rank).
	FindByPrescription(ctx context.Context, prescriptionID string) ([]*Event, error)

	// FindDue returns undispatched events whose dispatch time is at or
	// before asOf, oldest first, capped at limit.
	FindDue(ctx context.Context, asOf time.Time, limit int) ([]*Event, error)

	// MarkDispatched records that the event was handed to the notifier.
	MarkDispatched(ctx context.Context, id string, at time.Time) error
}
