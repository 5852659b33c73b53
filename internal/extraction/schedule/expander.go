// Package schedule expands parsed medication entries into concrete reminder
// events, one per (medicine, calendar day, slot). Expansion is deterministic
// for a fixed start date; wall-clock time never leaks in.
package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/domain/reminder"
	"github.com/prescripto/prescripto/pkg/errors"
)

// defaultDurationDays is the fallback when a document names no duration. The
// single-day default keeps the schedule conservative; the caller surfaces the
// fallback through the extraction report so the user can correct it.
const defaultDurationDays = 1

// Expander turns medication entries into reminder events.
type Expander struct {
	newID func() string
}

// Option configures an Expander.
type Option func(*Expander)

// WithIDGenerator overrides event ID generation, used by tests for stable
// output.
func WithIDGenerator(gen func() string) Option {
	return func(e *Expander) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// New constructs an Expander. Event IDs default to random UUIDs.
func New(opts ...Option) *Expander {
	e := &Expander{newID: uuid.NewString}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExpandEntry produces the reminder events for one entry starting on the
// given date. The returned flag reports whether the single-day duration
// fallback was applied. Entries with an empty dose pattern expand to no
// events and never trigger the fallback flag.
//
// For an entry with duration n and s dosed slots the result holds exactly
// n*s events, ordered by date then slot rank.
func (e *Expander) ExpandEntry(entry prescription.MedicationEntry, prescriptionID string, start time.Time) ([]*reminder.Event, bool, error) {
	if start.IsZero() {
		return nil, false, errors.New(errors.CodeInvalidStartDate, "schedule start date must be set")
	}
	if entry.DurationDays != nil && *entry.DurationDays < 1 {
		return nil, false, errors.Newf(errors.CodeInvalidDuration, "duration must be at least one day, got %d", *entry.DurationDays)
	}
	if entry.DosePattern.IsEmpty() {
		return nil, false, nil
	}

	days := defaultDurationDays
	defaulted := true
	if entry.DurationDays != nil {
		days = *entry.DurationDays
		defaulted = false
	}

	day0 := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	slots := entry.DosePattern.Slots()

	events := make([]*reminder.Event, 0, days*len(slots))
	for d := 0; d < days; d++ {
		date := day0.AddDate(0, 0, d)
		for _, slot := range slots {
			events = append(events, &reminder.Event{
				ID:             e.newID(),
				PrescriptionID: prescriptionID,
				MedicineName:   entry.MedicineName,
				Strength:       entry.Strength,
				Slot:           slot,
				Date:           date,
				DoseCount:      entry.DosePattern[slot],
				Notes:          entry.Notes,
			})
		}
	}
	return events, defaulted, nil
}

// Expand produces the merged schedule for all entries of a prescription. The
// second return value lists the medicine names whose duration fell back to a
// single day, in input order. Events are globally ordered by date, slot rank,
// then medicine name so the schedule reads chronologically.
func (e *Expander) Expand(entries []prescription.MedicationEntry, prescriptionID string, start time.Time) ([]*reminder.Event, []string, error) {
	var all []*reminder.Event
	var defaultedNames []string
	for _, entry := range entries {
		events, defaulted, err := e.ExpandEntry(entry, prescriptionID, start)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.CodeUnknown, "expand "+entry.MedicineName)
		}
		if defaulted {
			defaultedNames = append(defaultedNames, entry.MedicineName)
		}
		all = append(all, events...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.Before(all[j].Date)
		}
		if all[i].Slot.Rank() != all[j].Slot.Rank() {
			return all[i].Slot.Rank() < all[j].Slot.Rank()
		}
		return all[i].MedicineName < all[j].MedicineName
	})
	return all, defaultedNames, nil
}
