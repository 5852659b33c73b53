package schedule

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/pkg/errors"
)

var start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newExpander() *Expander {
	n := 0
	return New(WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	}))
}

func intPtr(n int) *int { return &n }

func paracetamol() prescription.MedicationEntry {
	return prescription.MedicationEntry{
		MedicineName: "Paracetamol",
		Strength:     "500mg",
		DosePattern: prescription.DosePattern{
			prescription.SlotMorning: 1,
			prescription.SlotNight:   1,
		},
		DurationDays: intPtr(5),
		Confidence:   prescription.ConfidenceHigh,
	}
}

func TestExpandEntryEventCount(t *testing.T) {
	events, defaulted, err := newExpander().ExpandEntry(paracetamol(), "rx-1", start)
	require.NoError(t, err)
	assert.False(t, defaulted)

	// 5 days of a two-slot pattern.
	require.Len(t, events, 10)
	for _, ev := range events {
		assert.Equal(t, "Paracetamol", ev.MedicineName)
		assert.Equal(t, "500mg", ev.Strength)
		assert.Equal(t, "rx-1", ev.PrescriptionID)
		assert.Equal(t, 1, ev.DoseCount)
		assert.NoError(t, ev.Validate())
	}

	assert.Equal(t, start, events[0].Date)
	assert.Equal(t, prescription.SlotMorning, events[0].Slot)
	assert.Equal(t, start.AddDate(0, 0, 4), events[9].Date)
	assert.Equal(t, prescription.SlotNight, events[9].Slot)
}

func TestExpandEntryThriceDaily(t *testing.T) {
	entry := prescription.MedicationEntry{
		MedicineName: "Amoxicillin",
		Strength:     "250mg",
		DosePattern: prescription.DosePattern{
			prescription.SlotMorning:   1,
			prescription.SlotAfternoon: 1,
			prescription.SlotNight:     1,
		},
		DurationDays: intPtr(7),
		Confidence:   prescription.ConfidenceHigh,
	}
	events, defaulted, err := newExpander().ExpandEntry(entry, "rx-1", start)
	require.NoError(t, err)
	assert.False(t, defaulted)
	assert.Len(t, events, 21)
}

func TestExpandEntryDefaultsMissingDuration(t *testing.T) {
	entry := prescription.MedicationEntry{
		MedicineName: "Vitamin C",
		DosePattern:  prescription.DosePattern{prescription.SlotMorning: 1},
		Confidence:   prescription.ConfidenceLow,
	}
	events, defaulted, err := newExpander().ExpandEntry(entry, "rx-1", start)
	require.NoError(t, err)
	assert.True(t, defaulted)
	require.Len(t, events, 1)
	assert.Equal(t, start, events[0].Date)
}

func TestExpandEntryEmptyPattern(t *testing.T) {
	entry := prescription.MedicationEntry{
		MedicineName: "Metformin",
		DosePattern:  prescription.DosePattern{},
		Confidence:   prescription.ConfidenceLow,
	}
	events, defaulted, err := newExpander().ExpandEntry(entry, "rx-1", start)
	require.NoError(t, err)
	assert.False(t, defaulted, "fallback must not be reported for entries that expand to nothing")
	assert.Empty(t, events)
}

func TestExpandEntryRejectsBadInput(t *testing.T) {
	e := newExpander()

	_, _, err := e.ExpandEntry(paracetamol(), "rx-1", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidStartDate))

	entry := paracetamol()
	entry.DurationDays = intPtr(0)
	_, _, err = e.ExpandEntry(entry, "rx-1", start)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidDuration))
}

func TestExpandEntryNormalizesStartToUTCMidnight(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	late := time.Date(2024, 3, 1, 23, 45, 0, 0, ist)

	events, _, err := newExpander().ExpandEntry(paracetamol(), "rx-1", late)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), events[0].Date)
}

func TestExpandMergesAndOrders(t *testing.T) {
	vitamin := prescription.MedicationEntry{
		MedicineName: "Vitamin C",
		DosePattern:  prescription.DosePattern{prescription.SlotMorning: 1},
		Confidence:   prescription.ConfidenceLow,
	}
	events, defaultedNames, err := newExpander().Expand(
		[]prescription.MedicationEntry{paracetamol(), vitamin}, "rx-1", start)
	require.NoError(t, err)

	assert.Equal(t, []string{"Vitamin C"}, defaultedNames)
	require.Len(t, events, 11)

	// Chronological: day 1 morning has both medicines, name-ordered.
	assert.Equal(t, "Paracetamol", events[0].MedicineName)
	assert.Equal(t, "Vitamin C", events[1].MedicineName)
	assert.Equal(t, prescription.SlotMorning, events[1].Slot)

	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if prev.Date.Equal(cur.Date) {
			assert.LessOrEqual(t, prev.Slot.Rank(), cur.Slot.Rank())
		} else {
			assert.True(t, prev.Date.Before(cur.Date))
		}
	}

	// IDs are unique across the merged schedule.
	seen := map[string]bool{}
	for _, ev := range events {
		assert.False(t, seen[ev.ID], "duplicate id %s", ev.ID)
		seen[ev.ID] = true
	}
}

func TestExpandPropagatesEntryError(t *testing.T) {
	bad := paracetamol()
	bad.DurationDays = intPtr(-1)
	_, _, err := newExpander().Expand(
		[]prescription.MedicationEntry{paracetamol(), bad}, "rx-1", start)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidDuration))
}
