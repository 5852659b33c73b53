package prescription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlot(t *testing.T) {
	slot, err := ParseSlot(" Morning ")
	require.NoError(t, err)
	assert.Equal(t, SlotMorning, slot)

	_, err = ParseSlot("midnight")
	assert.Error(t, err)
}

func TestSlotOrdering(t *testing.T) {
	assert.Equal(t, 0, SlotMorning.Rank())
	assert.Equal(t, 1, SlotAfternoon.Rank())
	assert.Equal(t, 2, SlotEvening.Rank())
	assert.Equal(t, 3, SlotNight.Rank())
}

func TestSlotClockTime(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := SlotMorning.ClockTime(date, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), at)

	at = SlotNight.ClockTime(date, time.UTC)
	assert.Equal(t, 21, at.Hour())
}

func TestNewDosePatternDropsZeroSlots(t *testing.T) {
	p := NewDosePattern(map[Slot]int{SlotMorning: 1, SlotAfternoon: 0, SlotNight: -2})
	assert.Equal(t, DosePattern{SlotMorning: 1}, p)
	assert.False(t, p.IsEmpty())
	assert.True(t, NewDosePattern(nil).IsEmpty())
}

func TestDosePatternSlotsFixedOrder(t *testing.T) {
	p := DosePattern{SlotNight: 1, SlotMorning: 1, SlotAfternoon: 2}
	assert.Equal(t, []Slot{SlotMorning, SlotAfternoon, SlotNight}, p.Slots())
	assert.Equal(t, 4, p.DailyDoses())
}

func TestDosePatternEqual(t *testing.T) {
	a := DosePattern{SlotMorning: 1, SlotNight: 1}
	b := NewDosePattern(map[Slot]int{SlotNight: 1, SlotMorning: 1, SlotEvening: 0})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(DosePattern{SlotMorning: 2, SlotNight: 1}))
	assert.False(t, a.Equal(DosePattern{SlotMorning: 1}))
}

func TestDashNotation(t *testing.T) {
	p := DosePattern{SlotMorning: 1, SlotNight: 1}
	assert.Equal(t, "1-0-0-1", p.DashNotation(SlotOrder))
	assert.Equal(t, "1-1", p.DashNotation([]Slot{SlotMorning, SlotNight}))
}

func TestMedicationEntryValidate(t *testing.T) {
	days := 5
	entry := MedicationEntry{
		MedicineName: "Paracetamol",
		Strength:     "500mg",
		DosePattern:  DosePattern{SlotMorning: 1, SlotNight: 1},
		DurationDays: &days,
		Confidence:   ConfidenceHigh,
	}
	assert.NoError(t, entry.Validate())

	entry.MedicineName = "   "
	assert.Error(t, entry.Validate())

	entry.MedicineName = "Paracetamol"
	zero := 0
	entry.DurationDays = &zero
	assert.Error(t, entry.Validate())

	entry.DurationDays = &days
	entry.Confidence = "MEDIUM"
	assert.Error(t, entry.Validate())
}
