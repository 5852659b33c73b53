// Package prescription defines the core domain model for parsed prescription
// documents: daily time slots, canonical dose patterns, medication entries,
// and the extraction report surfaced to callers for manual review.
package prescription

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prescripto/prescripto/pkg/errors"
)

// Slot is one of the fixed named daily time windows used to schedule doses.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
	SlotEvening   Slot = "evening"
	SlotNight     Slot = "night"
)

// SlotOrder is the fixed daily ordering Morning < Afternoon < Evening < Night.
// Schedule expansion and positional dose-notation mapping both derive from it.
var SlotOrder = []Slot{SlotMorning, SlotAfternoon, SlotEvening, SlotNight}

// slotRank maps each slot to its position in the daily order.
var slotRank = map[Slot]int{
	SlotMorning:   0,
	SlotAfternoon: 1,
	SlotEvening:   2,
	SlotNight:     3,
}

// slotClock carries the default wall-clock time for each slot, carried over
// from the reminder times the dispatch worker renders.
var slotClock = map[Slot]struct{ hour, minute int }{
	SlotMorning:   {8, 0},
	SlotAfternoon: {13, 0},
	SlotEvening:   {18, 0},
	SlotNight:     {21, 0},
}

// ParseSlot converts a string into a Slot, case-insensitively.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := slotRank[slot]; !ok {
		return "", errors.Newf(errors.CodeInvalidParam, "unknown slot %q", s)
	}
	return slot, nil
}

// Rank returns the slot's position in the fixed daily order.
func (s Slot) Rank() int {
	return slotRank[s]
}

// ClockTime returns the default dispatch time for the slot on the given date
// in the supplied location.
func (s Slot) ClockTime(date time.Time, loc *time.Location) time.Time {
	c := slotClock[s]
	return time.Date(date.Year(), date.Month(), date.Day(), c.hour, c.minute, 0, 0, loc)
}

func (s Slot) String() string { return string(s) }

// DosePattern is the canonical slot-count representation of a dosage
// instruction: how many doses to take in each named slot. A pattern with no
// non-zero slot is empty and never expands to reminders.
type DosePattern map[Slot]int

// NewDosePattern builds a pattern from per-slot counts, dropping zero and
// negative entries so the canonical form only carries real doses.
func NewDosePattern(counts map[Slot]int) DosePattern {
	p := DosePattern{}
	for slot, n := range counts {
		if n > 0 {
			p[slot] = n
		}
	}
	return p
}

// IsEmpty reports whether no slot carries a dose. Empty patterns mark
// entries that failed dosage interpretation.
func (p DosePattern) IsEmpty() bool {
	return len(p) == 0
}

// Slots returns the non-zero slots in fixed daily order.
func (p DosePattern) Slots() []Slot {
	out := make([]Slot, 0, len(p))
	for slot := range p {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

// DailyDoses returns the total dose count across all slots for one day.
func (p DosePattern) DailyDoses() int {
	total := 0
	for _, n := range p {
		total += n
	}
	return total
}

// Equal reports whether two patterns carry identical slot counts.
func (p DosePattern) Equal(other DosePattern) bool {
	if len(p) != len(other) {
		return false
	}
	for slot, n := range p {
		if other[slot] != n {
			return false
		}
	}
	return true
}

// DashNotation renders the pattern in numeric-dash form over the given slot
// order, e.g. {morning:1, night:1} over the default order → "1-0-0-1".
func (p DosePattern) DashNotation(order []Slot) string {
	parts := make([]string, len(order))
	for i, slot := range order {
		parts[i] = fmt.Sprintf("%d", p[slot])
	}
	return strings.Join(parts, "-")
}

// Confidence is the coarse extraction-quality signal on an entry.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceLow  Confidence = "LOW"
)

// MedicationEntry is one parsed medication record extracted from OCR text.
// Entries are immutable after construction; the schedule expander only
// reads them.
type MedicationEntry struct {
	MedicineName string      `json:"medicine_name"`
	Strength     string      `json:"strength,omitempty"`
	DosePattern  DosePattern `json:"dose_pattern"`

	// DurationDays is nil when the document named no duration; the expander
	// then defaults to a single day and flags the entry via the report.
	DurationDays *int `json:"duration_days,omitempty"`

	Confidence Confidence `json:"confidence"`

	// Notes holds leftover fragment text that matched no field, kept for
	// display alongside the reminder.
	Notes string `json:"notes,omitempty"`

	// SourceFragment is the verbatim fragment this entry was parsed from.
	SourceFragment string `json:"source_fragment,omitempty"`
}

// Validate enforces the entry invariants a repository relies on.
func (e *MedicationEntry) Validate() error {
	if strings.TrimSpace(e.MedicineName) == "" {
		return errors.New(errors.CodeValidation, "medicine name must not be empty")
	}
	if e.DurationDays != nil && *e.DurationDays < 1 {
		return errors.Newf(errors.CodeInvalidDuration, "duration must be at least one day, got %d", *e.DurationDays)
	}
	if e.Confidence != ConfidenceHigh && e.Confidence != ConfidenceLow {
		return errors.Newf(errors.CodeValidation, "unknown confidence %q", e.Confidence)
	}
	return nil
}

// ExtractionReport aggregates parse quality per document for user-facing
// review. It never drives control flow.
type ExtractionReport struct {
	EntriesFound         int      `json:"entries_found"`
	EntriesLowConfidence int      `json:"entries_low_confidence"`
	UnparsedFragments    []string `json:"unparsed_fragments"`

	// DefaultedDurations lists medicine names whose schedule fell back to a
	// single day because the document named no duration.
	DefaultedDurations []string `json:"defaulted_durations,omitempty"`
}

// Prescription is one processed document: its entries plus the report.
type Prescription struct {
	ID        string            `json:"id"`
	Entries   []MedicationEntry `json:"entries"`
	Report    ExtractionReport  `json:"report"`
	CreatedAt time.Time         `json:"created_at"`
}
