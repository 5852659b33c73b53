// Package dosage recognises dosage notations in prescription fragments and
// canonicalises them into slot-count dose patterns. Two notation families are
// supported, tried in order: numeric-dash ("1-0-1") and natural-language
// frequency ("twice a day"). Recognition is an ordered table of
// pattern-to-builder rules so new notations can be added without touching
// control flow.
package dosage

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/pkg/errors"
)

// Sentinel errors. Both mark the fragment Invalid to the caller; the
// distinction only feeds the report detail.
var (
	// ErrNoMatch means no recognised notation was present in the fragment.
	ErrNoMatch = errors.New(errors.CodeInvalidDosePattern, "no recognised dose notation")

	// ErrAllZero means a dash notation carried no non-zero position.
	ErrAllZero = errors.New(errors.CodeInvalidDosePattern, "dose pattern has no non-zero slot")

	// ErrUnsupported marks notations we recognise but cannot map to slots,
	// such as hourly intervals.
	ErrUnsupported = errors.New(errors.CodeUnsupportedNotation, "notation cannot be mapped to daily slots")
)

// frequencyPatterns is the fixed table mapping a daily frequency to named
// slots. The named slots here are deliberately independent of the positional
// SlotOrder configuration: "twice daily" means morning and night regardless
// of how dash positions are read.
var frequencyPatterns = map[int]prescription.DosePattern{
	1: {prescription.SlotMorning: 1},
	2: {prescription.SlotMorning: 1, prescription.SlotNight: 1},
	3: {prescription.SlotMorning: 1, prescription.SlotAfternoon: 1, prescription.SlotNight: 1},
	4: {prescription.SlotMorning: 1, prescription.SlotAfternoon: 1, prescription.SlotEvening: 1, prescription.SlotNight: 1},
}

var frequencyWords = map[string]int{
	"once":   1,
	"twice":  2,
	"thrice": 3,
}

// defaultDashOrders maps a dash-pattern length to the slots its positions
// fill. Short patterns anchor on morning and night rather than truncating the
// day: handwritten "1-0-1" means a morning and a night dose, the same reading
// the word-frequency table gives "twice daily".
var defaultDashOrders = map[int][]prescription.Slot{
	2: {prescription.SlotMorning, prescription.SlotNight},
	3: {prescription.SlotMorning, prescription.SlotAfternoon, prescription.SlotNight},
	4: {prescription.SlotMorning, prescription.SlotAfternoon, prescription.SlotEvening, prescription.SlotNight},
}

// rule is one entry in the ordered recognition table.
type rule struct {
	name  string
	re    *regexp.Regexp
	build func(it *Interpreter, m []string) (prescription.DosePattern, error)
}

// Interpreter canonicalises dosage fragments.
type Interpreter struct {
	order []prescription.Slot
	rules []rule
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithSlotOrder overrides the positional mapping used for numeric-dash
// notation: a pattern of N positions fills the first N slots of the given
// order, and a pattern longer than the order is invalid. How a short pattern
// like "1-1" distributes over the day is genuinely ambiguous, so deployments
// choose; without an override each pattern length uses its own mapping
// (2 → morning/night, 3 → morning/afternoon/night, 4 → all slots).
func WithSlotOrder(order []prescription.Slot) Option {
	return func(it *Interpreter) {
		if len(order) >= 2 && len(order) <= 4 {
			it.order = append([]prescription.Slot(nil), order...)
		}
	}
}

// New constructs an Interpreter with the default rule table.
func New(opts ...Option) *Interpreter {
	it := &Interpreter{}
	for _, opt := range opts {
		opt(it)
	}
	it.rules = []rule{
		{
			name: "numeric-dash",
			re:   regexp.MustCompile(`(?:^|\s)(\d+(?:\s*-\s*\d+){1,3})(?:\s|$)`),
			build: func(it *Interpreter, m []string) (prescription.DosePattern, error) {
				return it.buildDash(m[1])
			},
		},
		{
			// Recognised so it does not fall through to a word-frequency
			// misread, but hourly intervals have no slot mapping.
			name: "every-n-hours",
			re:   regexp.MustCompile(`\bevery\s+\d+\s*(?:hours?|hrs?|h)\b`),
			build: func(_ *Interpreter, _ []string) (prescription.DosePattern, error) {
				return nil, ErrUnsupported
			},
		},
		{
			name: "word-frequency",
			re:   regexp.MustCompile(`\b(once|twice|thrice)\s+(?:daily|a\s+day|per\s+day|every\s+day)\b`),
			build: func(_ *Interpreter, m []string) (prescription.DosePattern, error) {
				return clonePattern(frequencyPatterns[frequencyWords[m[1]]]), nil
			},
		},
		{
			name: "n-times-daily",
			re:   regexp.MustCompile(`\b(\d+)\s+times?\s+(?:daily|a\s+day|per\s+day|every\s+day)\b`),
			build: func(_ *Interpreter, m []string) (prescription.DosePattern, error) {
				n, _ := strconv.Atoi(m[1])
				p, ok := frequencyPatterns[n]
				if !ok {
					return nil, ErrUnsupported
				}
				return clonePattern(p), nil
			},
		},
		{
			// "1 tab daily", "2 tablets daily": a unit-count taken once a
			// day, in the default single slot.
			name: "units-daily",
			re:   regexp.MustCompile(`\b(?:(\d+)\s+)?(?:tab|tablet|cap|capsule|pill|dose)s?\s+(?:daily|a\s+day|per\s+day|every\s+day)\b`),
			build: func(_ *Interpreter, m []string) (prescription.DosePattern, error) {
				count := 1
				if m[1] != "" {
					count, _ = strconv.Atoi(m[1])
				}
				if count < 1 {
					return nil, ErrAllZero
				}
				return prescription.DosePattern{prescription.SlotMorning: count}, nil
			},
		},
	}
	return it
}

// SlotOrder returns the slot ordering used to render patterns back into dash
// notation: the configured override, or the full canonical day.
func (it *Interpreter) SlotOrder() []prescription.Slot {
	if it.order != nil {
		return append([]prescription.Slot(nil), it.order...)
	}
	return append([]prescription.Slot(nil), prescription.SlotOrder...)
}

// Interpret canonicalises the first recognised dosage notation in the
// fragment. The fragment is expected in lowercased match form. On failure an
// Invalid-class error is returned and the caller marks the owning entry LOW
// confidence with an empty pattern; Interpret never panics and never aborts
// extraction of other fragments.
func (it *Interpreter) Interpret(fragment string) (prescription.DosePattern, error) {
	fragment = strings.TrimSpace(strings.ToLower(fragment))
	if fragment == "" {
		return nil, ErrNoMatch
	}
	for _, r := range it.rules {
		m := r.re.FindStringSubmatch(fragment)
		if m == nil {
			continue
		}
		return r.build(it, m)
	}
	return nil, ErrNoMatch
}

// buildDash maps "1-0-1" positionally onto slots: the configured order when
// one is set, otherwise the per-length default for the pattern.
func (it *Interpreter) buildDash(notation string) (prescription.DosePattern, error) {
	parts := strings.Split(strings.ReplaceAll(notation, " ", ""), "-")
	order := it.order
	if order == nil {
		// The dash regex admits 2 to 4 positions, all covered.
		order = defaultDashOrders[len(parts)]
	}
	if len(parts) > len(order) {
		return nil, errors.Newf(errors.CodeInvalidDosePattern,
			"dash pattern has %d positions but only %d slots are configured", len(parts), len(order))
	}
	counts := map[prescription.Slot]int{}
	nonZero := false
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, ErrNoMatch
		}
		if n > 0 {
			counts[order[i]] = n
			nonZero = true
		}
	}
	if !nonZero {
		return nil, ErrAllZero
	}
	return prescription.NewDosePattern(counts), nil
}

func clonePattern(p prescription.DosePattern) prescription.DosePattern {
	out := make(prescription.DosePattern, len(p))
	for slot, n := range p {
		out[slot] = n
	}
	return out
}
