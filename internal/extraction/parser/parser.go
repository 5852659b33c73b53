// Package parser turns normalised OCR text into structured medication
// entries. Each line of the document is one fragment; fragments are parsed
// independently so one unreadable line never poisons the rest of the
// document.
package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/extraction/dosage"
	"github.com/prescripto/prescripto/internal/extraction/normalizer"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

const (
	defaultMaxFragmentLength = 512
	defaultBatchConcurrency  = 4
)

var (
	strengthRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(mg|mcg|ml|g)\b`)
	durationRe = regexp.MustCompile(`\b(?:for\s+)?(\d+)\s*(days?|weeks?)\b`)

	// doseSignalRe only locates where a dosage notation starts in a line;
	// canonicalisation is the dosage interpreter's job.
	doseSignalRe = regexp.MustCompile(`(?:^|\s)\d+(?:\s*-\s*\d+){1,3}(?:\s|$)` +
		`|\b(?:once|twice|thrice|\d+\s+times?)\s+(?:daily|a\s+day|per\s+day|every\s+day)\b` +
		`|\b(?:\d+\s+)?(?:tab|tablet|cap|capsule|pill|dose)s?\s+(?:daily|a\s+day|per\s+day|every\s+day)\b` +
		`|\bevery\s+\d+\s*(?:hours?|hrs?|h)\b`)

	// nameStopwords are instruction filler that must not leak into the
	// medicine name.
	nameStopwords = map[string]bool{
		"take": true, "give": true, "apply": true, "use": true,
		"tab": true, "tabs": true, "tablet": true, "tablets": true,
		"cap": true, "caps": true, "capsule": true, "capsules": true,
		"syrup": true, "susp": true, "suspension": true,
		"after": true, "before": true, "with": true, "food": true, "meals": true,
		"rx": true, "medicine": true, "medication": true,
	}
)

// Result is the outcome of parsing one document.
type Result struct {
	Entries []prescription.MedicationEntry
	Report  prescription.ExtractionReport
}

// Fragment is one region-tagged piece of OCR text, pre-segmented by an
// upstream region detector. Region is a free-form label such as "dose_table".
type Fragment struct {
	Region string `json:"region,omitempty"`
	Text   string `json:"text"`
}

// Parser extracts medication entries from raw OCR text.
type Parser struct {
	normalizer  *normalizer.Normalizer
	dosage      *dosage.Interpreter
	logger      logging.Logger
	maxFragment int
	concurrency int
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the structured logger used for per-fragment diagnostics.
func WithLogger(log logging.Logger) Option {
	return func(p *Parser) {
		if log != nil {
			p.logger = log
		}
	}
}

// WithMaxFragmentLength caps the length of a fragment the parser will attempt
// to interpret; longer lines are reported unparsed.
func WithMaxFragmentLength(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxFragment = n
		}
	}
}

// WithBatchConcurrency bounds how many documents ParseBatch works on at once.
func WithBatchConcurrency(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New constructs a Parser around the given normalizer and dosage interpreter.
func New(n *normalizer.Normalizer, d *dosage.Interpreter, opts ...Option) *Parser {
	p := &Parser{
		normalizer:  n,
		dosage:      d,
		logger:      logging.NewNopLogger(),
		maxFragment: defaultMaxFragmentLength,
		concurrency: defaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseDocument extracts all medication entries from one OCR document. The
// only error condition is an empty document; everything else degrades into
// report entries so callers always get a usable result.
func (p *Parser) ParseDocument(ctx context.Context, raw string) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New(errors.CodeEmptyDocument, "document contains no text")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "parse cancelled")
	}

	doc := p.normalizer.Normalize(raw)
	displayLines := splitLines(doc.Display)
	matchLines := splitLines(doc.Match)

	res := &Result{}
	for i := range matchLines {
		entry, ok := p.parseFragment(displayLines[i], matchLines[i])
		if !ok {
			res.Report.UnparsedFragments = append(res.Report.UnparsedFragments, displayLines[i])
			continue
		}
		res.Entries = append(res.Entries, *entry)
		if entry.Confidence == prescription.ConfidenceLow {
			res.Report.EntriesLowConfidence++
		}
	}
	res.Report.EntriesFound = len(res.Entries)

	p.logger.Debug("document parsed",
		logging.Int("entries", res.Report.EntriesFound),
		logging.Int("low_confidence", res.Report.EntriesLowConfidence),
		logging.Int("unparsed", len(res.Report.UnparsedFragments)),
	)
	return res, nil
}

// ParseFragments parses pre-segmented text, one candidate medication record
// per fragment, instead of splitting the document into lines. A multi-line
// fragment is flattened to a single line first. Blank fragments are skipped.
func (p *Parser) ParseFragments(ctx context.Context, fragments []Fragment) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "parse cancelled")
	}

	res := &Result{}
	nonEmpty := 0
	for _, f := range fragments {
		text := strings.Join(strings.Fields(f.Text), " ")
		if text == "" {
			continue
		}
		nonEmpty++

		doc := p.normalizer.Normalize(text)
		entry, ok := p.parseFragment(doc.Display, doc.Match)
		if !ok {
			unparsed := doc.Display
			if f.Region != "" {
				unparsed = f.Region + ": " + unparsed
			}
			res.Report.UnparsedFragments = append(res.Report.UnparsedFragments, unparsed)
			continue
		}
		res.Entries = append(res.Entries, *entry)
		if entry.Confidence == prescription.ConfidenceLow {
			res.Report.EntriesLowConfidence++
		}
	}
	if nonEmpty == 0 {
		return nil, errors.New(errors.CodeEmptyDocument, "document contains no text")
	}
	res.Report.EntriesFound = len(res.Entries)

	p.logger.Debug("fragments parsed",
		logging.Int("fragments", nonEmpty),
		logging.Int("entries", res.Report.EntriesFound),
		logging.Int("unparsed", len(res.Report.UnparsedFragments)),
	)
	return res, nil
}

// ParseBatch parses several documents concurrently, preserving input order.
// A nil slot in the output marks a document that failed outright (empty
// input); per-fragment problems surface through each result's report instead.
func (p *Parser) ParseBatch(ctx context.Context, docs []string) ([]*Result, []error) {
	results := make([]*Result, len(docs))
	errs := make([]error, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			results[i], errs[i] = p.ParseDocument(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// parseFragment extracts one entry from a line pair. It returns ok=false
// when the line carries no recognisable medication record. A fragment
// qualifies as an entry only when a medicine name is found together with at
// least one recognised signal: a strength, a dosage notation, or a duration.
// Requiring a corroborating signal keeps free-text lines such as doctor
// remarks out of the entry list.
func (p *Parser) parseFragment(display, match string) (*prescription.MedicationEntry, bool) {
	if len(match) > p.maxFragment {
		return nil, false
	}

	signals := 0
	consumed := make([]span, 0, 4)

	strength := ""
	if loc := strengthRe.FindStringSubmatchIndex(match); loc != nil {
		strength = strings.ReplaceAll(match[loc[0]:loc[1]], " ", "")
		consumed = append(consumed, span{loc[0], loc[1]})
		signals++
	}

	var durationDays *int
	if loc := durationRe.FindStringSubmatchIndex(match); loc != nil {
		n, _ := strconv.Atoi(match[loc[2]:loc[3]])
		if strings.HasPrefix(match[loc[4]:loc[5]], "week") {
			n *= 7
		}
		if n > 0 {
			durationDays = &n
			consumed = append(consumed, span{loc[0], loc[1]})
			signals++
		}
	}

	pattern := prescription.DosePattern{}
	doseValid := false
	if loc := doseSignalRe.FindStringIndex(match); loc != nil {
		consumed = append(consumed, span{loc[0], loc[1]})
		interpreted, err := p.dosage.Interpret(match)
		if err == nil {
			pattern = interpreted
			doseValid = true
			signals++
		} else {
			p.logger.Debug("dose notation rejected",
				logging.String("fragment", display),
				logging.Err(err),
			)
		}
	}

	name := extractName(display, match, consumed)
	if name == "" || signals == 0 {
		return nil, false
	}

	confidence := prescription.ConfidenceLow
	if doseValid && durationDays != nil {
		confidence = prescription.ConfidenceHigh
	}

	entry := &prescription.MedicationEntry{
		MedicineName:   name,
		Strength:       strength,
		DosePattern:    pattern,
		DurationDays:   durationDays,
		Confidence:     confidence,
		Notes:          leftoverText(display, match, consumed, name),
		SourceFragment: display,
	}
	return entry, true
}

// span is a consumed half-open byte range in the match line. Normalisation
// rewrites characters one for one, so match offsets are valid in the display
// line too.
type span struct{ start, end int }

func (s span) covers(i int) bool { return i >= s.start && i < s.end }

// extractName takes the display text preceding the earliest consumed signal,
// strips instruction stopwords, and keeps what remains as the medicine name.
func extractName(display, match string, consumed []span) string {
	boundary := len(match)
	for _, s := range consumed {
		if s.start < boundary {
			boundary = s.start
		}
	}

	words := strings.Fields(display[:boundary])
	kept := words[:0]
	for _, w := range words {
		if nameStopwords[strings.ToLower(strings.Trim(w, ".,:;"))] {
			continue
		}
		if !containsLetter(w) {
			continue
		}
		kept = append(kept, strings.Trim(w, ".,:;"))
	}
	return strings.Join(kept, " ")
}

// leftoverText returns the fragment text that matched no field, kept as
// display notes.
func leftoverText(display, match string, consumed []span, name string) string {
	boundary := len(match)
	for _, s := range consumed {
		if s.start < boundary {
			boundary = s.start
		}
	}

	var b strings.Builder
	for i := 0; i < len(display); i++ {
		if i < boundary {
			continue
		}
		covered := false
		for _, s := range consumed {
			if s.covers(i) {
				covered = true
				break
			}
		}
		if !covered {
			b.WriteByte(display[i])
		}
	}

	notes := strings.Join(strings.Fields(b.String()), " ")
	return strings.Trim(notes, " .,:;-")
}

func containsLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127 {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
