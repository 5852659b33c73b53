// Package normalizer cleans raw OCR text before pattern matching: Unicode
// NFC normalisation, whitespace collapsing, and a fixed table of OCR
// character-confusion fixes applied only where a token plausibly carries
// numerals. Normalisation is deterministic, side-effect free, and total; the
// worst case returns the input unchanged.
package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalized carries both renditions of a cleaned document. Matching runs on
// Match; Display keeps the original casing for user-facing output. Line
// boundaries are preserved in both because the parser segments on them.
type Normalized struct {
	Display string
	Match   string
}

// confusionRule rewrites one class of OCR misreads. Rules form an ordered
// table so new confusions can be added without touching control flow.
type confusionRule struct {
	pattern *regexp.Regexp
	apply   func(token string) string
}

// digitise maps the letter shapes OCR commonly confuses with digits.
var digitiser = strings.NewReplacer(
	"l", "1",
	"i", "1",
	"o", "0",
	"s", "5",
)

var strengthTokenRe = regexp.MustCompile(`^([0-9lios]+)(mg|ml|g|mcg)$`)

// confusionRules only fire on whole tokens that look numeric apart from the
// confused characters, so ordinary words are never rewritten. Input tokens
// are already lowercased.
var confusionRules = []confusionRule{
	// Dash dose notations: "l-0-l" → "1-0-1".
	{
		pattern: regexp.MustCompile(`^[0-9lio]+(?:-[0-9lio]+)+$`),
		apply:   digitiser.Replace,
	},
	// Strength tokens: "5oomg" → "500mg".
	{
		pattern: regexp.MustCompile(`^[0-9lios]*[lios][0-9lios]*(mg|ml|g|mcg)$`),
		apply: func(token string) string {
			m := strengthTokenRe.FindStringSubmatch(token)
			if m == nil {
				return token
			}
			return digitiser.Replace(m[1]) + m[2]
		},
	},
}

var spaceRunRe = regexp.MustCompile(`[ \t]+`)

// Normalizer applies the fixed normalisation pipeline.
type Normalizer struct{}

// New returns a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize cleans raw OCR text. Blank lines are dropped; within each line,
// whitespace runs collapse to single spaces. The function is idempotent:
// Normalize(Normalize(x).Display).Display == Normalize(x).Display, and the
// same holds for Match.
func (n *Normalizer) Normalize(raw string) Normalized {
	cleaned := norm.NFC.String(raw)
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")

	var displayLines, matchLines []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		displayLines = append(displayLines, line)
		matchLines = append(matchLines, fixConfusions(lowerASCII(line)))
	}

	return Normalized{
		Display: strings.Join(displayLines, "\n"),
		Match:   strings.Join(matchLines, "\n"),
	}
}

// lowerASCII lowercases ASCII letters only. Full Unicode lowering can change
// byte lengths (U+023A lowers to a wider rune), which would break the
// invariant that match-line offsets are valid in the display line. The
// confusion table and every match regex are ASCII, so nothing is lost.
func lowerASCII(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// fixConfusions applies the confusion table token by token.
func fixConfusions(line string) string {
	tokens := strings.Split(line, " ")
	for i, token := range tokens {
		for _, rule := range confusionRules {
			if rule.pattern.MatchString(token) {
				tokens[i] = rule.apply(token)
				break
			}
		}
	}
	return strings.Join(tokens, " ")
}
