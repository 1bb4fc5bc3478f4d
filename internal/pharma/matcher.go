// Package pharma resolves misheard medication names against a known
// formulary using Double Metaphone phonetic encoding with Jaro-Winkler
// ranking.
//
// STT output is rarely exact for drug names — "paracetamol" arrives as
// "para see tamol", "azithromycin" as "a zithro mices". The [Matcher] tests
// each candidate against the formulary in two passes: phonetic code overlap
// filtered by a Jaro-Winkler floor, then a pure string-similarity fallback
// with a stricter floor. The prescription extractor runs every detected
// medication token through the matcher before a prescription is rendered.
package pharma

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.72
	defaultFuzzyThreshold    = 0.86
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for accepting a
// phonetically-matched drug name. Default: 0.72.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the pure
// string-similarity fallback when no phonetic candidate exists. Default: 0.86.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher resolves heard medication names to canonical formulary entries.
// It is read-only after construction and safe for concurrent use.
type Matcher struct {
	formulary         []entry
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// entry is a precomputed formulary drug: canonical name, lowered form, and
// the Double Metaphone codes of each of its words.
type entry struct {
	canonical string
	lowered   string
	codes     map[string]struct{}
}

// New returns a [Matcher] over the given formulary of canonical drug names.
// An empty formulary yields a matcher that never matches.
func New(formulary []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, name := range formulary {
		lowered := strings.ToLower(strings.TrimSpace(name))
		if lowered == "" {
			continue
		}
		m.formulary = append(m.formulary, entry{
			canonical: strings.TrimSpace(name),
			lowered:   lowered,
			codes:     metaphoneCodes(strings.Fields(lowered)),
		})
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match resolves heard to the most similar formulary drug name.
//
// Return values: the canonical drug name, the Jaro-Winkler confidence in
// [0, 1], and whether a sufficiently similar drug was found. When matched is
// false, corrected equals heard unchanged and confidence is 0.
func (m *Matcher) Match(heard string) (corrected string, confidence float64, matched bool) {
	lowered := strings.ToLower(strings.TrimSpace(heard))
	if lowered == "" || len(m.formulary) == 0 {
		return heard, 0, false
	}

	heardTokens := strings.Fields(lowered)
	heardCodes := metaphoneCodes(heardTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for _, e := range m.formulary {
		phonetic := codesOverlap(heardCodes, e.codes)
		score := similarity(lowered, heardTokens, e.lowered)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = e.canonical, score, true
			}
		case !phonetic && !bestPhonetic:
			if score >= m.fuzzyThreshold && score > bestScore {
				best, bestScore = e.canonical, score
			}
		}
	}

	if best == "" {
		return heard, 0, false
	}
	return best, bestScore, true
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
// Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score between the heard text and the
// formulary name, comparing the full strings and the space-stripped
// concatenations. The concatenated pass handles drug names that STT splits
// into syllable fragments.
func similarity(heardFull string, heardTokens []string, drug string) float64 {
	score := matchr.JaroWinkler(heardFull, drug, false)

	if len(heardTokens) > 1 {
		concat := strings.Join(heardTokens, "")
		if s := matchr.JaroWinkler(concat, drug, false); s > score {
			score = s
		}
	}

	return score
}
