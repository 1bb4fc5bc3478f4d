package attribution

import "strings"

// Features is the per-utterance feature vector consumed by the scoring stage.
// Each signal is non-negative and normalised to an approximate 0–10 scale.
// Features values are ephemeral — computed per utterance and discarded.
type Features struct {
	// MedicalTermsUsage is the weighted count of basic clinical vocabulary.
	MedicalTermsUsage float64

	// SentenceComplexity combines average sentence length, subordinating
	// conjunctions, and discourse connectives. Doctors explain; patients
	// answer.
	SentenceComplexity float64

	// QuestionDensity is the ratio of question marks to sentences, scaled.
	QuestionDensity float64

	// FirstPersonUsage is the ratio of first-person tokens to total words,
	// scaled. High values indicate symptom self-report.
	FirstPersonUsage float64

	// DirectiveLanguage counts instruction verbs and obligation phrases.
	DirectiveLanguage float64

	// SymptomDescription counts symptom/pain/discomfort vocabulary.
	SymptomDescription float64

	// TechnicalJargon counts advanced clinical terminology, scaled.
	TechnicalJargon float64
}

// firstPersonTokens are the pronoun forms counted for FirstPersonUsage.
var firstPersonTokens = map[string]struct{}{
	"i": {}, "i'm": {}, "im": {}, "i've": {}, "ive": {}, "i'll": {},
	"i'd": {}, "my": {}, "me": {}, "mine": {}, "myself": {},
}

// subordinatingConjunctions mark embedded clauses.
var subordinatingConjunctions = map[string]struct{}{
	"because": {}, "since": {}, "although": {}, "though": {}, "while": {},
	"whereas": {}, "unless": {}, "until": {}, "if": {}, "when": {},
}

// discourseConnectives mark multi-step explanatory speech.
var discourseConnectives = map[string]struct{}{
	"however": {}, "therefore": {}, "moreover": {}, "furthermore": {},
	"consequently": {}, "nevertheless": {}, "meanwhile": {}, "otherwise": {},
}

// ExtractFeatures computes the feature vector for a single utterance.
// Empty or whitespace-only text yields the zero value; no sub-computation
// divides by a zero word or sentence count.
func ExtractFeatures(text string) Features {
	lower := normalize(text)
	if lower == "" {
		return Features{}
	}

	words := strings.Fields(lower)
	sentences := splitSentences(lower)

	var f Features

	// Basic clinical vocabulary, doubled per the scoring calibration.
	f.MedicalTermsUsage = capAt(float64(doctorMedicalTerms.countMatches(lower))*2, 10)

	f.SentenceComplexity = sentenceComplexity(words, sentences)

	if n := len(sentences); n > 0 {
		q := strings.Count(text, "?")
		f.QuestionDensity = capAt(float64(q)/float64(n)*10, 10)
	}

	if n := len(words); n > 0 {
		fp := 0
		for _, w := range words {
			if _, ok := firstPersonTokens[strings.Trim(w, ".,!?;:")]; ok {
				fp++
			}
		}
		f.FirstPersonUsage = capAt(float64(fp)/float64(n)*40, 10)
	}

	f.DirectiveLanguage = capAt(float64(doctorDirectives.countMatches(lower)), 10)
	f.SymptomDescription = capAt(float64(patientSymptoms.countMatches(lower)), 10)
	f.TechnicalJargon = capAt(float64(technicalJargon.countMatches(lower))*2.5, 10)

	return f
}

// sentenceComplexity combines capped contributions from average sentence
// length, subordinating conjunctions, and discourse connectives.
func sentenceComplexity(words []string, sentences []string) float64 {
	if len(words) == 0 || len(sentences) == 0 {
		return 0
	}

	avgWords := float64(len(words)) / float64(len(sentences))
	c := capAt(avgWords/4, 4)

	subs, conns := 0, 0
	for _, w := range words {
		t := strings.Trim(w, ".,!?;:")
		if _, ok := subordinatingConjunctions[t]; ok {
			subs++
		}
		if _, ok := discourseConnectives[t]; ok {
			conns++
		}
	}
	c += capAt(float64(subs)*2, 3)
	c += capAt(float64(conns)*2, 3)

	return c
}

// splitSentences breaks text on terminal punctuation runs and drops empty
// fragments, so "ok?" counts as one sentence and "..." counts as none.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalize lower-cases and trims an utterance for pattern matching.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
