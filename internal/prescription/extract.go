// Package prescription turns an attributed consultation into a structured
// prescription draft: the patient's name, the complaints they described, and
// the medications with dosage the doctor prescribed.
//
// Extraction is deliberately conservative. Medication names pass through a
// [pharma.Matcher] so transcription errors ("para cetamol", "ibuprofin") are
// corrected against the formulary before they reach the rendered draft, and
// anything the matcher cannot place in the formulary is kept verbatim but
// flagged as uncorrected.
package prescription

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arogyalabs/medscribe/internal/attribution"
	"github.com/arogyalabs/medscribe/internal/pharma"
)

// Medication is a single prescribed drug with whatever dosage detail the
// doctor dictated alongside it.
type Medication struct {
	// Name is the drug name, corrected against the formulary when possible.
	Name string
	// Dosage is the strength, e.g. "500mg". Empty when not dictated.
	Dosage string
	// Frequency is how often to take it, e.g. "twice a day".
	Frequency string
	// Duration is how long, e.g. "for 5 days".
	Duration string
	// Corrected reports whether Name was rewritten by the formulary matcher.
	Corrected bool
	// Confidence is the matcher's confidence in the correction, 1.0 for
	// exact formulary hits and 0 when no correction was applied.
	Confidence float64
}

// Prescription is the structured output extracted from one consultation.
type Prescription struct {
	PatientName string
	Symptoms    []string
	Medications []Medication
	Advice      []string
}

// Empty reports whether extraction found nothing worth rendering.
func (p Prescription) Empty() bool {
	return p.PatientName == "" && len(p.Symptoms) == 0 &&
		len(p.Medications) == 0 && len(p.Advice) == 0
}

var (
	// medicationLine captures "take/prescribe <name> <dose>" style dictation.
	// The name group is one or two words so combination drugs ("co amoxiclav")
	// survive, and the dose unit anchors the match.
	medicationLine = regexp.MustCompile(`(?i)\b([a-z]+(?:[ -][a-z]+)?)\s+(\d+(?:\.\d+)?\s?(?:mg|ml|mcg|g|iu))\b`)

	frequencyPhrase = regexp.MustCompile(`(?i)\b(once|twice|thrice|three times|four times)\s+(?:a\s+day|daily|a\s+week)\b`)
	durationPhrase  = regexp.MustCompile(`(?i)\bfor\s+(?:a\s+)?(\d+\s+(?:days?|weeks?|months?)|week|month)\b`)

	// advicePhrase catches non-drug instructions doctors commonly dictate.
	advicePhrase = regexp.MustCompile(`(?i)\b((?:take\s+(?:complete\s+)?rest|drink\s+(?:plenty\s+of\s+|warm\s+)?(?:water|fluids)|avoid\s+[a-z ]+?|steam\s+inhalation|light\s+(?:food|diet)|come\s+back\s+(?:after|in)\s+[a-z0-9 ]+?|review\s+after\s+[a-z0-9 ]+?|gargle\s+with\s+[a-z ]+?))(?:[.,;]|\s+and\s+|$)`)

	// doseVerbs are words that commonly precede a drug name and must not be
	// mistaken for the name itself.
	doseVerbs = map[string]struct{}{
		"take": {}, "taking": {}, "tablet": {}, "tablets": {}, "capsule": {},
		"give": {}, "giving": {}, "start": {}, "starting": {}, "prescribe": {},
		"prescribing": {}, "syrup": {}, "dose": {}, "of": {}, "one": {},
		"two": {}, "the": {}, "some": {}, "you": {},
	}
)

// Extractor builds prescription drafts from attributed turns.
type Extractor struct {
	matcher *pharma.Matcher
}

// NewExtractor returns an extractor that corrects drug names with matcher.
// A nil matcher disables correction; dictated names pass through verbatim.
func NewExtractor(matcher *pharma.Matcher) *Extractor {
	return &Extractor{matcher: matcher}
}

// Extract walks the attributed turns and assembles a prescription draft.
// Symptoms come from patient turns, medications and advice from doctor
// turns, and the patient name from the opening greeting when present.
func (e *Extractor) Extract(turns []attribution.Turn) Prescription {
	var p Prescription

	var opening []string
	for i, t := range turns {
		if i < 3 {
			opening = append(opening, t.Text)
		}
		switch t.Speaker {
		case attribution.RolePatient:
			p.Symptoms = appendUnique(p.Symptoms, attribution.SymptomMentions(t.Text)...)
		case attribution.RoleDoctor:
			p.Medications = append(p.Medications, e.medications(t.Text)...)
			p.Advice = appendUnique(p.Advice, advice(t.Text)...)
		}
	}

	if g, ok := attribution.ExtractPatientName(opening); ok {
		p.PatientName = g.Name
	}

	return p
}

func (e *Extractor) medications(text string) []Medication {
	var meds []Medication
	for _, m := range medicationLine.FindAllStringSubmatch(text, -1) {
		name, dose := cleanName(m[1]), strings.ReplaceAll(m[2], " ", "")
		if name == "" {
			continue
		}

		med := Medication{Name: name, Dosage: strings.ToLower(dose)}
		if e.matcher != nil {
			corrected, confidence, matched := e.matcher.Match(name)
			if matched {
				med.Name = corrected
				med.Corrected = !strings.EqualFold(corrected, name)
				med.Confidence = confidence
			}
		}

		if f := frequencyPhrase.FindString(text); f != "" {
			med.Frequency = strings.ToLower(f)
		}
		if d := durationPhrase.FindString(text); d != "" {
			med.Duration = strings.ToLower(d)
		}
		meds = append(meds, med)
	}
	return meds
}

// cleanName strips leading dose verbs left in the captured name, e.g.
// "take paracetamol" -> "paracetamol".
func cleanName(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for len(words) > 0 {
		if _, ok := doseVerbs[words[0]]; !ok {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func advice(text string) []string {
	var out []string
	for _, m := range advicePhrase.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(strings.ToLower(m[1])))
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, have := range dst {
			if have == it {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, it)
		}
	}
	return dst
}

// Render formats the prescription as a plain-text draft suitable for the
// doctor to review and sign off.
func (p Prescription) Render() string {
	var b strings.Builder

	b.WriteString("PRESCRIPTION DRAFT\n")
	if p.PatientName != "" {
		fmt.Fprintf(&b, "Patient: %s\n", p.PatientName)
	}

	if len(p.Symptoms) > 0 {
		b.WriteString("\nComplaints:\n")
		for _, s := range p.Symptoms {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}

	if len(p.Medications) > 0 {
		b.WriteString("\nMedications:\n")
		for i, m := range p.Medications {
			fmt.Fprintf(&b, "  %d. %s", i+1, m.Name)
			if m.Dosage != "" {
				fmt.Fprintf(&b, " %s", m.Dosage)
			}
			if m.Frequency != "" {
				fmt.Fprintf(&b, ", %s", m.Frequency)
			}
			if m.Duration != "" {
				fmt.Fprintf(&b, ", %s", m.Duration)
			}
			if m.Corrected {
				b.WriteString(" (name corrected)")
			}
			b.WriteString("\n")
		}
	}

	if len(p.Advice) > 0 {
		b.WriteString("\nAdvice:\n")
		for _, a := range p.Advice {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}

	return b.String()
}
