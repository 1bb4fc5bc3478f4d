package attribution

import (
	"regexp"
	"strings"
)

// PatientGreeting is the result of scanning a consultation's opening turns
// for a greeted patient name. Time is the time-of-day word from the greeting
// ("morning", "afternoon", "evening") when one was used, otherwise empty.
type PatientGreeting struct {
	Name string
	Time string
}

// openingTurnWindow is how many leading turns are scanned for a greeting.
const openingTurnWindow = 3

// greetingNamePatterns capture a proper name greeted or introduced in the
// opening exchange. Group 1 is the optional time-of-day word, the last group
// the name. Matched case-sensitively: names keep their capitalisation.
var greetingNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:[Gg]ood (morning|afternoon|evening)|\b[Hh]ello|\b[Hh]i\b|\b[Nn]amaste),?\s+(?:Mr\.?|Mrs\.?|Ms\.?|Miss)?\s*([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`),
	regexp.MustCompile(`(?:[Mm]y name is|[Tt]his is|[Ii] am|[Ii]'m)\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`),
}

// notNames are capitalised words that follow a greeting without being a
// name. "Good morning, Doctor" greets the clinician, not a patient.
var notNames = map[string]struct{}{
	"Doctor": {}, "Doc": {}, "Sir": {}, "Madam": {}, "Nurse": {},
	"How": {}, "What": {}, "Please": {}, "Welcome": {}, "There": {},
}

// ExtractPatientName scans the first turns of a session for a greeted or
// self-introduced patient name. It reports ok=false when no name is found.
// This is a convention-based helper, independent of speaker scoring.
func ExtractPatientName(turns []string) (PatientGreeting, bool) {
	limit := len(turns)
	if limit > openingTurnWindow {
		limit = openingTurnWindow
	}

	for _, text := range turns[:limit] {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		for _, re := range greetingNamePatterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}

			name := m[len(m)-1]
			if first, _, _ := strings.Cut(name, " "); isExcludedName(first) {
				continue
			}

			g := PatientGreeting{Name: name}
			if len(m) > 2 {
				g.Time = strings.ToLower(m[1])
			}
			return g, true
		}
	}

	return PatientGreeting{}, false
}

func isExcludedName(word string) bool {
	_, ok := notNames[word]
	return ok
}
