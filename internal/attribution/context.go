package attribution

// Role identifies who spoke an utterance.
type Role string

const (
	// RoleDoctor marks clinician speech.
	RoleDoctor Role = "Doctor"

	// RolePatient marks patient speech.
	RolePatient Role = "Patient"

	// RoleIdentifying is the transient "still determining" state. It is a
	// valid context seed but never a final label for a real turn.
	RoleIdentifying Role = "Identifying"
)

// IsFinal reports whether r is a label the classifier may emit for a turn.
func (r Role) IsFinal() bool {
	return r == RoleDoctor || r == RolePatient
}

// HistoryEntry is one classified turn in the interaction log.
type HistoryEntry struct {
	Speaker Role
	Text    string
}

// Context is the conversational state threaded across one transcript's
// sequential classification. A Context belongs to exactly one classification
// session: allocate a fresh one per transcript and never share an instance
// across concurrent sessions.
type Context struct {
	// LastSpeaker is the role of the most recently classified turn. Seeded
	// with RoleDoctor — the doctor opens the consultation.
	LastSpeaker Role

	// FirstInteraction is true only before the first turn is classified.
	FirstInteraction bool

	// TurnCount is the number of turns classified so far. Drives the weak
	// alternating turn-parity prior.
	TurnCount int

	// DoctorAskedQuestion is true when the previous turn was spoken by the
	// doctor and contained a question mark.
	DoctorAskedQuestion bool

	// PatientDescribingSymptoms is true when the previous turn was spoken by
	// the patient and matched symptom vocabulary.
	PatientDescribingSymptoms bool

	// Prescribing is true when the most recent doctor turn matched
	// medication or treatment vocabulary.
	Prescribing bool

	// History is the append-only log of classified turns, in order.
	History []HistoryEntry

	// Running tallies accumulated per turn. Available to richer heuristics;
	// monotonically non-decreasing.
	MedicalTermTally float64
	QuestionTally    int
	FirstPersonTally float64
	LastComplexity   float64
}

// NewContext returns a Context seeded for the start of a consultation.
func NewContext() *Context {
	return &Context{
		LastSpeaker:      RoleDoctor,
		FirstInteraction: true,
	}
}

// Observe records a classified turn: appends it to the history, advances the
// turn count, and recomputes the look-ahead flags used to bias the next
// decision. The orchestrator calls Observe exactly once per turn, after the
// classification decision; the classifier itself never mutates context.
func (c *Context) Observe(speaker Role, text string) {
	f := ExtractFeatures(text)

	c.History = append(c.History, HistoryEntry{Speaker: speaker, Text: text})
	c.LastSpeaker = speaker
	c.FirstInteraction = false
	c.TurnCount++

	c.DoctorAskedQuestion = speaker == RoleDoctor && containsQuestion(text)
	c.PatientDescribingSymptoms = speaker == RolePatient && MatchesSymptomVocabulary(text)
	if speaker == RoleDoctor {
		c.Prescribing = MatchesMedicationVocabulary(text)
	}

	c.MedicalTermTally += f.MedicalTermsUsage
	if containsQuestion(text) {
		c.QuestionTally++
	}
	c.FirstPersonTally += f.FirstPersonUsage
	c.LastComplexity = f.SentenceComplexity
}

func containsQuestion(text string) bool {
	for _, r := range text {
		if r == '?' {
			return true
		}
	}
	return false
}
