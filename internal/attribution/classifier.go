package attribution

// Feature weights for the scoring stage. Positive weights pull toward
// the doctor, negative toward the patient. Symptom self-report and
// first-person narration are the strongest patient signals; jargon and
// clinical vocabulary the strongest doctor signals.
const (
	weightMedicalTerms = 1.5
	weightComplexity   = 0.8
	weightQuestions    = 0.6
	weightFirstPerson  = -1.8
	weightDirectives   = 1.2
	weightSymptoms     = -2.0
	weightJargon       = 2.0
)

// Context-adjustment constants. Turn-taking alternates: after a doctor turn
// the patient is more likely to speak next, and strongly so after a question;
// symmetrically for the patient mid-symptom-description.
const (
	alternationBias = 2.0
	followUpBias    = 4.0
	turnParityNudge = 1.0
)

// Classify decides the speaker of one utterance given the running
// conversation context. It never mutates ctx — context updates belong to the
// orchestrator via [Context.Observe].
//
// The decision applies, in strict precedence order: the empty-text guard,
// the first-interaction greeting override, doctor hard overrides, patient
// hard overrides, and finally feature-weighted scoring with context
// adjustment. Doctor overrides are deliberately checked before patient
// overrides; when an utterance matches both, the doctor wins.
func Classify(text string, ctx *Context) Role {
	lower := normalize(text)

	// Empty or whitespace-only input: fall back to the last known speaker.
	if lower == "" {
		if ctx != nil && ctx.LastSpeaker.IsFinal() {
			return ctx.LastSpeaker
		}
		return RoleDoctor
	}

	if ctx == nil {
		ctx = &Context{}
	}

	// The consultation opens with the doctor greeting the patient.
	if ctx.FirstInteraction && greetingOpeners.matches(lower) {
		return RoleDoctor
	}

	if doctorOverrides.matches(lower) {
		return RoleDoctor
	}
	if patientOverrides.matches(lower) {
		return RolePatient
	}

	score := scoreUtterance(text, ctx)
	return roleForScore(score)
}

// scoreUtterance computes the signed speaker score for an utterance:
// positive leans doctor, negative leans patient.
func scoreUtterance(text string, ctx *Context) float64 {
	f := ExtractFeatures(text)

	score := f.MedicalTermsUsage*weightMedicalTerms +
		f.SentenceComplexity*weightComplexity +
		f.QuestionDensity*weightQuestions +
		f.FirstPersonUsage*weightFirstPerson +
		f.DirectiveLanguage*weightDirectives +
		f.SymptomDescription*weightSymptoms +
		f.TechnicalJargon*weightJargon

	return score + contextAdjustment(ctx)
}

// contextAdjustment biases the score from the running conversation state.
func contextAdjustment(ctx *Context) float64 {
	adj := 0.0

	switch ctx.LastSpeaker {
	case RoleDoctor:
		adj -= alternationBias
		if ctx.DoctorAskedQuestion {
			adj -= followUpBias
		}
	case RolePatient:
		adj += alternationBias
		if ctx.PatientDescribingSymptoms {
			adj += followUpBias
		}
	}

	if ctx.TurnCount%2 == 0 {
		adj += turnParityNudge
	} else {
		adj -= turnParityNudge
	}

	return adj
}

// roleForScore maps a final score to a speaker. The comparison is strictly
// greater-than: a zero score classifies as patient.
func roleForScore(score float64) Role {
	if score > 0 {
		return RoleDoctor
	}
	return RolePatient
}
