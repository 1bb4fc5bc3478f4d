package attribution

import "regexp"

// patternGroup is an ordered list of independent patterns. A group matches
// when at least one of its patterns matches the lower-cased, trimmed text.
type patternGroup []*regexp.Regexp

// matches reports whether any pattern in the group matches text.
// text must already be lower-cased and trimmed by the caller.
func (g patternGroup) matches(text string) bool {
	for _, re := range g {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// countMatches returns the total number of occurrences across all patterns
// in the group. Used by the feature extractor for vocabulary densities.
func (g patternGroup) countMatches(text string) int {
	n := 0
	for _, re := range g {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

func compileGroup(exprs ...string) patternGroup {
	g := make(patternGroup, 0, len(exprs))
	for _, e := range exprs {
		g = append(g, regexp.MustCompile(e))
	}
	return g
}

// ─────────────────────────────────────────────────────────────────────────────
// Doctor-leaning utterance groups
// ─────────────────────────────────────────────────────────────────────────────

// doctorQuestions matches history-taking and examination questions.
var doctorQuestions = compileGroup(
	`^(what|how|when|where|why|since when)\b.*\?`,
	`^(do|does|did|have|has|are|is|can|could|would|will) you\b`,
	`^(any|tell me about|describe)\b`,
	`^(is there|are there)\b`,
)

// doctorExplanations matches diagnostic explanation openers.
var doctorExplanations = compileGroup(
	`^(this is|that is|it seems|it looks like|it appears)\b`,
	`^(you have|you are having|you seem to have)\b`,
	`^(the reason|this happens|this is caused)\b`,
	`\b(because of|due to|caused by)\b`,
)

// doctorDirectives matches care-instruction verbs in command position.
var doctorDirectives = compileGroup(
	`^(take|use|apply|avoid|rest|drink|gargle|continue|stop|reduce|increase|follow|come back|get|do)\b`,
	`^(make sure|remember to|try to|try)\b`,
	`\b(you (should|need to|must|have to))\b`,
	`\b(we (need to|should|will))\b`,
)

// doctorPrescriptions matches medication and dosage vocabulary. Unanchored:
// dosage units appear anywhere in a prescribing sentence.
var doctorPrescriptions = compileGroup(
	`\b(tablet|tablets|capsule|capsules|syrup|injection|ointment|drops|inhaler)\b`,
	`\b(\d+\s*(mg|ml|mcg|g|units))\b`,
	`\b(dose|dosage|course|prescription|prescribe|prescribing)\b`,
	`\b(once|twice|thrice|three times)\s+(a\s+day|daily)\b`,
	`\b(before|after)\s+(food|meals|breakfast|dinner)\b`,
	`\b(antibiotic|antibiotics|paracetamol|ibuprofen|antacid|antihistamine)\b`,
)

// doctorMedicalTerms matches basic clinical vocabulary a clinician uses when
// explaining findings. Distinct from the patient symptom vocabulary below and
// from the advanced jargon group used by the feature extractor.
var doctorMedicalTerms = compileGroup(
	`\b(infection|inflammation|viral|bacterial|allergy|allergic)\b`,
	`\b(blood pressure|blood test|x-ray|scan|report|temperature|pulse)\b`,
	`\b(diagnosis|symptom|symptoms|condition|treatment|therapy|recovery)\b`,
	`\b(prescription|medication|medicine|medicines|drug|dosage)\b`,
	`\b(examine|examination|checkup|follow-up|referral|specialist)\b`,
)

// technicalJargon matches advanced clinical terminology that strongly
// indicates the doctor is speaking. Kept separate from doctorMedicalTerms so
// the two densities can be weighted independently.
var technicalJargon = compileGroup(
	`\b(differential diagnosis|pathophysiology|comorbidity|comorbidities)\b`,
	`\b(etiology|aetiology|prognosis|contraindicated|contraindication)\b`,
	`\b(hypertension|hypotension|tachycardia|bradycardia|arrhythmia)\b`,
	`\b(bronchitis|pharyngitis|sinusitis|gastritis|dermatitis|rhinitis)\b`,
	`\b(analgesic|antipyretic|anti-inflammatory|antiemetic)\b`,
	`\b(systolic|diastolic|bilateral|chronic|acute|lesion)\b`,
)

// ─────────────────────────────────────────────────────────────────────────────
// Patient-leaning utterance groups
// ─────────────────────────────────────────────────────────────────────────────

// patientSymptoms matches symptom, pain, and discomfort vocabulary.
// Unanchored word matches: symptoms are named anywhere in a complaint.
var patientSymptoms = compileGroup(
	`\b(pain|ache|aches|aching|headache|headaches|stomachache|backache)\b`,
	`\b(fever|cough|coughing|cold|sneezing|sore throat|sore|runny nose)\b`,
	`\b(hurt|hurts|hurting|burning|itching|itchy|swelling|swollen)\b`,
	`\b(dizzy|dizziness|nausea|nauseous|vomiting|vomit|tired|tiredness|weak|weakness|fatigue)\b`,
	`\b(rash|breathless|breathing problem|chest tightness|cramps|loose motion|diarrhea|constipation)\b`,
	`\b(can'?t sleep|not able to sleep|no appetite|lost my appetite)\b`,
)

// patientResponses matches the short answers patients give to history-taking
// questions.
var patientResponses = compileGroup(
	`^(yes|no|yeah|yep|nope|okay|ok|alright|fine|sure|hmm)\b`,
	`^(not really|sometimes|a little|a bit|mostly|usually|rarely|never|always)\b`,
	`^(i think so|i don'?t think so|maybe|i guess)\b`,
	`^(since|from|for|about|around|nearly)\s+(yesterday|today|last|this|two|three|four|five|a|\d+)\b`,
)

// patientQuestions matches the anxious questions patients ask back.
var patientQuestions = compileGroup(
	`^(will i|should i|can i|do i (need|have) to)\b`,
	`^(is (it|this) (serious|dangerous|normal|contagious))\b`,
	`^(how long (will|does|should))\b`,
	`^(what (should|can) i)\b`,
)

// patientHistory matches personal and family medical-history phrasing.
var patientHistory = compileGroup(
	`\b(last (year|month|week|time)|since childhood|when i was)\b`,
	`\b(my (father|mother|brother|sister|family|wife|husband|son|daughter))\b`,
	`\b(runs in (the|my|our) family|family history)\b`,
	`\b(i (had|used to have|was diagnosed))\b`,
	`\b(earlier|previously|before this|in the past)\b`,
)

// firstPersonNarration matches first-person symptom narration. Used alongside
// token counting in the feature extractor.
var firstPersonNarration = compileGroup(
	`^i\s`,
	`\b(i'?m|i'?ve|i'?ll|i'?d)\b`,
	`\bmy\b`,
)

// ─────────────────────────────────────────────────────────────────────────────
// Hard overrides — high-precision openers that decide the speaker without
// scoring. Checked doctor-first; see Classify for the precedence contract.
// ─────────────────────────────────────────────────────────────────────────────

// doctorOverrides are prescribing, evidentiary, dosing, and obligation openers.
var doctorOverrides = compileGroup(
	`^(i would like to|i'?ll prescribe|i will prescribe|i am prescribing|i'?m prescribing)\b`,
	`^(let me|i recommend|i suggest|i advise)\b`,
	`^(based on|according to|looking at (your|the|these))\b`,
	`^(take|use) (this|these|the|one|two|three|four|half)\b`,
	`^(we need to|you should|you need to|you must|you have to)\b`,
)

// patientOverrides are first-person symptom openers, possessive-symptom
// openers, and short replies addressed to the doctor.
var patientOverrides = compileGroup(
	`^(i'?m|i am)\s+(not\s+)?feeling\b`,
	`^(i'?ve|i have)\s+been\b`,
	`^(my|the)\s+(pain|headache|stomach|throat|chest|back|head|problem|issue|fever|cough)\b`,
	`^(yes|no),?\s+doctor\b`,
	`^(yes|no),?\s+i\s+(have|had|am|do|don'?t|can'?t|haven'?t)\b`,
)

// greetingOpeners match consultation-opening greetings. On the very first
// interaction a greeting is attributed to the doctor unconditionally.
var greetingOpeners = compileGroup(
	`^(hello|hi|hey|namaste|namaskar|welcome)\b`,
	`^good (morning|afternoon|evening)\b`,
	`^(please )?(come in|have a seat|sit down)\b`,
)

// ─────────────────────────────────────────────────────────────────────────────
// Exported vocabulary predicates used by the orchestrator and by downstream
// prescription extraction.
// ─────────────────────────────────────────────────────────────────────────────

// MatchesSymptomVocabulary reports whether text names a symptom, pain, or
// discomfort.
func MatchesSymptomVocabulary(text string) bool {
	return patientSymptoms.matches(normalize(text))
}

// MatchesMedicationVocabulary reports whether text contains medication,
// dosage, or treatment vocabulary.
func MatchesMedicationVocabulary(text string) bool {
	return doctorPrescriptions.matches(normalize(text))
}

// SymptomMentions returns the distinct symptom terms mentioned in text, in
// order of first appearance. Used by prescription generation to collect the
// complaint list from patient turns.
func SymptomMentions(text string) []string {
	lower := normalize(text)
	if lower == "" {
		return nil
	}

	var mentions []string
	seen := make(map[string]struct{})
	for _, re := range patientSymptoms {
		for _, m := range re.FindAllString(lower, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			mentions = append(mentions, m)
		}
	}
	return mentions
}
