package server

import (
	"time"

	"github.com/arogyalabs/medscribe/internal/attribution"
	"github.com/arogyalabs/medscribe/internal/prescription"
	"github.com/arogyalabs/medscribe/pkg/consultstore"
)

// TurnPayload is the wire form of a consultation turn. Speaker is empty on
// input when the caller wants the server to attribute the turn.
type TurnPayload struct {
	Seq     int     `json:"seq,omitempty"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
}

// AttributeRequest asks the server to assign Doctor/Patient roles.
// Exactly one of Transcript or Turns should be set; when both are present,
// Turns wins.
type AttributeRequest struct {
	// Transcript is a raw transcript, one utterance per line. Lines already
	// tagged "[Doctor]:" or "[Patient]:" keep their label.
	Transcript string `json:"transcript,omitempty"`

	// Turns is the pre-split form of the same input.
	Turns []TurnPayload `json:"turns,omitempty"`

	// RemapSpeakerIndices rewrites "[Speaker 1]"/"[Speaker 2]" diarizer tags
	// to "[Doctor]"/"[Patient]" before classification. Only meaningful with
	// Transcript input.
	RemapSpeakerIndices bool `json:"remap_speaker_indices,omitempty"`

	// LLMReview runs the language-model attribution pass ahead of the
	// heuristic classifier when the server has an LLM provider configured.
	LLMReview bool `json:"llm_review,omitempty"`
}

// AttributeResponse carries the fully labeled transcript.
type AttributeResponse struct {
	Transcript string        `json:"transcript"`
	Turns      []TurnPayload `json:"turns"`

	// Language is the detected consultation language ("en-IN", "hi-IN", "te-IN").
	Language string `json:"language"`

	// Attribution reports which pass decided the labels: "llm" when the
	// language-model review contributed, "heuristic" otherwise.
	Attribution string `json:"attribution"`
}

// CreateSessionRequest opens a new consultation session.
type CreateSessionRequest struct {
	PatientName string `json:"patient_name,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// SessionPayload is the wire form of a consultation header.
type SessionPayload struct {
	ID          string     `json:"id"`
	PatientName string     `json:"patient_name,omitempty"`
	Locale      string     `json:"locale"`
	Summary     string     `json:"summary,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// SessionDetail is a consultation header plus its attributed turns.
type SessionDetail struct {
	SessionPayload
	Turns []TurnPayload `json:"turns"`
}

// AppendTurnsRequest adds utterances to a live session. Unlabeled turns are
// attributed by the server, threading the conversation context from the turns
// already stored.
type AppendTurnsRequest struct {
	Turns []TurnPayload `json:"turns"`
}

// AppendTurnsResponse returns the appended turns with their assigned labels.
type AppendTurnsResponse struct {
	Turns []TurnPayload `json:"turns"`
}

// FinishSessionRequest closes a session. When Summary is empty the server
// derives one from the symptoms mentioned in patient turns.
type FinishSessionRequest struct {
	Summary string `json:"summary,omitempty"`
}

// MedicationPayload is the wire form of a prescribed medication.
type MedicationPayload struct {
	Name       string  `json:"name"`
	Dosage     string  `json:"dosage,omitempty"`
	Frequency  string  `json:"frequency,omitempty"`
	Duration   string  `json:"duration,omitempty"`
	Corrected  bool    `json:"corrected,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// PrescriptionResponse carries the structured prescription draft and its
// plain-text rendering.
type PrescriptionResponse struct {
	PatientName string              `json:"patient_name,omitempty"`
	Symptoms    []string            `json:"symptoms,omitempty"`
	Medications []MedicationPayload `json:"medications,omitempty"`
	Advice      []string            `json:"advice,omitempty"`
	Rendered    string              `json:"rendered"`
}

// SimilarCasePayload pairs a consultation with its semantic distance from the
// query. Lower distance means more similar.
type SimilarCasePayload struct {
	Session  SessionPayload `json:"session"`
	Distance float64        `json:"distance"`
}

// SearchHitPayload pairs a matched turn with its consultation ID.
type SearchHitPayload struct {
	SessionID string      `json:"session_id"`
	Turn      TurnPayload `json:"turn"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
}

// ─── Conversions ─────────────────────────────────────────────────────────────

func sessionPayload(c consultstore.Consultation) SessionPayload {
	p := SessionPayload{
		ID:          c.ID,
		PatientName: c.PatientName,
		Locale:      c.Locale,
		Summary:     c.Summary,
		StartedAt:   c.StartedAt,
	}
	if !c.EndedAt.IsZero() {
		ended := c.EndedAt
		p.EndedAt = &ended
	}
	return p
}

func turnPayload(t consultstore.Turn) TurnPayload {
	return TurnPayload{
		Seq:     t.Seq,
		Speaker: t.Speaker,
		Text:    t.Text,
		Start:   t.Start,
		End:     t.End,
	}
}

// attributionTurns converts wire turns to classifier turns. Labels outside
// the trusted Doctor/Patient set are dropped so the heuristic decides.
func attributionTurns(payload []TurnPayload) []attribution.Turn {
	turns := make([]attribution.Turn, 0, len(payload))
	for _, p := range payload {
		t := attribution.Turn{Text: p.Text, Start: p.Start, End: p.End}
		if role := attribution.Role(p.Speaker); role.IsFinal() {
			t.Speaker = role
		}
		turns = append(turns, t)
	}
	return turns
}

// storedAttributionTurns converts stored turns to classifier turns, keeping
// their persisted labels.
func storedAttributionTurns(stored []consultstore.Turn) []attribution.Turn {
	turns := make([]attribution.Turn, 0, len(stored))
	for _, t := range stored {
		turns = append(turns, attribution.Turn{
			Speaker: attribution.Role(t.Speaker),
			Text:    t.Text,
			Start:   t.Start,
			End:     t.End,
		})
	}
	return turns
}

func medicationPayloads(meds []prescription.Medication) []MedicationPayload {
	out := make([]MedicationPayload, 0, len(meds))
	for _, m := range meds {
		out = append(out, MedicationPayload{
			Name:       m.Name,
			Dosage:     m.Dosage,
			Frequency:  m.Frequency,
			Duration:   m.Duration,
			Corrected:  m.Corrected,
			Confidence: m.Confidence,
		})
	}
	return out
}
