package attribution_test

import (
	"testing"

	"github.com/arogyalabs/medscribe/internal/attribution"
)

func TestNewContext_Defaults(t *testing.T) {
	t.Parallel()

	ctx := attribution.NewContext()
	if ctx.LastSpeaker != attribution.RoleDoctor {
		t.Errorf("LastSpeaker = %q, want %q (doctor opens the consultation)", ctx.LastSpeaker, attribution.RoleDoctor)
	}
	if !ctx.FirstInteraction {
		t.Error("FirstInteraction = false, want true")
	}
	if ctx.TurnCount != 0 {
		t.Errorf("TurnCount = %d, want 0", ctx.TurnCount)
	}
	if ctx.DoctorAskedQuestion || ctx.PatientDescribingSymptoms || ctx.Prescribing {
		t.Error("flags should start false")
	}
	if len(ctx.History) != 0 {
		t.Errorf("History has %d entries, want 0", len(ctx.History))
	}
}

func TestContext_Observe(t *testing.T) {
	t.Parallel()

	ctx := attribution.NewContext()

	ctx.Observe(attribution.RoleDoctor, "Any fever or cough?")
	if ctx.TurnCount != 1 {
		t.Errorf("TurnCount = %d, want 1", ctx.TurnCount)
	}
	if ctx.FirstInteraction {
		t.Error("FirstInteraction should clear after the first observed turn")
	}
	if !ctx.DoctorAskedQuestion {
		t.Error("DoctorAskedQuestion = false, want true after a doctor turn with '?'")
	}
	if ctx.PatientDescribingSymptoms {
		t.Error("PatientDescribingSymptoms = true, want false for a doctor turn")
	}

	ctx.Observe(attribution.RolePatient, "I've had a headache since morning.")
	if ctx.TurnCount != 2 {
		t.Errorf("TurnCount = %d, want 2", ctx.TurnCount)
	}
	if ctx.LastSpeaker != attribution.RolePatient {
		t.Errorf("LastSpeaker = %q, want %q", ctx.LastSpeaker, attribution.RolePatient)
	}
	if ctx.DoctorAskedQuestion {
		t.Error("DoctorAskedQuestion should clear after a patient turn")
	}
	if !ctx.PatientDescribingSymptoms {
		t.Error("PatientDescribingSymptoms = false, want true after a symptom turn")
	}

	ctx.Observe(attribution.RoleDoctor, "Take one tablet of paracetamol twice daily.")
	if !ctx.Prescribing {
		t.Error("Prescribing = false, want true after a medication turn by the doctor")
	}

	if len(ctx.History) != 3 {
		t.Fatalf("History has %d entries, want 3", len(ctx.History))
	}
	if ctx.History[1].Speaker != attribution.RolePatient {
		t.Errorf("History[1].Speaker = %q, want %q", ctx.History[1].Speaker, attribution.RolePatient)
	}
}

func TestContext_PrescribingHoldsAcrossPatientTurns(t *testing.T) {
	t.Parallel()

	ctx := attribution.NewContext()

	ctx.Observe(attribution.RoleDoctor, "Take one tablet of paracetamol twice daily.")
	if !ctx.Prescribing {
		t.Fatal("Prescribing = false, want true after a medication turn by the doctor")
	}

	// The flag describes the most recent doctor turn, so the patient's
	// response to the prescription is still read in a prescribing context.
	ctx.Observe(attribution.RolePatient, "Should I have it with water?")
	if !ctx.Prescribing {
		t.Error("Prescribing cleared by a patient turn; it should hold until the doctor speaks again")
	}

	ctx.Observe(attribution.RoleDoctor, "See me again on Monday.")
	if ctx.Prescribing {
		t.Error("Prescribing = true, want false after a doctor turn without medication vocabulary")
	}
}

func TestContext_TalliesMonotonic(t *testing.T) {
	t.Parallel()

	ctx := attribution.NewContext()
	turns := []struct {
		role attribution.Role
		text string
	}{
		{attribution.RoleDoctor, "What brings you in today?"},
		{attribution.RolePatient, "I have a cough and my chest hurts."},
		{attribution.RoleDoctor, "Sounds like a mild infection, we will run a blood test."},
	}

	var lastMedical, lastFirstPerson float64
	var lastQuestions int
	for _, turn := range turns {
		ctx.Observe(turn.role, turn.text)
		if ctx.MedicalTermTally < lastMedical {
			t.Errorf("MedicalTermTally decreased: %v -> %v", lastMedical, ctx.MedicalTermTally)
		}
		if ctx.QuestionTally < lastQuestions {
			t.Errorf("QuestionTally decreased: %d -> %d", lastQuestions, ctx.QuestionTally)
		}
		if ctx.FirstPersonTally < lastFirstPerson {
			t.Errorf("FirstPersonTally decreased: %v -> %v", lastFirstPerson, ctx.FirstPersonTally)
		}
		lastMedical, lastQuestions, lastFirstPerson = ctx.MedicalTermTally, ctx.QuestionTally, ctx.FirstPersonTally
	}

	if ctx.QuestionTally != 1 {
		t.Errorf("QuestionTally = %d, want 1", ctx.QuestionTally)
	}
}

func TestRole_IsFinal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role attribution.Role
		want bool
	}{
		{attribution.RoleDoctor, true},
		{attribution.RolePatient, true},
		{attribution.RoleIdentifying, false},
		{attribution.Role(""), false},
		{attribution.Role("Speaker 1"), false},
	}
	for _, tt := range tests {
		if got := tt.role.IsFinal(); got != tt.want {
			t.Errorf("Role(%q).IsFinal() = %v, want %v", tt.role, got, tt.want)
		}
	}
}
