package attribution_test

import (
	"testing"

	"github.com/arogyalabs/medscribe/internal/attribution"
)

func TestClassify_FirstTurnGreeting(t *testing.T) {
	t.Parallel()

	ctx := attribution.NewContext()
	got := attribution.Classify("Hello Mr. Sharma, how are you feeling today?", ctx)
	if got != attribution.RoleDoctor {
		t.Errorf("Classify(first-turn greeting) = %q, want %q", got, attribution.RoleDoctor)
	}
}

func TestClassify_GreetingNotFirstTurn(t *testing.T) {
	t.Parallel()

	// Past the first interaction a bare greeting is no longer an automatic
	// doctor override; it falls through to scoring.
	ctx := &attribution.Context{LastSpeaker: attribution.RoleDoctor, TurnCount: 4}
	got := attribution.Classify("Hello doctor.", ctx)
	if got != attribution.RolePatient {
		t.Errorf("Classify(greeting, mid-conversation, after doctor) = %q, want %q", got, attribution.RolePatient)
	}
}

func TestClassify_SymptomOpener(t *testing.T) {
	t.Parallel()

	ctx := &attribution.Context{LastSpeaker: attribution.RoleIdentifying, TurnCount: 2}
	got := attribution.Classify("I've been having a headache and sore throat since yesterday.", ctx)
	if got != attribution.RolePatient {
		t.Errorf("Classify(symptom self-report) = %q, want %q", got, attribution.RolePatient)
	}
}

func TestClassify_PrescriptionDominatesContext(t *testing.T) {
	t.Parallel()

	// A dosing imperative is a hard override: it wins no matter how strongly
	// the context leans toward the patient.
	ctx := &attribution.Context{
		LastSpeaker:         attribution.RoleDoctor,
		DoctorAskedQuestion: true,
		TurnCount:           5,
	}
	got := attribution.Classify("Take two tablets of Paracetamol 500mg twice daily for 5 days.", ctx)
	if got != attribution.RoleDoctor {
		t.Errorf("Classify(dosing imperative, patient-leaning context) = %q, want %q", got, attribution.RoleDoctor)
	}
}

func TestClassify_OverridePrecedence(t *testing.T) {
	t.Parallel()

	// Matches a doctor override opener AND carries strong symptom
	// vocabulary. The override short-circuits scoring.
	ctx := &attribution.Context{LastSpeaker: attribution.RolePatient, TurnCount: 3}
	got := attribution.Classify("Take this tablet and the pain and swelling will reduce.", ctx)
	if got != attribution.RoleDoctor {
		t.Errorf("Classify(doctor override + symptom vocabulary) = %q, want %q", got, attribution.RoleDoctor)
	}
}

func TestClassify_ShortReplyAfterDoctorQuestion(t *testing.T) {
	t.Parallel()

	ctx := &attribution.Context{
		LastSpeaker:         attribution.RoleDoctor,
		DoctorAskedQuestion: true,
	}
	got := attribution.Classify("Yes, since Monday.", ctx)
	if got != attribution.RolePatient {
		t.Errorf("Classify(short reply after doctor question) = %q, want %q", got, attribution.RolePatient)
	}
}

func TestClassify_EmptyTextReturnsLastSpeaker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *attribution.Context
		want attribution.Role
	}{
		{"after patient", &attribution.Context{LastSpeaker: attribution.RolePatient}, attribution.RolePatient},
		{"after doctor", &attribution.Context{LastSpeaker: attribution.RoleDoctor}, attribution.RoleDoctor},
		{"unset context", &attribution.Context{}, attribution.RoleDoctor},
		{"nil context", nil, attribution.RoleDoctor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := attribution.Classify("   ", tt.ctx); got != tt.want {
				t.Errorf("Classify(whitespace) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_DoesNotMutateContext(t *testing.T) {
	t.Parallel()

	ctx := attribution.NewContext()
	before := *ctx
	_ = attribution.Classify("Any fever or cough?", ctx)

	if ctx.TurnCount != before.TurnCount ||
		ctx.LastSpeaker != before.LastSpeaker ||
		ctx.FirstInteraction != before.FirstInteraction ||
		len(ctx.History) != len(before.History) {
		t.Error("Classify mutated the context; mutation belongs to the orchestrator")
	}
}

func TestClassify_EvidentiaryOpener(t *testing.T) {
	t.Parallel()

	ctx := &attribution.Context{LastSpeaker: attribution.RolePatient, TurnCount: 3}
	got := attribution.Classify("Based on your reports, this looks like a viral infection.", ctx)
	if got != attribution.RoleDoctor {
		t.Errorf("Classify(evidentiary opener) = %q, want %q", got, attribution.RoleDoctor)
	}
}

func TestClassify_JargonLeansDoctor(t *testing.T) {
	t.Parallel()

	ctx := &attribution.Context{LastSpeaker: attribution.RolePatient, TurnCount: 1}
	got := attribution.Classify("The differential diagnosis here includes acute pharyngitis, and the prognosis is good.", ctx)
	if got != attribution.RoleDoctor {
		t.Errorf("Classify(clinical jargon) = %q, want %q", got, attribution.RoleDoctor)
	}
}
