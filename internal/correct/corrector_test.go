package correct_test

import (
	"context"
	"errors"
	"testing"

	"github.com/arogyalabs/medscribe/internal/attribution"
	"github.com/arogyalabs/medscribe/internal/correct"
	"github.com/arogyalabs/medscribe/pkg/provider/llm"
	"github.com/arogyalabs/medscribe/pkg/provider/llm/mock"
)

var sampleTurns = []attribution.Turn{
	{Text: "How are you feeling today?"},
	{Text: "I've been having headaches."},
}

func TestCorrector_TrustedLabels(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[
				{"speaker": "Doctor", "text": "How are you feeling today?"},
				{"speaker": "Patient", "text": "I've been having headaches."}
			]`,
		},
	}
	c := correct.New(p)

	got, err := c.Attribute(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].Speaker != attribution.RoleDoctor {
		t.Errorf("turn 1 speaker = %q, want %q", got[0].Speaker, attribution.RoleDoctor)
	}
	if got[1].Speaker != attribution.RolePatient {
		t.Errorf("turn 2 speaker = %q, want %q", got[1].Speaker, attribution.RolePatient)
	}
	// Text must come back unchanged from the input, not from the model.
	for i, turn := range got {
		if turn.Text != sampleTurns[i].Text {
			t.Errorf("turn %d text = %q, want %q", i, turn.Text, sampleTurns[i].Text)
		}
	}
}

func TestCorrector_MarkdownFences(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n[{\"speaker\": \"Doctor\", \"text\": \"How are you feeling today?\"}, {\"speaker\": \"Patient\", \"text\": \"I've been having headaches.\"}]\n```",
		},
	}
	c := correct.New(p)

	got, err := c.Attribute(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if got == nil {
		t.Fatal("Attribute returned nil turns for fenced JSON, want parsed labels")
	}
}

func TestCorrector_InvalidLabelFallsThrough(t *testing.T) {
	t.Parallel()

	// A generic diarizer index must not be propagated as a verified role.
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[
				{"speaker": "Speaker 1", "text": "How are you feeling today?"},
				{"speaker": "Patient", "text": "I've been having headaches."}
			]`,
		},
	}
	c := correct.New(p)

	got, err := c.Attribute(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if got[0].Speaker != "" {
		t.Errorf("turn 1 speaker = %q, want empty (heuristic fallback)", got[0].Speaker)
	}
	if got[1].Speaker != attribution.RolePatient {
		t.Errorf("turn 2 speaker = %q, want %q", got[1].Speaker, attribution.RolePatient)
	}
}

func TestCorrector_UnparseableDegradesGracefully(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Sorry, I cannot help with that."},
	}
	c := correct.New(p)

	got, err := c.Attribute(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("Attribute: unparseable response should not error, got %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil (heuristic-only fallback)", got)
	}
}

func TestCorrector_TurnCountMismatchDegrades(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[{"speaker": "Doctor", "text": "merged everything"}]`,
		},
	}
	c := correct.New(p)

	got, err := c.Attribute(context.Background(), sampleTurns)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if got != nil {
		t.Error("a response that merges turns must be discarded")
	}
}

func TestCorrector_ProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection refused")
	p := &mock.Provider{CompleteErr: wantErr}
	c := correct.New(p)

	_, err := c.Attribute(context.Background(), sampleTurns)
	if !errors.Is(err, wantErr) {
		t.Errorf("Attribute error = %v, want wrapped %v", err, wantErr)
	}
}

func TestCorrector_EmptyInput(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	c := correct.New(p)

	got, err := c.Attribute(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("Attribute(nil) = (%v, %v), want (nil, nil)", got, err)
	}
	if len(p.CompleteCalls) != 0 {
		t.Error("empty input must not call the LLM")
	}
}

func TestValidateLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label  string
		want   attribution.Role
		wantOK bool
	}{
		{"Doctor", attribution.RoleDoctor, true},
		{"patient", attribution.RolePatient, true},
		{"[Doctor]", attribution.RoleDoctor, true},
		{"PATIENT:", attribution.RolePatient, true},
		{" doctor ", attribution.RoleDoctor, true},
		{"Identifying", "", false},
		{"Speaker 1", "", false},
		{"Nurse", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		role, ok := correct.ValidateLabel(tt.label)
		if ok != tt.wantOK || role != tt.want {
			t.Errorf("ValidateLabel(%q) = (%q, %v), want (%q, %v)", tt.label, role, ok, tt.want, tt.wantOK)
		}
	}
}
