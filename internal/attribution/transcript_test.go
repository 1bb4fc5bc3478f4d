package attribution_test

import (
	"strings"
	"testing"

	"github.com/arogyalabs/medscribe/internal/attribution"
)

const consultation = "Hello John, how are you feeling today?\n" +
	"I've been having headaches and a sore throat.\n" +
	"Any fever or cough?\n" +
	"Yes, mild fever since yesterday."

func TestClassifyTranscript_EndToEnd(t *testing.T) {
	t.Parallel()

	got := attribution.ClassifyTranscript(consultation)

	blocks := strings.Split(got, "\n\n")
	if len(blocks) != 4 {
		t.Fatalf("ClassifyTranscript produced %d turns, want 4:\n%s", len(blocks), got)
	}

	wantRoles := []string{"[Doctor]:", "[Patient]:", "[Doctor]:", "[Patient]:"}
	for i, block := range blocks {
		if !strings.HasPrefix(block, wantRoles[i]) {
			t.Errorf("turn %d = %q, want prefix %q", i+1, block, wantRoles[i])
		}
	}
}

func TestClassifyTranscript_Deterministic(t *testing.T) {
	t.Parallel()

	first := attribution.ClassifyTranscript(consultation)
	for i := 0; i < 5; i++ {
		if got := attribution.ClassifyTranscript(consultation); got != first {
			t.Fatalf("run %d differed from first run:\n%s\nvs\n%s", i+2, got, first)
		}
	}
}

func TestClassifyTranscript_Empty(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "\n\n\n"} {
		if got := attribution.ClassifyTranscript(input); got != "" {
			t.Errorf("ClassifyTranscript(%q) = %q, want empty", input, got)
		}
	}
}

func TestClassifyTranscript_PreLabeledPassThrough(t *testing.T) {
	t.Parallel()

	input := "[Doctor]: Hello John, how are you feeling today?\n\n" +
		"[Patient]: My knee has been swollen since the match.\n\n" +
		"[Doctor]: Let me take a look at it."

	if got := attribution.ClassifyTranscript(input); got != input {
		t.Errorf("pre-labeled transcript was altered:\ngot:  %q\nwant: %q", got, input)
	}
}

func TestClassifyTranscript_UntrustedTagsReclassified(t *testing.T) {
	t.Parallel()

	// "[Identifying]" and "[Speaker N]" are not trusted role tags: the tag is
	// stripped and the text classified heuristically.
	input := "[Identifying]: Hello John, how are you feeling today?\n\n" +
		"[Speaker 2]: I've been having headaches and a sore throat."

	got := attribution.ClassifyTranscript(input)
	blocks := strings.Split(got, "\n\n")
	if len(blocks) != 2 {
		t.Fatalf("got %d turns, want 2:\n%s", len(blocks), got)
	}
	if !strings.HasPrefix(blocks[0], "[Doctor]:") {
		t.Errorf("turn 1 = %q, want [Doctor] prefix", blocks[0])
	}
	if !strings.HasPrefix(blocks[1], "[Patient]:") {
		t.Errorf("turn 2 = %q, want [Patient] prefix", blocks[1])
	}
	if strings.Contains(got, "Identifying") {
		t.Errorf("output still contains the placeholder tag:\n%s", got)
	}
}

func TestClassifyTurns_OrderAndLengthPreserved(t *testing.T) {
	t.Parallel()

	turns := []attribution.Turn{
		{Text: "Hello John, how are you feeling today?", Start: 0, End: 2.4},
		{Text: "I've been having headaches and a sore throat.", Start: 2.9, End: 5.8},
		{Text: "Any fever or cough?", Start: 6.2, End: 7.1},
		{Text: "Yes, mild fever since yesterday.", Start: 7.5, End: 9.3},
	}

	got := attribution.ClassifyTurns(turns)
	if len(got) != len(turns) {
		t.Fatalf("ClassifyTurns returned %d turns, want %d", len(got), len(turns))
	}
	for i, turn := range got {
		if turn.Text != turns[i].Text {
			t.Errorf("turn %d text = %q, want %q (order must be preserved)", i, turn.Text, turns[i].Text)
		}
		if turn.Start != turns[i].Start || turn.End != turns[i].End {
			t.Errorf("turn %d timestamps changed: got (%v, %v), want (%v, %v)",
				i, turn.Start, turn.End, turns[i].Start, turns[i].End)
		}
		if !turn.Speaker.IsFinal() {
			t.Errorf("turn %d speaker = %q, want a final Doctor/Patient label", i, turn.Speaker)
		}
	}
}

func TestClassifyTurns_TrustedLabelsSeedContext(t *testing.T) {
	t.Parallel()

	// The first two turns carry trusted labels from an upstream correction
	// pass. The third is unlabeled: after a doctor question the short reply
	// must go to the patient.
	turns := []attribution.Turn{
		{Speaker: attribution.RolePatient, Text: "My back has been hurting."},
		{Speaker: attribution.RoleDoctor, Text: "Does it hurt when you bend?"},
		{Text: "Only a little."},
	}

	got := attribution.ClassifyTurns(turns)
	if got[0].Speaker != attribution.RolePatient || got[1].Speaker != attribution.RoleDoctor {
		t.Fatalf("trusted labels were not preserved: %+v", got)
	}
	if got[2].Speaker != attribution.RolePatient {
		t.Errorf("turn 3 = %q, want %q (short reply after doctor question)", got[2].Speaker, attribution.RolePatient)
	}
}

func TestRemapSpeakerIndices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "two speakers",
			input: "[Speaker 1]: How are you?\n\n[Speaker 2]: Not great.",
			want:  "[Doctor]: How are you?\n\n[Patient]: Not great.",
		},
		{
			name:  "unknown index untouched",
			input: "[Speaker 3]: Someone else.",
			want:  "[Speaker 3]: Someone else.",
		},
		{
			name:  "no tags",
			input: "plain text",
			want:  "plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := attribution.RemapSpeakerIndices(tt.input); got != tt.want {
				t.Errorf("RemapSpeakerIndices(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
