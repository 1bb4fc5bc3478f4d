package attribution_test

import (
	"testing"

	"github.com/arogyalabs/medscribe/internal/attribution"
)

func TestExtractPatientName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		turns    []string
		wantName string
		wantTime string
		wantOK   bool
	}{
		{
			name:     "greeting with honorific",
			turns:    []string{"Good morning, Mr. Sharma, how are you today?"},
			wantName: "Sharma",
			wantTime: "morning",
			wantOK:   true,
		},
		{
			name:     "plain hello",
			turns:    []string{"Hello John, what brings you in?"},
			wantName: "John",
			wantOK:   true,
		},
		{
			name:     "self introduction",
			turns:    []string{"Good evening doctor.", "My name is Priya Nair and I have a bad cough."},
			wantName: "Priya Nair",
			wantOK:   true,
		},
		{
			name:   "greeting addressed to the doctor",
			turns:  []string{"Good morning, Doctor."},
			wantOK: false,
		},
		{
			name:   "no greeting",
			turns:  []string{"The pain started two days ago."},
			wantOK: false,
		},
		{
			name:   "name outside the opening window",
			turns:  []string{"How are you?", "Fine.", "Any pain?", "Hello Ramesh."},
			wantOK: false,
		},
		{
			name:   "empty input",
			turns:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := attribution.ExtractPatientName(tt.turns)
			if ok != tt.wantOK {
				t.Fatalf("ExtractPatientName(%v) ok = %v, want %v (got %+v)", tt.turns, ok, tt.wantOK, got)
			}
			if !ok {
				return
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if tt.wantTime != "" && got.Time != tt.wantTime {
				t.Errorf("Time = %q, want %q", got.Time, tt.wantTime)
			}
		})
	}
}
