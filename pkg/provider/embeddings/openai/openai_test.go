package openai_test

import (
	"testing"

	"github.com/arogyalabs/medscribe/pkg/provider/embeddings/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := openai.New("", "text-embedding-3-small"); err == nil {
		t.Fatal("New() with empty API key should return error")
	}
}

func TestNew_DefaultsModel(t *testing.T) {
	p, err := openai.New("sk-test", "")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if p.ModelID() != openai.DefaultModel {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), openai.DefaultModel)
	}
}

func TestDimensions_NativeWidths(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"some-future-model", 1536},
	}
	for _, tt := range tests {
		p, err := openai.New("sk-test", tt.model)
		if err != nil {
			t.Fatalf("New(%q) error: %v", tt.model, err)
		}
		if got := p.Dimensions(); got != tt.want {
			t.Errorf("Dimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestDimensions_OverrideWins(t *testing.T) {
	p, err := openai.New("sk-test", "text-embedding-3-large", openai.WithDimensions(256))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := p.Dimensions(); got != 256 {
		t.Errorf("Dimensions() = %d, want the pinned 256", got)
	}
}

func TestNew_RejectsNegativeDimensions(t *testing.T) {
	if _, err := openai.New("sk-test", "", openai.WithDimensions(-1)); err == nil {
		t.Fatal("New() with negative dimensions should return error")
	}
}
