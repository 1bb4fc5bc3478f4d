// Package correct implements a language-model-based speaker attribution pass
// that runs ahead of the heuristic classifier.
//
// The [Corrector] sends the raw consultation transcript to an [llm.Provider]
// with a conservative system prompt and expects a structured JSON response:
// an ordered list of turns, each labeled Doctor or Patient. Labels that
// survive validation are treated as trusted and seed the heuristic
// classifier; turns whose label fails validation fall back to heuristic
// classification. When the LLM response cannot be parsed at all, the
// corrector returns no turns and a nil error so the pipeline degrades to
// heuristic-only attribution rather than failing the request.
package correct

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arogyalabs/medscribe/internal/attribution"
	"github.com/arogyalabs/medscribe/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
)

// systemPrompt instructs the model to label turns without rewriting them.
const systemPrompt = `You are a medical transcription assistant. You are given the transcript of a doctor-patient consultation, one utterance per line, in order.

Your task: attribute each utterance to its speaker.

Rules:
- Every utterance is spoken by either "Doctor" or "Patient" — use exactly these two labels.
- Do NOT rewrite, merge, split, reorder, or drop utterances. The output must contain exactly one entry per input utterance, in the same order, with the text unchanged.
- The doctor asks examination questions, explains findings, and gives treatment instructions. The patient describes symptoms, answers questions, and asks about their condition.
- If you are unsure about an utterance, label it with your best guess.

Respond with ONLY a JSON array in this exact format (no markdown, no prose):
[
  {"speaker": "Doctor", "text": "<utterance text>"},
  {"speaker": "Patient", "text": "<utterance text>"}
]`

// labeledTurn is the expected JSON element returned by the LLM.
type labeledTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Lower values produce
// more deterministic attributions. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector attributes transcript turns using an [llm.Provider]. It is safe
// for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: to use a
// specific model, construct the [llm.Provider] with that model configured.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a new [Corrector] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Attribute sends the transcript turns to the LLM and returns the same turns
// with trusted speaker labels where the model's answer passed validation.
// Turns whose label failed validation come back with an empty Speaker so the
// heuristic classifier decides them.
//
// When the LLM response is unparseable or does not line up one-to-one with
// the input, Attribute returns (nil, nil) — graceful degradation; the caller
// must fall back to heuristic-only classification. Context cancellation and
// network errors are returned as non-nil errors.
func (c *Corrector) Attribute(ctx context.Context, turns []attribution.Turn) ([]attribution.Turn, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Text)
		sb.WriteByte('\n')
	}

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		Messages: []llm.Message{
			{Role: "user", Content: sb.String()},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speaker corrector: complete: %w", err)
	}

	labeled, parseErr := parseResponse(resp.Content)
	if parseErr != nil || len(labeled) != len(turns) {
		// Unusable response: degrade to heuristic-only, no error.
		return nil, nil
	}

	out := make([]attribution.Turn, len(turns))
	for i, t := range turns {
		out[i] = t
		if role, ok := ValidateLabel(labeled[i].Speaker); ok {
			out[i].Speaker = role
		} else {
			out[i].Speaker = ""
		}
	}
	return out, nil
}

// parseResponse unmarshals the LLM output, stripping optional markdown code
// fences first.
func parseResponse(content string) ([]labeledTurn, error) {
	cleaned := stripMarkdown(content)

	var turns []labeledTurn
	if err := json.Unmarshal([]byte(cleaned), &turns); err != nil {
		return nil, fmt.Errorf("speaker corrector: parse response: %w", err)
	}
	return turns, nil
}

// stripMarkdown removes markdown code fences (```json ... ```) that some
// models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
