package attribution

import (
	"regexp"
	"strings"
)

// Turn is one unit of speech to classify. Speaker is empty for unlabeled
// turns; when it carries a trusted Doctor/Patient label the turn passes
// through unchanged. Start and End are optional diarizer timestamps in
// seconds.
type Turn struct {
	Speaker Role
	Text    string
	Start   float64
	End     float64
}

// taggedTurn matches a "[Label]: text" line produced by an upstream
// diarizer or a previous classification pass.
var taggedTurn = regexp.MustCompile(`^\[([^\[\]]+)\]:\s*(.*)$`)

// speakerIndexTag matches generic diarizer labels like "[Speaker 1]".
var speakerIndexTag = regexp.MustCompile(`\[[Ss]peaker\s+(\d+)\]`)

// ClassifyTranscript assigns a speaker to every turn of a raw transcript.
//
// The input is split into turns on newline runs. Turns already tagged
// "[Doctor]:" or "[Patient]:" pass through unchanged; any other tag
// (including "[Identifying]:" and "[Speaker N]:") is treated as untrusted and
// the turn text is classified heuristically. The output preserves input
// order, with each turn rendered as "[Role]: text" and turns separated by a
// blank line. An input that yields no turns returns the empty string.
func ClassifyTranscript(raw string) string {
	turns := splitTurns(raw)
	if len(turns) == 0 {
		return ""
	}

	labeled := ClassifyTurns(turns)

	var sb strings.Builder
	for i, t := range labeled {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[")
		sb.WriteString(string(t.Speaker))
		sb.WriteString("]: ")
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// ClassifyTurns assigns a speaker to every turn in order, threading a fresh
// [Context] through the sequence. Turns that arrive with a trusted
// Doctor/Patient label keep it; all labeled turns, trusted or classified,
// update the context before the next decision. The returned slice preserves
// input order and length.
//
// Turns are processed strictly sequentially — each decision depends on the
// context left by the previous turn.
func ClassifyTurns(turns []Turn) []Turn {
	ctx := NewContext()
	out := make([]Turn, 0, len(turns))

	for _, t := range turns {
		label := t.Speaker
		if !label.IsFinal() {
			label = Classify(t.Text, ctx)
		}

		out = append(out, Turn{
			Speaker: label,
			Text:    t.Text,
			Start:   t.Start,
			End:     t.End,
		})

		// Pre-labeled turns advance the context the same way classified
		// turns do, so the parity nudge and first-turn greeting override
		// see a consistent turn count.
		ctx.Observe(label, t.Text)
	}

	return out
}

// ParseTranscript splits a raw transcript into ordered turns without
// classifying them. Lines tagged with a trusted role keep that label;
// unrecognised tags are stripped. Useful when the turns need a correction
// pass before [ClassifyTurns].
func ParseTranscript(raw string) []Turn {
	return splitTurns(raw)
}

// splitTurns breaks a raw transcript into ordered turns on newline runs.
// Lines tagged with a trusted role keep that label; unrecognised tags are
// stripped and the remaining text left unlabeled for the heuristic.
func splitTurns(raw string) []Turn {
	var turns []Turn
	for _, block := range strings.Split(raw, "\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		if m := taggedTurn.FindStringSubmatch(block); m != nil {
			label := Role(strings.TrimSpace(m[1]))
			text := strings.TrimSpace(m[2])
			if text == "" {
				continue
			}
			if label.IsFinal() {
				turns = append(turns, Turn{Speaker: label, Text: text})
			} else {
				// Untrusted tag: classify the bare text.
				turns = append(turns, Turn{Text: text})
			}
			continue
		}

		turns = append(turns, Turn{Text: block})
	}
	return turns
}

// RemapSpeakerIndices rewrites generic diarizer labels to consultation roles
// by fixed convention: speaker 1 is the doctor, speaker 2 the patient. This
// is a pass-through convention helper, not a classification: it is only
// appropriate when the upstream diarizer's indices are already known to
// correlate with role (a two-speaker session where the doctor spoke first).
// Indices other than 1 and 2 are left untouched.
func RemapSpeakerIndices(raw string) string {
	return speakerIndexTag.ReplaceAllStringFunc(raw, func(tag string) string {
		m := speakerIndexTag.FindStringSubmatch(tag)
		switch m[1] {
		case "1":
			return "[Doctor]"
		case "2":
			return "[Patient]"
		}
		return tag
	})
}
