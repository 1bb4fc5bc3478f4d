// Package attribution implements the heuristic speaker-attribution engine for
// doctor–patient consultation transcripts.
//
// Given an ordered sequence of transcribed turns with no reliable speaker
// tags, the engine assigns each turn to the doctor or the patient by
// combining several weak linguistic signals — lexical pattern groups,
// pronoun density, sentence complexity, medical-terminology density,
// directive language, and turn-taking priors — into a single scored decision,
// with hard override patterns applied before soft scoring and conversational
// context propagated across turns.
//
// The engine is a pure text classifier: no I/O, no randomness, no
// concurrency. [ClassifyTurns] processes turns strictly sequentially because
// each decision depends on the [Context] left by the previous turn; a fresh
// Context is allocated per transcript and must never be shared across
// concurrent classification sessions.
//
// Entry points:
//
//   - [ClassifyTranscript] — newline-delimited raw text in, "[Role]: text"
//     blocks out.
//   - [ClassifyTurns] — structured [Turn] records, e.g. from a diarizer or an
//     LLM correction pass whose trusted labels seed the heuristic.
//   - [Classify] — a single utterance against an explicit [Context].
//   - [RemapSpeakerIndices] — the convention-based "[Speaker 1]"→"[Doctor]"
//     rewrite, distinct from heuristic classification.
//   - [ExtractPatientName] — greeting scan over the opening turns.
package attribution
