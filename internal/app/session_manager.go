package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arogyalabs/medscribe/internal/attribution"
	"github.com/arogyalabs/medscribe/internal/langdetect"
	"github.com/arogyalabs/medscribe/internal/observe"
	"github.com/arogyalabs/medscribe/internal/prescription"
	"github.com/arogyalabs/medscribe/pkg/consultstore"
	"github.com/arogyalabs/medscribe/pkg/provider/embeddings"
	"github.com/arogyalabs/medscribe/pkg/provider/stt"
)

// liveSampleRate is the PCM sample rate for consultation-room capture.
const liveSampleRate = 16000

// SessionInfo holds metadata about an active live consultation.
type SessionInfo struct {
	// ConsultationID is the unique identifier for this consultation.
	ConsultationID string

	// PatientName is the name the session was started with, or empty if
	// the patient will be identified from the opening greeting.
	PatientName string

	// Locale is the BCP-47 recognition locale the STT stream runs with.
	Locale string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager manages the lifecycle of live consultation sessions:
// microphone audio in, attributed turns out. Only one session can be active
// at a time (enforced by mutex). All exported methods are safe for
// concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	active bool
	info   SessionInfo
	handle stt.SessionHandle
	cancel context.CancelFunc
	done   chan struct{}

	// Dependencies injected at construction.
	sttProvider stt.Provider
	store       consultstore.Store
	extractor   *prescription.Extractor
	embedder    embeddings.Provider
	metrics     *observe.Metrics
	language    string
	keywords    []stt.KeywordBoost
	trustDiar   bool
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// STT opens the streaming transcription session. Required.
	STT stt.Provider

	// Store persists the consultation record. Required.
	Store consultstore.Store

	// Extractor builds the prescription draft when the session is stopped.
	// A zero-value extractor is used when nil.
	Extractor *prescription.Extractor

	// Embedder indexes the finished consultation for similarity search.
	// Optional; indexing is skipped when nil.
	Embedder embeddings.Provider

	// Metrics receives per-turn and per-session instrumentation.
	// [observe.DefaultMetrics] is used when nil.
	Metrics *observe.Metrics

	// Language is the default BCP-47 recognition locale for new sessions.
	Language string

	// Keywords is the formulary-derived recognition boost list.
	Keywords []stt.KeywordBoost

	// TrustDiarization labels finals from their diarizer speaker index
	// (first voice Doctor, second Patient) instead of the heuristic. Only
	// safe when the room guarantees doctor-first two-speaker audio.
	TrustDiarization bool
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Extractor == nil {
		cfg.Extractor = prescription.NewExtractor(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Language == "" {
		cfg.Language = string(langdetect.LocaleEnglish)
	}
	return &SessionManager{
		sttProvider: cfg.STT,
		store:       cfg.Store,
		extractor:   cfg.Extractor,
		embedder:    cfg.Embedder,
		metrics:     cfg.Metrics,
		language:    cfg.Language,
		keywords:    cfg.Keywords,
		trustDiar:   cfg.TrustDiarization,
	}
}

// SetExtractor swaps the prescription extractor, e.g. after a formulary
// reload. The active session picks it up: extraction happens at Stop.
func (sm *SessionManager) SetExtractor(e *prescription.Extractor) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if e == nil {
		e = prescription.NewExtractor(nil)
	}
	sm.extractor = e
}

// SetLanguage updates the default recognition locale for sessions started
// after the call. The active session keeps its locale.
func (sm *SessionManager) SetLanguage(language string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if language == "" {
		language = string(langdetect.LocaleEnglish)
	}
	sm.language = language
}

// SetTrustDiarization toggles diarizer-index labeling for sessions started
// after the call. The active session keeps its labeling mode.
func (sm *SessionManager) SetTrustDiarization(trust bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.trustDiar = trust
}

// Start begins a new live consultation. It creates the consultation record,
// opens a diarized STT stream with the formulary keyword boosts, and begins
// attributing final transcripts as they arrive.
//
// Returns an error if a session is already active, or if the STT provider
// or store is not configured.
func (sm *SessionManager) Start(ctx context.Context, patientName, locale string) (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return SessionInfo{}, fmt.Errorf("session: a session is already active (id=%s)", sm.info.ConsultationID)
	}
	if sm.sttProvider == nil {
		return SessionInfo{}, fmt.Errorf("session: no STT provider configured")
	}
	if sm.store == nil {
		return SessionInfo{}, fmt.Errorf("session: no consultation store configured")
	}

	if locale == "" {
		locale = sm.language
	}

	now := time.Now().UTC()
	id := fmt.Sprintf("consult-%s-%s", sanitizeName(patientName), now.Format("20060102T1504Z"))

	if err := sm.store.CreateConsultation(ctx, consultstore.Consultation{
		ID:          id,
		PatientName: patientName,
		Locale:      locale,
		StartedAt:   now,
	}); err != nil {
		return SessionInfo{}, fmt.Errorf("session: create consultation: %w", err)
	}

	handle, err := sm.sttProvider.StartStream(ctx, stt.StreamConfig{
		SampleRate: liveSampleRate,
		Channels:   1,
		Language:   locale,
		Diarize:    true,
		Keywords:   sm.keywords,
	})
	if err != nil {
		return SessionInfo{}, fmt.Errorf("session: start stt stream: %w", err)
	}

	// Session-scoped context for the transcript consumer. The labeling mode
	// is fixed at start; later toggles apply to the next session.
	sessionCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go sm.consumeFinals(sessionCtx, id, handle, sm.trustDiar, done)

	sm.active = true
	sm.handle = handle
	sm.cancel = cancel
	sm.done = done
	sm.info = SessionInfo{
		ConsultationID: id,
		PatientName:    patientName,
		Locale:         locale,
		StartedAt:      now,
	}
	sm.metrics.ActiveConsultations.Add(ctx, 1)

	slog.Info("session started",
		"consultation_id", id,
		"locale", locale,
		"keywords", len(sm.keywords),
	)

	return sm.info, nil
}

// consumeFinals drains the STT finals channel, threading one attribution
// context through the whole session so each label decision sees the
// conversation so far. Every labeled turn is appended to the store.
//
// With trustDiar set, finals carrying a diarizer speaker index are labeled
// from it directly; unattributed finals still go through the heuristic.
func (sm *SessionManager) consumeFinals(ctx context.Context, consultationID string, handle stt.SessionHandle, trustDiar bool, done chan<- struct{}) {
	defer close(done)

	actx := attribution.NewContext()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-handle.Finals():
			if !ok {
				return
			}
			if strings.TrimSpace(t.Text) == "" {
				continue
			}

			start := time.Now()
			role, labeled := diarizedRole(t.SpeakerIndex, trustDiar)
			if !labeled {
				role = attribution.Classify(t.Text, actx)
			}
			actx.Observe(role, t.Text)
			sm.metrics.AttributionDuration.Record(ctx, time.Since(start).Seconds())
			sm.metrics.RecordTurnAttributed(ctx, string(role))

			turn := consultstore.Turn{
				Speaker: string(role),
				Text:    t.Text,
				RawText: t.Text,
				Start:   t.Timestamp.Seconds(),
				End:     (t.Timestamp + t.Duration).Seconds(),
			}
			if err := sm.store.AppendTurn(ctx, consultationID, turn); err != nil {
				slog.Warn("session: append turn failed",
					"consultation_id", consultationID, "err", err)
			}
		}
	}
}

// SendAudio forwards a raw PCM chunk to the active session's STT stream.
func (sm *SessionManager) SendAudio(chunk []byte) error {
	sm.mu.Lock()
	handle := sm.handle
	sm.mu.Unlock()

	if handle == nil {
		return fmt.Errorf("session: no active session")
	}
	return handle.SendAudio(chunk)
}

// UpdateKeywords replaces the recognition boost list mid-session, e.g. after
// a formulary reload. Best-effort: providers that do not support mid-session
// keyword updates return an error, which is passed through.
func (sm *SessionManager) UpdateKeywords(keywords []stt.KeywordBoost) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.keywords = keywords
	if sm.handle == nil {
		return nil
	}
	return sm.handle.SetKeywords(keywords)
}

// Stop gracefully ends the active session. It closes the STT stream, drains
// remaining finals, extracts the prescription draft from the stored turns,
// finishes the consultation record, and indexes the summary for similarity
// search when an embedder is configured.
//
// Returns the extracted prescription, and an error if no session is active
// or the record could not be finished.
func (sm *SessionManager) Stop(ctx context.Context) (prescription.Prescription, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return prescription.Prescription{}, fmt.Errorf("session: no active session to stop")
	}

	id := sm.info.ConsultationID

	// Close the stream first so the provider flushes pending audio and the
	// finals channel closes; the consumer then drains and exits on its own.
	if err := sm.handle.Close(); err != nil {
		slog.Warn("session: stt close error", "consultation_id", id, "err", err)
	}
	select {
	case <-sm.done:
	case <-ctx.Done():
		slog.Warn("session: transcript drain cut short", "consultation_id", id)
	}
	sm.cancel()

	pres, err := sm.finish(ctx, id)

	sm.metrics.ActiveConsultations.Add(ctx, -1)
	sm.active = false
	sm.handle = nil
	sm.cancel = nil
	sm.done = nil
	sm.info = SessionInfo{}

	if err != nil {
		return prescription.Prescription{}, err
	}

	slog.Info("session stopped", "consultation_id", id,
		"medications", len(pres.Medications), "symptoms", len(pres.Symptoms))
	return pres, nil
}

// finish turns the stored record into a finished consultation: prescription
// draft, summary, and (best-effort) the case-similarity index entry.
func (sm *SessionManager) finish(ctx context.Context, id string) (prescription.Prescription, error) {
	turns, err := sm.store.GetTurns(ctx, id)
	if err != nil {
		return prescription.Prescription{}, fmt.Errorf("session: load turns: %w", err)
	}

	classifierTurns := make([]attribution.Turn, 0, len(turns))
	for _, t := range turns {
		classifierTurns = append(classifierTurns, attribution.Turn{
			Speaker: attribution.Role(t.Speaker),
			Text:    t.Text,
			Start:   t.Start,
			End:     t.End,
		})
	}

	pres := sm.extractor.Extract(classifierTurns)
	for _, med := range pres.Medications {
		outcome := "exact"
		if med.Corrected {
			outcome = "corrected"
		}
		sm.metrics.RecordDrugNameCorrection(ctx, outcome)
	}

	summary := summarize(pres)
	if err := sm.store.FinishConsultation(ctx, id, pres.PatientName, summary); err != nil {
		return prescription.Prescription{}, fmt.Errorf("session: finish consultation: %w", err)
	}

	if sm.embedder != nil && summary != "" {
		sm.indexSummary(ctx, id, summary)
	}

	return pres, nil
}

// indexSummary embeds the summary and writes the case vector. Failures are
// logged, not returned: a missing index entry only degrades similarity
// search, the consultation record itself is already complete.
func (sm *SessionManager) indexSummary(ctx context.Context, id, summary string) {
	start := time.Now()
	vec, err := sm.embedder.Embed(ctx, summary)
	sm.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		sm.metrics.RecordProviderError(ctx, "embeddings", "embed")
		slog.Warn("session: summary embedding failed", "consultation_id", id, "err", err)
		return
	}
	sm.metrics.RecordProviderRequest(ctx, "embeddings", "embed", "ok")

	if err := sm.store.IndexCase(ctx, id, vec); err != nil {
		slog.Warn("session: case indexing failed", "consultation_id", id, "err", err)
	}
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// summarize builds the short free-text summary stored on the finished
// consultation. Complaints first, then what was prescribed.
func summarize(pres prescription.Prescription) string {
	var parts []string
	if len(pres.Symptoms) > 0 {
		parts = append(parts, "Patient presented with "+strings.Join(pres.Symptoms, ", ")+".")
	}
	if len(pres.Medications) > 0 {
		names := make([]string, 0, len(pres.Medications))
		for _, m := range pres.Medications {
			names = append(names, m.Name)
		}
		parts = append(parts, "Prescribed "+strings.Join(names, ", ")+".")
	}
	return strings.Join(parts, " ")
}

// diarizedRole maps a raw diarizer speaker index to a clinical role. The
// doctor opens the consultation, so the first diarized voice is the doctor
// and the second the patient. Indices beyond the second voice (or -1 for
// unattributed finals) report false and fall back to the heuristic.
func diarizedRole(speakerIndex int, trust bool) (attribution.Role, bool) {
	if !trust {
		return "", false
	}
	switch speakerIndex {
	case 0:
		return attribution.RoleDoctor, true
	case 1:
		return attribution.RolePatient, true
	default:
		return "", false
	}
}

// sanitizeName lowercases a name and replaces spaces with hyphens for use in
// consultation IDs. Empty names become "walkin".
func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	if name == "" {
		name = "walkin"
	}
	return name
}
