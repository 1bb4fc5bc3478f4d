package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arogyalabs/medscribe/internal/attribution"
	"github.com/arogyalabs/medscribe/internal/langdetect"
	"github.com/arogyalabs/medscribe/internal/observe"
	"github.com/arogyalabs/medscribe/pkg/consultstore"
)

// ─── Attribution ─────────────────────────────────────────────────────────────

func (s *Server) handleAttribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AttributeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var turns []attribution.Turn
	switch {
	case len(req.Turns) > 0:
		turns = attributionTurns(req.Turns)
	case req.Transcript != "":
		raw := req.Transcript
		if req.RemapSpeakerIndices {
			raw = attribution.RemapSpeakerIndices(raw)
		}
		turns = attribution.ParseTranscript(raw)
	}
	if len(turns) == 0 {
		writeError(w, http.StatusBadRequest, "request contains no utterances")
		return
	}

	mode := "heuristic"
	if corrector := s.corrector.Load(); req.LLMReview && corrector != nil {
		start := time.Now()
		seeded, err := corrector.Attribute(ctx, turns)
		s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		switch {
		case err != nil:
			observe.Logger(ctx).Warn("llm attribution pass failed, using heuristic only", "err", err)
			s.metrics.RecordProviderError(ctx, "llm", "attribute")
		case seeded != nil:
			turns = seeded
			mode = "llm"
			s.metrics.RecordProviderRequest(ctx, "llm", "attribute", "ok")
		default:
			// Unusable LLM output; the corrector already degraded.
			s.metrics.RecordProviderRequest(ctx, "llm", "attribute", "degraded")
		}
	}

	start := time.Now()
	labeled := attribution.ClassifyTurns(turns)
	s.metrics.AttributionDuration.Record(ctx, time.Since(start).Seconds())

	payload := make([]TurnPayload, 0, len(labeled))
	var all strings.Builder
	for _, t := range labeled {
		s.metrics.RecordTurnAttributed(ctx, string(t.Speaker))
		payload = append(payload, TurnPayload{
			Speaker: string(t.Speaker),
			Text:    t.Text,
			Start:   t.Start,
			End:     t.End,
		})
		all.WriteString(t.Text)
		all.WriteByte(' ')
	}

	writeJSON(w, http.StatusOK, AttributeResponse{
		Transcript:  renderTranscript(labeled),
		Turns:       payload,
		Language:    string(langdetect.Detect(all.String())),
		Attribution: mode,
	})
}

// ─── Session lifecycle ───────────────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}

	var req CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	locale := req.Locale
	if locale == "" {
		locale = string(langdetect.LocaleEnglish)
	}

	c := consultstore.Consultation{
		ID:          newSessionID(),
		PatientName: req.PatientName,
		Locale:      locale,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateConsultation(ctx, c); err != nil {
		observe.Logger(ctx).Error("create consultation", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.metrics.ActiveConsultations.Add(ctx, 1)
	observe.Logger(ctx).Info("session created", "session_id", c.ID, "locale", c.Locale)
	writeJSON(w, http.StatusCreated, sessionPayload(c))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	list, err := s.store.ListConsultations(ctx, limit)
	if err != nil {
		observe.Logger(ctx).Error("list consultations", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	payload := make([]SessionPayload, 0, len(list))
	for _, c := range list {
		payload = append(payload, sessionPayload(c))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")

	c, err := s.store.GetConsultation(ctx, id)
	if errors.Is(err, consultstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		observe.Logger(ctx).Error("get consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	turns, err := s.store.GetTurns(ctx, id)
	if err != nil {
		observe.Logger(ctx).Error("get turns", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session turns")
		return
	}

	detail := SessionDetail{SessionPayload: sessionPayload(*c), Turns: make([]TurnPayload, 0, len(turns))}
	for _, t := range turns {
		detail.Turns = append(detail.Turns, turnPayload(t))
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")

	existing, err := s.store.GetConsultation(ctx, id)
	if errors.Is(err, consultstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		observe.Logger(ctx).Error("get consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	if err := s.store.DeleteConsultation(ctx, id); err != nil {
		observe.Logger(ctx).Error("delete consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	// Deleting a still-live session releases its slot on the active gauge.
	if existing.EndedAt.IsZero() {
		s.metrics.ActiveConsultations.Add(ctx, -1)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendTurns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")

	var req AppendTurnsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Turns) == 0 {
		writeError(w, http.StatusBadRequest, "request contains no turns")
		return
	}

	if _, err := s.store.GetConsultation(ctx, id); err != nil {
		if errors.Is(err, consultstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		observe.Logger(ctx).Error("get consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	existing, err := s.store.GetTurns(ctx, id)
	if err != nil {
		observe.Logger(ctx).Error("get turns", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session turns")
		return
	}

	// Classify the new turns with the conversation context threaded through
	// everything the session has seen so far.
	all := append(storedAttributionTurns(existing), attributionTurns(req.Turns)...)
	start := time.Now()
	labeled := attribution.ClassifyTurns(all)
	s.metrics.AttributionDuration.Record(ctx, time.Since(start).Seconds())
	appended := labeled[len(existing):]

	resp := AppendTurnsResponse{Turns: make([]TurnPayload, 0, len(appended))}
	for _, t := range appended {
		s.metrics.RecordTurnAttributed(ctx, string(t.Speaker))
		if err := s.store.AppendTurn(ctx, id, consultstore.Turn{
			Speaker: string(t.Speaker),
			Text:    t.Text,
			RawText: t.Text,
			Start:   t.Start,
			End:     t.End,
		}); err != nil {
			observe.Logger(ctx).Error("append turn", "session_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to append turn")
			return
		}
		resp.Turns = append(resp.Turns, TurnPayload{
			Speaker: string(t.Speaker),
			Text:    t.Text,
			Start:   t.Start,
			End:     t.End,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")

	var req FinishSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	existing, err := s.store.GetConsultation(ctx, id)
	if errors.Is(err, consultstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		observe.Logger(ctx).Error("get consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	// Refinishing is allowed (re-extracts and overwrites the summary), but
	// only the first finish moves the active gauge.
	wasLive := existing.EndedAt.IsZero()

	turns, err := s.store.GetTurns(ctx, id)
	if err != nil {
		observe.Logger(ctx).Error("get turns", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session turns")
		return
	}

	pres := s.extractor.Load().Extract(storedAttributionTurns(turns))

	summary := req.Summary
	if summary == "" {
		summary = summaryFromSymptoms(pres.Symptoms)
	}

	err = s.store.FinishConsultation(ctx, id, pres.PatientName, summary)
	if errors.Is(err, consultstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		observe.Logger(ctx).Error("finish consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to finish session")
		return
	}
	if wasLive {
		s.metrics.ActiveConsultations.Add(ctx, -1)
	}

	// Index the summary for similar-case search. Best-effort: a failed
	// embedding never fails the finish.
	if s.embedder != nil && summary != "" {
		s.indexSummary(ctx, id, summary)
	}

	c, err := s.store.GetConsultation(ctx, id)
	if err != nil {
		observe.Logger(ctx).Error("get consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	observe.Logger(ctx).Info("session finished", "session_id", id, "turns", len(turns))
	writeJSON(w, http.StatusOK, sessionPayload(*c))
}

// indexSummary embeds the consultation summary and stores the vector.
func (s *Server) indexSummary(ctx context.Context, id, summary string) {
	start := time.Now()
	vec, err := s.embedder.Embed(ctx, summary)
	s.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("embed summary", "session_id", id, "err", err)
		s.metrics.RecordProviderError(ctx, "embeddings", "embed")
		return
	}
	s.metrics.RecordProviderRequest(ctx, "embeddings", "embed", "ok")
	if err := s.store.IndexCase(ctx, id, vec); err != nil {
		observe.Logger(ctx).Warn("index case vector", "session_id", id, "err", err)
	}
}

// ─── Prescription ────────────────────────────────────────────────────────────

func (s *Server) handlePrescription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")

	if _, err := s.store.GetConsultation(ctx, id); err != nil {
		if errors.Is(err, consultstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		observe.Logger(ctx).Error("get consultation", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	turns, err := s.store.GetTurns(ctx, id)
	if err != nil {
		observe.Logger(ctx).Error("get turns", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load session turns")
		return
	}

	pres := s.extractor.Load().Extract(storedAttributionTurns(turns))
	for _, m := range pres.Medications {
		outcome := "exact"
		if m.Corrected {
			outcome = "corrected"
		}
		s.metrics.RecordDrugNameCorrection(ctx, outcome)
	}

	writeJSON(w, http.StatusOK, PrescriptionResponse{
		PatientName: pres.PatientName,
		Symptoms:    pres.Symptoms,
		Medications: medicationPayloads(pres.Medications),
		Advice:      pres.Advice,
		Rendered:    pres.Render(),
	})
}

// ─── Retrieval ───────────────────────────────────────────────────────────────

func (s *Server) handleSimilarSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) || !s.requireEmbedder(w) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	topK := queryInt(r, "top_k", 5)

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	s.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Error("embed query", "err", err)
		s.metrics.RecordProviderError(ctx, "embeddings", "embed")
		writeError(w, http.StatusBadGateway, "failed to embed query")
		return
	}
	s.metrics.RecordProviderRequest(ctx, "embeddings", "embed", "ok")

	results, err := s.store.SimilarCases(ctx, vec, topK)
	if err != nil {
		observe.Logger(ctx).Error("similar cases", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to search similar sessions")
		return
	}

	payload := make([]SimilarCasePayload, 0, len(results))
	for _, res := range results {
		payload = append(payload, SimilarCasePayload{
			Session:  sessionPayload(res.Consultation),
			Distance: res.Distance,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearchTurns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.requireStore(w) {
		return
	}

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	opts := consultstore.SearchOpts{
		ConsultationID: q.Get("session"),
		Speaker:        q.Get("speaker"),
		Limit:          queryInt(r, "limit", 0),
	}

	hits, err := s.store.SearchTurns(ctx, query, opts)
	if err != nil {
		observe.Logger(ctx).Error("search turns", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	payload := make([]SearchHitPayload, 0, len(hits))
	for _, h := range hits {
		payload = append(payload, SearchHitPayload{
			SessionID: h.ConsultationID,
			Turn:      turnPayload(h.Turn),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// newSessionID returns a time-prefixed random session identifier,
// e.g. "consult-20260830T0945Z-9f1c2a7b".
func newSessionID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return "consult-" + time.Now().UTC().Format("20060102T1504Z") + "-" + hex.EncodeToString(buf[:])
}

// renderTranscript formats labeled turns as "[Role]: text" blocks separated
// by blank lines, matching the output of attribution.ClassifyTranscript.
func renderTranscript(turns []attribution.Turn) string {
	var sb strings.Builder
	for i, t := range turns {
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

// summaryFromSymptoms derives a one-line consultation summary from the
// symptoms collected out of patient turns. Empty when no symptoms were
// mentioned.
func summaryFromSymptoms(symptoms []string) string {
	if len(symptoms) == 0 {
		return ""
	}
	return "Patient presented with " + strings.Join(symptoms, ", ") + "."
}

// queryInt parses an integer query parameter, returning def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
