// Package mock provides an in-memory implementation of the consultstore
// interfaces for tests. It mirrors the Postgres backend's observable
// behaviour (server-assigned turn sequence, ErrNotFound semantics, cascade
// delete) without a database.
//
// Vector search uses exact cosine distance rather than an approximate index,
// which is fine at test scale.
package mock

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arogyalabs/medscribe/pkg/consultstore"
)

// Store is an in-memory consultstore.Store.
type Store struct {
	mu            sync.RWMutex
	consultations map[string]consultstore.Consultation
	turns         map[string][]consultstore.Turn
	vectors       map[string][]float32

	// CreateErr, AppendErr, and SearchErr, when non-nil, are returned by the
	// corresponding methods to exercise error paths.
	CreateErr error
	AppendErr error
	SearchErr error
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		consultations: make(map[string]consultstore.Consultation),
		turns:         make(map[string][]consultstore.Turn),
		vectors:       make(map[string][]float32),
	}
}

var _ consultstore.Store = (*Store)(nil)

// CreateConsultation implements [consultstore.ConsultationStore].
func (s *Store) CreateConsultation(_ context.Context, c consultstore.Consultation) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now()
	}
	s.consultations[c.ID] = c
	return nil
}

// GetConsultation implements [consultstore.ConsultationStore].
func (s *Store) GetConsultation(_ context.Context, id string) (*consultstore.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consultations[id]
	if !ok {
		return nil, consultstore.ErrNotFound
	}
	return &c, nil
}

// ListConsultations implements [consultstore.ConsultationStore].
func (s *Store) ListConsultations(_ context.Context, limit int) ([]consultstore.Consultation, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]consultstore.Consultation, 0, len(s.consultations))
	for _, c := range s.consultations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FinishConsultation implements [consultstore.ConsultationStore].
func (s *Store) FinishConsultation(_ context.Context, id, patientName, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok {
		return consultstore.ErrNotFound
	}
	c.Summary = summary
	c.EndedAt = time.Now()
	if patientName != "" {
		c.PatientName = patientName
	}
	s.consultations[id] = c
	return nil
}

// DeleteConsultation implements [consultstore.ConsultationStore].
func (s *Store) DeleteConsultation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consultations, id)
	delete(s.turns, id)
	delete(s.vectors, id)
	return nil
}

// AppendTurn implements [consultstore.ConsultationStore].
func (s *Store) AppendTurn(_ context.Context, consultationID string, turn consultstore.Turn) error {
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	turn.Seq = len(s.turns[consultationID])
	if turn.RecordedAt.IsZero() {
		turn.RecordedAt = time.Now()
	}
	s.turns[consultationID] = append(s.turns[consultationID], turn)
	return nil
}

// GetTurns implements [consultstore.ConsultationStore].
func (s *Store) GetTurns(_ context.Context, consultationID string) ([]consultstore.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]consultstore.Turn, len(s.turns[consultationID]))
	copy(out, s.turns[consultationID])
	return out, nil
}

// SearchTurns implements [consultstore.ConsultationStore] with a substring
// match standing in for Postgres full-text search.
func (s *Store) SearchTurns(_ context.Context, query string, opts consultstore.SearchOpts) ([]consultstore.TurnHit, error) {
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := []consultstore.TurnHit{}
	lowered := strings.ToLower(query)
	for id, turns := range s.turns {
		if opts.ConsultationID != "" && id != opts.ConsultationID {
			continue
		}
		for _, turn := range turns {
			if opts.Speaker != "" && turn.Speaker != opts.Speaker {
				continue
			}
			if !opts.After.IsZero() && !turn.RecordedAt.After(opts.After) {
				continue
			}
			if !opts.Before.IsZero() && !turn.RecordedAt.Before(opts.Before) {
				continue
			}
			if !strings.Contains(strings.ToLower(turn.Text), lowered) {
				continue
			}
			hits = append(hits, consultstore.TurnHit{ConsultationID: id, Turn: turn})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Turn.RecordedAt.Before(hits[j].Turn.RecordedAt)
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

// IndexCase implements [consultstore.CaseIndex].
func (s *Store) IndexCase(_ context.Context, consultationID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consultations[consultationID]; !ok {
		return consultstore.ErrNotFound
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	s.vectors[consultationID] = vec
	return nil
}

// SimilarCases implements [consultstore.CaseIndex] with exact cosine distance.
func (s *Store) SimilarCases(_ context.Context, embedding []float32, topK int) ([]consultstore.CaseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []consultstore.CaseResult{}
	for id, vec := range s.vectors {
		c, ok := s.consultations[id]
		if !ok {
			continue
		}
		results = append(results, consultstore.CaseResult{
			Consultation: c,
			Distance:     cosineDistance(embedding, vec),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
