// Package consultstore defines the storage layer for attributed consultations.
//
// The layer has two concerns:
//
//   - [ConsultationStore]: the durable record of consultations and their
//     attributed turns, with recency retrieval and full-text search for the
//     clinic front desk ("what did we tell Mrs. Sharma about the dosage?").
//   - [CaseIndex]: a vector index over consultation summaries for semantic
//     similar-case retrieval ("patients who presented with fever and joint
//     pain"), powered by embeddings from [embeddings.Provider].
//
// The interfaces are public so that external packages can supply alternative
// backends (Postgres/pgvector, in-memory, …). Every implementation must be
// safe for concurrent use.
package consultstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a consultation ID does not exist.
var ErrNotFound = errors.New("consultstore: consultation not found")

// Consultation is the header record for one doctor/patient session.
type Consultation struct {
	// ID is the unique identifier for this consultation (e.g., a UUID).
	ID string

	// PatientName is the patient's name as captured from the opening
	// greeting, or empty when none was detected.
	PatientName string

	// Locale is the BCP-47 recognition locale the session ran with
	// (e.g., "en-IN", "hi-IN", "te-IN").
	Locale string

	// Summary is a short free-text summary of the consultation, set when
	// the session is finished. Empty while the session is live.
	Summary string

	// StartedAt is when the consultation began.
	StartedAt time.Time

	// EndedAt is when the consultation was finished. Zero while live.
	EndedAt time.Time
}

// Turn is one attributed utterance within a consultation.
type Turn struct {
	// Seq is the zero-based position of the turn within its consultation.
	Seq int

	// Speaker is the attributed clinical role, "Doctor" or "Patient".
	Speaker string

	// Text is the (possibly corrected) transcript text.
	Text string

	// RawText is the original uncorrected STT output. Preserved for
	// debugging. May equal Text.
	RawText string

	// Start and End are utterance offsets in seconds from session start.
	Start float64
	End   float64

	// RecordedAt is when this turn was written to the store.
	RecordedAt time.Time
}

// SearchOpts configures a full-text search over stored turns.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// ConsultationID restricts the search to a single consultation.
	// An empty string searches across all consultations.
	ConsultationID string

	// Speaker restricts results to turns by a specific role
	// ("Doctor" or "Patient"). Empty matches both.
	Speaker string

	// After filters turns recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters turns recorded before this instant (exclusive).
	Before time.Time

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// TurnHit pairs a matched turn with the consultation it belongs to.
type TurnHit struct {
	ConsultationID string
	Turn           Turn
}

// CaseResult pairs a retrieved consultation with its vector-space distance
// from the query embedding. Lower Distance values indicate higher semantic
// similarity.
type CaseResult struct {
	Consultation Consultation
	Distance     float64
}

// ConsultationStore is the durable record of consultations and their turns.
//
// Turns must be returned in Seq order. Implementations must be safe for
// concurrent use.
type ConsultationStore interface {
	// CreateConsultation inserts a new consultation header. c.ID must be
	// non-empty and unique.
	CreateConsultation(ctx context.Context, c Consultation) error

	// GetConsultation retrieves a consultation by ID.
	// Returns ErrNotFound when the consultation does not exist.
	GetConsultation(ctx context.Context, id string) (*Consultation, error)

	// ListConsultations returns the most recently started consultations,
	// newest first. limit 0 applies an implementation default.
	ListConsultations(ctx context.Context, limit int) ([]Consultation, error)

	// FinishConsultation marks the consultation ended now, records summary,
	// and updates the patient name when patientName is non-empty.
	// Returns ErrNotFound when the consultation does not exist.
	FinishConsultation(ctx context.Context, id, patientName, summary string) error

	// DeleteConsultation removes the consultation, its turns, and its case
	// vector. Deleting a non-existent consultation is not an error.
	DeleteConsultation(ctx context.Context, id string) error

	// AppendTurn appends an attributed turn to the consultation.
	// consultationID must reference an existing consultation.
	AppendTurn(ctx context.Context, consultationID string, turn Turn) error

	// GetTurns returns all turns of the consultation in Seq order.
	// Returns an empty (non-nil) slice when the consultation has no turns.
	GetTurns(ctx context.Context, consultationID string) ([]Turn, error)

	// SearchTurns performs full-text search over turn text.
	// Returns an empty (non-nil) slice when nothing matches.
	SearchTurns(ctx context.Context, query string, opts SearchOpts) ([]TurnHit, error)
}

// CaseIndex is the vector index over consultation summaries.
//
// Callers are responsible for producing embeddings before calling IndexCase
// or SimilarCases. Implementations must be safe for concurrent use.
type CaseIndex interface {
	// IndexCase stores the embedding of a consultation's summary. If the
	// consultation already has a vector it is replaced (upsert).
	IndexCase(ctx context.Context, consultationID string, embedding []float32) error

	// SimilarCases finds the topK consultations whose summary embeddings
	// are closest to the query embedding, ordered by ascending Distance.
	// Returns an empty (non-nil) slice when the index is empty.
	SimilarCases(ctx context.Context, embedding []float32, topK int) ([]CaseResult, error)
}

// Store combines both storage concerns behind one value.
type Store interface {
	ConsultationStore
	CaseIndex
}
