package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/arogyalabs/medscribe/pkg/consultstore"
)

// IndexCase implements [consultstore.CaseIndex]. It upserts the summary
// embedding for a consultation. The consultation must already exist; the
// foreign key rejects vectors for unknown IDs.
func (s *Store) IndexCase(ctx context.Context, consultationID string, embedding []float32) error {
	const q = `
		INSERT INTO case_vectors (consultation_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (consultation_id) DO UPDATE SET
		    embedding = EXCLUDED.embedding`

	vec := pgvector.NewVector(embedding)
	if _, err := s.pool.Exec(ctx, q, consultationID, vec); err != nil {
		return fmt.Errorf("case index: index case: %w", err)
	}
	return nil
}

// SimilarCases implements [consultstore.CaseIndex]. It finds the topK
// consultations whose summary embeddings are closest (cosine distance) to the
// supplied query embedding.
//
// Results are ordered by ascending cosine distance (most similar first).
func (s *Store) SimilarCases(ctx context.Context, embedding []float32, topK int) ([]consultstore.CaseResult, error) {
	const q = `
		SELECT c.id, c.patient_name, c.locale, c.summary, c.started_at, c.ended_at,
		       v.embedding <=> $1 AS distance
		FROM   case_vectors v
		JOIN   consultations c ON c.id = v.consultation_id
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("case index: similar cases: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (consultstore.CaseResult, error) {
		var (
			cr      consultstore.CaseResult
			endedAt sql.NullTime
		)
		if err := row.Scan(
			&cr.Consultation.ID,
			&cr.Consultation.PatientName,
			&cr.Consultation.Locale,
			&cr.Consultation.Summary,
			&cr.Consultation.StartedAt,
			&endedAt,
			&cr.Distance,
		); err != nil {
			return consultstore.CaseResult{}, err
		}
		if endedAt.Valid {
			cr.Consultation.EndedAt = endedAt.Time
		}
		return cr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("case index: scan rows: %w", err)
	}
	if results == nil {
		results = []consultstore.CaseResult{}
	}
	return results, nil
}
