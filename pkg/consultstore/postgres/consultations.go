package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arogyalabs/medscribe/pkg/consultstore"
)

// CreateConsultation implements [consultstore.ConsultationStore].
func (s *Store) CreateConsultation(ctx context.Context, c consultstore.Consultation) error {
	if c.ID == "" {
		return errors.New("consultation store: id must not be empty")
	}
	startedAt := c.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	const q = `
		INSERT INTO consultations (id, patient_name, locale, summary, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, q, c.ID, c.PatientName, c.Locale, c.Summary, startedAt); err != nil {
		return fmt.Errorf("consultation store: create: %w", err)
	}
	return nil
}

// GetConsultation implements [consultstore.ConsultationStore].
func (s *Store) GetConsultation(ctx context.Context, id string) (*consultstore.Consultation, error) {
	const q = `
		SELECT id, patient_name, locale, summary, started_at, ended_at
		FROM   consultations
		WHERE  id = $1`

	c, err := scanConsultation(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, consultstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consultation store: get: %w", err)
	}
	return &c, nil
}

// ListConsultations implements [consultstore.ConsultationStore]. It returns
// the most recently started consultations, newest first.
func (s *Store) ListConsultations(ctx context.Context, limit int) ([]consultstore.Consultation, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT id, patient_name, locale, summary, started_at, ended_at
		FROM   consultations
		ORDER  BY started_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("consultation store: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (consultstore.Consultation, error) {
		return scanConsultation(row)
	})
	if err != nil {
		return nil, fmt.Errorf("consultation store: scan rows: %w", err)
	}
	if out == nil {
		out = []consultstore.Consultation{}
	}
	return out, nil
}

// FinishConsultation implements [consultstore.ConsultationStore].
func (s *Store) FinishConsultation(ctx context.Context, id, patientName, summary string) error {
	const q = `
		UPDATE consultations
		SET    summary      = $2,
		       patient_name = CASE WHEN $3 = '' THEN patient_name ELSE $3 END,
		       ended_at     = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, summary, patientName)
	if err != nil {
		return fmt.Errorf("consultation store: finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consultstore.ErrNotFound
	}
	return nil
}

// DeleteConsultation implements [consultstore.ConsultationStore]. Turns and
// case vectors are removed via ON DELETE CASCADE.
func (s *Store) DeleteConsultation(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM consultations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("consultation store: delete: %w", err)
	}
	return nil
}

// AppendTurn implements [consultstore.ConsultationStore]. Seq is assigned
// server-side from the consultation's current highest sequence number, so
// concurrent appenders cannot produce gaps; turn.Seq is ignored on insert.
func (s *Store) AppendTurn(ctx context.Context, consultationID string, turn consultstore.Turn) error {
	recordedAt := turn.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	const q = `
		INSERT INTO consultation_turns
		    (consultation_id, seq, speaker, text, raw_text, start_offset, end_offset, recorded_at)
		SELECT $1,
		       COALESCE((SELECT max(seq) + 1 FROM consultation_turns WHERE consultation_id = $1), 0),
		       $2, $3, $4, $5, $6, $7`

	_, err := s.pool.Exec(ctx, q,
		consultationID,
		turn.Speaker,
		turn.Text,
		turn.RawText,
		turn.Start,
		turn.End,
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("consultation store: append turn: %w", err)
	}
	return nil
}

// GetTurns implements [consultstore.ConsultationStore].
func (s *Store) GetTurns(ctx context.Context, consultationID string) ([]consultstore.Turn, error) {
	const q = `
		SELECT seq, speaker, text, raw_text, start_offset, end_offset, recorded_at
		FROM   consultation_turns
		WHERE  consultation_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, consultationID)
	if err != nil {
		return nil, fmt.Errorf("consultation store: get turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("consultation store: scan rows: %w", err)
	}
	if turns == nil {
		turns = []consultstore.Turn{}
	}
	return turns, nil
}

// SearchTurns implements [consultstore.ConsultationStore]. It performs a
// PostgreSQL full-text search over the text column and applies optional
// filters from opts.
//
// The query is passed to plainto_tsquery so no special operator syntax is
// required.
func (s *Store) SearchTurns(ctx context.Context, query string, opts consultstore.SearchOpts) ([]consultstore.TurnHit, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.ConsultationID != "" {
		conditions = append(conditions, "consultation_id = "+next(opts.ConsultationID))
	}
	if opts.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(opts.Speaker))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "recorded_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "recorded_at < "+next(opts.Before))
	}

	q := "SELECT consultation_id, seq, speaker, text, raw_text, start_offset, end_offset, recorded_at\n" +
		"FROM   consultation_turns\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY recorded_at"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("consultation store: search turns: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (consultstore.TurnHit, error) {
		var h consultstore.TurnHit
		if err := row.Scan(
			&h.ConsultationID,
			&h.Turn.Seq,
			&h.Turn.Speaker,
			&h.Turn.Text,
			&h.Turn.RawText,
			&h.Turn.Start,
			&h.Turn.End,
			&h.Turn.RecordedAt,
		); err != nil {
			return consultstore.TurnHit{}, err
		}
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("consultation store: scan rows: %w", err)
	}
	if hits == nil {
		hits = []consultstore.TurnHit{}
	}
	return hits, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsultation(row rowScanner) (consultstore.Consultation, error) {
	var (
		c       consultstore.Consultation
		endedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.PatientName, &c.Locale, &c.Summary, &c.StartedAt, &endedAt); err != nil {
		return consultstore.Consultation{}, err
	}
	if endedAt.Valid {
		c.EndedAt = endedAt.Time
	}
	return c, nil
}

func scanTurn(row pgx.CollectableRow) (consultstore.Turn, error) {
	var t consultstore.Turn
	if err := row.Scan(
		&t.Seq,
		&t.Speaker,
		&t.Text,
		&t.RawText,
		&t.Start,
		&t.End,
		&t.RecordedAt,
	); err != nil {
		return consultstore.Turn{}, err
	}
	return t, nil
}
