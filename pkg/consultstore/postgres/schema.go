// Package postgres provides a PostgreSQL-backed implementation of the
// consultstore interfaces: the consultation record with full-text turn search,
// plus a pgvector similar-case index over consultation summaries.
//
// Both concerns share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	_ = store.CreateConsultation(ctx, c)
//	_ = store.AppendTurn(ctx, c.ID, turn)
//	hits, _ := store.SearchTurns(ctx, "paracetamol dosage", opts)
//	cases, _ := store.SimilarCases(ctx, queryVec, 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlConsultations = `
CREATE TABLE IF NOT EXISTS consultations (
    id           TEXT         PRIMARY KEY,
    patient_name TEXT         NOT NULL DEFAULT '',
    locale       TEXT         NOT NULL DEFAULT '',
    summary      TEXT         NOT NULL DEFAULT '',
    started_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_consultations_started_at
    ON consultations (started_at);

CREATE TABLE IF NOT EXISTS consultation_turns (
    consultation_id TEXT         NOT NULL REFERENCES consultations (id) ON DELETE CASCADE,
    seq             INTEGER      NOT NULL,
    speaker         TEXT         NOT NULL,
    text            TEXT         NOT NULL,
    raw_text        TEXT         NOT NULL DEFAULT '',
    start_offset    DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_offset      DOUBLE PRECISION NOT NULL DEFAULT 0,
    recorded_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (consultation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_turns_recorded_at
    ON consultation_turns (recorded_at);

CREATE INDEX IF NOT EXISTS idx_turns_fts
    ON consultation_turns USING GIN (to_tsvector('english', text));
`

// ddlCaseVectors returns the case-index DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlCaseVectors(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS case_vectors (
    consultation_id TEXT       PRIMARY KEY REFERENCES consultations (id) ON DELETE CASCADE,
    embedding       vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_vectors_embedding
    ON case_vectors USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlConsultations,
		ddlCaseVectors(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
