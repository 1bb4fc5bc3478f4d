package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/arogyalabs/medscribe/pkg/consultstore"
	"github.com/arogyalabs/medscribe/pkg/consultstore/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if MEDSCRIBE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MEDSCRIBE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEDSCRIBE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	// Use a bare pool to drop and recreate the schema.
	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// mustPool opens a pgxpool with pgvector types registered (needed for the
// HNSW index to not refuse our connection during dropSchema).
func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// best-effort: pgvector may not be installed yet on a fresh DB
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

// dropSchema removes all tables created by Migrate in reverse dependency order.
func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS case_vectors CASCADE",
		"DROP TABLE IF EXISTS consultation_turns CASCADE",
		"DROP TABLE IF EXISTS consultations CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema (%s): %v", stmt, err)
		}
	}
}

func newConsultation(id string) consultstore.Consultation {
	return consultstore.Consultation{
		ID:          id,
		PatientName: "Sharma",
		Locale:      "en-IN",
		StartedAt:   time.Now(),
	}
}

func TestConsultationCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := newConsultation("c1")
	if err := store.CreateConsultation(ctx, c); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}

	got, err := store.GetConsultation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConsultation: %v", err)
	}
	if got.PatientName != "Sharma" || got.Locale != "en-IN" {
		t.Errorf("got %+v, want patient Sharma, locale en-IN", got)
	}
	if !got.EndedAt.IsZero() {
		t.Errorf("EndedAt = %v, want zero for a live consultation", got.EndedAt)
	}

	if err := store.FinishConsultation(ctx, "c1", "Meera Sharma", "viral fever, 3-day paracetamol course"); err != nil {
		t.Fatalf("FinishConsultation: %v", err)
	}
	got, err = store.GetConsultation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConsultation after finish: %v", err)
	}
	if got.Summary == "" || got.EndedAt.IsZero() {
		t.Errorf("finish did not persist: %+v", got)
	}
	if got.PatientName != "Meera Sharma" {
		t.Errorf("PatientName = %q, want updated name", got.PatientName)
	}

	if err := store.DeleteConsultation(ctx, "c1"); err != nil {
		t.Fatalf("DeleteConsultation: %v", err)
	}
	if _, err := store.GetConsultation(ctx, "c1"); !errors.Is(err, consultstore.ErrNotFound) {
		t.Errorf("GetConsultation after delete: err = %v, want ErrNotFound", err)
	}
}

func TestGetConsultationNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetConsultation(context.Background(), "missing")
	if !errors.Is(err, consultstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFinishConsultationKeepsNameWhenEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConsultation(ctx, newConsultation("c1")); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	if err := store.FinishConsultation(ctx, "c1", "", "summary"); err != nil {
		t.Fatalf("FinishConsultation: %v", err)
	}
	got, err := store.GetConsultation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConsultation: %v", err)
	}
	if got.PatientName != "Sharma" {
		t.Errorf("PatientName = %q, want original name preserved", got.PatientName)
	}
}

func TestAppendAndGetTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConsultation(ctx, newConsultation("c1")); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}

	turns := []consultstore.Turn{
		{Speaker: "Doctor", Text: "What brings you in today?", Start: 0, End: 2.1},
		{Speaker: "Patient", Text: "Fever since Tuesday.", Start: 2.5, End: 4.0},
		{Speaker: "Doctor", Text: "Take paracetamol 500mg twice a day.", Start: 4.4, End: 7.2},
	}
	for _, turn := range turns {
		if err := store.AppendTurn(ctx, "c1", turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	got, err := store.GetTurns(ctx, "c1")
	if err != nil {
		t.Fatalf("GetTurns: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, turn := range got {
		if turn.Seq != i {
			t.Errorf("turn %d: Seq = %d, want server-assigned sequence", i, turn.Seq)
		}
		if turn.Text != turns[i].Text || turn.Speaker != turns[i].Speaker {
			t.Errorf("turn %d = %+v, want %+v", i, turn, turns[i])
		}
	}
}

func TestGetTurnsEmptyConsultation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConsultation(ctx, newConsultation("c1")); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	got, err := store.GetTurns(ctx, "c1")
	if err != nil {
		t.Fatalf("GetTurns: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestSearchTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2"} {
		if err := store.CreateConsultation(ctx, newConsultation(id)); err != nil {
			t.Fatalf("CreateConsultation(%s): %v", id, err)
		}
	}
	seed := []struct {
		id   string
		turn consultstore.Turn
	}{
		{"c1", consultstore.Turn{Speaker: "Doctor", Text: "Take paracetamol twice a day."}},
		{"c1", consultstore.Turn{Speaker: "Patient", Text: "Will the paracetamol upset my stomach?"}},
		{"c2", consultstore.Turn{Speaker: "Doctor", Text: "Start an azithromycin course."}},
	}
	for _, s := range seed {
		if err := store.AppendTurn(ctx, s.id, s.turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	hits, err := store.SearchTurns(ctx, "paracetamol", consultstore.SearchOpts{})
	if err != nil {
		t.Fatalf("SearchTurns: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(hits), hits)
	}

	hits, err = store.SearchTurns(ctx, "paracetamol", consultstore.SearchOpts{Speaker: "Doctor"})
	if err != nil {
		t.Fatalf("SearchTurns with speaker filter: %v", err)
	}
	if len(hits) != 1 || hits[0].Turn.Speaker != "Doctor" {
		t.Errorf("hits = %+v, want only the doctor's turn", hits)
	}

	hits, err = store.SearchTurns(ctx, "amoxicillin", consultstore.SearchOpts{})
	if err != nil {
		t.Fatalf("SearchTurns no match: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("hits = %v, want empty non-nil slice", hits)
	}
}

func TestCaseIndexSimilarCases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		id  string
		vec []float32
	}{
		{"fever-case", []float32{1, 0, 0, 0}},
		{"stomach-case", []float32{0, 1, 0, 0}},
		{"mixed-case", []float32{0.7, 0.7, 0, 0}},
	}
	for _, c := range cases {
		if err := store.CreateConsultation(ctx, newConsultation(c.id)); err != nil {
			t.Fatalf("CreateConsultation(%s): %v", c.id, err)
		}
		if err := store.IndexCase(ctx, c.id, c.vec); err != nil {
			t.Fatalf("IndexCase(%s): %v", c.id, err)
		}
	}

	results, err := store.SimilarCases(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SimilarCases: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].Consultation.ID != "fever-case" {
		t.Errorf("closest = %q, want fever-case", results[0].Consultation.ID)
	}
	if results[1].Consultation.ID != "mixed-case" {
		t.Errorf("second = %q, want mixed-case", results[1].Consultation.ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not ordered by ascending distance")
	}
}

func TestIndexCaseUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConsultation(ctx, newConsultation("c1")); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	if err := store.IndexCase(ctx, "c1", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("IndexCase: %v", err)
	}
	if err := store.IndexCase(ctx, "c1", []float32{0, 0, 0, 1}); err != nil {
		t.Fatalf("IndexCase upsert: %v", err)
	}

	results, err := store.SimilarCases(ctx, []float32{0, 0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("SimilarCases: %v", err)
	}
	if len(results) != 1 || results[0].Distance > 0.0001 {
		t.Errorf("results = %+v, want the replaced vector at distance ~0", results)
	}
}

func TestDeleteConsultationCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConsultation(ctx, newConsultation("c1")); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	if err := store.AppendTurn(ctx, "c1", consultstore.Turn{Speaker: "Doctor", Text: "hello"}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := store.IndexCase(ctx, "c1", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("IndexCase: %v", err)
	}
	if err := store.DeleteConsultation(ctx, "c1"); err != nil {
		t.Fatalf("DeleteConsultation: %v", err)
	}

	results, err := store.SimilarCases(ctx, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("SimilarCases: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("case vector survived delete: %+v", results)
	}
}

func TestListConsultationsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		c := newConsultation(id)
		c.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateConsultation(ctx, c); err != nil {
			t.Fatalf("CreateConsultation(%s): %v", id, err)
		}
	}

	list, err := store.ListConsultations(ctx, 2)
	if err != nil {
		t.Fatalf("ListConsultations: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "mid" {
		t.Errorf("list = %+v, want [new mid]", list)
	}
}
