package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/repository/sqlite"
	"github.com/m-mizutani/gt"
)

func insertFact(t *testing.T, db *sqlite.SQLite, content, updated string) {
	t.Helper()
	_, err := db.DB().ExecContext(context.Background(),
		`INSERT INTO semantic_facts (fact_type, subject, content, confidence, source_memory_ids, created_at, last_updated)
		 VALUES ('general', 'user_U001', ?, 0.8, '[]', ?, ?)`,
		content, updated, updated)
	gt.NoError(t, err).Required()
}

func TestQueryOrdersEqualConfidenceByTime(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(ctx, ":memory:")
	gt.NoError(t, err).Required()
	defer func() { _ = db.Close() }()

	base := time.Date(2026, 1, 2, 0, 0, 5, 0, time.UTC)
	insertFact(t, db, "older", sqlite.FormatTime(base))
	insertFact(t, db, "newer", sqlite.FormatTime(base.Add(500*time.Millisecond)))

	facts, err := db.Fact().Query(ctx, model.FactQuery{Subject: "user_U001"})
	gt.NoError(t, err).Required()
	gt.Array(t, facts).Length(2).Required()
	gt.Value(t, facts[0].Content).Equal("newer")
	gt.Value(t, facts[1].Content).Equal("older")
}

func TestNewNormalizesLegacyTimestamps(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "laffey.db")

	db, err := sqlite.New(ctx, path)
	gt.NoError(t, err).Required()
	// variable width RFC3339 sorts "05.5Z" before "05Z"
	insertFact(t, db, "older", "2026-01-02T00:00:05Z")
	insertFact(t, db, "newer", "2026-01-02T00:00:05.5Z")
	gt.NoError(t, db.Close()).Required()

	db, err = sqlite.New(ctx, path)
	gt.NoError(t, err).Required()
	defer func() { _ = db.Close() }()

	facts, err := db.Fact().Query(ctx, model.FactQuery{Subject: "user_U001"})
	gt.NoError(t, err).Required()
	gt.Array(t, facts).Length(2).Required()
	gt.Value(t, facts[0].Content).Equal("newer")
	want := time.Date(2026, 1, 2, 0, 0, 5, 500_000_000, time.UTC)
	if !facts[0].LastUpdated.Equal(want) {
		t.Errorf("unexpected last_updated: %v", facts[0].LastUpdated)
	}
}
