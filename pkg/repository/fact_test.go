package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/gt"
)

func runFactRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Upsert creates a new fact", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		fact, err := repo.Fact().Upsert(ctx, &model.SemanticFact{
			Kind:            "preference",
			Subject:         model.SubjectForUser("U001"),
			Content:         "likes green tea",
			Confidence:      0.8,
			SourceMemoryIDs: []model.MemoryID{"m1"},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, fact.Content).Equal("likes green tea")
		gt.Value(t, fact.Confidence).Equal(0.8)
		gt.Array(t, fact.SourceMemoryIDs).Length(1)
		gt.Bool(t, fact.CreatedAt.IsZero()).False()
		gt.Bool(t, fact.LastUpdated.IsZero()).False()
	})

	t.Run("Upsert of the same natural key merges", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := model.SemanticFact{
			Kind:            "preference",
			Subject:         model.SubjectForUser("U002"),
			Content:         "enjoys hiking",
			Confidence:      0.6,
			SourceMemoryIDs: []model.MemoryID{"m1", "m2"},
		}
		first, err := repo.Fact().Upsert(ctx, &base)
		gt.NoError(t, err).Required()

		time.Sleep(5 * time.Millisecond)

		second := base
		second.Confidence = 0.9
		second.SourceMemoryIDs = []model.MemoryID{"m2", "m3"}
		merged, err := repo.Fact().Upsert(ctx, &second)
		gt.NoError(t, err).Required()

		gt.Value(t, merged.Confidence).Equal(0.9)
		gt.Array(t, merged.SourceMemoryIDs).Length(3)
		gt.Value(t, merged.SourceMemoryIDs[0]).Equal(model.MemoryID("m1"))
		gt.Value(t, merged.SourceMemoryIDs[2]).Equal(model.MemoryID("m3"))
		gt.Bool(t, merged.LastUpdated.After(first.LastUpdated)).True()
		gt.Bool(t, merged.CreatedAt.Sub(first.CreatedAt).Abs() < time.Millisecond).True()

		facts, err := repo.Fact().Query(ctx, model.FactQuery{Subject: base.Subject})
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(1)
	})

	t.Run("Different content under the same subject is a new fact", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		subject := model.SubjectForUser("U003")
		for _, content := range []string{"lives in Osaka", "works as a nurse"} {
			_, err := repo.Fact().Upsert(ctx, &model.SemanticFact{
				Kind:       "general",
				Subject:    subject,
				Content:    content,
				Confidence: 0.8,
			})
			gt.NoError(t, err).Required()
		}

		facts, err := repo.Fact().Query(ctx, model.FactQuery{Subject: subject})
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(2)
	})

	t.Run("Query orders by confidence and applies filters and limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		subject := model.SubjectForUser("U004")
		inputs := []model.SemanticFact{
			{Kind: "preference", Subject: subject, Content: "likes cats", Confidence: 0.5},
			{Kind: "preference", Subject: subject, Content: "likes jazz", Confidence: 0.9},
			{Kind: "general", Subject: subject, Content: "has a sister", Confidence: 0.7},
			{Kind: "preference", Subject: model.SubjectForUser("U999"), Content: "likes dogs", Confidence: 1.0},
		}
		for i := range inputs {
			_, err := repo.Fact().Upsert(ctx, &inputs[i])
			gt.NoError(t, err).Required()
		}

		all, err := repo.Fact().Query(ctx, model.FactQuery{Subject: subject})
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(3)
		gt.Value(t, all[0].Content).Equal("likes jazz")
		gt.Value(t, all[1].Content).Equal("has a sister")
		gt.Value(t, all[2].Content).Equal("likes cats")

		prefs, err := repo.Fact().Query(ctx, model.FactQuery{Subject: subject, Kind: "preference"})
		gt.NoError(t, err).Required()
		gt.Array(t, prefs).Length(2)

		limited, err := repo.Fact().Query(ctx, model.FactQuery{Subject: subject, Limit: 1})
		gt.NoError(t, err).Required()
		gt.Array(t, limited).Length(1)
		gt.Value(t, limited[0].Content).Equal("likes jazz")
	})

	t.Run("Query breaks confidence ties by most recent update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		subject := model.SubjectForUser("U005")
		for _, content := range []string{"likes tea", "likes coffee"} {
			_, err := repo.Fact().Upsert(ctx, &model.SemanticFact{
				Kind:       "preference",
				Subject:    subject,
				Content:    content,
				Confidence: 0.8,
			})
			gt.NoError(t, err).Required()
			time.Sleep(5 * time.Millisecond)
		}

		facts, err := repo.Fact().Query(ctx, model.FactQuery{Subject: subject})
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(2).Required()
		gt.Value(t, facts[0].Content).Equal("likes coffee")

		// touching the older fact moves it to the front
		_, err = repo.Fact().Upsert(ctx, &model.SemanticFact{
			Kind:       "preference",
			Subject:    subject,
			Content:    "likes tea",
			Confidence: 0.8,
		})
		gt.NoError(t, err).Required()

		facts, err = repo.Fact().Query(ctx, model.FactQuery{Subject: subject})
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(2).Required()
		gt.Value(t, facts[0].Content).Equal("likes tea")
	})

	t.Run("Query for unknown subject returns empty", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		facts, err := repo.Fact().Query(ctx, model.FactQuery{Subject: model.SubjectForUser("nobody")})
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(0)
	})

	t.Run("Count and DeleteAll", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, content := range []string{"a", "b", "c"} {
			_, err := repo.Fact().Upsert(ctx, &model.SemanticFact{
				Kind:       "general",
				Subject:    "unknown",
				Content:    content,
				Confidence: 0.8,
			})
			gt.NoError(t, err).Required()
		}

		count, err := repo.Fact().Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(3)

		deleted, err := repo.Fact().DeleteAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, deleted).Equal(3)

		count, err = repo.Fact().Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(0)
	})

	t.Run("Upsert nil returns error", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Fact().Upsert(context.Background(), nil)
		gt.Value(t, err).NotNil()
	})
}

func TestMemoryFactRepository(t *testing.T) {
	runFactRepositoryTest(t, newMemoryRepository)
}

func TestSQLiteFactRepository(t *testing.T) {
	runFactRepositoryTest(t, newSQLiteRepository)
}

func TestFirestoreFactRepository(t *testing.T) {
	runFactRepositoryTest(t, newFirestoreRepository)
}
