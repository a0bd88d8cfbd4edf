package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/gt"
)

func unitVector(dim, hot int, weight float32) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	v[(hot+1)%dim] = weight
	return v
}

func newRecord(channelID string, emb []float32) *model.VectorRecord {
	mem := &model.EpisodicMemory{
		ID:          model.NewMemoryID(),
		SpeakerID:   "U001",
		SpeakerName: "Mary",
		ChannelID:   channelID,
		UserText:    "hello",
		AgentText:   "hi there",
		Kind:        model.MemoryKindEpisodic,
	}
	return mem.ToRecord(emb)
}

func runVectorStoreTest(t *testing.T, newStore func(t *testing.T) interfaces.VectorStore) {
	t.Helper()

	const dim = model.EmbeddingDimension

	t.Run("Upsert then Get returns the record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := newRecord("C001", unitVector(dim, 0, 0.5))
		gt.NoError(t, store.Upsert(ctx, rec)).Required()

		got, err := store.Get(ctx, rec.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.ID).Equal(rec.ID)
		gt.Value(t, got.Text).Equal(rec.Text)
		gt.Value(t, got.Metadata[model.MetaChannelID]).Equal("C001")
		gt.Value(t, got.Metadata[model.MetaUserText]).Equal("hello")
		gt.Array(t, got.Embedding).Length(dim)
	})

	t.Run("Upsert with an existing ID replaces it", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := newRecord("C001", unitVector(dim, 0, 0))
		gt.NoError(t, store.Upsert(ctx, rec)).Required()

		rec.Metadata[model.MetaAgentText] = "updated"
		gt.NoError(t, store.Upsert(ctx, rec)).Required()

		got, err := store.Get(ctx, rec.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Metadata[model.MetaAgentText]).Equal("updated")

		count, err := store.Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(1)
	})

	t.Run("Get and Delete of unknown ID return ErrNotFound", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Get(ctx, model.NewMemoryID())
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()

		err = store.Delete(ctx, model.NewMemoryID())
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
	})

	t.Run("Delete removes the record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := newRecord("C001", unitVector(dim, 3, 0))
		gt.NoError(t, store.Upsert(ctx, rec)).Required()
		gt.NoError(t, store.Delete(ctx, rec.ID)).Required()

		_, err := store.Get(ctx, rec.ID)
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
	})

	t.Run("Query ranks by similarity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		near := newRecord("C001", unitVector(dim, 0, 0.1))
		mid := newRecord("C001", unitVector(dim, 0, 1.0))
		far := newRecord("C001", unitVector(dim, 10, 0))
		for _, rec := range []*model.VectorRecord{far, mid, near} {
			gt.NoError(t, store.Upsert(ctx, rec)).Required()
		}

		results, err := store.Query(ctx, unitVector(dim, 0, 0), 2, nil)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(2)
		gt.Value(t, results[0].Record.ID).Equal(near.ID)
		gt.Value(t, results[1].Record.ID).Equal(mid.ID)
		gt.Bool(t, results[0].Score >= results[1].Score).True()
		gt.Bool(t, results[0].Score > 0.9).True()
	})

	t.Run("Query applies metadata filter", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		a := newRecord("C-A", unitVector(dim, 0, 0))
		b := newRecord("C-B", unitVector(dim, 0, 0.2))
		gt.NoError(t, store.Upsert(ctx, a)).Required()
		gt.NoError(t, store.Upsert(ctx, b)).Required()

		results, err := store.Query(ctx, unitVector(dim, 0, 0), 5, map[string]string{model.MetaChannelID: "C-B"})
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].Record.ID).Equal(b.ID)
	})

	t.Run("Query with k larger than the store returns everything", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		gt.NoError(t, store.Upsert(ctx, newRecord("C001", unitVector(dim, 1, 0)))).Required()

		results, err := store.Query(ctx, unitVector(dim, 1, 0), 10, nil)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
	})

	t.Run("Query on empty store returns empty", func(t *testing.T) {
		store := newStore(t)

		results, err := store.Query(context.Background(), unitVector(dim, 1, 0), 5, nil)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(0)
	})

	t.Run("DeleteAll clears and reports the count", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			gt.NoError(t, store.Upsert(ctx, newRecord("C001", unitVector(dim, i, 0)))).Required()
		}

		deleted, err := store.DeleteAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, deleted).Equal(3)

		count, err := store.Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(0)

		// store stays usable after a wipe
		gt.NoError(t, store.Upsert(ctx, newRecord("C001", unitVector(dim, 0, 0)))).Required()
		count, err = store.Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(1)
	})

	t.Run("Records restore as episodic memories", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		mem := &model.EpisodicMemory{
			ID:             model.NewMemoryID(),
			SpeakerID:      "U002",
			SpeakerName:    "Jun",
			ChannelID:      "D001",
			UserText:       model.LearnedText("What is the capital of France?"),
			AgentText:      "Paris",
			Kind:           model.MemoryKindLearnedKnowledge,
			RelevanceScore: 1.5,
			TopicKeywords:  []string{"geography"},
		}
		gt.NoError(t, store.Upsert(ctx, mem.ToRecord(unitVector(dim, 2, 0)))).Required()

		rec, err := store.Get(ctx, mem.ID)
		gt.NoError(t, err).Required()

		restored := model.EpisodicMemoryFromRecord(rec)
		gt.Bool(t, restored.IsLearned()).True()
		gt.Value(t, restored.Question()).Equal("What is the capital of France?")
		gt.Value(t, restored.AgentText).Equal("Paris")
		gt.Value(t, restored.RelevanceScore).Equal(1.5)
		gt.Array(t, restored.TopicKeywords).Length(1)
	})
}

func TestMemoryVectorStore(t *testing.T) {
	runVectorStoreTest(t, newMemoryVectorStore)
}

func TestChromemVectorStore(t *testing.T) {
	runVectorStoreTest(t, newChromemVectorStore)
}

func TestPersistentChromemVectorStore(t *testing.T) {
	runVectorStoreTest(t, newPersistentChromemVectorStore)
}

func TestFirestoreVectorStore(t *testing.T) {
	runVectorStoreTest(t, newFirestoreVectorStore)
}
