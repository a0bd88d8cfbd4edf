package vectorindex_test

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/repository/memory"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/m-mizutani/gt"
)

const testDim = 32

// bagEmbedder hashes words into a small vector so that texts sharing words
// are similar
type bagEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (e *bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}

	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!:")))
		v[h.Sum32()%testDim] += 1
	}
	return v, nil
}

func (e *bagEmbedder) requested(text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.texts {
		if t == text {
			return true
		}
	}
	return false
}

// faultyStore wraps the in-memory store and injects failures
type faultyStore struct {
	*memory.VectorStore
	upsertFn func(rec *model.VectorRecord) error
}

func (s *faultyStore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if s.upsertFn != nil {
		if err := s.upsertFn(rec); err != nil {
			return err
		}
	}
	return s.VectorStore.Upsert(ctx, rec)
}

func newIndex(t *testing.T, store interfaces.VectorStore) (*vectorindex.Index, *bagEmbedder) {
	t.Helper()
	embedder := &bagEmbedder{}
	idx, err := vectorindex.NewWithStore(store, embedder)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = idx.Close() })
	return idx, embedder
}

func episode(speakerID, channelID, user, agent string) *model.EpisodicMemory {
	return &model.EpisodicMemory{
		SpeakerID:   speakerID,
		SpeakerName: "user-" + speakerID,
		ChannelID:   channelID,
		UserText:    user,
		AgentText:   agent,
		Kind:        model.MemoryKindEpisodic,
		Timestamp:   time.Now().UTC(),
	}
}

func learned(question, answer string) *model.EpisodicMemory {
	return &model.EpisodicMemory{
		SpeakerID:   "U-TEACHER",
		SpeakerName: "teacher",
		ChannelID:   "admin",
		UserText:    model.LearnedText(question),
		AgentText:   answer,
		Kind:        model.MemoryKindLearnedKnowledge,
		Timestamp:   time.Now().UTC(),
	}
}

func TestIndex_NotReady(t *testing.T) {
	release := make(chan struct{})
	store := memory.NewVectorStore()

	idx, err := vectorindex.New(context.Background(), func(ctx context.Context) (interfaces.VectorStore, error) {
		<-release
		return store, nil
	}, &bagEmbedder{}, vectorindex.WithReadyTimeouts(20*time.Millisecond, 20*time.Millisecond))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	gt.Bool(t, idx.Ready()).False()

	id, err := idx.Insert(ctx, episode("U1", "C1", "hello", "hi"))
	gt.Value(t, id).Equal(model.MemoryID(""))
	gt.Bool(t, errors.Is(err, vectorindex.ErrNotReady)).True()

	gt.Array(t, idx.Search(ctx, "hello", 5, model.MemoryFilter{})).Length(0)
	gt.Array(t, idx.SearchLearned(ctx, "hello", 3)).Length(0)
	gt.Bool(t, idx.Delete(ctx, model.NewMemoryID())).False()
	gt.Bool(t, idx.Update(ctx, model.NewMemoryID(), episode("U1", "C1", "a", "b"))).False()

	close(release)
	deadline := time.Now().Add(time.Second)
	for !idx.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	gt.Bool(t, idx.Ready()).True()

	// once ready, writes go through
	id, err = idx.Insert(ctx, episode("U1", "C1", "hello", "hi"))
	gt.NoError(t, err).Required()
	gt.String(t, string(id)).NotEqual("")
}

func TestIndex_InitFailure(t *testing.T) {
	idx, err := vectorindex.New(context.Background(), func(ctx context.Context) (interfaces.VectorStore, error) {
		return nil, errors.New("connection refused")
	}, &bagEmbedder{})
	gt.NoError(t, err).Required()
	gt.NoError(t, idx.Close())

	gt.Bool(t, idx.Ready()).False()
	_, err = idx.Insert(context.Background(), episode("U1", "C1", "hello", "hi"))
	gt.Bool(t, errors.Is(err, vectorindex.ErrInitFailed)).True()
}

func TestIndex_InsertAndSearch(t *testing.T) {
	idx, _ := newIndex(t, memory.NewVectorStore())
	ctx := context.Background()

	mem := episode("U1", "C1", "I adopted a cat named Mochi", "Mochi is a lovely name")
	id, err := idx.Insert(ctx, mem)
	gt.NoError(t, err).Required()
	gt.Value(t, mem.ID).Equal(id)

	_, err = idx.Insert(ctx, episode("U2", "C2", "I adopted a cat too", "Cats are great"))
	gt.NoError(t, err).Required()

	t.Run("filter by speaker", func(t *testing.T) {
		hits := idx.Search(ctx, "cat Mochi", 5, model.MemoryFilter{SpeakerID: "U1"})
		gt.Array(t, hits).Length(1)
		gt.Value(t, hits[0].Memory.ID).Equal(id)
		gt.Value(t, hits[0].Memory.UserText).Equal("I adopted a cat named Mochi")
	})

	t.Run("no filter returns both", func(t *testing.T) {
		hits := idx.Search(ctx, "cat", 5, model.MemoryFilter{})
		gt.Array(t, hits).Length(2)
	})

	t.Run("zero k returns empty", func(t *testing.T) {
		gt.Array(t, idx.Search(ctx, "cat", 0, model.MemoryFilter{})).Length(0)
	})
}

func TestIndex_EmptyQueryUsesSeedQuery(t *testing.T) {
	idx, embedder := newIndex(t, memory.NewVectorStore())
	ctx := context.Background()

	_, err := idx.Insert(ctx, episode("U1", "C1", "hello", "hi"))
	gt.NoError(t, err).Required()

	hits := idx.Search(ctx, "", 5, model.MemoryFilter{})
	gt.Array(t, hits).Length(1)
	gt.Bool(t, embedder.requested(vectorindex.GeneralSeedQuery)).True()

	idx.SearchLearned(ctx, "", 3)
	gt.Bool(t, embedder.requested(vectorindex.LearnedSeedQuery)).True()
}

func TestIndex_EmbedFailureDegrades(t *testing.T) {
	store := memory.NewVectorStore()
	embedder := &bagEmbedder{err: errors.New("embedding quota exceeded")}
	idx, err := vectorindex.NewWithStore(store, embedder)
	gt.NoError(t, err).Required()
	ctx := context.Background()

	id, err := idx.Insert(ctx, episode("U1", "C1", "hello", "hi"))
	gt.Value(t, err).NotNil()
	gt.Value(t, id).Equal(model.MemoryID(""))
	gt.Array(t, idx.Search(ctx, "hello", 5, model.MemoryFilter{})).Length(0)
}

func TestIndex_SearchLearned(t *testing.T) {
	store := memory.NewVectorStore()
	idx, _ := newIndex(t, store)
	ctx := context.Background()

	for _, qa := range [][2]string{
		{"What is the capital of France?", "Paris"},
		{"What is the capital of Japan?", "Tokyo"},
		{"Who wrote Hamlet?", "Shakespeare"},
	} {
		_, err := idx.Insert(ctx, learned(qa[0], qa[1]))
		gt.NoError(t, err).Required()
	}

	// kind says learned but the tag is missing: filter drift
	drifted := learned("What is the capital of Italy?", "Rome")
	drifted.UserText = "What is the capital of Italy?"
	_, err := idx.Insert(ctx, drifted)
	gt.NoError(t, err).Required()

	_, err = idx.Insert(ctx, episode("U1", "C1", "What is the capital of Spain?", "Madrid"))
	gt.NoError(t, err).Required()

	hits := idx.SearchLearned(ctx, "capital of France", 5)
	gt.Array(t, hits).Length(3)
	for _, hit := range hits {
		gt.Bool(t, hit.Memory.IsLearned()).True()
	}
	for i := 1; i < len(hits); i++ {
		gt.Bool(t, hits[i-1].Score >= hits[i].Score).True()
	}

	plain := idx.Search(ctx, "capital of France", 1, model.MemoryFilter{Kind: model.MemoryKindLearnedKnowledge})
	gt.Array(t, plain).Length(1)
	gt.Value(t, hits[0].Memory.ID).Equal(plain[0].Memory.ID)
	gt.Value(t, hits[0].Score).Equal(plain[0].Score * vectorindex.DefaultLearnedBoost)

	gt.Array(t, idx.SearchLearned(ctx, "capital of France", 2)).Length(2)
}

func TestIndex_Update(t *testing.T) {
	t.Run("replaces content under the same id", func(t *testing.T) {
		store := memory.NewVectorStore()
		idx, _ := newIndex(t, store)
		ctx := context.Background()

		id, err := idx.Insert(ctx, episode("U1", "C1", "my favorite color is blue", "noted"))
		gt.NoError(t, err).Required()

		updated := episode("U1", "C1", "my favorite color is green", "noted again")
		gt.Bool(t, idx.Update(ctx, id, updated)).True()

		hits := idx.Search(ctx, "favorite color", 5, model.MemoryFilter{SpeakerID: "U1", ChannelID: "C1"})
		gt.Array(t, hits).Length(1)
		gt.Value(t, hits[0].Memory.ID).Equal(id)
		gt.Value(t, hits[0].Memory.UserText).Equal("my favorite color is green")

		count, err := idx.Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(1)
	})

	t.Run("keeps the learn tag", func(t *testing.T) {
		idx, _ := newIndex(t, memory.NewVectorStore())
		ctx := context.Background()

		id, err := idx.Insert(ctx, learned("Who painted the Mona Lisa?", "Michelangelo"))
		gt.NoError(t, err).Required()

		fix := &model.EpisodicMemory{
			SpeakerID: "U-TEACHER",
			ChannelID: "admin",
			UserText:  "Who painted the Mona Lisa?",
			AgentText: "Leonardo da Vinci",
			Kind:      model.MemoryKindLearnedKnowledge,
		}
		gt.Bool(t, idx.Update(ctx, id, fix)).True()

		got, err := idx.Get(ctx, id)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.IsLearned()).True()
		gt.Value(t, got.Question()).Equal("Who painted the Mona Lisa?")
		gt.Value(t, got.AgentText).Equal("Leonardo da Vinci")
	})

	t.Run("unknown id fails", func(t *testing.T) {
		idx, _ := newIndex(t, memory.NewVectorStore())
		gt.Bool(t, idx.Update(context.Background(), model.NewMemoryID(), episode("U1", "C1", "a", "b"))).False()
	})

	t.Run("failure staging the new version leaves the original", func(t *testing.T) {
		store := &faultyStore{VectorStore: memory.NewVectorStore()}
		idx, _ := newIndex(t, store)
		ctx := context.Background()

		id, err := idx.Insert(ctx, episode("U1", "C1", "original", "reply"))
		gt.NoError(t, err).Required()

		store.upsertFn = func(rec *model.VectorRecord) error {
			return errors.New("disk full")
		}
		gt.Bool(t, idx.Update(ctx, id, episode("U1", "C1", "changed", "reply"))).False()

		got, err := idx.Get(ctx, id)
		gt.NoError(t, err).Required()
		gt.Value(t, got.UserText).Equal("original")

		count, err := idx.Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(1)
	})

	t.Run("failure replacing the original leaves the original and no staged copy", func(t *testing.T) {
		store := &faultyStore{VectorStore: memory.NewVectorStore()}
		idx, _ := newIndex(t, store)
		ctx := context.Background()

		id, err := idx.Insert(ctx, episode("U1", "C1", "original", "reply"))
		gt.NoError(t, err).Required()

		store.upsertFn = func(rec *model.VectorRecord) error {
			if rec.ID == id {
				return errors.New("write conflict")
			}
			return nil
		}
		gt.Bool(t, idx.Update(ctx, id, episode("U1", "C1", "changed", "reply"))).False()

		got, err := idx.Get(ctx, id)
		gt.NoError(t, err).Required()
		gt.Value(t, got.UserText).Equal("original")

		count, err := idx.Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(1)
	})

	t.Run("original lost mid-update keeps the staged copy", func(t *testing.T) {
		store := &faultyStore{VectorStore: memory.NewVectorStore()}
		idx, _ := newIndex(t, store)
		ctx := context.Background()

		id, err := idx.Insert(ctx, episode("U1", "C1", "original", "reply"))
		gt.NoError(t, err).Required()

		store.upsertFn = func(rec *model.VectorRecord) error {
			if rec.ID == id {
				// simulate a backend that dropped the record and then failed
				_ = store.VectorStore.Delete(ctx, id)
				return errors.New("connection reset")
			}
			return nil
		}
		gt.Bool(t, idx.Update(ctx, id, episode("U1", "C1", "changed", "reply"))).False()

		count, err := store.Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(1)

		remaining, err := store.Query(ctx, make([]float32, testDim), 10, map[string]string{model.MetaShadowOf: id.String()})
		gt.NoError(t, err).Required()
		gt.Array(t, remaining).Length(1)
		gt.Value(t, remaining[0].Record.Metadata[model.MetaUserText]).Equal("changed")
	})
}

func TestIndex_DeleteListCountWipe(t *testing.T) {
	idx, _ := newIndex(t, memory.NewVectorStore())
	ctx := context.Background()

	id, err := idx.Insert(ctx, learned("What is 2+2?", "4"))
	gt.NoError(t, err).Required()
	_, err = idx.Insert(ctx, episode("U1", "C1", "hello", "hi"))
	gt.NoError(t, err).Required()

	listed := idx.List(ctx, model.MemoryFilter{Kind: model.MemoryKindLearnedKnowledge}, 10)
	gt.Array(t, listed).Length(1)
	gt.Value(t, listed[0].ID).Equal(id)

	gt.Bool(t, idx.Delete(ctx, id)).True()
	gt.Bool(t, idx.Delete(ctx, id)).False()

	count, err := idx.Count(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, count).Equal(1)

	wiped, err := idx.Wipe(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, wiped).Equal(1)

	count, err = idx.Count(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, count).Equal(0)
}
