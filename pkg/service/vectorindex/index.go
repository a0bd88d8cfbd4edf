package vectorindex

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/service/llm"
	"github.com/Dev-Marygold/Laffey/pkg/utils/errutil"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrNotReady means the backend did not finish initializing in time
	ErrNotReady = goerr.New("vector index is not ready")
	// ErrInitFailed means the backend could not be opened at all
	ErrInitFailed = goerr.New("vector index initialization failed")
)

const (
	// GeneralSeedQuery is embedded when a search has no query text
	GeneralSeedQuery = "recent conversation"
	// LearnedSeedQuery is embedded when a learned-knowledge search has no query text
	LearnedSeedQuery = "knowledge learning"

	DefaultLearnedBoost = 2.0

	DefaultWriteTimeout  = 10 * time.Second
	DefaultSearchTimeout = 5 * time.Second
)

// Opener creates the backend. It runs once in the background.
type Opener func(ctx context.Context) (interfaces.VectorStore, error)

// Index is the episodic memory index. Every operation waits for the backend
// to become ready for a bounded time and degrades instead of failing hard.
type Index struct {
	embedder llm.Embedder
	cache    *ristretto.Cache

	ready   chan struct{}
	store   interfaces.VectorStore
	initErr error

	learnedBoost  float64
	writeTimeout  time.Duration
	searchTimeout time.Duration

	closeOnce sync.Once
}

type Option func(*Index)

// WithLearnedBoost sets the score multiplier of learned knowledge
func WithLearnedBoost(boost float64) Option {
	return func(x *Index) {
		x.learnedBoost = boost
	}
}

// WithReadyTimeouts sets how long writes (insert, learned search) and other
// operations wait for the backend
func WithReadyTimeouts(write, search time.Duration) Option {
	return func(x *Index) {
		x.writeTimeout = write
		x.searchTimeout = search
	}
}

func newIndex(embedder llm.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	x := &Index{
		embedder:      embedder,
		cache:         cache,
		ready:         make(chan struct{}),
		learnedBoost:  DefaultLearnedBoost,
		writeTimeout:  DefaultWriteTimeout,
		searchTimeout: DefaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// New returns immediately and opens the backend in the background
func New(ctx context.Context, open Opener, embedder llm.Embedder, opts ...Option) (*Index, error) {
	if open == nil {
		return nil, goerr.New("vector store opener is required")
	}

	x, err := newIndex(embedder, opts...)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(x.ready)

		started := time.Now()
		store, err := open(ctx)
		if err != nil {
			x.initErr = goerr.Wrap(ErrInitFailed, err.Error())
			errutil.Handle(ctx, err, "failed to initialize vector index")
			return
		}
		x.store = store
		logging.From(ctx).Info("vector index ready", "elapsed", time.Since(started).String())
	}()

	return x, nil
}

// NewWithStore wraps an already opened backend
func NewWithStore(store interfaces.VectorStore, embedder llm.Embedder, opts ...Option) (*Index, error) {
	if store == nil {
		return nil, goerr.New("vector store is required")
	}

	x, err := newIndex(embedder, opts...)
	if err != nil {
		return nil, err
	}
	x.store = store
	close(x.ready)
	return x, nil
}

// Ready reports whether the backend is usable right now
func (x *Index) Ready() bool {
	select {
	case <-x.ready:
		return x.initErr == nil
	default:
		return false
	}
}

func (x *Index) waitReady(ctx context.Context, timeout time.Duration) (interfaces.VectorStore, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-x.ready:
		if x.initErr != nil {
			return nil, x.initErr
		}
		return x.store, nil
	case <-timer.C:
		return nil, goerr.Wrap(ErrNotReady, "timed out waiting for vector index", goerr.V("timeout", timeout.String()))
	case <-ctx.Done():
		return nil, goerr.Wrap(ctx.Err(), "cancelled while waiting for vector index")
	}
}

func (x *Index) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := x.cache.Get(text); ok {
		if emb, ok := v.([]float32); ok {
			return emb, nil
		}
	}

	emb, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed text")
	}
	x.cache.Set(text, emb, int64(len(emb)*4))
	return emb, nil
}

// Insert assigns a fresh ID to mem and stores it. On failure it returns an
// empty ID together with the error, which has already been logged.
func (x *Index) Insert(ctx context.Context, mem *model.EpisodicMemory) (model.MemoryID, error) {
	store, err := x.waitReady(ctx, x.writeTimeout)
	if err != nil {
		logging.From(ctx).Warn("vector index not ready, memory not stored", "error", err.Error())
		return "", err
	}

	stored := mem.Copy()
	stored.ID = model.NewMemoryID()
	if stored.Kind == "" {
		stored.Kind = model.MemoryKindEpisodic
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	emb, err := x.embed(ctx, stored.EmbedText())
	if err != nil {
		errutil.Handle(ctx, err, "failed to embed memory")
		return "", err
	}

	if err := store.Upsert(ctx, stored.ToRecord(emb)); err != nil {
		errutil.Handle(ctx, err, "failed to insert memory")
		return "", err
	}

	mem.ID = stored.ID
	return stored.ID, nil
}

// Search returns memories similar to query. An empty query is replaced by
// GeneralSeedQuery, in which case the order approximates recency at best.
func (x *Index) Search(ctx context.Context, query string, k int, filter model.MemoryFilter) []*model.ScoredMemory {
	if k <= 0 {
		return []*model.ScoredMemory{}
	}
	if query == "" {
		query = GeneralSeedQuery
	}

	results, err := x.query(ctx, x.searchTimeout, query, k, filter)
	if err != nil {
		logging.From(ctx).Warn("memory search degraded to empty result", "error", err.Error())
		return []*model.ScoredMemory{}
	}
	return results
}

// SearchLearned returns learned knowledge only. Candidates are oversampled,
// rechecked against LearnTag, boosted and resorted.
func (x *Index) SearchLearned(ctx context.Context, query string, k int) []*model.ScoredMemory {
	if k <= 0 {
		return []*model.ScoredMemory{}
	}

	n := k * 2
	if query == "" {
		query = LearnedSeedQuery
		n = k * 3
	}

	candidates, err := x.query(ctx, x.writeTimeout, query, n, model.MemoryFilter{Kind: model.MemoryKindLearnedKnowledge})
	if err != nil {
		logging.From(ctx).Warn("learned knowledge search degraded to empty result", "error", err.Error())
		return []*model.ScoredMemory{}
	}

	learned := make([]*model.ScoredMemory, 0, len(candidates))
	for _, c := range candidates {
		if !c.Memory.IsLearned() {
			continue
		}
		c.Score *= x.learnedBoost
		learned = append(learned, c)
	}

	sort.SliceStable(learned, func(i, j int) bool {
		return learned[i].Score > learned[j].Score
	})
	if len(learned) > k {
		learned = learned[:k]
	}
	return learned
}

func (x *Index) query(ctx context.Context, timeout time.Duration, query string, k int, filter model.MemoryFilter) ([]*model.ScoredMemory, error) {
	store, err := x.waitReady(ctx, timeout)
	if err != nil {
		return nil, err
	}

	emb, err := x.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	records, err := store.Query(ctx, emb, k, filter.ToMap())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query vector store")
	}

	results := make([]*model.ScoredMemory, 0, len(records))
	for _, rec := range records {
		if rec.Record.Metadata[model.MetaShadowOf] != "" {
			continue
		}
		results = append(results, &model.ScoredMemory{
			Memory: model.EpisodicMemoryFromRecord(rec.Record),
			Score:  rec.Score,
		})
	}
	return results, nil
}

// Get returns one memory by ID
func (x *Index) Get(ctx context.Context, id model.MemoryID) (*model.EpisodicMemory, error) {
	store, err := x.waitReady(ctx, x.searchTimeout)
	if err != nil {
		return nil, err
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.EpisodicMemoryFromRecord(rec), nil
}

// List returns up to limit memories matching filter. It is a seed-query search,
// not an exhaustive scan.
func (x *Index) List(ctx context.Context, filter model.MemoryFilter, limit int) []*model.EpisodicMemory {
	seed := GeneralSeedQuery
	if filter.Kind == model.MemoryKindLearnedKnowledge {
		seed = LearnedSeedQuery
	}

	hits := x.Search(ctx, seed, limit, filter)
	memories := make([]*model.EpisodicMemory, len(hits))
	for i, hit := range hits {
		memories[i] = hit.Memory
	}
	return memories
}

// Delete removes one memory and reports success
func (x *Index) Delete(ctx context.Context, id model.MemoryID) bool {
	store, err := x.waitReady(ctx, x.searchTimeout)
	if err != nil {
		logging.From(ctx).Warn("vector index not ready, memory not deleted", "id", id, "error", err.Error())
		return false
	}

	if err := store.Delete(ctx, id); err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			errutil.Handle(ctx, err, "failed to delete memory")
		}
		return false
	}
	return true
}

// Count returns the number of stored records
func (x *Index) Count(ctx context.Context) (int, error) {
	store, err := x.waitReady(ctx, x.searchTimeout)
	if err != nil {
		return 0, err
	}
	return store.Count(ctx)
}

// Wipe removes every record and returns how many were removed
func (x *Index) Wipe(ctx context.Context) (int, error) {
	store, err := x.waitReady(ctx, x.writeTimeout)
	if err != nil {
		return 0, err
	}

	n, err := store.DeleteAll(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to wipe vector store")
	}
	return n, nil
}

// Close releases the backend after initialization settles
func (x *Index) Close() error {
	var err error
	x.closeOnce.Do(func() {
		<-x.ready
		x.cache.Close()
		if x.store != nil {
			err = x.store.Close()
		}
	})
	return err
}
