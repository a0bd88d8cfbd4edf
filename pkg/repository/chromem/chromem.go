package chromem

import (
	"context"
	"strings"
	"sync"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = interfaces.ErrNotFound

const defaultCollection = "laffey_episodes"

// VectorStore is an embedded interfaces.VectorStore built on chromem-go.
// Embeddings are always supplied by the caller; chromem never calls an
// embedding API itself.
type VectorStore struct {
	db   *chromem.DB
	name string

	mu  sync.RWMutex
	col *chromem.Collection
}

var _ interfaces.VectorStore = &VectorStore{}

type Option func(*VectorStore)

func WithCollection(name string) Option {
	return func(s *VectorStore) {
		s.name = name
	}
}

// New opens the store. An empty path keeps everything in process memory;
// otherwise documents are persisted under path.
func New(path string, opts ...Option) (*VectorStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem database", goerr.V("path", path))
		}
	}

	s := &VectorStore{
		db:   db,
		name: defaultCollection,
	}
	for _, opt := range opts {
		opt(s)
	}

	col, err := db.GetOrCreateCollection(s.name, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chromem collection", goerr.V("collection", s.name))
	}
	s.col = col

	return s, nil
}

func (s *VectorStore) collection() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col
}

func (s *VectorStore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return goerr.New("record ID is required")
	}
	if len(rec.Embedding) == 0 {
		return goerr.New("embedding is required", goerr.V("id", rec.ID))
	}

	col := s.collection()
	doc := chromem.Document{
		ID:        rec.ID.String(),
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata:  rec.Metadata,
	}
	// AddDocument replaces a document with the same ID
	if err := col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", rec.ID))
	}
	return nil
}

func (s *VectorStore) Get(ctx context.Context, id model.MemoryID) (*model.VectorRecord, error) {
	doc, err := s.collection().GetByID(ctx, id.String())
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, goerr.Wrap(ErrNotFound, "document not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get document", goerr.V("id", id))
	}
	return toRecord(doc.ID, doc.Content, doc.Embedding, doc.Metadata), nil
}

func (s *VectorStore) Delete(ctx context.Context, id model.MemoryID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.collection().Delete(ctx, nil, nil, id.String()); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("id", id))
	}
	return nil
}

func (s *VectorStore) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]*model.ScoredRecord, error) {
	col := s.collection()

	// chromem rejects nResults larger than the collection
	n := k
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chromem", goerr.V("k", k))
	}

	scored := make([]*model.ScoredRecord, 0, len(results))
	for _, r := range results {
		scored = append(scored, &model.ScoredRecord{
			Record: toRecord(r.ID, r.Content, r.Embedding, r.Metadata),
			Score:  float64(r.Similarity),
		})
	}
	return scored, nil
}

func (s *VectorStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.col.Count()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return 0, goerr.Wrap(err, "failed to delete chromem collection", goerr.V("collection", s.name))
	}

	col, err := s.db.GetOrCreateCollection(s.name, nil, nil)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to recreate chromem collection", goerr.V("collection", s.name))
	}
	s.col = col

	return n, nil
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	return s.collection().Count(), nil
}

func (s *VectorStore) Close() error {
	return nil
}

func toRecord(id, content string, embedding []float32, meta map[string]string) *model.VectorRecord {
	rec := &model.VectorRecord{
		ID:        model.MemoryID(id),
		Text:      content,
		Embedding: append([]float32(nil), embedding...),
		Metadata:  make(map[string]string, len(meta)),
	}
	for k, v := range meta {
		rec.Metadata[k] = v
	}
	return rec
}
