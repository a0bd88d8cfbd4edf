package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

// VectorStore is an in-process interfaces.VectorStore using brute-force
// cosine similarity.
type VectorStore struct {
	mu      sync.RWMutex
	records map[model.MemoryID]*model.VectorRecord
}

var _ interfaces.VectorStore = &VectorStore{}

func NewVectorStore() *VectorStore {
	return &VectorStore{
		records: make(map[model.MemoryID]*model.VectorRecord),
	}
}

func copyRecord(rec *model.VectorRecord) *model.VectorRecord {
	copied := &model.VectorRecord{
		ID:   rec.ID,
		Text: rec.Text,
	}
	if rec.Embedding != nil {
		copied.Embedding = make([]float32, len(rec.Embedding))
		copy(copied.Embedding, rec.Embedding)
	}
	if rec.Metadata != nil {
		copied.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			copied.Metadata[k] = v
		}
	}
	return copied
}

func (s *VectorStore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return goerr.New("record ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

func (s *VectorStore) Get(ctx context.Context, id model.MemoryID) (*model.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "record not found", goerr.V("id", id))
	}
	return copyRecord(rec), nil
}

func (s *VectorStore) Delete(ctx context.Context, id model.MemoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return goerr.Wrap(ErrNotFound, "record not found", goerr.V("id", id))
	}
	delete(s.records, id)
	return nil
}

func (s *VectorStore) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]*model.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]*model.ScoredRecord, 0)
	for _, rec := range s.records {
		if len(rec.Embedding) == 0 || !matchFilter(rec.Metadata, filter) {
			continue
		}
		candidates = append(candidates, &model.ScoredRecord{
			Record: copyRecord(rec),
			Score:  cosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (s *VectorStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = make(map[model.MemoryID]*model.VectorRecord)
	return n, nil
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *VectorStore) Close() error {
	return nil
}

func matchFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
