package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type factRepository struct {
	mu    sync.RWMutex
	facts map[string]*model.SemanticFact
}

func newFactRepository() *factRepository {
	return &factRepository{
		facts: make(map[string]*model.SemanticFact),
	}
}

func copyFact(f *model.SemanticFact) *model.SemanticFact {
	copied := *f
	copied.SourceMemoryIDs = append([]model.MemoryID(nil), f.SourceMemoryIDs...)
	return &copied
}

func (r *factRepository) Upsert(ctx context.Context, fact *model.SemanticFact) (*model.SemanticFact, error) {
	if fact == nil {
		return nil, goerr.New("fact is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := fact.NaturalKey()

	if existing, ok := r.facts[key]; ok {
		existing.Confidence = fact.Confidence
		existing.LastUpdated = now
		existing.SourceMemoryIDs = model.MergeSourceIDs(existing.SourceMemoryIDs, fact.SourceMemoryIDs)
		return copyFact(existing), nil
	}

	created := copyFact(fact)
	created.CreatedAt = now
	created.LastUpdated = now
	r.facts[key] = created

	return copyFact(created), nil
}

func (r *factRepository) Query(ctx context.Context, q model.FactQuery) ([]*model.SemanticFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.SemanticFact, 0)
	for _, f := range r.facts {
		if q.Subject != "" && f.Subject != q.Subject {
			continue
		}
		if q.Kind != "" && f.Kind != q.Kind {
			continue
		}
		result = append(result, copyFact(f))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		return result[i].LastUpdated.After(result[j].LastUpdated)
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}

	return result, nil
}

func (r *factRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.facts), nil
}

func (r *factRepository) DeleteAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.facts)
	r.facts = make(map[string]*model.SemanticFact)
	return n, nil
}
