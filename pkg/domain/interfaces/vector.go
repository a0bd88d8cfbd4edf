package interfaces

import (
	"context"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
)

// VectorStore is a similarity-search backend for episodic memory records.
// Records are addressed by caller-provided ids; Upsert with an existing id
// replaces the record atomically.
type VectorStore interface {
	Upsert(ctx context.Context, rec *model.VectorRecord) error

	// Get returns ErrNotFound of the backend when the id is unknown
	Get(ctx context.Context, id model.MemoryID) (*model.VectorRecord, error)

	// Delete returns ErrNotFound of the backend when the id is unknown
	Delete(ctx context.Context, id model.MemoryID) error

	// Query returns up to k records most similar to embedding whose metadata
	// equals every entry of filter, most similar first.
	Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]*model.ScoredRecord, error)

	// DeleteAll removes every record and returns how many were removed
	DeleteAll(ctx context.Context) (int, error)

	Count(ctx context.Context) (int, error)

	Close() error
}
