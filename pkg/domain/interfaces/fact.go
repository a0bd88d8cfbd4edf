package interfaces

import (
	"context"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
)

// FactRepository stores semantic facts. Every call is transactional.
type FactRepository interface {
	// Upsert inserts the fact or, when (Subject, Kind, Content) already
	// exists, updates confidence and LastUpdated and merges source ids.
	// It returns the stored row.
	Upsert(ctx context.Context, fact *model.SemanticFact) (*model.SemanticFact, error)

	// Query returns facts ordered by confidence desc, last_updated desc
	Query(ctx context.Context, q model.FactQuery) ([]*model.SemanticFact, error)

	Count(ctx context.Context) (int, error)

	// DeleteAll removes every fact and returns how many were removed
	DeleteAll(ctx context.Context) (int, error)
}
