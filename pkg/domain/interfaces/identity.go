package interfaces

import (
	"context"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
)

// IdentityRepository stores the single core identity record
type IdentityRepository interface {
	// Get returns ErrNotFound of the backend when no identity is stored
	Get(ctx context.Context) (*model.CoreIdentity, error)
	Put(ctx context.Context, identity *model.CoreIdentity) error
}
