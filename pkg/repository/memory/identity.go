package memory

import (
	"context"
	"sync"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type identityRepository struct {
	mu       sync.RWMutex
	identity *model.CoreIdentity
}

func newIdentityRepository() *identityRepository {
	return &identityRepository{}
}

func (r *identityRepository) Get(ctx context.Context) (*model.CoreIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.identity == nil {
		return nil, goerr.Wrap(ErrNotFound, "identity not found")
	}
	return r.identity.Copy(), nil
}

func (r *identityRepository) Put(ctx context.Context, identity *model.CoreIdentity) error {
	if identity == nil {
		return goerr.New("identity is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.identity = identity.Copy()
	return nil
}
