package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// identityHolder keeps the core identity loaded at startup. Only the admin
// edit path replaces it.
type identityHolder struct {
	repo interfaces.IdentityRepository

	mu      sync.RWMutex
	current *model.CoreIdentity
}

// loadIdentity reads the stored identity, seeding seed (or the default built
// from creator) when none exists
func loadIdentity(ctx context.Context, repo interfaces.IdentityRepository, seed *model.CoreIdentity, creator string) (*identityHolder, error) {
	identity, err := repo.Get(ctx)
	switch {
	case err == nil:
		logging.From(ctx).Info("core identity loaded", "name", identity.Name, "creator", identity.Creator)

	case errors.Is(err, interfaces.ErrNotFound):
		identity = seed
		if identity == nil {
			identity = model.DefaultCoreIdentity(creator, time.Now())
		}
		if err := identity.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid core identity seed")
		}
		if err := repo.Put(ctx, identity); err != nil {
			return nil, goerr.Wrap(err, "failed to store core identity")
		}
		logging.From(ctx).Info("core identity seeded", "name", identity.Name, "creator", identity.Creator)

	default:
		return nil, goerr.Wrap(err, "failed to load core identity")
	}

	return &identityHolder{repo: repo, current: identity.Copy()}, nil
}

func (h *identityHolder) get() *model.CoreIdentity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Copy()
}

func (h *identityHolder) replace(ctx context.Context, identity *model.CoreIdentity) error {
	if err := identity.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidInput, err.Error())
	}
	if err := h.repo.Put(ctx, identity); err != nil {
		return goerr.Wrap(err, "failed to store core identity")
	}

	h.mu.Lock()
	h.current = identity.Copy()
	h.mu.Unlock()
	return nil
}
