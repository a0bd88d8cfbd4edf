package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
)

type identityRepository struct {
	db *sql.DB
}

func (r *identityRepository) Get(ctx context.Context) (*model.CoreIdentity, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM core_identity WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "identity not found")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get identity")
	}

	var identity model.CoreIdentity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, goerr.Wrap(err, "failed to decode identity")
	}
	return &identity, nil
}

func (r *identityRepository) Put(ctx context.Context, identity *model.CoreIdentity) error {
	if identity == nil {
		return goerr.New("identity is nil")
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return goerr.Wrap(err, "failed to encode identity")
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO core_identity (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(raw), formatTime(time.Now()),
	); err != nil {
		return goerr.Wrap(err, "failed to put identity", goerr.V("name", identity.Name))
	}
	return nil
}
