package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const identityDocID = "core"

type identityRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newIdentityRepository(client *firestore.Client) *identityRepository {
	return &identityRepository{client: client}
}

func (r *identityRepository) doc() *firestore.DocumentRef {
	return r.client.Collection(collectionName(r.collectionPrefix, identityCollection)).Doc(identityDocID)
}

func (r *identityRepository) Get(ctx context.Context) (*model.CoreIdentity, error) {
	snap, err := r.doc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "identity not found")
		}
		return nil, goerr.Wrap(err, "failed to get identity")
	}

	var identity model.CoreIdentity
	if err := snap.DataTo(&identity); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal identity")
	}
	return &identity, nil
}

func (r *identityRepository) Put(ctx context.Context, identity *model.CoreIdentity) error {
	if identity == nil {
		return goerr.New("identity is nil")
	}
	if _, err := r.doc().Set(ctx, identity); err != nil {
		return goerr.Wrap(err, "failed to put identity", goerr.V("name", identity.Name))
	}
	return nil
}
