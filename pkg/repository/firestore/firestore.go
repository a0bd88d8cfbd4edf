package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = interfaces.ErrNotFound

const (
	factsCollection    = "semantic_facts"
	identityCollection = "identity"
	episodesCollection = "episodes"
)

type Firestore struct {
	client   *firestore.Client
	fact     *factRepository
	identity *identityRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.fact.collectionPrefix = prefix
		f.identity.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	client, err := newClient(ctx, projectID, databaseID)
	if err != nil {
		return nil, err
	}

	f := &Firestore{
		client:   client,
		fact:     newFactRepository(client),
		identity: newIdentityRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func newClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}
	return client, nil
}

func (f *Firestore) Fact() interfaces.FactRepository {
	return f.fact
}

func (f *Firestore) Identity() interfaces.IdentityRepository {
	return f.identity
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func collectionName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// deleteCollection removes every document of coll with a BulkWriter and
// returns the number of deleted documents
func deleteCollection(ctx context.Context, client *firestore.Client, coll *firestore.CollectionRef) (int, error) {
	iter := coll.Select().Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to iterate documents for deletion", goerr.V("collection", coll.ID))
		}
		refs = append(refs, doc.Ref)
	}

	if len(refs) == 0 {
		return 0, nil
	}

	bulkWriter := client.BulkWriter(ctx)
	for _, ref := range refs {
		if _, err := bulkWriter.Delete(ref); err != nil {
			bulkWriter.End()
			return 0, goerr.Wrap(err, "failed to add Delete operation to bulk writer", goerr.V("id", ref.ID))
		}
	}
	bulkWriter.End()

	return len(refs), nil
}

func countCollection(ctx context.Context, coll *firestore.CollectionRef) (int, error) {
	iter := coll.Select().Documents(ctx)
	defer iter.Stop()

	n := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count documents", goerr.V("collection", coll.ID))
		}
		n++
	}
	return n, nil
}
