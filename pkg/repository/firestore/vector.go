package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const distanceField = "VectorDistance"

// episodeDoc stores Embedding as firestore.Vector32 for FindNearest.
// Metadata is a map so that equality filters address "Metadata.<key>".
type episodeDoc struct {
	Text      string             `firestore:"Text"`
	Embedding firestore.Vector32 `firestore:"Embedding,omitempty"`
	Metadata  map[string]string  `firestore:"Metadata"`
	Distance  float64            `firestore:"VectorDistance,omitempty"`
}

// VectorStore is an interfaces.VectorStore backed by Firestore vector search
type VectorStore struct {
	client     *firestore.Client
	collection string
}

var _ interfaces.VectorStore = &VectorStore{}

type VectorOption func(*VectorStore)

func WithVectorCollectionPrefix(prefix string) VectorOption {
	return func(s *VectorStore) {
		s.collection = collectionName(prefix, episodesCollection)
	}
}

func NewVectorStore(ctx context.Context, projectID, databaseID string, opts ...VectorOption) (*VectorStore, error) {
	client, err := newClient(ctx, projectID, databaseID)
	if err != nil {
		return nil, err
	}

	s := &VectorStore{
		client:     client,
		collection: episodesCollection,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *VectorStore) coll() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *VectorStore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return goerr.New("record ID is required")
	}

	doc := &episodeDoc{
		Text:     rec.Text,
		Metadata: rec.Metadata,
	}
	if len(rec.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(rec.Embedding)
	}

	if _, err := s.coll().Doc(rec.ID.String()).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to upsert episode", goerr.V("id", rec.ID))
	}
	return nil
}

func (s *VectorStore) Get(ctx context.Context, id model.MemoryID) (*model.VectorRecord, error) {
	snap, err := s.coll().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "episode not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get episode", goerr.V("id", id))
	}

	var d episodeDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal episode", goerr.V("id", id))
	}
	return d.toRecord(id), nil
}

func (s *VectorStore) Delete(ctx context.Context, id model.MemoryID) error {
	ref := s.coll().Doc(id.String())
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "episode not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to get episode", goerr.V("id", id))
	}

	if _, err := ref.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete episode", goerr.V("id", id))
	}
	return nil
}

func (s *VectorStore) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]*model.ScoredRecord, error) {
	if k <= 0 {
		return nil, nil
	}

	query := s.coll().Query
	for key, value := range filter {
		query = query.Where("Metadata."+key, "==", value)
	}

	vq := query.FindNearest("Embedding", firestore.Vector32(embedding), k, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.ScoredRecord, 0, k)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate episode vector search results")
		}

		var d episodeDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal episode from vector search", goerr.V("id", snap.Ref.ID))
		}

		// Cosine distance is 1 - cosine similarity
		results = append(results, &model.ScoredRecord{
			Record: d.toRecord(model.MemoryID(snap.Ref.ID)),
			Score:  1 - d.Distance,
		})
	}

	return results, nil
}

func (s *VectorStore) DeleteAll(ctx context.Context) (int, error) {
	return deleteCollection(ctx, s.client, s.coll())
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	return countCollection(ctx, s.coll())
}

func (s *VectorStore) Close() error {
	return s.client.Close()
}

func (d *episodeDoc) toRecord(id model.MemoryID) *model.VectorRecord {
	rec := &model.VectorRecord{
		ID:       id,
		Text:     d.Text,
		Metadata: d.Metadata,
	}
	if len(d.Embedding) > 0 {
		rec.Embedding = []float32(d.Embedding)
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string)
	}
	return rec
}
