package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// factDoc is keyed by the digest of (Subject, Kind, Content) so that the
// natural key is enforced by document identity.
type factDoc struct {
	Kind            string    `firestore:"Kind"`
	Subject         string    `firestore:"Subject"`
	Content         string    `firestore:"Content"`
	Confidence      float64   `firestore:"Confidence"`
	SourceMemoryIDs []string  `firestore:"SourceMemoryIDs"`
	CreatedAt       time.Time `firestore:"CreatedAt"`
	LastUpdated     time.Time `firestore:"LastUpdated"`
}

func toFactDoc(f *model.SemanticFact) *factDoc {
	ids := make([]string, len(f.SourceMemoryIDs))
	for i, id := range f.SourceMemoryIDs {
		ids[i] = string(id)
	}
	return &factDoc{
		Kind:            f.Kind,
		Subject:         f.Subject,
		Content:         f.Content,
		Confidence:      f.Confidence,
		SourceMemoryIDs: ids,
		CreatedAt:       f.CreatedAt,
		LastUpdated:     f.LastUpdated,
	}
}

func (d *factDoc) toModel() *model.SemanticFact {
	ids := make([]model.MemoryID, len(d.SourceMemoryIDs))
	for i, id := range d.SourceMemoryIDs {
		ids[i] = model.MemoryID(id)
	}
	return &model.SemanticFact{
		Kind:            d.Kind,
		Subject:         d.Subject,
		Content:         d.Content,
		Confidence:      d.Confidence,
		SourceMemoryIDs: ids,
		CreatedAt:       d.CreatedAt,
		LastUpdated:     d.LastUpdated,
	}
}

type factRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newFactRepository(client *firestore.Client) *factRepository {
	return &factRepository{client: client}
}

func (r *factRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionName(r.collectionPrefix, factsCollection))
}

func (r *factRepository) Upsert(ctx context.Context, fact *model.SemanticFact) (*model.SemanticFact, error) {
	if fact == nil {
		return nil, goerr.New("fact is nil")
	}

	ref := r.collection().Doc(fact.NaturalKey())
	var result *factDoc

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			doc := toFactDoc(fact)
			doc.CreatedAt = now
			doc.LastUpdated = now
			result = doc
			return tx.Set(ref, doc)
		}

		var existing factDoc
		if err := snap.DataTo(&existing); err != nil {
			return err
		}
		merged := existing.toModel()
		merged.Confidence = fact.Confidence
		merged.LastUpdated = now
		merged.SourceMemoryIDs = model.MergeSourceIDs(merged.SourceMemoryIDs, fact.SourceMemoryIDs)
		result = toFactDoc(merged)
		return tx.Set(ref, result)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert fact",
			goerr.V("subject", fact.Subject),
			goerr.V("kind", fact.Kind))
	}

	return result.toModel(), nil
}

func (r *factRepository) Query(ctx context.Context, q model.FactQuery) ([]*model.SemanticFact, error) {
	query := r.collection().Query
	if q.Subject != "" {
		query = query.Where("Subject", "==", q.Subject)
	}
	if q.Kind != "" {
		query = query.Where("Kind", "==", q.Kind)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	facts := make([]*model.SemanticFact, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate facts", goerr.V("subject", q.Subject))
		}

		var d factDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal fact", goerr.V("id", doc.Ref.ID))
		}
		facts = append(facts, d.toModel())
	}

	// Sorted in process so that no composite index is needed per filter combination
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Confidence != facts[j].Confidence {
			return facts[i].Confidence > facts[j].Confidence
		}
		return facts[i].LastUpdated.After(facts[j].LastUpdated)
	})

	if q.Limit > 0 && len(facts) > q.Limit {
		facts = facts[:q.Limit]
	}
	return facts, nil
}

func (r *factRepository) Count(ctx context.Context) (int, error) {
	return countCollection(ctx, r.collection())
}

func (r *factRepository) DeleteAll(ctx context.Context) (int, error) {
	return deleteCollection(ctx, r.client, r.collection())
}
