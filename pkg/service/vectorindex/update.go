package vectorindex

import (
	"context"
	"errors"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/utils/errutil"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Update replaces the memory stored under id with mem, keeping id.
//
// The new version is first written under a temporary ID and read back. Only
// then is the record under id overwritten and verified, and the temporary
// copy removed. At every step at least one version is retrievable: if the
// final write cannot be confirmed and the original is gone, the temporary
// copy is left in place and reported.
func (x *Index) Update(ctx context.Context, id model.MemoryID, mem *model.EpisodicMemory) bool {
	logger := logging.From(ctx).With("id", id)

	store, err := x.waitReady(ctx, x.searchTimeout)
	if err != nil {
		logger.Warn("vector index not ready, memory not updated", "error", err.Error())
		return false
	}

	if _, err := store.Get(ctx, id); err != nil {
		logger.Warn("memory to update does not exist", "error", err.Error())
		return false
	}

	next := mem.Copy()
	next.ID = id
	if next.Kind == model.MemoryKindLearnedKnowledge {
		next.UserText = model.LearnedText(next.UserText)
	}
	if next.Kind == "" {
		next.Kind = model.MemoryKindEpisodic
	}

	emb, err := x.embed(ctx, next.EmbedText())
	if err != nil {
		errutil.Handle(ctx, err, "failed to embed updated memory")
		return false
	}

	tempID := model.NewMemoryID()
	shadow := next.Copy()
	shadow.ID = tempID
	shadowRec := shadow.ToRecord(emb)
	shadowRec.Metadata[model.MetaShadowOf] = id.String()

	if err := x.writeVerified(ctx, store, shadowRec); err != nil {
		errutil.Handle(ctx, err, "failed to stage updated memory")
		x.removeShadow(ctx, store, tempID)
		return false
	}

	if err := x.writeVerified(ctx, store, next.ToRecord(emb)); err != nil {
		errutil.Handle(ctx, err, "failed to replace memory")

		if _, getErr := store.Get(ctx, id); getErr != nil {
			// the staged copy is the only remaining version
			logger.Error("original memory lost during update, staged copy kept",
				"staged_id", tempID,
				"error", getErr.Error())
			return false
		}
		x.removeShadow(ctx, store, tempID)
		return false
	}

	x.removeShadow(ctx, store, tempID)
	return true
}

func (x *Index) writeVerified(ctx context.Context, store interfaces.VectorStore, rec *model.VectorRecord) error {
	if err := store.Upsert(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to write record", goerr.V("id", rec.ID))
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to read back record", goerr.V("id", rec.ID))
	}
	if got.Metadata[model.MetaUserText] != rec.Metadata[model.MetaUserText] ||
		got.Metadata[model.MetaAgentText] != rec.Metadata[model.MetaAgentText] {
		return goerr.New("record read back does not match", goerr.V("id", rec.ID))
	}
	return nil
}

func (x *Index) removeShadow(ctx context.Context, store interfaces.VectorStore, tempID model.MemoryID) {
	if err := store.Delete(ctx, tempID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		logging.From(ctx).Warn("failed to remove staged memory copy", "staged_id", tempID, "error", err.Error())
	}
}
