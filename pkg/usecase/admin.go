package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/service/persona"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/Dev-Marygold/Laffey/pkg/utils/errutil"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// WipeConfirmTimeout is how long a wipe token stays valid
const WipeConfirmTimeout = 30 * time.Second

// AdminUseCase holds the operator operations
type AdminUseCase struct {
	wm            *workingmemory.Store
	index         *vectorindex.Index
	facts         interfaces.FactRepository
	consolidation *ConsolidationUseCase
	orchestrator  *OrchestratorUseCase
	persona       *persona.Service
	identity      *identityHolder

	pendingWipes *cache.Cache
	wipeTimeout  time.Duration
	wipeMu       sync.Mutex
}

func newAdminUseCase(uc *UseCases, identity *identityHolder, wipeTimeout time.Duration) *AdminUseCase {
	return &AdminUseCase{
		wm:            uc.wm,
		index:         uc.index,
		facts:         uc.repo.Fact(),
		consolidation: uc.Consolidation,
		orchestrator:  uc.Orchestrator,
		persona:       uc.persona,
		identity:      identity,
		pendingWipes:  cache.New(wipeTimeout, time.Minute),
		wipeTimeout:   wipeTimeout,
	}
}

// ForceConsolidation consolidates channelID now
func (uc *AdminUseCase) ForceConsolidation(ctx context.Context, channelID string) *model.ConsolidationResult {
	logging.From(ctx).Info("manual consolidation requested", ChannelIDKey, channelID)
	return uc.consolidation.Consolidate(ctx, channelID)
}

// ClearChannel drops a channel's working memory and returns how many items
// were removed
func (uc *AdminUseCase) ClearChannel(ctx context.Context, channelID string) int {
	n := uc.wm.Clear(channelID)
	logging.From(ctx).Info("working memory cleared", ChannelIDKey, channelID, "count", n)
	return n
}

// RequestWipe issues a one-time token that ConfirmWipe accepts until the
// returned expiry
func (uc *AdminUseCase) RequestWipe(ctx context.Context) (string, time.Time) {
	token := uuid.New().String()
	uc.pendingWipes.SetDefault(token, struct{}{})

	expiresAt := time.Now().Add(uc.wipeTimeout)
	if _, exp, ok := uc.pendingWipes.GetWithExpiration(token); ok && !exp.IsZero() {
		expiresAt = exp
	}

	logging.From(ctx).Warn("full wipe requested, waiting for confirmation", "expires_at", expiresAt)
	return token, expiresAt
}

// ConfirmWipe runs WipeEverything when token is pending. A token is usable
// once.
func (uc *AdminUseCase) ConfirmWipe(ctx context.Context, token string) (*model.WipeResult, error) {
	uc.wipeMu.Lock()
	_, ok := uc.pendingWipes.Get(token)
	if ok {
		uc.pendingWipes.Delete(token)
	}
	uc.wipeMu.Unlock()

	if !ok {
		return nil, goerr.Wrap(ErrInvalidWipeToken, "wipe not confirmed")
	}
	return uc.WipeEverything(ctx), nil
}

// WipeEverything clears every layer. Each layer is attempted even when an
// earlier one fails; failures are itemized in the result.
func (uc *AdminUseCase) WipeEverything(ctx context.Context) *model.WipeResult {
	logger := logging.From(ctx)
	result := &model.WipeResult{Errors: []string{}}

	// consolidation passes in flight stop writing once this returns
	uc.consolidation.blockForWipe(func() {
		result.WorkingMemoryCleared = uc.wm.ClearAll()

		if n, err := uc.index.Wipe(ctx); err != nil {
			errutil.Handle(ctx, err, "failed to wipe episodic memory")
			result.Errors = append(result.Errors, "episodic: "+err.Error())
		} else {
			result.EpisodicCleared = n
		}

		if n, err := uc.facts.DeleteAll(ctx); err != nil {
			errutil.Handle(ctx, err, "failed to wipe semantic facts")
			result.Errors = append(result.Errors, "semantic: "+err.Error())
		} else {
			result.FactsCleared = n
		}
	})

	logger.Warn("all memories wiped",
		"working_memory", result.WorkingMemoryCleared,
		"episodic", result.EpisodicCleared,
		"facts", result.FactsCleared,
		"errors", len(result.Errors))
	return result
}

// Stats counts every layer. A layer that cannot be counted is reported in
// Errors with a zero count.
func (uc *AdminUseCase) Stats(ctx context.Context) *model.Stats {
	stats := &model.Stats{
		EpisodicReady: uc.index.Ready(),
		Identity:      uc.identity.get(),
	}
	stats.WorkingMemoryChannels, stats.WorkingMemoryMessages = uc.wm.Stats()

	var episodicErr, factErr error
	var eg errgroup.Group
	eg.Go(func() error {
		stats.EpisodicCount, episodicErr = uc.index.Count(ctx)
		return nil
	})
	eg.Go(func() error {
		stats.FactCount, factErr = uc.facts.Count(ctx)
		return nil
	})
	_ = eg.Wait()

	if episodicErr != nil {
		stats.Errors = append(stats.Errors, "episodic: "+episodicErr.Error())
	}
	if factErr != nil {
		stats.Errors = append(stats.Errors, "semantic: "+factErr.Error())
	}
	return stats
}

// Teach stores a question and answer as learned knowledge
func (uc *AdminUseCase) Teach(ctx context.Context, question, answer, teacherID, teacherName string) (model.MemoryID, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return "", goerr.Wrap(ErrInvalidInput, "question and answer are required")
	}

	mem := &model.EpisodicMemory{
		SpeakerID:      teacherID,
		SpeakerName:    teacherName,
		UserText:       model.LearnedText(question),
		AgentText:      answer,
		Timestamp:      time.Now().UTC(),
		RelevanceScore: 1.0,
		Kind:           model.MemoryKindLearnedKnowledge,
		Metadata: map[string]string{
			"taught_by": teacherName,
		},
	}

	id, err := uc.index.Insert(ctx, mem)
	if err != nil {
		return "", goerr.Wrap(err, "failed to store learned knowledge")
	}

	logging.From(ctx).Info("knowledge learned", MemoryIDKey, id, "teacher", teacherName)
	return id, nil
}

// RecentMemories returns up to limit episodic memories, newest first. An
// empty speakerID lists every speaker.
func (uc *AdminUseCase) RecentMemories(ctx context.Context, speakerID string, limit int) []*model.EpisodicMemory {
	memories := uc.index.List(ctx, model.MemoryFilter{SpeakerID: speakerID, Kind: model.MemoryKindEpisodic}, limit)
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Timestamp.After(memories[j].Timestamp)
	})
	return memories
}

// ListKnowledge returns up to limit learned knowledge entries. A non-empty
// teacherID keeps only the entries that user taught.
func (uc *AdminUseCase) ListKnowledge(ctx context.Context, limit int, teacherID string) []*model.EpisodicMemory {
	var learned []*model.EpisodicMemory
	filter := model.MemoryFilter{SpeakerID: teacherID, Kind: model.MemoryKindLearnedKnowledge}
	for _, mem := range uc.index.List(ctx, filter, limit) {
		if mem.IsLearned() {
			learned = append(learned, mem)
		}
	}
	return learned
}

// UpdateKnowledge replaces question and answer of a learned entry. Empty
// arguments keep the current value.
func (uc *AdminUseCase) UpdateKnowledge(ctx context.Context, id model.MemoryID, question, answer string) (*model.EpisodicMemory, error) {
	current, err := uc.getKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := current.Copy()
	if q := strings.TrimSpace(question); q != "" {
		updated.UserText = model.LearnedText(q)
	}
	if a := strings.TrimSpace(answer); a != "" {
		updated.AgentText = a
	}
	updated.Timestamp = time.Now().UTC()

	if !uc.index.Update(ctx, id, updated) {
		return nil, goerr.New("failed to update learned knowledge", goerr.V(MemoryIDKey, id))
	}
	updated.ID = id
	return updated, nil
}

// DeleteKnowledge removes a learned entry
func (uc *AdminUseCase) DeleteKnowledge(ctx context.Context, id model.MemoryID) error {
	if _, err := uc.getKnowledge(ctx, id); err != nil {
		return err
	}
	if !uc.index.Delete(ctx, id) {
		return goerr.New("failed to delete learned knowledge", goerr.V(MemoryIDKey, id))
	}
	return nil
}

// UpdateOwnKnowledge is UpdateKnowledge for an entry taught by ownerID
func (uc *AdminUseCase) UpdateOwnKnowledge(ctx context.Context, id model.MemoryID, ownerID, question, answer string) (*model.EpisodicMemory, error) {
	if err := uc.checkOwner(ctx, id, ownerID); err != nil {
		return nil, err
	}
	return uc.UpdateKnowledge(ctx, id, question, answer)
}

// DeleteOwnKnowledge is DeleteKnowledge for an entry taught by ownerID
func (uc *AdminUseCase) DeleteOwnKnowledge(ctx context.Context, id model.MemoryID, ownerID string) error {
	if err := uc.checkOwner(ctx, id, ownerID); err != nil {
		return err
	}
	return uc.DeleteKnowledge(ctx, id)
}

func (uc *AdminUseCase) checkOwner(ctx context.Context, id model.MemoryID, ownerID string) error {
	mem, err := uc.getKnowledge(ctx, id)
	if err != nil {
		return err
	}
	if ownerID == "" || mem.SpeakerID != ownerID {
		return goerr.Wrap(ErrKnowledgeNotOwned, "knowledge was taught by someone else",
			goerr.V(MemoryIDKey, id),
			goerr.V("user_id", ownerID))
	}
	return nil
}

func (uc *AdminUseCase) getKnowledge(ctx context.Context, id model.MemoryID) (*model.EpisodicMemory, error) {
	mem, err := uc.index.Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrKnowledgeNotFound, "no such memory", goerr.V(MemoryIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get learned knowledge", goerr.V(MemoryIDKey, id))
	}
	if !mem.IsLearned() {
		return nil, goerr.Wrap(ErrKnowledgeNotFound, "memory is not learned knowledge", goerr.V(MemoryIDKey, id))
	}
	return mem, nil
}

// LastPrompt returns the most recent system prompt, for debugging
func (uc *AdminUseCase) LastPrompt() string {
	return uc.orchestrator.LastPrompt()
}

// ReloadPersona rereads the persona source. The current persona stays
// active on failure.
func (uc *AdminUseCase) ReloadPersona(ctx context.Context) error {
	if err := uc.persona.Reload(ctx); err != nil {
		return goerr.Wrap(err, "failed to reload persona")
	}
	return nil
}

// Identity returns the current core identity
func (uc *AdminUseCase) Identity() *model.CoreIdentity {
	return uc.identity.get()
}

// UpdateIdentity validates, stores and activates identity
func (uc *AdminUseCase) UpdateIdentity(ctx context.Context, identity *model.CoreIdentity) error {
	if identity == nil {
		return goerr.Wrap(ErrInvalidInput, "identity is required")
	}
	if err := uc.identity.replace(ctx, identity); err != nil {
		return err
	}
	logging.From(ctx).Info("core identity updated", "name", identity.Name, "creator", identity.Creator)
	return nil
}
