package usecase

import (
	"context"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model/config"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
)

// Turn is one inbound chat message
type Turn struct {
	Message   string
	UserID    string
	UserName  string
	ChannelID string
}

// ContextAssembler gathers everything the generator needs for one turn
type ContextAssembler struct {
	wm       *workingmemory.Store
	index    *vectorindex.Index
	facts    interfaces.FactRepository
	identity *identityHolder
	cfg      config.AgentConfig
}

func newContextAssembler(wm *workingmemory.Store, index *vectorindex.Index, facts interfaces.FactRepository, identity *identityHolder, cfg config.AgentConfig) *ContextAssembler {
	return &ContextAssembler{
		wm:       wm,
		index:    index,
		facts:    facts,
		identity: identity,
		cfg:      cfg,
	}
}

// Assemble builds the conversation context. Empty layers yield empty
// slices; it never fails.
func (a *ContextAssembler) Assemble(ctx context.Context, turn Turn) *model.ConversationContext {
	isPrivate := a.cfg.IsPrivateChannel(turn.ChannelID)

	learned := a.index.SearchLearned(ctx, turn.Message, a.cfg.LearnedK)

	filter := model.MemoryFilter{SpeakerID: turn.UserID}
	if isPrivate {
		filter = model.MemoryFilter{}
	}
	general := a.index.Search(ctx, turn.Message, a.cfg.GeneralK, filter)

	return &model.ConversationContext{
		CurrentMessage:   turn.Message,
		User:             a.userContext(ctx, turn.UserID, turn.UserName),
		WorkingMemory:    a.wm.Read(turn.ChannelID),
		Memories:         mergeMemories(learned, general, a.cfg.MemoryCap),
		Identity:         a.identity.get(),
		ChannelID:        turn.ChannelID,
		IsPrivateChannel: isPrivate,
	}
}

func (a *ContextAssembler) userContext(ctx context.Context, userID, userName string) *model.UserContext {
	uc := &model.UserContext{
		UserID:             userID,
		UserName:           userName,
		KnownFacts:         []*model.SemanticFact{},
		RecentInteractions: []*model.EpisodicMemory{},
		Relationship:       model.RelationshipAcquaintance,
	}

	facts, err := a.facts.Query(ctx, model.FactQuery{Subject: model.SubjectForUser(userID)})
	if err != nil {
		logging.From(ctx).Warn("failed to query user facts", "user_id", userID, "error", err.Error())
	} else {
		uc.KnownFacts = facts
	}

	for _, hit := range a.index.Search(ctx, "", a.cfg.RecentInteractions, model.MemoryFilter{SpeakerID: userID}) {
		uc.RecentInteractions = append(uc.RecentInteractions, hit.Memory)
		if uc.LastInteraction == nil || hit.Memory.Timestamp.After(*uc.LastInteraction) {
			ts := hit.Memory.Timestamp
			uc.LastInteraction = &ts
		}
	}

	switch {
	case a.cfg.DeveloperID != "" && userID == a.cfg.DeveloperID:
		uc.Relationship = model.RelationshipCreator
	case len(uc.RecentInteractions) >= a.cfg.FriendThreshold:
		uc.Relationship = model.RelationshipFriend
	}

	return uc
}

// mergeMemories puts every learned item first, then general items not
// already included, and truncates to limit
func mergeMemories(learned, general []*model.ScoredMemory, limit int) []*model.EpisodicMemory {
	merged := make([]*model.EpisodicMemory, 0, len(learned)+len(general))
	seen := make(map[model.MemoryID]struct{}, len(learned)+len(general))

	for _, group := range [][]*model.ScoredMemory{learned, general} {
		for _, hit := range group {
			if _, ok := seen[hit.Memory.ID]; ok {
				continue
			}
			seen[hit.Memory.ID] = struct{}{}
			merged = append(merged, hit.Memory)
		}
	}

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// lastSeen formats the last interaction for prompts
func lastSeen(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
