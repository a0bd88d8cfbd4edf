package model

import "time"

// Relationship is the coarse tier of the agent's relationship with a user
type Relationship string

const (
	RelationshipAcquaintance Relationship = "acquaintance"
	RelationshipFriend       Relationship = "friend"
	RelationshipCreator      Relationship = "creator"
)

// UserContext is what the agent knows about the speaker of the current turn
type UserContext struct {
	UserID             string
	UserName           string
	KnownFacts         []*SemanticFact
	RecentInteractions []*EpisodicMemory
	Relationship       Relationship
	LastInteraction    *time.Time
}

// ConversationContext is assembled per turn and discarded after generation.
type ConversationContext struct {
	CurrentMessage   string
	User             *UserContext
	WorkingMemory    []WorkingMemoryItem
	Memories         []*EpisodicMemory
	Identity         *CoreIdentity
	ChannelID        string
	IsPrivateChannel bool
}

// LearnedMemories returns memories tagged as learned knowledge, in order
func (x *ConversationContext) LearnedMemories() []*EpisodicMemory {
	var out []*EpisodicMemory
	for _, m := range x.Memories {
		if m.IsLearned() {
			out = append(out, m)
		}
	}
	return out
}

// EpisodicMemories returns memories that are not learned knowledge, in order
func (x *ConversationContext) EpisodicMemories() []*EpisodicMemory {
	var out []*EpisodicMemory
	for _, m := range x.Memories {
		if !m.IsLearned() {
			out = append(out, m)
		}
	}
	return out
}
