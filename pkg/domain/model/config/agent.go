package config

import "time"

// AgentConfig holds the tunables of the memory pipeline. Zero values are
// replaced by the defaults below.
type AgentConfig struct {
	// AgentName is how the agent's own turns are labelled in prompts
	AgentName string

	// DeveloperID is the chat user treated as the creator
	DeveloperID string

	// PrivateChannelID is the creator's private channel. Memory recall is not
	// filtered by speaker there and new memories get PrivateRelevanceBoost.
	PrivateChannelID string

	// SegmentGap splits working memory into conversations during consolidation
	SegmentGap time.Duration

	// RecentInteractions is how many past memories of the speaker are read
	RecentInteractions int

	// FriendThreshold is the number of recent interactions that makes a
	// speaker a friend; reaching it is enough, exceeding is not required. It
	// must not exceed RecentInteractions to be reachable.
	FriendThreshold int

	LearnedK  int
	GeneralK  int
	MemoryCap int

	// HistoryLimit is how many working memory items are rendered in the prompt
	HistoryLimit int

	PrivateRelevanceBoost float64
}

const (
	DefaultAgentName             = "Laffey"
	DefaultSegmentGap            = 30 * time.Minute
	DefaultRecentInteractions    = 3
	DefaultFriendThreshold       = 3
	DefaultLearnedK              = 3
	DefaultGeneralK              = 5
	DefaultMemoryCap             = 8
	DefaultHistoryLimit          = 10
	DefaultPrivateRelevanceBoost = 2.0
)

// WithDefaults returns a copy with zero values replaced by defaults
func (x AgentConfig) WithDefaults() AgentConfig {
	if x.AgentName == "" {
		x.AgentName = DefaultAgentName
	}
	if x.SegmentGap <= 0 {
		x.SegmentGap = DefaultSegmentGap
	}
	if x.RecentInteractions <= 0 {
		x.RecentInteractions = DefaultRecentInteractions
	}
	if x.FriendThreshold <= 0 {
		x.FriendThreshold = DefaultFriendThreshold
	}
	if x.LearnedK <= 0 {
		x.LearnedK = DefaultLearnedK
	}
	if x.GeneralK <= 0 {
		x.GeneralK = DefaultGeneralK
	}
	if x.MemoryCap <= 0 {
		x.MemoryCap = DefaultMemoryCap
	}
	if x.HistoryLimit <= 0 {
		x.HistoryLimit = DefaultHistoryLimit
	}
	if x.PrivateRelevanceBoost <= 0 {
		x.PrivateRelevanceBoost = DefaultPrivateRelevanceBoost
	}
	return x
}

// IsPrivateChannel reports whether channelID is the creator's private channel
func (x AgentConfig) IsPrivateChannel(channelID string) bool {
	return x.PrivateChannelID != "" && channelID == x.PrivateChannelID
}
