package model

import (
	"fmt"
	"time"
)

// ConsolidationResult reports one consolidation pass over a channel
type ConsolidationResult struct {
	ChannelID         string        `json:"channel_id"`
	MessagesProcessed int           `json:"messages_processed"`
	EpisodicCreated   int           `json:"episodic_created"`
	FactsExtracted    int           `json:"facts_extracted"`
	Elapsed           time.Duration `json:"elapsed"`
	Summary           string        `json:"summary"`
	Errors            []string      `json:"errors"`
}

// AddError records a soft failure
func (x *ConsolidationResult) AddError(format string, args ...any) {
	x.Errors = append(x.Errors, fmt.Sprintf(format, args...))
}

// WipeResult itemizes what a full wipe removed from each layer
type WipeResult struct {
	WorkingMemoryCleared int      `json:"working_memory_cleared"`
	EpisodicCleared      int      `json:"episodic_cleared"`
	FactsCleared         int      `json:"facts_cleared"`
	Errors               []string `json:"errors"`
}

// Stats summarizes all memory layers
type Stats struct {
	WorkingMemoryChannels int           `json:"working_memory_channels"`
	WorkingMemoryMessages int           `json:"working_memory_messages"`
	EpisodicReady         bool          `json:"episodic_ready"`
	EpisodicCount         int           `json:"episodic_count"`
	FactCount             int           `json:"fact_count"`
	Identity              *CoreIdentity `json:"identity,omitempty"`
	Errors                []string      `json:"errors,omitempty"`
}
