package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// ErrConsolidationRunning means another pass holds the channel's lock
	ErrConsolidationRunning = goerr.New("consolidation already running")

	// ErrMemoryWiped means a full wipe ran while a consolidation pass was in
	// flight; the pass discards what it has not written yet
	ErrMemoryWiped = goerr.New("memory was wiped during consolidation")

	// ErrInvalidWipeToken means the wipe confirmation token is unknown or expired
	ErrInvalidWipeToken = goerr.New("invalid or expired wipe token")

	// ErrKnowledgeNotFound means the id does not refer to learned knowledge
	ErrKnowledgeNotFound = goerr.New("learned knowledge not found")

	// ErrKnowledgeNotOwned means the caller did not teach the entry
	ErrKnowledgeNotOwned = goerr.New("learned knowledge belongs to another user")

	// ErrInvalidInput means a required argument is empty
	ErrInvalidInput = goerr.New("invalid input")
)

// Context keys for error values
const (
	ChannelIDKey = "channel_id"
	MemoryIDKey  = "memory_id"
)
