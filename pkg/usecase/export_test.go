package usecase

// PartitionSegments is exported for testing
var PartitionSegments = partitionSegments

// MergeMemories is exported for testing
var MergeMemories = mergeMemories

// BuildSystemPrompt is exported for testing
var BuildSystemPrompt = buildSystemPrompt

// StripMention is exported for testing
var StripMention = stripMention

// HoldPendingTurn is exported for testing
var HoldPendingTurn = holdPendingTurn
