package usecase

import (
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
)

// partitionSegments splits chronologically ordered items into conversations.
// A gap strictly greater than gap between neighbours starts a new segment.
func partitionSegments(items []model.WorkingMemoryItem, gap time.Duration) [][]model.WorkingMemoryItem {
	if len(items) == 0 {
		return nil
	}

	var segments [][]model.WorkingMemoryItem
	current := []model.WorkingMemoryItem{items[0]}
	for i := 1; i < len(items); i++ {
		if items[i].Timestamp.Sub(items[i-1].Timestamp) > gap {
			segments = append(segments, current)
			current = nil
		}
		current = append(current, items[i])
	}
	return append(segments, current)
}

type turnPair struct {
	user  model.WorkingMemoryItem
	agent model.WorkingMemoryItem
}

// pairTurns returns adjacent (user, agent) pairs. Items out of that order,
// such as two user turns in a row, are skipped.
func pairTurns(segment []model.WorkingMemoryItem) []turnPair {
	var pairs []turnPair
	for i := 0; i+1 < len(segment); {
		if !segment[i].IsAgentResponse && segment[i+1].IsAgentResponse {
			pairs = append(pairs, turnPair{user: segment[i], agent: segment[i+1]})
			i += 2
			continue
		}
		i++
	}
	return pairs
}

// holdPendingTurn drops a trailing user turn that has no reply yet and moves
// cursor back so that the turn survives ClearUntil.
func holdPendingTurn(items []model.WorkingMemoryItem, cursor workingmemory.Cursor) ([]model.WorkingMemoryItem, workingmemory.Cursor) {
	if len(items) == 0 || items[len(items)-1].IsAgentResponse {
		return items, cursor
	}
	return items[:len(items)-1], cursor - 1
}
