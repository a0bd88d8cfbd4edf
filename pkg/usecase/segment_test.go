package usecase_test

import (
	"testing"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/Dev-Marygold/Laffey/pkg/usecase"
	"github.com/m-mizutani/gt"
)

func TestPartitionSegments(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(min int) model.WorkingMemoryItem {
		return userItem("U1", "m", base.Add(time.Duration(min)*time.Minute))
	}

	t.Run("splits on gaps above the threshold", func(t *testing.T) {
		items := []model.WorkingMemoryItem{at(0), at(10), at(45), at(50)}
		segments := usecase.PartitionSegments(items, 30*time.Minute)

		gt.Array(t, segments).Length(2).Required()
		gt.Value(t, segments[0]).Equal([]model.WorkingMemoryItem{items[0], items[1]})
		gt.Value(t, segments[1]).Equal([]model.WorkingMemoryItem{items[2], items[3]})
	})

	t.Run("a gap equal to the threshold does not split", func(t *testing.T) {
		segments := usecase.PartitionSegments([]model.WorkingMemoryItem{at(0), at(30)}, 30*time.Minute)
		gt.Array(t, segments).Length(1)
	})

	t.Run("single item", func(t *testing.T) {
		segments := usecase.PartitionSegments([]model.WorkingMemoryItem{at(0)}, 30*time.Minute)
		gt.Array(t, segments).Length(1)
		gt.Array(t, segments[0]).Length(1)
	})

	t.Run("empty input", func(t *testing.T) {
		gt.Array(t, usecase.PartitionSegments(nil, 30*time.Minute)).Length(0)
	})
}

func TestHoldPendingTurn(t *testing.T) {
	now := time.Now()

	t.Run("trailing user turn is held back", func(t *testing.T) {
		items := []model.WorkingMemoryItem{userItem("U1", "a", now), agentItem("b", now), userItem("U1", "c", now)}
		held, cursor := usecase.HoldPendingTurn(items, workingmemory.Cursor(7))
		gt.Array(t, held).Length(2)
		gt.Value(t, cursor).Equal(workingmemory.Cursor(6))
	})

	t.Run("answered backlog is kept whole", func(t *testing.T) {
		items := []model.WorkingMemoryItem{userItem("U1", "a", now), agentItem("b", now)}
		held, cursor := usecase.HoldPendingTurn(items, workingmemory.Cursor(2))
		gt.Array(t, held).Length(2)
		gt.Value(t, cursor).Equal(workingmemory.Cursor(2))
	})

	t.Run("empty", func(t *testing.T) {
		held, cursor := usecase.HoldPendingTurn(nil, workingmemory.Cursor(0))
		gt.Array(t, held).Length(0)
		gt.Value(t, cursor).Equal(workingmemory.Cursor(0))
	})
}
