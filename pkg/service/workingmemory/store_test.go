package workingmemory_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/m-mizutani/gt"
)

func item(channelID string, i int) model.WorkingMemoryItem {
	return model.WorkingMemoryItem{
		SpeakerID:   "U001",
		SpeakerName: "Mary",
		Text:        fmt.Sprintf("message %d", i),
		ChannelID:   channelID,
		Timestamp:   time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
	}
}

func TestStore_ReadAfterOverflowKeepsLastCapacityItems(t *testing.T) {
	for _, capacity := range []int{1, 3, 20} {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			store := workingmemory.New(workingmemory.WithCapacity(capacity))

			total := capacity*2 + 1
			for i := 0; i < total; i++ {
				store.Append("C001", item("C001", i))
			}

			items := store.Read("C001")
			gt.Array(t, items).Length(capacity)
			for i, it := range items {
				gt.Value(t, it.Text).Equal(fmt.Sprintf("message %d", total-capacity+i))
			}
		})
	}
}

func TestStore_DefaultCapacity(t *testing.T) {
	store := workingmemory.New()
	gt.Value(t, store.Capacity()).Equal(workingmemory.DefaultCapacity)

	for i := 0; i < 25; i++ {
		store.Append("C001", item("C001", i))
	}
	items := store.Read("C001")
	gt.Array(t, items).Length(20)
	gt.Value(t, items[0].Text).Equal("message 5")
}

func TestStore_ChannelsAreIndependent(t *testing.T) {
	store := workingmemory.New(workingmemory.WithCapacity(5))

	store.Append("C-A", item("C-A", 0))
	store.Append("C-B", item("C-B", 1))
	store.Append("C-B", item("C-B", 2))

	gt.Array(t, store.Read("C-A")).Length(1)
	gt.Array(t, store.Read("C-B")).Length(2)
	gt.Array(t, store.Read("C-unknown")).Length(0)

	gt.Value(t, store.Clear("C-B")).Equal(2)
	gt.Array(t, store.Read("C-B")).Length(0)
	gt.Array(t, store.Read("C-A")).Length(1)

	channels := store.Channels()
	gt.Array(t, channels).Length(1)
	gt.Value(t, channels[0]).Equal("C-A")
}

func TestStore_ReadReturnsCopy(t *testing.T) {
	store := workingmemory.New()
	store.Append("C001", item("C001", 0))

	items := store.Read("C001")
	items[0].Text = "mutated"

	gt.Value(t, store.Read("C001")[0].Text).Equal("message 0")
}

func TestStore_ClearUntilKeepsLaterItems(t *testing.T) {
	store := workingmemory.New(workingmemory.WithCapacity(10))

	for i := 0; i < 3; i++ {
		store.Append("C001", item("C001", i))
	}
	snapshot, cursor := store.Snapshot("C001")
	gt.Array(t, snapshot).Length(3)

	store.Append("C001", item("C001", 3))

	gt.Value(t, store.ClearUntil("C001", cursor)).Equal(3)
	remaining := store.Read("C001")
	gt.Array(t, remaining).Length(1)
	gt.Value(t, remaining[0].Text).Equal("message 3")

	// idempotent
	gt.Value(t, store.ClearUntil("C001", cursor)).Equal(0)
}

func TestStore_ClearUntilAfterEviction(t *testing.T) {
	store := workingmemory.New(workingmemory.WithCapacity(2))

	store.Append("C001", item("C001", 0))
	store.Append("C001", item("C001", 1))
	_, cursor := store.Snapshot("C001")

	// evicts message 0 and 1 before the clear happens
	store.Append("C001", item("C001", 2))
	store.Append("C001", item("C001", 3))

	gt.Value(t, store.ClearUntil("C001", cursor)).Equal(0)
	gt.Array(t, store.Read("C001")).Length(2)
}

func TestStore_StatsAndClearAll(t *testing.T) {
	store := workingmemory.New()
	store.Append("C-A", item("C-A", 0))
	store.Append("C-A", item("C-A", 1))
	store.Append("C-B", item("C-B", 2))

	channels, messages := store.Stats()
	gt.Value(t, channels).Equal(2)
	gt.Value(t, messages).Equal(3)

	gt.Value(t, store.ClearAll()).Equal(3)

	channels, messages = store.Stats()
	gt.Value(t, channels).Equal(0)
	gt.Value(t, messages).Equal(0)
}

func TestStore_ClearUntilAfterClearAllKeepsNewItems(t *testing.T) {
	store := workingmemory.New()
	for i := 0; i < 3; i++ {
		store.Append("C001", item("C001", i))
	}
	_, cursor := store.Snapshot("C001")

	gt.Value(t, store.ClearAll()).Equal(3)
	store.Append("C001", item("C001", 3))
	store.Append("C001", item("C001", 4))

	gt.Value(t, store.ClearUntil("C001", cursor)).Equal(0)
	remaining := store.Read("C001")
	gt.Array(t, remaining).Length(2).Required()
	gt.Value(t, remaining[0].Text).Equal("message 3")
}

func TestStore_AppendFillsChannelID(t *testing.T) {
	store := workingmemory.New()
	store.Append("C001", model.WorkingMemoryItem{Text: "hi"})
	gt.Value(t, store.Read("C001")[0].ChannelID).Equal("C001")
}

func TestStore_ConcurrentAppend(t *testing.T) {
	store := workingmemory.New(workingmemory.WithCapacity(50))

	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		channelID := fmt.Sprintf("C%d", c)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				store.Append(channelID, item(channelID, i))
			}(i)
		}
	}
	wg.Wait()

	channels, messages := store.Stats()
	gt.Value(t, channels).Equal(4)
	gt.Value(t, messages).Equal(200)
}
