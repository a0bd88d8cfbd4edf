package workingmemory

import (
	"sort"
	"sync"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
)

// DefaultCapacity is the number of turns kept per channel
const DefaultCapacity = 20

// Cursor marks a position in a channel's append history. Items appended
// after a cursor was taken are never affected by ClearUntil with it.
type Cursor uint64

type entry struct {
	seq  uint64
	item model.WorkingMemoryItem
}

// ring is a fixed capacity FIFO. Appending to a full ring overwrites the
// oldest entry.
type ring struct {
	mu   sync.Mutex
	buf  []entry
	head int
	size int
	next uint64
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]entry, capacity)}
}

func (r *ring) push(item model.WorkingMemoryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{seq: r.next, item: item}
	r.next++

	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = e
		r.size++
		return
	}

	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) snapshot() ([]model.WorkingMemoryItem, Cursor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.WorkingMemoryItem, r.size)
	for i := 0; i < r.size; i++ {
		items[i] = r.buf[(r.head+i)%len(r.buf)].item
	}
	return items, Cursor(r.next)
}

func (r *ring) dropUntil(cursor Cursor) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for r.size > 0 && r.buf[r.head].seq < uint64(cursor) {
		r.buf[r.head] = entry{}
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		removed++
	}
	return removed
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Store keeps the most recent turns of every channel in process memory.
// Channels are locked independently.
type Store struct {
	capacity int

	mu       sync.RWMutex
	channels map[string]*ring
}

type Option func(*Store)

// WithCapacity sets the per-channel bound. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		channels: make(map[string]*ring),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) channel(channelID string, create bool) *ring {
	s.mu.RLock()
	r, ok := s.channels[channelID]
	s.mu.RUnlock()
	if ok || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.channels[channelID]; ok {
		return r
	}
	r = newRing(s.capacity)
	s.channels[channelID] = r
	return r
}

// Append adds item to the channel, dropping the oldest item when full
func (s *Store) Append(channelID string, item model.WorkingMemoryItem) {
	if item.ChannelID == "" {
		item.ChannelID = channelID
	}
	s.channel(channelID, true).push(item)
}

// Read returns the channel's items oldest first
func (s *Store) Read(channelID string) []model.WorkingMemoryItem {
	items, _ := s.Snapshot(channelID)
	return items
}

// Snapshot returns the channel's items oldest first and a cursor just past
// the newest one.
func (s *Store) Snapshot(channelID string) ([]model.WorkingMemoryItem, Cursor) {
	r := s.channel(channelID, false)
	if r == nil {
		return []model.WorkingMemoryItem{}, 0
	}
	return r.snapshot()
}

// ClearUntil removes the items appended before cursor and returns how many
// were removed.
func (s *Store) ClearUntil(channelID string, cursor Cursor) int {
	r := s.channel(channelID, false)
	if r == nil {
		return 0
	}
	return r.dropUntil(cursor)
}

// Clear removes every item of the channel
func (s *Store) Clear(channelID string) int {
	r := s.channel(channelID, false)
	if r == nil {
		return 0
	}
	_, cursor := r.snapshot()
	return r.dropUntil(cursor)
}

// ClearAll empties every channel. Rings are emptied in place so that their
// sequence keeps growing and cursors taken before the call stay valid.
func (s *Store) ClearAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	removed := 0
	for _, r := range s.channels {
		_, cursor := r.snapshot()
		removed += r.dropUntil(cursor)
	}
	return removed
}

// Channels lists channels with at least one item, sorted
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.channels))
	for id, r := range s.channels {
		if r.len() > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Stats returns the number of non-empty channels and total items
func (s *Store) Stats() (channels, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.channels {
		if n := r.len(); n > 0 {
			channels++
			messages += n
		}
	}
	return channels, messages
}
