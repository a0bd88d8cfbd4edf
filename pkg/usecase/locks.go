package usecase

import "sync"

// channelLocks is the per-channel consolidation lock. A channel is held by at
// most one consolidation pass; other callers fail fast instead of waiting.
type channelLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newChannelLocks() *channelLocks {
	return &channelLocks{held: make(map[string]struct{})}
}

func (l *channelLocks) tryLock(channelID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[channelID]; ok {
		return false
	}
	l.held[channelID] = struct{}{}
	return true
}

func (l *channelLocks) unlock(channelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, channelID)
}

func (l *channelLocks) isLocked(channelID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[channelID]
	return ok
}
