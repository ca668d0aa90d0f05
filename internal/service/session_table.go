package service

import (
	"sync"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
)

// sessionSlot serializes all work on one user's dialog. session is guarded
// by mu; refs is guarded by the table mutex.
type sessionSlot struct {
	mu      sync.Mutex
	session *domain.Session
	refs    int
}

// sessionTable maps user ids to slots. The table mutex only covers slot
// lookup and reference counting, so users never wait on each other. A slot
// is dropped once it holds no session and nobody holds or awaits it.
type sessionTable struct {
	mu    sync.Mutex
	slots map[int64]*sessionSlot
}

func newSessionTable() *sessionTable {
	return &sessionTable{slots: make(map[int64]*sessionSlot)}
}

// acquire returns the locked slot of userID, creating it when needed.
func (t *sessionTable) acquire(userID int64) *sessionSlot {
	t.mu.Lock()
	slot, ok := t.slots[userID]
	if !ok {
		slot = &sessionSlot{}
		t.slots[userID] = slot
	}
	slot.refs++
	t.mu.Unlock()

	slot.mu.Lock()
	return slot
}

// release unlocks slot and evicts it when unused.
func (t *sessionTable) release(userID int64, slot *sessionSlot) {
	slot.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	slot.refs--
	if slot.refs == 0 && slot.session == nil {
		delete(t.slots, userID)
	}
}

// with runs fn while holding the slot of userID.
func (t *sessionTable) with(userID int64, fn func(slot *sessionSlot)) {
	slot := t.acquire(userID)
	defer t.release(userID, slot)
	fn(slot)
}

// size returns the number of live slots.
func (t *sessionTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
