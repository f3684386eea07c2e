package room

import (
	"sync"
	"time"
)

// DefaultBanDuration matches the kick penalty of the reference deployment.
const DefaultBanDuration = 60 * time.Minute

// Bans tracks per-room, per-user ban-until timestamps. Expiry is lazy: any
// read that finds an elapsed ban deletes it and reports the user unbanned, so
// no background sweep is needed for correctness.
type Bans struct {
	mu   sync.Mutex
	bans map[string]map[string]time.Time // roomID -> userID -> bannedUntil
	now  func() time.Time
}

func NewBans() *Bans {
	return &Bans{
		bans: make(map[string]map[string]time.Time),
		now:  time.Now,
	}
}

// Ban records a ban ending at now+d and returns the end time.
func (b *Bans) Ban(roomID, userID string, d time.Duration) time.Time {
	until := b.now().Add(d)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bans[roomID] == nil {
		b.bans[roomID] = make(map[string]time.Time)
	}
	b.bans[roomID][userID] = until
	return until
}

// IsBanned reports whether the user has an active ban in the room, clearing
// the entry if it has expired.
func (b *Bans) IsBanned(roomID, userID string) bool {
	_, ok := b.Until(roomID, userID)
	return ok
}

// Until returns the ban end time for an active ban. Check and read happen
// under one lock acquisition, so an active ban always comes back with its
// real end time; lazy expiry applies as in IsBanned.
func (b *Bans) Until(roomID, userID string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	roomBans, ok := b.bans[roomID]
	if !ok {
		return time.Time{}, false
	}
	until, ok := roomBans[userID]
	if !ok {
		return time.Time{}, false
	}
	if b.now().After(until) {
		delete(roomBans, userID)
		if len(roomBans) == 0 {
			delete(b.bans, roomID)
		}
		return time.Time{}, false
	}
	return until, true
}
