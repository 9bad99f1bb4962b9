package signal

import (
	"sync"
	"time"

	"github.com/dkeye/listenparty/internal/domain"
)

type limiterKey struct {
	room     domain.RoomName
	identity domain.Identity
}

// RoomRateLimiter is a sliding-window limiter per participant.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[limiterKey][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[limiterKey][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(room domain.RoomName, id domain.Identity) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := limiterKey{room: room, identity: id}
	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	rl.history[key] = append(fresh, now)
	return true
}

// Forget drops the history of a participant that left.
func (rl *RoomRateLimiter) Forget(room domain.RoomName, id domain.Identity) {
	rl.mu.Lock()
	delete(rl.history, limiterKey{room: room, identity: id})
	rl.mu.Unlock()
}
