package application

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// StatusCache holds recently computed room statuses so occupancy polling does
// not hit the repository on every request. Entries expire after a short TTL
// and are invalidated eagerly when a reservation for the room changes, before
// the write's slot lock is released, so readers never see a stale status after
// a booking mutation completes.
type StatusCache struct {
	lru *expirable.LRU[string, RoomStatus]
}

// NewStatusCache builds a cache bounded to size entries expiring after ttl.
func NewStatusCache(size int, ttl time.Duration) *StatusCache {
	if size <= 0 {
		size = 128
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatusCache{
		lru: expirable.NewLRU[string, RoomStatus](size, nil, ttl),
	}
}

func (c *StatusCache) Get(roomID string) (RoomStatus, bool) {
	if c == nil {
		return RoomStatus{}, false
	}
	return c.lru.Get(roomID)
}

func (c *StatusCache) Store(roomID string, status RoomStatus) {
	if c == nil {
		return
	}
	c.lru.Add(roomID, status)
}

func (c *StatusCache) Invalidate(roomID string) {
	if c == nil {
		return
	}
	c.lru.Remove(roomID)
}

func (c *StatusCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
