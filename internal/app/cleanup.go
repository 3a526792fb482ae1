package app

import (
	"context"
	"log"
	"sync"
	"time"
)

// CleanupScheduler reclaims finished and abandoned rooms. Deferred deletions
// are one-shot timers keyed by room id; a status change before the timer fires
// makes the task a no-op because reclaimability is checked at fire time.
type CleanupScheduler struct {
	registry RoomRegistry
	settings Settings
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCleanupScheduler(registry RoomRegistry, settings Settings) *CleanupScheduler {
	return &CleanupScheduler{
		registry: registry,
		settings: settings.withDefaults(),
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// Schedule arms (or re-arms) the deferred deletion for a room.
func (c *CleanupScheduler) Schedule(roomID string, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.timers[roomID]; ok {
		timer.Stop()
	}
	c.timers[roomID] = time.AfterFunc(delay, func() {
		c.fire(roomID)
	})
}

// Cancel drops any pending deletion for a room.
func (c *CleanupScheduler) Cancel(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.timers[roomID]; ok {
		timer.Stop()
		delete(c.timers, roomID)
	}
}

func (c *CleanupScheduler) fire(roomID string) {
	c.mu.Lock()
	delete(c.timers, roomID)
	c.mu.Unlock()

	room, ok := c.registry.Get(roomID)
	if !ok {
		return
	}
	if !room.Reclaimable() {
		// The room moved on since the task was scheduled.
		return
	}
	c.registry.Remove(roomID)
	log.Printf("reclaimed room %s", roomID)
}

// Run sweeps for orphaned lobbies until the context is canceled.
func (c *CleanupScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(c.settings.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.stopAll()
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep reclaims Waiting rooms older than the idle threshold.
func (c *CleanupScheduler) sweep() {
	cutoff := c.now().Add(-c.settings.IdleAfter)
	for _, summary := range c.registry.ListSummaries() {
		room, ok := c.registry.Get(summary.ID)
		if !ok {
			continue
		}
		if room.IdleSince(cutoff) {
			c.registry.Remove(summary.ID)
			log.Printf("swept idle room %s", summary.ID)
		}
	}
}

func (c *CleanupScheduler) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
}
