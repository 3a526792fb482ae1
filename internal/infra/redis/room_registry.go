package redis

import (
	"context"
	"sync"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RoomRegistry is a Redis-aware implementation of app.RoomRegistry.
// Notes:
//   - Rooms themselves stay in-process; the registry keeps a local map so the
//     per-room locking and broadcast logic is unchanged.
//   - Redis only marks room liveness (and could be extended to share
//     snapshots or route cross-instance pub/sub).
//   - For true distribution you'd pair this with a pub/sub projector that fans out events.
type RoomRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	settings app.Settings

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration, settings app.Settings) *RoomRegistry {
	return &RoomRegistry{
		client:   client,
		ttl:      ttl,
		settings: settings,
		rooms:    make(map[string]*app.Room),
	}
}

func (r *RoomRegistry) GetOrCreate(roomID, creatorID string) *app.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return room
	}
	room := app.NewRoom(roomID, creatorID, r.settings)
	r.rooms[roomID] = room
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(roomID), "1", r.ttl).Err()
	return room
}

func (r *RoomRegistry) Get(roomID string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *RoomRegistry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		return
	}
	delete(r.rooms, roomID)
	_ = r.client.Del(context.Background(), r.key(roomID)).Err()
}

func (r *RoomRegistry) ListSummaries() []domain.RoomSummary {
	r.mu.RLock()
	rooms := make([]*app.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

func (r *RoomRegistry) key(roomID string) string {
	return "battle:room:" + roomID
}
