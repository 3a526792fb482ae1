package memory

import (
	"sync"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// RoomRegistry is an in-memory implementation of app.RoomRegistry. Its mutex
// only guards the map; per-room state has its own lock, so operations in
// different rooms never serialize against each other.
type RoomRegistry struct {
	settings app.Settings

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomRegistry(settings app.Settings) *RoomRegistry {
	return &RoomRegistry{
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
	delete(r.rooms, roomID)
}

func (r *RoomRegistry) ListSummaries() []domain.RoomSummary {
	r.mu.RLock()
	rooms := make([]*app.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	// Summaries take each room's lock, so collect outside the registry lock.
	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}
