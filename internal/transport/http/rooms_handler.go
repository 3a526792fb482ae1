package http

import (
	"encoding/json"
	"net/http"

	"quiz-battle-service/internal/app"
)

// RoomsHandler exposes read-only room views for operational visibility.
type RoomsHandler struct {
	service *app.BattleService
}

func NewRoomsHandler(service *app.BattleService) *RoomsHandler {
	return &RoomsHandler{service: service}
}

// ListRooms handles GET /rooms.
func (h *RoomsHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListRooms(r.Context()))
}

// GetRoom handles GET /rooms/{id} via the ?roomId= query parameter.
func (h *RoomsHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		http.Error(w, "missing roomId", http.StatusBadRequest)
		return
	}
	snapshot, err := h.service.RoomSnapshot(r.Context(), roomID)
	if err != nil {
		http.Error(w, err.Error(), mapStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
