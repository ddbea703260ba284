package handlers

import (
	"log/slog"
	"net/http"

	"github.com/umar/agentmesh/internal/service"
)

func CreateRoom(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		room, err := svc.CreateRoom(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		slog.Info("room created", "room_id", room.ID, "name", room.Name)

		writeJSON(w, http.StatusCreated, map[string]string{
			"room_id": room.ID,
			"name":    room.Name,
			"api_key": room.APIKey,
			"message": "Room created. Share the api_key with your agents; it cannot be recovered.",
		})
	}
}

func GetRoom(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		info, err := svc.RoomInfo(r.Context(), room)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}
