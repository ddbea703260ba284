package handlers

import (
	"net/http"

	"github.com/umar/agentmesh/internal/service"
)

func JoinRoom(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		agent, created, err := svc.JoinRoom(r.Context(), room, req.Name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		status, msg := http.StatusCreated, "Joined room"
		if !created {
			status, msg = http.StatusOK, "Already joined"
		}
		writeJSON(w, status, map[string]interface{}{
			"agent":   agent,
			"message": msg,
		})
	}
}

func ListAgents(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		agents, err := svc.ListAgents(r.Context(), room)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
	}
}
