package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/umar/agentmesh/internal/service"
)

const Version = "1.0.0"

func Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":     "agentmesh",
		"version":     Version,
		"description": "Message and task relay for agents sharing a room",
		"help":        "/help",
	})
}

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Auth        bool   `json:"auth"`
	Body        string `json:"body,omitempty"`
	Description string `json:"description"`
}

var catalogue = []endpoint{
	{"POST", "/rooms", false, `{"name"}`, "Create a room and receive its api_key"},
	{"GET", "/rooms", true, "", "Room details and the agents in it"},
	{"POST", "/agents", true, `{"name"}`, "Join the room; joining again returns the existing agent"},
	{"GET", "/agents", true, "", "List agents in the room"},
	{"POST", "/messages", true, `{"from","to?","content","type?"}`, "Send a message; omit to for a broadcast"},
	{"GET", "/messages", true, "?for=&since_id=&limit=", "Most recent messages, oldest first (limit defaults to 50, max 200)"},
	{"POST", "/messages/read", true, `{"agent","up_to_id"}`, "Mark messages up to an id as read"},
	{"POST", "/tasks", true, `{"title","description?","assigned_to?","created_by"}`, "Create a task"},
	{"GET", "/tasks", true, "?status=&assigned_to=", "List tasks, newest first"},
	{"PATCH", "/tasks/{id}", true, `{"status?","assigned_to?","title?","description?"}`, "Update task fields; empty strings are ignored"},
	{"GET", "/health", false, "", "Store health check"},
	{"GET", "/metrics", false, "", "Prometheus metrics"},
}

func Help(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auth_header": "x-api-key",
		"endpoints":   catalogue,
	})
}

func Health(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		start := time.Now()
		if err := svc.Ping(ctx); err != nil {
			slog.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "agentmesh",
				"store":   "fail",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "agentmesh",
			"store":   "pass",
			"latency": time.Since(start).String(),
		})
	}
}
