package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/service"
)

func CreateTask(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			AssignedTo  string `json:"assigned_to"`
			CreatedBy   string `json:"created_by"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		id, err := svc.CreateTask(r.Context(), room, service.CreateTaskInput{
			Title:       req.Title,
			Description: req.Description,
			AssignedTo:  req.AssignedTo,
			CreatedBy:   req.CreatedBy,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":      id,
			"message": "Task created",
		})
	}
}

func ListTasks(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		tasks, err := svc.ListTasks(r.Context(), room, models.TaskFilter{
			Status:     q.Get("status"),
			AssignedTo: q.Get("assigned_to"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
	}
}

func UpdateTask(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}

		var patch models.TaskPatch
		if !decodeJSON(w, r, &patch) {
			return
		}

		task, err := svc.UpdateTask(r.Context(), room, id, patch)
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Task updated",
			"task":    task,
		})
	}
}
