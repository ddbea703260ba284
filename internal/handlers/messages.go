package handlers

import (
	"net/http"
	"strconv"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/service"
)

func SendMessage(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		var req struct {
			From    string `json:"from"`
			To      string `json:"to"`
			Content string `json:"content"`
			Type    string `json:"type"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		id, err := svc.SendMessage(r.Context(), room, service.SendMessageInput{
			From:    req.From,
			To:      req.To,
			Content: req.Content,
			Type:    req.Type,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":      id,
			"message": "Message sent",
		})
	}
}

// ListMessages serves GET /messages?for=&since_id=&limit=. Unparseable
// numbers are ignored.
func ListMessages(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		filter := models.MessageFilter{For: q.Get("for")}
		if v, err := strconv.ParseInt(q.Get("since_id"), 10, 64); err == nil {
			filter.SinceID = v
		}
		if v, err := strconv.Atoi(q.Get("limit")); err == nil {
			filter.Limit = v
		}

		msgs, err := svc.ListMessages(r.Context(), room, filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
	}
}

func MarkRead(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := requireRoom(w, r)
		if !ok {
			return
		}

		var req struct {
			Agent  string `json:"agent"`
			UpToID int64  `json:"up_to_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		marked, err := svc.MarkRead(r.Context(), room, req.Agent, req.UpToID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
	}
}
