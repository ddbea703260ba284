package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/umar/agentmesh/internal/metrics"
	"github.com/umar/agentmesh/internal/models"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

type SendMessageInput struct {
	From    string
	To      string
	Content string
	Type    string
}

// SendMessage appends a message to the room log and returns its id. An empty
// To makes it a broadcast. Sender and recipient are free text.
func (s *Service) SendMessage(ctx context.Context, room *models.Room, in SendMessageInput) (int64, error) {
	from, err := required("from", in.From)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return 0, invalidf("content is required")
	}
	msgType := strings.TrimSpace(in.Type)
	if msgType == "" {
		msgType = models.DefaultMessageType
	}

	msg := &models.Message{
		RoomID:    room.ID,
		FromAgent: from,
		ToAgent:   optional(in.To),
		Content:   in.Content,
		Type:      msgType,
		ReadBy:    []string{},
		CreatedAt: s.timestamp(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return 0, fmt.Errorf("failed to create message: %w", err)
	}

	delivery := "broadcast"
	if msg.ToAgent != nil {
		delivery = "direct"
	}
	metrics.MessagesSent.WithLabelValues(delivery).Inc()
	return msg.ID, nil
}

// ListMessages returns the most recent messages matching filter in ascending
// id order. A non-positive limit means DefaultMessageLimit; larger limits are
// capped at MaxMessageLimit.
func (s *Service) ListMessages(ctx context.Context, room *models.Room, filter models.MessageFilter) ([]models.Message, error) {
	filter.For = strings.TrimSpace(filter.For)
	filter.Limit = clampLimit(filter.Limit)
	if filter.SinceID < 0 {
		filter.SinceID = 0
	}

	msgs, err := s.store.ListMessages(ctx, room.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultMessageLimit
	case limit > MaxMessageLimit:
		return MaxMessageLimit
	}
	return limit
}

// MarkRead records agent as a reader of every message up to and including
// upToID that it can see. It returns how many messages were newly marked.
func (s *Service) MarkRead(ctx context.Context, room *models.Room, agent string, upToID int64) (int, error) {
	agent, err := required("agent", agent)
	if err != nil {
		return 0, err
	}
	if upToID <= 0 {
		return 0, invalidf("up_to_id is required")
	}

	marked, err := s.store.MarkRead(ctx, room.ID, agent, upToID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	metrics.MessagesMarkedRead.Add(float64(marked))
	return marked, nil
}
