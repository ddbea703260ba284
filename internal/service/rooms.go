package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/umar/agentmesh/internal/metrics"
	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
)

const maxKeyAttempts = 5

// CreateRoom issues a new room with a fresh id and api key.
func (s *Service) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	name, err := required("name", name)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := s.newKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate api key: %w", err)
		}
		room := &models.Room{
			ID:        uuid.NewString(),
			Name:      name,
			APIKey:    key,
			CreatedAt: s.timestamp(),
		}
		err = s.store.CreateRoom(ctx, room)
		if errors.Is(err, store.ErrConflict) {
			slog.Warn("api key collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		metrics.RoomsCreated.Inc()
		return room, nil
	}
	return nil, fmt.Errorf("failed to create room after %d attempts: %w", maxKeyAttempts, store.ErrConflict)
}

// Authenticate resolves an api key to its room. An empty key is
// ErrUnauthorized, an unknown key ErrForbidden.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*models.Room, error) {
	if apiKey == "" {
		return nil, ErrUnauthorized
	}
	room, err := s.store.GetRoomByAPIKey(ctx, apiKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return room, nil
}

// RoomInfo returns the room's public attributes and its agents.
func (s *Service) RoomInfo(ctx context.Context, room *models.Room) (*models.RoomInfo, error) {
	agents, err := s.store.ListAgents(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return &models.RoomInfo{
		Room:   room.Summary(),
		Agents: models.Summaries(agents),
	}, nil
}
