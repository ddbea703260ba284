package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/umar/agentmesh/internal/metrics"
	"github.com/umar/agentmesh/internal/models"
)

// JoinRoom registers name in the room. Joining twice returns the existing
// agent with created set to false.
func (s *Service) JoinRoom(ctx context.Context, room *models.Room, name string) (*models.Agent, bool, error) {
	name, err := required("name", name)
	if err != nil {
		return nil, false, err
	}

	agent, created, err := s.store.JoinAgent(ctx, &models.Agent{
		ID:       uuid.NewString(),
		RoomID:   room.ID,
		Name:     name,
		JoinedAt: s.timestamp(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to join room: %w", err)
	}
	if created {
		metrics.AgentsJoined.Inc()
	}
	return agent, created, nil
}

func (s *Service) ListAgents(ctx context.Context, room *models.Room) ([]models.AgentSummary, error) {
	agents, err := s.store.ListAgents(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return models.Summaries(agents), nil
}
