package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/umar/agentmesh/internal/metrics"
	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
)

type CreateTaskInput struct {
	Title       string
	Description string
	AssignedTo  string
	CreatedBy   string
}

// CreateTask adds a pending task to the room and returns its id.
func (s *Service) CreateTask(ctx context.Context, room *models.Room, in CreateTaskInput) (int64, error) {
	title, err := required("title", in.Title)
	if err != nil {
		return 0, err
	}
	createdBy, err := required("created_by", in.CreatedBy)
	if err != nil {
		return 0, err
	}

	now := s.timestamp()
	task := &models.Task{
		RoomID:      room.ID,
		Title:       title,
		Description: optional(in.Description),
		AssignedTo:  optional(in.AssignedTo),
		Status:      models.DefaultTaskStatus,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}
	metrics.TasksCreated.Inc()
	return task.ID, nil
}

// ListTasks returns the room's tasks, newest first, filtered by exact status
// and assignee when given.
func (s *Service) ListTasks(ctx context.Context, room *models.Room, filter models.TaskFilter) ([]models.Task, error) {
	filter.Status = strings.TrimSpace(filter.Status)
	filter.AssignedTo = strings.TrimSpace(filter.AssignedTo)

	tasks, err := s.store.ListTasks(ctx, room.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask applies patch to task id in the room. Fields sent as empty
// strings are ignored; a patch with nothing left is a ValidationError. A task
// that does not exist in this room is ErrNotFound, which takes precedence.
func (s *Service) UpdateTask(ctx context.Context, room *models.Room, id int64, patch models.TaskPatch) (*models.Task, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}

	patch = patch.Normalize()
	if patch.Empty() {
		if _, err := s.store.GetTask(ctx, room.ID, id); err != nil {
			return nil, taskError(err)
		}
		return nil, invalidf("nothing to update")
	}

	task, err := s.store.UpdateTask(ctx, room.ID, id, patch, s.timestamp())
	if err != nil {
		return nil, taskError(err)
	}
	metrics.TasksUpdated.Inc()
	return task, nil
}

func taskError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to update task: %w", err)
}
