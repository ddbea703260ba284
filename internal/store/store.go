// Package store defines the persistence contract shared by every backend.
//
// Implementations live in internal/snapshot (whole-file JSON),
// internal/database (SQLite and PostgreSQL) and internal/redis. Every method
// that reads or writes room-owned data takes the room id and must include it
// in the lookup predicate, so a caller can never reach another room's rows by
// guessing an id.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/umar/agentmesh/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist in the given room.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique value (room id or api key) is taken.
	ErrConflict = errors.New("record already exists")
)

// Store is the persistence capability consumed by the service layer.
// Mutating calls return only after the write is durable.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoomByAPIKey(ctx context.Context, apiKey string) (*models.Room, error)

	// JoinAgent returns the existing agent for (room, name) when there is one,
	// otherwise it inserts agent. created reports which happened.
	JoinAgent(ctx context.Context, agent *models.Agent) (result *models.Agent, created bool, err error)
	ListAgents(ctx context.Context, roomID string) ([]models.Agent, error)

	// CreateMessage assigns msg.ID as one past the highest stored message id.
	CreateMessage(ctx context.Context, msg *models.Message) error
	// ListMessages returns matching messages in ascending id order, keeping only
	// the most recent filter.Limit of them when Limit is positive.
	ListMessages(ctx context.Context, roomID string, filter models.MessageFilter) ([]models.Message, error)
	// MarkRead adds agent to the read set of every message in the room with
	// id <= upToID that is visible to agent, returning how many changed.
	MarkRead(ctx context.Context, roomID, agent string, upToID int64) (int, error)

	// CreateTask assigns task.ID as one past the highest stored task id.
	CreateTask(ctx context.Context, task *models.Task) error
	// ListTasks returns matching tasks newest first.
	ListTasks(ctx context.Context, roomID string, filter models.TaskFilter) ([]models.Task, error)
	GetTask(ctx context.Context, roomID string, id int64) (*models.Task, error)
	// UpdateTask applies the non-nil patch fields and sets updated_at to now.
	UpdateTask(ctx context.Context, roomID string, id int64, patch models.TaskPatch, now time.Time) (*models.Task, error)
}
