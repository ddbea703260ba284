// Package snapshot is a store.Store that keeps the whole dataset in one JSON
// document. The document is loaded once at Open, mutated in memory under a
// single writer lock, and rewritten atomically after every mutation.
package snapshot

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
)

type dataset struct {
	Rooms    []models.Room    `json:"rooms"`
	Agents   []models.Agent   `json:"agents"`
	Messages []models.Message `json:"messages"`
	Tasks    []models.Task    `json:"tasks"`
}

type Store struct {
	path string

	mu        sync.RWMutex
	data      *dataset
	persisted []byte
}

var _ store.Store = (*Store)(nil)

// Open loads path, creating an empty document (and its directory) when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.data = &dataset{}
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data file %s: %w", path, err)
	}
	s.data = data
	s.persisted = raw
	return s, nil
}

func decode(raw []byte) (*dataset, error) {
	var d dataset
	if len(bytes.TrimSpace(raw)) == 0 {
		return &d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	for i := range d.Messages {
		if d.Messages[i].ReadBy == nil {
			d.Messages[i].ReadBy = []string{}
		}
	}
	return &d, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

func (s *Store) Close() error {
	return nil
}

// errUnchanged lets a mutation report success without touching the file.
var errUnchanged = errors.New("unchanged")

// mutate runs fn against the live dataset and persists the result. fn must
// return before modifying anything when it fails. If the write fails the
// in-memory state is restored from the last document that reached disk.
func (s *Store) mutate(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.data); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	if err := s.save(); err != nil {
		s.rollback()
		return err
	}
	return nil
}

func (s *Store) rollback() {
	if s.persisted == nil {
		s.data = &dataset{}
		return
	}
	if d, err := decode(s.persisted); err == nil {
		s.data = d
	}
}

// save writes the dataset to a temporary file, syncs it and renames it over
// the live file so readers only ever see a complete document.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data file: %w", err)
	}
	raw = append(raw, '\n')

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temporary data file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temporary data file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temporary data file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temporary data file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move data file into place: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		dir.Sync()
		dir.Close()
	}

	s.persisted = raw
	return nil
}

// --- Rooms ---

func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	return s.mutate(func(d *dataset) error {
		for _, r := range d.Rooms {
			if r.ID == room.ID || r.APIKey == room.APIKey {
				return store.ErrConflict
			}
		}
		d.Rooms = append(d.Rooms, *room)
		return nil
	})
}

func (s *Store) GetRoomByAPIKey(ctx context.Context, apiKey string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.data.Rooms {
		if r.APIKey == apiKey {
			room := r
			return &room, nil
		}
	}
	return nil, store.ErrNotFound
}

// --- Agents ---

func (s *Store) JoinAgent(ctx context.Context, agent *models.Agent) (*models.Agent, bool, error) {
	s.mu.RLock()
	existing := s.findAgent(agent.RoomID, agent.Name)
	s.mu.RUnlock()
	if existing != nil {
		return existing, false, nil
	}

	var (
		result  *models.Agent
		created bool
	)
	err := s.mutate(func(d *dataset) error {
		// Another writer may have joined the same name since the read above.
		if a := s.findAgent(agent.RoomID, agent.Name); a != nil {
			result = a
			return errUnchanged
		}
		d.Agents = append(d.Agents, *agent)
		joined := *agent
		result, created = &joined, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *Store) findAgent(roomID, name string) *models.Agent {
	for _, a := range s.data.Agents {
		if a.RoomID == roomID && a.Name == name {
			agent := a
			return &agent
		}
	}
	return nil
}

func (s *Store) ListAgents(ctx context.Context, roomID string) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := []models.Agent{}
	for _, a := range s.data.Agents {
		if a.RoomID == roomID {
			agents = append(agents, a)
		}
	}
	return agents, nil
}

// --- Messages ---

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.mutate(func(d *dataset) error {
		var maxID int64
		for _, m := range d.Messages {
			maxID = max(maxID, m.ID)
		}
		msg.ID = maxID + 1
		if msg.ReadBy == nil {
			msg.ReadBy = []string{}
		}
		stored := *msg
		stored.ReadBy = slices.Clone(msg.ReadBy)
		d.Messages = append(d.Messages, stored)
		return nil
	})
}

func (s *Store) ListMessages(ctx context.Context, roomID string, filter models.MessageFilter) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := []models.Message{}
	for _, m := range s.data.Messages {
		if m.RoomID != roomID || !filter.Matches(&m) {
			continue
		}
		m.ReadBy = slices.Clone(m.ReadBy)
		msgs = append(msgs, m)
	}
	slices.SortFunc(msgs, func(a, b models.Message) int { return cmp.Compare(a.ID, b.ID) })
	return models.KeepRecent(msgs, filter.Limit), nil
}

func (s *Store) MarkRead(ctx context.Context, roomID, agent string, upToID int64) (int, error) {
	marked := 0
	err := s.mutate(func(d *dataset) error {
		for i := range d.Messages {
			m := &d.Messages[i]
			if m.RoomID != roomID || m.ID > upToID || !m.VisibleTo(agent) || m.HasReader(agent) {
				continue
			}
			m.ReadBy = append(m.ReadBy, agent)
			marked++
		}
		if marked == 0 {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// --- Tasks ---

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	return s.mutate(func(d *dataset) error {
		var maxID int64
		for _, t := range d.Tasks {
			maxID = max(maxID, t.ID)
		}
		task.ID = maxID + 1
		d.Tasks = append(d.Tasks, *task)
		return nil
	})
}

func (s *Store) ListTasks(ctx context.Context, roomID string, filter models.TaskFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := []models.Task{}
	for _, t := range s.data.Tasks {
		if t.RoomID == roomID && filter.Matches(&t) {
			tasks = append(tasks, t)
		}
	}
	slices.SortFunc(tasks, func(a, b models.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, roomID string, id int64) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data.Tasks {
		if t.ID == id && t.RoomID == roomID {
			task := t
			return &task, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateTask(ctx context.Context, roomID string, id int64, patch models.TaskPatch, now time.Time) (*models.Task, error) {
	var updated models.Task
	err := s.mutate(func(d *dataset) error {
		for i := range d.Tasks {
			t := &d.Tasks[i]
			if t.ID != id || t.RoomID != roomID {
				continue
			}
			patch.Apply(t, now)
			updated = *t
			return nil
		}
		return store.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

