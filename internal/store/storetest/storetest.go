// Package storetest holds the behavioural tests every store.Store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the full store contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("RoomByAPIKey", func(t *testing.T) { testRoomByAPIKey(t, open(t)) })
	t.Run("RoomAPIKeyConflict", func(t *testing.T) { testRoomAPIKeyConflict(t, open(t)) })
	t.Run("JoinAgentIdempotent", func(t *testing.T) { testJoinAgentIdempotent(t, open(t)) })
	t.Run("ListAgentsScoped", func(t *testing.T) { testListAgentsScoped(t, open(t)) })
	t.Run("MessageIDsMonotonic", func(t *testing.T) { testMessageIDsMonotonic(t, open(t)) })
	t.Run("ListMessagesFilters", func(t *testing.T) { testListMessagesFilters(t, open(t)) })
	t.Run("ListMessagesKeepsMostRecent", func(t *testing.T) { testListMessagesKeepsMostRecent(t, open(t)) })
	t.Run("MarkRead", func(t *testing.T) { testMarkRead(t, open(t)) })
	t.Run("MarkReadConcurrent", func(t *testing.T) { testMarkReadConcurrent(t, open(t)) })
	t.Run("TaskLifecycle", func(t *testing.T) { testTaskLifecycle(t, open(t)) })
	t.Run("ListTasksFilters", func(t *testing.T) { testListTasksFilters(t, open(t)) })
	t.Run("CrossRoomIsolation", func(t *testing.T) { testCrossRoomIsolation(t, open(t)) })
}

// NewRoom inserts a room with a random id and key.
func NewRoom(t *testing.T, s store.Store, name string) *models.Room {
	t.Helper()
	room := &models.Room{
		ID:        uuid.NewString(),
		Name:      name,
		APIKey:    "amesh_" + uuid.NewString(),
		CreatedAt: baseTime,
	}
	require.NoError(t, s.CreateRoom(context.Background(), room))
	return room
}

func send(t *testing.T, s store.Store, roomID, from string, to *string, content string) int64 {
	t.Helper()
	msg := &models.Message{
		RoomID:    roomID,
		FromAgent: from,
		ToAgent:   to,
		Content:   content,
		Type:      models.DefaultMessageType,
		ReadBy:    []string{},
		CreatedAt: baseTime,
	}
	require.NoError(t, s.CreateMessage(context.Background(), msg))
	return msg.ID
}

func newTask(t *testing.T, s store.Store, roomID, title, status string, assignee *string, created time.Time) int64 {
	t.Helper()
	task := &models.Task{
		RoomID:     roomID,
		Title:      title,
		AssignedTo: assignee,
		Status:     status,
		CreatedBy:  "tester",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task.ID
}

func ptr(s string) *string { return &s }

func messageIDs(msgs []models.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func testRoomByAPIKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")

	got, err := s.GetRoomByAPIKey(ctx, room.APIKey)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.Equal(t, "P", got.Name)
	assert.True(t, room.CreatedAt.Equal(got.CreatedAt))

	_, err = s.GetRoomByAPIKey(ctx, "amesh_unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRoomAPIKeyConflict(t *testing.T, s store.Store) {
	room := NewRoom(t, s, "first")
	dup := &models.Room{ID: uuid.NewString(), Name: "second", APIKey: room.APIKey, CreatedAt: baseTime}

	err := s.CreateRoom(context.Background(), dup)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func testJoinAgentIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")

	first, created, err := s.JoinAgent(ctx, &models.Agent{ID: uuid.NewString(), RoomID: room.ID, Name: "Keko", JoinedAt: baseTime})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.JoinAgent(ctx, &models.Agent{ID: uuid.NewString(), RoomID: room.ID, Name: "Keko", JoinedAt: baseTime.Add(time.Minute)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.JoinedAt.Equal(second.JoinedAt))

	agents, err := s.ListAgents(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func testListAgentsScoped(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewRoom(t, s, "A")
	b := NewRoom(t, s, "B")

	for i, name := range []string{"one", "two", "three"} {
		_, _, err := s.JoinAgent(ctx, &models.Agent{ID: uuid.NewString(), RoomID: a.ID, Name: name, JoinedAt: baseTime.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	_, _, err := s.JoinAgent(ctx, &models.Agent{ID: uuid.NewString(), RoomID: b.ID, Name: "one", JoinedAt: baseTime})
	require.NoError(t, err)

	agents, err := s.ListAgents(ctx, a.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(agents))
	for _, ag := range agents {
		names = append(names, ag.Name)
	}
	assert.Equal(t, []string{"one", "two", "three"}, names)

	agents, err = s.ListAgents(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func testMessageIDsMonotonic(t *testing.T, s store.Store) {
	a := NewRoom(t, s, "A")
	b := NewRoom(t, s, "B")

	assert.Equal(t, int64(1), send(t, s, a.ID, "Keko", nil, "one"))
	assert.Equal(t, int64(2), send(t, s, b.ID, "Bob", nil, "two"))
	assert.Equal(t, int64(3), send(t, s, a.ID, "Keko", nil, "three"))
}

func testListMessagesFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")

	send(t, s, room.ID, "Bob", nil, "hello all")         // 1
	send(t, s, room.ID, "Bob", ptr("Keko"), "hi keko")   // 2
	send(t, s, room.ID, "Keko", ptr("Bob"), "hi bob")    // 3
	send(t, s, room.ID, "Bob", nil, "another broadcast") // 4

	all, err := s.ListMessages(ctx, room.ID, models.MessageFilter{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, messageIDs(all))
	assert.Equal(t, "hello all", all[0].Content)
	assert.Nil(t, all[0].ToAgent)
	require.NotNil(t, all[1].ToAgent)
	assert.Equal(t, "Keko", *all[1].ToAgent)
	assert.NotNil(t, all[0].ReadBy)

	forKeko, err := s.ListMessages(ctx, room.ID, models.MessageFilter{For: "Keko", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, messageIDs(forKeko))

	since, err := s.ListMessages(ctx, room.ID, models.MessageFilter{SinceID: 2, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, messageIDs(since))
	for _, m := range since {
		assert.Greater(t, m.ID, int64(2))
	}

	both, err := s.ListMessages(ctx, room.ID, models.MessageFilter{For: "Keko", SinceID: 1, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, messageIDs(both))

	none, err := s.ListMessages(ctx, room.ID, models.MessageFilter{SinceID: 4, Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListMessagesKeepsMostRecent(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")
	for i := 1; i <= 5; i++ {
		send(t, s, room.ID, "Keko", nil, fmt.Sprintf("m%d", i))
	}

	got, err := s.ListMessages(ctx, room.ID, models.MessageFilter{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, messageIDs(got))
}

func testMarkRead(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")

	send(t, s, room.ID, "Bob", nil, "1")
	send(t, s, room.ID, "Bob", ptr("Keko"), "2")
	send(t, s, room.ID, "Bob", ptr("Alice"), "3")
	send(t, s, room.ID, "Bob", nil, "4")
	send(t, s, room.ID, "Bob", ptr("Keko"), "5")
	send(t, s, room.ID, "Bob", nil, "6")
	send(t, s, room.ID, "Bob", ptr("Keko"), "7")

	marked, err := s.MarkRead(ctx, room.ID, "Keko", 5)
	require.NoError(t, err)
	assert.Equal(t, 4, marked)

	marked, err = s.MarkRead(ctx, room.ID, "Keko", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	marked, err = s.MarkRead(ctx, room.ID, "Keko", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	msgs, err := s.ListMessages(ctx, room.ID, models.MessageFilter{Limit: 50})
	require.NoError(t, err)
	readByKeko := map[int64]bool{}
	for _, m := range msgs {
		readByKeko[m.ID] = m.HasReader("Keko")
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: false, 4: true, 5: true, 6: false, 7: false}, readByKeko)

	marked, err = s.MarkRead(ctx, room.ID, "Alice", 7)
	require.NoError(t, err)
	assert.Equal(t, 4, marked)

	msgs, err = s.ListMessages(ctx, room.ID, models.MessageFilter{For: "Alice", SinceID: 5, Limit: 50})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.ElementsMatch(t, []string{"Alice"}, msgs[0].ReadBy)
}

func testMarkReadConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")
	for i := 0; i < 5; i++ {
		send(t, s, room.ID, "Bob", nil, "x")
	}

	readers := []string{"a", "b", "c", "d", "e", "f"}
	var wg sync.WaitGroup
	errs := make(chan error, len(readers))
	for _, r := range readers {
		wg.Add(1)
		go func(reader string) {
			defer wg.Done()
			if _, err := s.MarkRead(ctx, room.ID, reader, 5); err != nil {
				errs <- err
			}
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, room.ID, models.MessageFilter{Limit: 50})
	require.NoError(t, err)
	for _, m := range msgs {
		assert.ElementsMatch(t, readers, m.ReadBy, "message %d", m.ID)
	}
}

func testTaskLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")

	id := newTask(t, s, room.ID, "write docs", models.DefaultTaskStatus, nil, baseTime)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, int64(2), newTask(t, s, room.ID, "second", models.DefaultTaskStatus, nil, baseTime))

	task, err := s.GetTask(ctx, room.ID, id)
	require.NoError(t, err)
	assert.Equal(t, "write docs", task.Title)
	assert.Equal(t, models.DefaultTaskStatus, task.Status)
	assert.Nil(t, task.Description)
	assert.Nil(t, task.AssignedTo)

	later := baseTime.Add(time.Hour)
	updated, err := s.UpdateTask(ctx, room.ID, id, models.TaskPatch{Status: ptr("done"), Description: ptr("all of it")}, later)
	require.NoError(t, err)
	assert.Equal(t, "done", updated.Status)
	assert.Equal(t, "write docs", updated.Title)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "all of it", *updated.Description)
	assert.True(t, updated.UpdatedAt.Equal(later))
	assert.True(t, updated.CreatedAt.Equal(baseTime))

	task, err = s.GetTask(ctx, room.ID, id)
	require.NoError(t, err)
	assert.Equal(t, "done", task.Status)
	assert.True(t, task.UpdatedAt.Equal(later))

	_, err = s.UpdateTask(ctx, room.ID, 999, models.TaskPatch{Status: ptr("done")}, later)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetTask(ctx, room.ID, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListTasksFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := NewRoom(t, s, "P")

	newTask(t, s, room.ID, "t1", "pending", ptr("Keko"), baseTime)
	newTask(t, s, room.ID, "t2", "done", ptr("Keko"), baseTime.Add(time.Minute))
	newTask(t, s, room.ID, "t3", "pending", nil, baseTime.Add(2*time.Minute))

	all, err := s.ListTasks(ctx, room.ID, models.TaskFilter{})
	require.NoError(t, err)
	titles := func(ts []models.Task) []string {
		out := make([]string, 0, len(ts))
		for _, task := range ts {
			out = append(out, task.Title)
		}
		return out
	}
	assert.Equal(t, []string{"t3", "t2", "t1"}, titles(all))

	pending, err := s.ListTasks(ctx, room.ID, models.TaskFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t1"}, titles(pending))

	keko, err := s.ListTasks(ctx, room.ID, models.TaskFilter{AssignedTo: "Keko"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1"}, titles(keko))

	both, err := s.ListTasks(ctx, room.ID, models.TaskFilter{Status: "pending", AssignedTo: "Keko"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, titles(both))
}

func testCrossRoomIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewRoom(t, s, "A")
	b := NewRoom(t, s, "B")

	msgID := send(t, s, a.ID, "Keko", nil, "secret")
	taskID := newTask(t, s, a.ID, "private", "pending", nil, baseTime)
	_, _, err := s.JoinAgent(ctx, &models.Agent{ID: uuid.NewString(), RoomID: a.ID, Name: "Keko", JoinedAt: baseTime})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, b.ID, models.MessageFilter{Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	marked, err := s.MarkRead(ctx, b.ID, "Keko", msgID)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	tasks, err := s.ListTasks(ctx, b.ID, models.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = s.GetTask(ctx, b.ID, taskID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UpdateTask(ctx, b.ID, taskID, models.TaskPatch{Status: ptr("stolen")}, baseTime)
	assert.ErrorIs(t, err, store.ErrNotFound)

	agents, err := s.ListAgents(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, agents)

	task, err := s.GetTask(ctx, a.ID, taskID)
	require.NoError(t, err)
	assert.Equal(t, "pending", task.Status)
}
