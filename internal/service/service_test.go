package service

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umar/agentmesh/internal/metrics"
	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/snapshot"
	"github.com/umar/agentmesh/internal/store"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time {
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fixedClock) {
	t.Helper()
	st, err := snapshot.Open(filepath.Join(t.TempDir(), "agentmesh.json"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := &fixedClock{t: testNow}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(st, opts...), clock
}

func newRoom(t *testing.T, svc *Service) *models.Room {
	t.Helper()
	room, err := svc.CreateRoom(context.Background(), "Project")
	require.NoError(t, err)
	return room
}

func strPtr(s string) *string { return &s }

func assertValidation(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, msg, verr.Message)
}

// --- Rooms ---

var apiKeyPattern = regexp.MustCompile(`^amesh_[0-9a-f]{48}$`)

func TestGenerateAPIKeyUnique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		key, err := GenerateAPIKey()
		require.NoError(t, err)
		require.Regexp(t, apiKeyPattern, key)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
}

func TestCreateRoom(t *testing.T) {
	svc, _ := newTestService(t)
	before := testutil.ToFloat64(metrics.RoomsCreated)

	room, err := svc.CreateRoom(context.Background(), "  Project  ")
	require.NoError(t, err)

	assert.Equal(t, "Project", room.Name)
	assert.NotEmpty(t, room.ID)
	assert.Regexp(t, apiKeyPattern, room.APIKey)
	assert.Equal(t, testNow, room.CreatedAt)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RoomsCreated))
}

func TestCreateRoomRequiresName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateRoom(context.Background(), "   ")
	assertValidation(t, err, "name is required")
}

func TestCreateRoomRetriesOnKeyCollision(t *testing.T) {
	keys := []string{"amesh_dup", "amesh_dup", "amesh_fresh"}
	gen := func() (string, error) {
		k := keys[0]
		keys = keys[1:]
		return k, nil
	}
	svc, _ := newTestService(t, WithKeyGenerator(gen))

	first, err := svc.CreateRoom(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "amesh_dup", first.APIKey)

	second, err := svc.CreateRoom(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "amesh_fresh", second.APIKey)
}

func TestCreateRoomGivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, _ := newTestService(t, WithKeyGenerator(func() (string, error) { return "amesh_same", nil }))

	_, err := svc.CreateRoom(context.Background(), "A")
	require.NoError(t, err)

	_, err = svc.CreateRoom(context.Background(), "B")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	got, err := svc.Authenticate(ctx, room.APIKey)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "amesh_unknown")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRoomInfo(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	_, _, err := svc.JoinRoom(ctx, room, "Keko")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, room, SendMessageInput{From: "Keko", Content: "hi"})
	require.NoError(t, err)

	info, err := svc.RoomInfo(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, room.ID, info.Room.ID)
	assert.Equal(t, "Project", info.Room.Name)
	require.Len(t, info.Agents, 1)
	assert.Equal(t, "Keko", info.Agents[0].Name)
}

// --- Agents ---

func TestJoinRoomIdempotent(t *testing.T) {
	svc, clock := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.AgentsJoined)

	first, created, err := svc.JoinRoom(ctx, room, "Keko")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, testNow, first.JoinedAt)

	clock.advance(time.Minute)
	second, created, err := svc.JoinRoom(ctx, room, "Keko")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, testNow, second.JoinedAt)

	agents, err := svc.ListAgents(ctx, room)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AgentsJoined))
}

func TestJoinRoomRequiresName(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)

	_, _, err := svc.JoinRoom(context.Background(), room, "")
	assertValidation(t, err, "name is required")
}

// --- Messages ---

func TestSendMessageAssignsSequentialIDs(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		id, err := svc.SendMessage(ctx, room, SendMessageInput{From: "Keko", Content: "hi"})
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	msgs, err := svc.ListMessages(ctx, room, models.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.DefaultMessageType, msgs[0].Type)
	assert.Nil(t, msgs[0].ToAgent)
	assert.Empty(t, msgs[0].ReadBy)
	assert.NotNil(t, msgs[0].ReadBy)
}

func TestSendMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, room, SendMessageInput{Content: "hi"})
	assertValidation(t, err, "from is required")

	_, err = svc.SendMessage(ctx, room, SendMessageInput{From: "Keko", Content: "  "})
	assertValidation(t, err, "content is required")
}

func TestSendMessageKeepsTypeAndRecipient(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, room, SendMessageInput{From: "Keko", To: "Bob", Content: "ping", Type: "status"})
	require.NoError(t, err)

	msgs, err := svc.ListMessages(ctx, room, models.MessageFilter{For: "Bob"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "status", msgs[0].Type)
	assert.Equal(t, "Bob", *msgs[0].ToAgent)

	msgs, err = svc.ListMessages(ctx, room, models.MessageFilter{For: "Alice"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListMessagesLimit(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.SendMessage(ctx, room, SendMessageInput{From: "Keko", Content: "hi"})
		require.NoError(t, err)
	}

	msgs, err := svc.ListMessages(ctx, room, models.MessageFilter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	msgs, err = svc.ListMessages(ctx, room, models.MessageFilter{SinceID: 4})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(5), msgs[0].ID)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultMessageLimit, clampLimit(0))
	assert.Equal(t, DefaultMessageLimit, clampLimit(-4))
	assert.Equal(t, 1, clampLimit(1))
	assert.Equal(t, 120, clampLimit(120))
	assert.Equal(t, MaxMessageLimit, clampLimit(5000))
}

func TestMarkRead(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	recipients := []string{"", "Keko", "Bob", "", "Keko", "Keko", ""}
	for _, to := range recipients {
		_, err := svc.SendMessage(ctx, room, SendMessageInput{From: "Alice", To: to, Content: "m"})
		require.NoError(t, err)
	}
	before := testutil.ToFloat64(metrics.MessagesMarkedRead)

	marked, err := svc.MarkRead(ctx, room, "Keko", 5)
	require.NoError(t, err)
	assert.Equal(t, 4, marked)

	marked, err = svc.MarkRead(ctx, room, "Keko", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
	assert.Equal(t, before+4, testutil.ToFloat64(metrics.MessagesMarkedRead))
}

func TestMarkReadValidation(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	_, err := svc.MarkRead(ctx, room, "", 3)
	assertValidation(t, err, "agent is required")

	_, err = svc.MarkRead(ctx, room, "Keko", 0)
	assertValidation(t, err, "up_to_id is required")
}

// --- Tasks ---

func TestCreateTask(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, room, CreateTaskInput{Title: "Write docs", AssignedTo: "Keko", CreatedBy: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	tasks, err := svc.ListTasks(ctx, room, models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, models.DefaultTaskStatus, task.Status)
	assert.Nil(t, task.Description)
	assert.Equal(t, "Keko", *task.AssignedTo)
	assert.Equal(t, testNow, task.CreatedAt)
	assert.Equal(t, testNow, task.UpdatedAt)
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, room, CreateTaskInput{CreatedBy: "Alice"})
	assertValidation(t, err, "title is required")

	_, err = svc.CreateTask(ctx, room, CreateTaskInput{Title: "x"})
	assertValidation(t, err, "created_by is required")
}

func TestListTasksNewestFirstWithFilters(t *testing.T) {
	svc, clock := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	for _, assignee := range []string{"Keko", "Bob", "Keko"} {
		_, err := svc.CreateTask(ctx, room, CreateTaskInput{Title: "t", AssignedTo: assignee, CreatedBy: "Alice"})
		require.NoError(t, err)
		clock.advance(time.Second)
	}

	tasks, err := svc.ListTasks(ctx, room, models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, int64(3), tasks[0].ID)
	assert.Equal(t, int64(1), tasks[2].ID)

	tasks, err = svc.ListTasks(ctx, room, models.TaskFilter{AssignedTo: "Keko"})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = svc.ListTasks(ctx, room, models.TaskFilter{Status: "done"})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestUpdateTask(t *testing.T) {
	svc, clock := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, room, CreateTaskInput{Title: "t", CreatedBy: "Alice"})
	require.NoError(t, err)

	clock.advance(time.Hour)
	task, err := svc.UpdateTask(ctx, room, id, models.TaskPatch{
		Status:     strPtr("in_progress"),
		AssignedTo: strPtr("Keko"),
		Title:      strPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "in_progress", task.Status)
	assert.Equal(t, "Keko", *task.AssignedTo)
	assert.Equal(t, "t", task.Title)
	assert.Equal(t, testNow, task.CreatedAt)
	assert.Equal(t, testNow.Add(time.Hour), task.UpdatedAt)
}

func TestUpdateTaskNothingToUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, room, CreateTaskInput{Title: "t", CreatedBy: "Alice"})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, room, id, models.TaskPatch{})
	assertValidation(t, err, "nothing to update")

	_, err = svc.UpdateTask(ctx, room, id, models.TaskPatch{Status: strPtr(""), Description: strPtr(" ")})
	assertValidation(t, err, "nothing to update")
}

func TestUpdateTaskNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	room := newRoom(t, svc)
	ctx := context.Background()

	_, err := svc.UpdateTask(ctx, room, 42, models.TaskPatch{Status: strPtr("done")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateTask(ctx, room, 42, models.TaskPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateTask(ctx, room, 0, models.TaskPatch{Status: strPtr("done")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoomsAreIsolated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	roomA := newRoom(t, svc)
	roomB := newRoom(t, svc)

	_, _, err := svc.JoinRoom(ctx, roomA, "Keko")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, roomA, SendMessageInput{From: "Keko", Content: "secret"})
	require.NoError(t, err)
	taskID, err := svc.CreateTask(ctx, roomA, CreateTaskInput{Title: "t", CreatedBy: "Keko"})
	require.NoError(t, err)

	agents, err := svc.ListAgents(ctx, roomB)
	require.NoError(t, err)
	assert.Empty(t, agents)

	msgs, err := svc.ListMessages(ctx, roomB, models.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	marked, err := svc.MarkRead(ctx, roomB, "Keko", 100)
	require.NoError(t, err)
	assert.Zero(t, marked)

	tasks, err := svc.ListTasks(ctx, roomB, models.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = svc.UpdateTask(ctx, roomB, taskID, models.TaskPatch{Status: strPtr("done")})
	assert.ErrorIs(t, err, ErrNotFound)
}
