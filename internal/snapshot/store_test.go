package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
	"github.com/umar/agentmesh/internal/store/storetest"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "agentmesh.json")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := openTemp(t)
		return s
	})
}

func TestOpenCreatesEmptyDocument(t *testing.T) {
	_, path := openTemp(t)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"rooms", "agents", "messages", "tasks"} {
		assert.Contains(t, doc, key)
	}
}

func TestReopenKeepsDataAndIDs(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	room := storetest.NewRoom(t, s, "P")
	for i := 0; i < 3; i++ {
		msg := &models.Message{RoomID: room.ID, FromAgent: "Keko", Content: "hi", Type: models.DefaultMessageType}
		require.NoError(t, s.CreateMessage(ctx, msg))
	}
	_, err := s.MarkRead(ctx, room.ID, "Bob", 2)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)

	got, err := reopened.GetRoomByAPIKey(ctx, room.APIKey)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	msgs, err := reopened.ListMessages(ctx, room.ID, models.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"Bob"}, msgs[1].ReadBy)
	assert.Empty(t, msgs[2].ReadBy)

	next := &models.Message{RoomID: room.ID, FromAgent: "Keko", Content: "again"}
	require.NoError(t, reopened.CreateMessage(ctx, next))
	assert.Equal(t, int64(4), next.ID)
}

func TestSaveLeavesNoTemporaryFile(t *testing.T) {
	s, path := openTemp(t)
	storetest.NewRoom(t, s, "P")

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFailedSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	room := storetest.NewRoom(t, s, "P")

	// A directory in place of the temporary file makes the next save fail.
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))

	task := &models.Task{RoomID: room.ID, Title: "x", Status: models.DefaultTaskStatus, CreatedBy: "Keko", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.Error(t, s.CreateTask(ctx, task))

	tasks, err := s.ListTasks(ctx, room.ID, models.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, os.Remove(path+".tmp"))
	require.NoError(t, s.CreateTask(ctx, task))
	assert.Equal(t, int64(1), task.ID)
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentmesh.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}
