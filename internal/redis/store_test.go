package redisc

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
	"github.com/umar/agentmesh/internal/store/storetest"
)

const defaultTestRedisURL = "redis://localhost:6379/15"

// setupTestStore returns a store under a fresh key prefix, or skips the test
// when Redis is unreachable.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = defaultTestRedisURL
	}
	prefix := "agentmesh-test:" + uuid.NewString() + ":"

	s, err := Open(context.Background(), url, prefix)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", url, err)
	}
	t.Cleanup(func() {
		cleanupKeys(context.Background(), s.client, prefix+"*")
		s.Close()
	})
	return s
}

func cleanupKeys(ctx context.Context, client *redis.Client, pattern string) {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func TestRedisConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return setupTestStore(t)
	})
}

func TestSeedSequencesRaisesCounter(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	room := storetest.NewRoom(t, s, "P")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateMessage(ctx, &models.Message{RoomID: room.ID, FromAgent: "Keko", Content: "hi"}))
	}
	// Simulate a lost counter.
	require.NoError(t, s.client.Del(ctx, s.seqKey("messages")).Err())
	require.NoError(t, s.seedSequences(ctx))

	msg := &models.Message{RoomID: room.ID, FromAgent: "Keko", Content: "after"}
	require.NoError(t, s.CreateMessage(ctx, msg))
	assert.Equal(t, int64(4), msg.ID)
}
