package redisc

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
)

// maxTxRetries bounds optimistic WATCH/MULTI retries for one record.
const maxTxRetries = 16

// Store keeps every record as a JSON document. Per-room sorted sets scored by
// id index messages and tasks; INCR sequences assign ids.
type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Open connects to redisURL and namespaces every key under prefix.
func Open(ctx context.Context, redisURL, prefix string) (*Store, error) {
	client, err := InitRedis(ctx, redisURL)
	if err != nil {
		return nil, err
	}
	s := NewStore(client, prefix)
	if err := s.seedSequences(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) roomKey(id string) string {
	return s.prefix + "room:" + id
}

func (s *Store) apiKeyKey(key string) string {
	return s.prefix + "apikey:" + key
}

func (s *Store) agentsKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":agents"
}

func (s *Store) agentOrderKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":agent_order"
}

func (s *Store) roomMessagesKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":messages"
}

func (s *Store) roomTasksKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":tasks"
}

func (s *Store) messageKey(id int64) string {
	return s.prefix + "message:" + strconv.FormatInt(id, 10)
}

func (s *Store) taskKey(id int64) string {
	return s.prefix + "task:" + strconv.FormatInt(id, 10)
}

func (s *Store) seqKey(name string) string {
	return s.prefix + "seq:" + name
}

func (s *Store) allKey(name string) string {
	return s.prefix + "all:" + name
}

// seedSequences raises each id counter to at least the highest stored id, so
// a lost or reset counter can never hand out an id twice.
func (s *Store) seedSequences(ctx context.Context) error {
	for _, name := range []string{"messages", "tasks"} {
		top, err := s.client.ZRevRangeWithScores(ctx, s.allKey(name), 0, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to read highest %s id: %w", name, err)
		}
		if len(top) == 0 {
			continue
		}
		maxID := int64(top[0].Score)
		current, err := s.client.Get(ctx, s.seqKey(name)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read %s sequence: %w", name, err)
		}
		if current < maxID {
			if err := s.client.Set(ctx, s.seqKey(name), maxID, 0).Err(); err != nil {
				return fmt.Errorf("failed to seed %s sequence: %w", name, err)
			}
		}
	}
	return nil
}

// --- Rooms ---

func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.apiKeyKey(room.APIKey), room.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve api key: %w", err)
	}
	if !ok {
		return store.ErrConflict
	}
	ok, err = s.client.SetNX(ctx, s.roomKey(room.ID), data, 0).Result()
	if err != nil || !ok {
		s.client.Del(ctx, s.apiKeyKey(room.APIKey))
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		return store.ErrConflict
	}
	return nil
}

func (s *Store) GetRoomByAPIKey(ctx context.Context, apiKey string) (*models.Room, error) {
	id, err := s.client.Get(ctx, s.apiKeyKey(apiKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	var room models.Room
	if err := s.getJSON(ctx, s.roomKey(id), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

// --- Agents ---

func (s *Store) JoinAgent(ctx context.Context, agent *models.Agent) (*models.Agent, bool, error) {
	data, err := json.Marshal(agent)
	if err != nil {
		return nil, false, err
	}
	created, err := s.client.HSetNX(ctx, s.agentsKey(agent.RoomID), agent.Name, data).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to join agent: %w", err)
	}
	if created {
		if err := s.client.RPush(ctx, s.agentOrderKey(agent.RoomID), agent.Name).Err(); err != nil {
			return nil, false, fmt.Errorf("failed to record join order: %w", err)
		}
		joined := *agent
		return &joined, true, nil
	}

	raw, err := s.client.HGet(ctx, s.agentsKey(agent.RoomID), agent.Name).Bytes()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get agent: %w", err)
	}
	var existing models.Agent
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *Store) ListAgents(ctx context.Context, roomID string) ([]models.Agent, error) {
	names, err := s.client.LRange(ctx, s.agentOrderKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	agents := []models.Agent{}
	if len(names) == 0 {
		return agents, nil
	}
	values, err := s.client.HMGet(ctx, s.agentsKey(roomID), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a models.Agent
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// --- Messages ---

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	id, err := s.client.Incr(ctx, s.seqKey("messages")).Result()
	if err != nil {
		return fmt.Errorf("failed to assign message id: %w", err)
	}
	msg.ID = id
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.messageKey(id), data, 0)
		pipe.ZAdd(ctx, s.roomMessagesKey(msg.RoomID), redis.Z{Score: float64(id), Member: id})
		pipe.ZAdd(ctx, s.allKey("messages"), redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *Store) loadMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(ids))
	if len(ids) == 0 {
		return msgs, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.prefix+"message:"+id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m models.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		if m.ReadBy == nil {
			m.ReadBy = []string{}
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string, filter models.MessageFilter) ([]models.Message, error) {
	by := &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(filter.SinceID, 10),
		Max: "+inf",
	}
	var (
		ids []string
		err error
	)
	// Without an addressee filter the newest Limit ids are exactly the answer.
	if filter.For == "" && filter.Limit > 0 {
		by.Count = int64(filter.Limit)
		ids, err = s.client.ZRevRangeByScore(ctx, s.roomMessagesKey(roomID), by).Result()
		slices.Reverse(ids)
	} else {
		ids, err = s.client.ZRangeByScore(ctx, s.roomMessagesKey(roomID), by).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	loaded, err := s.loadMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	msgs := loaded[:0]
	for i := range loaded {
		if loaded[i].RoomID == roomID && filter.Matches(&loaded[i]) {
			msgs = append(msgs, loaded[i])
		}
	}
	return models.KeepRecent(msgs, filter.Limit), nil
}

func (s *Store) MarkRead(ctx context.Context, roomID, agent string, upToID int64) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.roomMessagesKey(roomID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(upToID, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan messages: %w", err)
	}
	candidates, err := s.loadMessages(ctx, ids)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, m := range candidates {
		if m.RoomID != roomID || !m.VisibleTo(agent) || m.HasReader(agent) {
			continue
		}
		changed, err := s.addReader(ctx, m.ID, agent)
		if err != nil {
			return marked, err
		}
		if changed {
			marked++
		}
	}
	return marked, nil
}

// addReader appends agent to one message's read set under WATCH, retrying
// when a concurrent writer touched the same message.
func (s *Store) addReader(ctx context.Context, id int64, agent string) (bool, error) {
	key := s.messageKey(id)
	changed := false
	txf := func(tx *redis.Tx) error {
		changed = false
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		var m models.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		if m.HasReader(agent) {
			return nil
		}
		m.ReadBy = append(m.ReadBy, agent)
		data, err := json.Marshal(&m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}
	if err := s.watch(ctx, txf, key); err != nil {
		return false, fmt.Errorf("failed to mark message %d read: %w", id, err)
	}
	return changed, nil
}

func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, key string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

// --- Tasks ---

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	id, err := s.client.Incr(ctx, s.seqKey("tasks")).Result()
	if err != nil {
		return fmt.Errorf("failed to assign task id: %w", err)
	}
	task.ID = id
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.taskKey(id), data, 0)
		pipe.ZAdd(ctx, s.roomTasksKey(task.RoomID), redis.Z{Score: float64(id), Member: id})
		pipe.ZAdd(ctx, s.allKey("tasks"), redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, roomID string, filter models.TaskFilter) ([]models.Task, error) {
	ids, err := s.client.ZRange(ctx, s.roomTasksKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	tasks := []models.Task{}
	if len(ids) == 0 {
		return tasks, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.prefix+"task:"+id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var t models.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, err
		}
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
	var t models.Task
	if err := s.getJSON(ctx, s.taskKey(id), &t); err != nil {
		return nil, err
	}
	if t.RoomID != roomID {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, roomID string, id int64, patch models.TaskPatch, now time.Time) (*models.Task, error) {
	key := s.taskKey(id)
	var updated models.Task
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		var t models.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		if t.RoomID != roomID {
			return store.ErrNotFound
		}
		patch.Apply(&t, now)
		data, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			updated = t
		}
		return err
	}
	if err := s.watch(ctx, txf, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return &updated, nil
}
