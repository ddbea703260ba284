// Package database implements store.Store on top of database/sql, backed by
// either SQLite (modernc.org/sqlite) or PostgreSQL (lib/pq).
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/umar/agentmesh/internal/models"
	"github.com/umar/agentmesh/internal/store"
)

type Store struct {
	db      *sql.DB
	dialect dialect

	// mu serializes writers inside this process; read-modify-write sequences
	// additionally run in one transaction with row locks where supported.
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps SQLite writers from racing on the file lock.
	db.SetMaxOpenConns(1)
	return open(ctx, db, sqliteDialect)
}

// OpenPostgres connects to databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open(postgresDialect.driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return open(ctx, db, postgresDialect)
}

func open(ctx context.Context, db *sql.DB, d dialect) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigrations(ctx, db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db, dialect: d}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports which SQL engine backs the store.
func (s *Store) Dialect() string {
	return s.dialect.name
}

// withTx runs fn inside a transaction while holding the writer lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nextID locks table (where the engine supports it) and returns MAX(id)+1.
func (s *Store) nextID(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	if s.dialect.lockTable != "" {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(s.dialect.lockTable, table)); err != nil {
			return 0, fmt.Errorf("failed to lock %s: %w", table, err)
		}
	}
	var next int64
	err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM "+table).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next %s id: %w", table, err)
	}
	return next, nil
}

// --- Rooms ---

func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO rooms (id, name, api_key, created_at) VALUES (?, ?, ?, ?)`),
			room.ID, room.Name, room.APIKey, s.dialect.timeArg(room.CreatedAt),
		)
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		return nil
	})
}

func (s *Store) GetRoomByAPIKey(ctx context.Context, apiKey string) (*models.Room, error) {
	var r models.Room
	var created dbTime
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, name, api_key, created_at FROM rooms WHERE api_key = ?`),
		apiKey,
	).Scan(&r.ID, &r.Name, &r.APIKey, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	r.CreatedAt = created.Time
	return &r, nil
}

// --- Agents ---

func (s *Store) JoinAgent(ctx context.Context, agent *models.Agent) (*models.Agent, bool, error) {
	var (
		result  *models.Agent
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO agents (id, room_id, name, joined_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (room_id, name) DO NOTHING`),
			agent.ID, agent.RoomID, agent.Name, s.dialect.timeArg(agent.JoinedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to join agent: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to join agent: %w", err)
		}
		created = n == 1

		var a models.Agent
		var joined dbTime
		err = tx.QueryRowContext(ctx, s.dialect.rebind(
			`SELECT id, room_id, name, joined_at FROM agents WHERE room_id = ? AND name = ?`),
			agent.RoomID, agent.Name,
		).Scan(&a.ID, &a.RoomID, &a.Name, &joined)
		if err != nil {
			return fmt.Errorf("failed to get agent: %w", err)
		}
		a.JoinedAt = joined.Time
		result = &a
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *Store) ListAgents(ctx context.Context, roomID string) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT id, room_id, name, joined_at FROM agents WHERE room_id = ? ORDER BY joined_at, id`),
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		var a models.Agent
		var joined dbTime
		if err := rows.Scan(&a.ID, &a.RoomID, &a.Name, &joined); err != nil {
			return nil, err
		}
		a.JoinedAt = joined.Time
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// --- Messages ---

const messageColumns = `id, room_id, from_agent, to_agent, content, type, read_by, created_at`

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var (
		m       models.Message
		to      sql.NullString
		readBy  string
		created dbTime
	)
	if err := row.Scan(&m.ID, &m.RoomID, &m.FromAgent, &to, &m.Content, &m.Type, &readBy, &created); err != nil {
		return m, err
	}
	if to.Valid {
		m.ToAgent = &to.String
	}
	if err := json.Unmarshal([]byte(readBy), &m.ReadBy); err != nil {
		return m, fmt.Errorf("failed to decode read_by of message %d: %w", m.ID, err)
	}
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	m.CreatedAt = created.Time
	return m, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	readBy, err := json.Marshal(msg.ReadBy)
	if err != nil {
		return fmt.Errorf("failed to encode read_by: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := s.nextID(ctx, tx, "messages")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			id, msg.RoomID, msg.FromAgent, nullable(msg.ToAgent), msg.Content, msg.Type,
			string(readBy), s.dialect.timeArg(msg.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		msg.ID = id
		return nil
	})
}

func (s *Store) ListMessages(ctx context.Context, roomID string, filter models.MessageFilter) ([]models.Message, error) {
	var (
		where = []string{"room_id = ?", "id > ?"}
		args  = []any{roomID, filter.SinceID}
	)
	if filter.For != "" {
		where = append(where, "(to_agent IS NULL OR to_agent = ?)")
		args = append(args, filter.For)
	}
	inner := `SELECT ` + messageColumns + ` FROM messages WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id DESC`
	if filter.Limit > 0 {
		inner += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	query := `SELECT ` + messageColumns + ` FROM (` + inner + `) recent ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, roomID, agent string, upToID int64) (int, error) {
	marked := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.dialect.rebind(
			`SELECT id, read_by FROM messages
			 WHERE room_id = ? AND id <= ? AND (to_agent IS NULL OR to_agent = ?)
			 ORDER BY id`+s.dialect.forUpdate),
			roomID, upToID, agent,
		)
		if err != nil {
			return fmt.Errorf("failed to scan messages: %w", err)
		}

		type pending struct {
			id     int64
			readBy []string
		}
		var updates []pending
		for rows.Next() {
			var id int64
			var raw string
			if err := rows.Scan(&id, &raw); err != nil {
				rows.Close()
				return err
			}
			var readBy []string
			if err := json.Unmarshal([]byte(raw), &readBy); err != nil {
				rows.Close()
				return fmt.Errorf("failed to decode read_by of message %d: %w", id, err)
			}
			if slices.Contains(readBy, agent) {
				continue
			}
			updates = append(updates, pending{id: id, readBy: append(readBy, agent)})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, u := range updates {
			raw, err := json.Marshal(u.readBy)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(
				`UPDATE messages SET read_by = ? WHERE id = ? AND room_id = ?`),
				string(raw), u.id, roomID,
			); err != nil {
				return fmt.Errorf("failed to mark message %d read: %w", u.id, err)
			}
		}
		marked = len(updates)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// --- Tasks ---

const taskColumns = `id, room_id, title, description, assigned_to, status, created_by, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var (
		t                models.Task
		desc, assigned   sql.NullString
		created, updated dbTime
	)
	if err := row.Scan(&t.ID, &t.RoomID, &t.Title, &desc, &assigned, &t.Status, &t.CreatedBy, &created, &updated); err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	if assigned.Valid {
		t.AssignedTo = &assigned.String
	}
	t.CreatedAt = created.Time
	t.UpdatedAt = updated.Time
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := s.nextID(ctx, tx, "tasks")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id, task.RoomID, task.Title, nullable(task.Description), nullable(task.AssignedTo),
			task.Status, task.CreatedBy, s.dialect.timeArg(task.CreatedAt), s.dialect.timeArg(task.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		task.ID = id
		return nil
	})
}

func (s *Store) ListTasks(ctx context.Context, roomID string, filter models.TaskFilter) ([]models.Task, error) {
	var (
		where = []string{"room_id = ?"}
		args  = []any{roomID}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, roomID string, id int64) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND room_id = ?`),
		id, roomID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, roomID string, id int64, patch models.TaskPatch, now time.Time) (*models.Task, error) {
	var updated models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTask(tx.QueryRowContext(ctx, s.dialect.rebind(
			`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND room_id = ?`+s.dialect.forUpdate),
			id, roomID,
		))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("failed to get task: %w", err)
		}

		patch.Apply(&t, now)
		_, err = tx.ExecContext(ctx, s.dialect.rebind(
			`UPDATE tasks SET title = ?, description = ?, assigned_to = ?, status = ?, updated_at = ?
			 WHERE id = ? AND room_id = ?`),
			t.Title, nullable(t.Description), nullable(t.AssignedTo), t.Status, s.dialect.timeArg(t.UpdatedAt),
			id, roomID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
