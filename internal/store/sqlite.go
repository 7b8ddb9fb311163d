package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/byour-platform/chat/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs local
// development when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'hq',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		boss_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(4)) || '-' || hex(randomblob(2)) || '-4' || substr(hex(randomblob(2)),2) || '-' || substr('89ab',abs(random()) % 4 + 1, 1) || substr(hex(randomblob(2)),2) || '-' || hex(randomblob(6)))),
		project_id TEXT NOT NULL UNIQUE REFERENCES projects(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_active_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		message_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL REFERENCES threads(id),
		sender_id TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		body TEXT NOT NULL,
		attachments TEXT NOT NULL DEFAULT '[]',
		is_read INTEGER NOT NULL DEFAULT 0,
		client_tag TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_threads_last_active ON threads(last_active_at);
	CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at, id);
	CREATE UNIQUE INDEX IF NOT EXISTS uniq_messages_client_tag ON messages(thread_id, client_tag)
		WHERE client_tag IS NOT NULL;
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser inserts or updates a platform user.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, role = excluded.role, updated_at = CURRENT_TIMESTAMP
	`, user.ID.String(), user.Name, string(user.Role))
	if err != nil {
		return err
	}
	fresh, err := s.GetUser(ctx, user.ID)
	if err != nil || fresh == nil {
		return err
	}
	user.CreatedAt = fresh.CreatedAt
	user.UpdatedAt = fresh.UpdatedAt
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var idStr, role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()).Scan(&idStr, &user.Name, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	return user, nil
}

// UpsertProject inserts or updates a project's participant fields.
func (s *SQLiteStore) UpsertProject(ctx context.Context, project *models.Project) error {
	var bossID *string
	if project.BossID != nil {
		v := project.BossID.String()
		bossID = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, boss_id)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner_id = excluded.owner_id, boss_id = excluded.boss_id, updated_at = CURRENT_TIMESTAMP
	`, project.ID.String(), project.OwnerID.String(), bossID)
	if err != nil {
		return err
	}
	fresh, err := s.GetProject(ctx, project.ID)
	if err != nil || fresh == nil {
		return err
	}
	project.CreatedAt = fresh.CreatedAt
	project.UpdatedAt = fresh.UpdatedAt
	return nil
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	project := &models.Project{}
	var idStr, ownerStr string
	var bossStr *string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, boss_id, created_at, updated_at
		FROM projects WHERE id = ?
	`, id.String()).Scan(&idStr, &ownerStr, &bossStr, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if project.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if project.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return nil, err
	}
	if bossStr != nil {
		bossID, err := uuid.Parse(*bossStr)
		if err != nil {
			return nil, err
		}
		project.BossID = &bossID
	}
	return project, nil
}

// FindOrCreateThread returns the project's thread, creating it on first use.
func (s *SQLiteStore) FindOrCreateThread(ctx context.Context, projectID uuid.UUID) (*models.Thread, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO threads (project_id) VALUES (?)
	`, projectID.String())
	if err != nil {
		return nil, err
	}
	return s.GetThreadByProject(ctx, projectID)
}

// GetThread retrieves a thread by ID.
func (s *SQLiteStore) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	return s.scanThread(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, created_at, last_active_at, message_count
		FROM threads WHERE id = ?
	`, id.String()))
}

// GetThreadByProject retrieves a thread by its project ID.
func (s *SQLiteStore) GetThreadByProject(ctx context.Context, projectID uuid.UUID) (*models.Thread, error) {
	return s.scanThread(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, created_at, last_active_at, message_count
		FROM threads WHERE project_id = ?
	`, projectID.String()))
}

func (s *SQLiteStore) scanThread(row *sql.Row) (*models.Thread, error) {
	thread := &models.Thread{}
	var idStr, projectStr string
	err := row.Scan(&idStr, &projectStr, &thread.CreatedAt, &thread.LastActiveAt, &thread.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if thread.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if thread.ProjectID, err = uuid.Parse(projectStr); err != nil {
		return nil, err
	}
	return thread, nil
}

// ListActiveThreads retrieves threads ordered by recent activity, with pagination.
func (s *SQLiteStore) ListActiveThreads(ctx context.Context, limit, offset int) ([]models.Thread, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, created_at, last_active_at, message_count
		FROM threads
		ORDER BY last_active_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var thread models.Thread
		var idStr, projectStr string
		err := rows.Scan(&idStr, &projectStr, &thread.CreatedAt, &thread.LastActiveAt, &thread.MessageCount)
		if err != nil {
			return nil, 0, err
		}
		if thread.ID, err = uuid.Parse(idStr); err != nil {
			return nil, 0, err
		}
		if thread.ProjectID, err = uuid.Parse(projectStr); err != nil {
			return nil, 0, err
		}
		threads = append(threads, thread)
	}

	return threads, total, nil
}

// IsThreadParticipant reports whether userID belongs to the thread's project.
func (s *SQLiteStore) IsThreadParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM threads t
		JOIN projects p ON p.id = t.project_id
		WHERE t.id = ? AND (p.owner_id = ? OR p.boss_id = ?)
	`, threadID.String(), userID.String(), userID.String()).Scan(&count)
	return count > 0, err
}

// InsertMessage persists a message and bumps the thread's activity counters.
// Returns ErrDuplicateTag when the sender replays a client tag.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return err
	}

	var tag *string
	if msg.ClientTag != "" {
		tag = &msg.ClientTag
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, sender_id, sender_role, body, attachments, is_read, client_tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, msg.ID, msg.ThreadID.String(), msg.SenderID.String(), string(msg.SenderRole), msg.Body, string(attachments), tag, msg.Timestamp)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateTag
		}
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE threads
		SET message_count = message_count + 1, last_active_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, msg.ThreadID.String())
	return err
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return s.scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, sender_id, sender_role, body, attachments, is_read, COALESCE(client_tag, ''), created_at
		FROM messages WHERE id = ?
	`, id))
}

// GetMessageByTag retrieves a message by its sender-supplied client tag.
func (s *SQLiteStore) GetMessageByTag(ctx context.Context, threadID uuid.UUID, tag string) (*models.Message, error) {
	return s.scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, sender_id, sender_role, body, attachments, is_read, COALESCE(client_tag, ''), created_at
		FROM messages WHERE thread_id = ? AND client_tag = ?
	`, threadID.String(), tag))
}

func (s *SQLiteStore) scanMessage(row *sql.Row) (*models.Message, error) {
	msg := &models.Message{}
	var threadStr, senderStr, role, attachments string
	err := row.Scan(&msg.ID, &threadStr, &senderStr, &role, &msg.Body, &attachments, &msg.Read, &msg.ClientTag, &msg.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if msg.ThreadID, err = uuid.Parse(threadStr); err != nil {
		return nil, err
	}
	if msg.SenderID, err = uuid.Parse(senderStr); err != nil {
		return nil, err
	}
	msg.SenderRole = models.Role(role)
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// ListMessages retrieves up to limit messages older than before (Unix ms,
// exclusive; 0 means newest), returned in ascending creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, threadID uuid.UUID, limit int, before int64) ([]models.Message, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender_id, sender_role, body, attachments, is_read, COALESCE(client_tag, ''), created_at
		FROM messages
		WHERE thread_id = ? AND (? = 0 OR created_at < ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, threadID.String(), before, before, limit+1)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var threadStr, senderStr, role, attachments string
		err := rows.Scan(&msg.ID, &threadStr, &senderStr, &role, &msg.Body, &attachments, &msg.Read, &msg.ClientTag, &msg.Timestamp)
		if err != nil {
			return nil, false, err
		}
		if msg.ThreadID, err = uuid.Parse(threadStr); err != nil {
			return nil, false, err
		}
		if msg.SenderID, err = uuid.Parse(senderStr); err != nil {
			return nil, false, err
		}
		msg.SenderRole = models.Role(role)
		if attachments != "" {
			if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
				return nil, false, err
			}
		}
		msgs = append(msgs, msg)
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	// reverse to chronological
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, hasMore, nil
}

// MarkMessageRead sets a message's read flag.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, id)
	return err
}

// CountThreads returns the total number of threads.
func (s *SQLiteStore) CountThreads(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&count)
	return count, err
}

// CountMessages returns the total number of persisted messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM threads`).Scan(&count)
	return count, err
}

// MostRecentActivity returns the newest thread activity timestamp.
func (s *SQLiteStore) MostRecentActivity(ctx context.Context) (*time.Time, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MAX(last_active_at) FROM threads`).Scan(&ts)
	if err != nil {
		return nil, err
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}
