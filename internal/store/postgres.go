package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/byour-platform/chat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUser inserts or updates a platform user.
func (s *PostgresStore) UpsertUser(ctx context.Context, user *models.User) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, updated_at = NOW()
		RETURNING created_at, updated_at
	`, user.ID, user.Name, user.Role).Scan(&user.CreatedAt, &user.UpdatedAt)
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, role, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// UpsertProject inserts or updates a project's participant fields.
func (s *PostgresStore) UpsertProject(ctx context.Context, project *models.Project) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO projects (id, owner_id, boss_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, boss_id = EXCLUDED.boss_id, updated_at = NOW()
		RETURNING created_at, updated_at
	`, project.ID, project.OwnerID, project.BossID).Scan(&project.CreatedAt, &project.UpdatedAt)
}

// GetProject retrieves a project by ID.
func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	project := &models.Project{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, boss_id, created_at, updated_at
		FROM projects WHERE id = $1
	`, id).Scan(&project.ID, &project.OwnerID, &project.BossID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return project, nil
}

// FindOrCreateThread returns the project's thread, creating it on first use.
func (s *PostgresStore) FindOrCreateThread(ctx context.Context, projectID uuid.UUID) (*models.Thread, error) {
	thread := &models.Thread{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO threads (project_id)
		VALUES ($1)
		ON CONFLICT (project_id) DO UPDATE SET project_id = EXCLUDED.project_id
		RETURNING id, project_id, created_at, last_active_at, message_count
	`, projectID).Scan(
		&thread.ID,
		&thread.ProjectID,
		&thread.CreatedAt,
		&thread.LastActiveAt,
		&thread.MessageCount,
	)
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread retrieves a thread by ID.
func (s *PostgresStore) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	return s.scanThread(s.pool.QueryRow(ctx, `
		SELECT id, project_id, created_at, last_active_at, message_count
		FROM threads WHERE id = $1
	`, id))
}

// GetThreadByProject retrieves a thread by its project ID.
func (s *PostgresStore) GetThreadByProject(ctx context.Context, projectID uuid.UUID) (*models.Thread, error) {
	return s.scanThread(s.pool.QueryRow(ctx, `
		SELECT id, project_id, created_at, last_active_at, message_count
		FROM threads WHERE project_id = $1
	`, projectID))
}

func (s *PostgresStore) scanThread(row pgx.Row) (*models.Thread, error) {
	thread := &models.Thread{}
	err := row.Scan(
		&thread.ID,
		&thread.ProjectID,
		&thread.CreatedAt,
		&thread.LastActiveAt,
		&thread.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return thread, nil
}

// ListActiveThreads retrieves threads ordered by recent activity, with pagination.
func (s *PostgresStore) ListActiveThreads(ctx context.Context, limit, offset int) ([]models.Thread, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM threads`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, created_at, last_active_at, message_count
		FROM threads
		ORDER BY last_active_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var thread models.Thread
		err := rows.Scan(
			&thread.ID,
			&thread.ProjectID,
			&thread.CreatedAt,
			&thread.LastActiveAt,
			&thread.MessageCount,
		)
		if err != nil {
			return nil, 0, err
		}
		threads = append(threads, thread)
	}

	return threads, total, nil
}

// IsThreadParticipant reports whether userID belongs to the thread's project.
func (s *PostgresStore) IsThreadParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM threads t
			JOIN projects p ON p.id = t.project_id
			WHERE t.id = $1 AND (p.owner_id = $2 OR p.boss_id = $2)
		)
	`, threadID, userID).Scan(&ok)
	return ok, err
}

// InsertMessage persists a message and bumps the thread's activity counters.
// Returns ErrDuplicateTag when the sender replays a client tag.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var tag *string
	if msg.ClientTag != "" {
		tag = &msg.ClientTag
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, thread_id, sender_id, sender_role, body, attachments, is_read, client_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
	`, msg.ID, msg.ThreadID, msg.SenderID, msg.SenderRole, msg.Body, attachments, tag, msg.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTag
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE threads
		SET message_count = message_count + 1, last_active_at = NOW()
		WHERE id = $1
	`, msg.ThreadID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return s.scanMessage(s.pool.QueryRow(ctx, `
		SELECT id, thread_id, sender_id, sender_role, body, attachments, is_read, COALESCE(client_tag, ''), created_at
		FROM messages WHERE id = $1
	`, id))
}

// GetMessageByTag retrieves a message by its sender-supplied client tag.
func (s *PostgresStore) GetMessageByTag(ctx context.Context, threadID uuid.UUID, tag string) (*models.Message, error) {
	return s.scanMessage(s.pool.QueryRow(ctx, `
		SELECT id, thread_id, sender_id, sender_role, body, attachments, is_read, COALESCE(client_tag, ''), created_at
		FROM messages WHERE thread_id = $1 AND client_tag = $2
	`, threadID, tag))
}

func (s *PostgresStore) scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var attachments []byte
	err := row.Scan(
		&msg.ID,
		&msg.ThreadID,
		&msg.SenderID,
		&msg.SenderRole,
		&msg.Body,
		&attachments,
		&msg.Read,
		&msg.ClientTag,
		&msg.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// ListMessages retrieves up to limit messages older than before (Unix ms,
// exclusive; 0 means newest), returned in ascending creation order.
// The second return value reports whether older messages remain.
func (s *PostgresStore) ListMessages(ctx context.Context, threadID uuid.UUID, limit int, before int64) ([]models.Message, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, sender_id, sender_role, body, attachments, is_read, COALESCE(client_tag, ''), created_at
		FROM messages
		WHERE thread_id = $1 AND ($2 = 0 OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, threadID, before, limit+1)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var attachments []byte
		err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.SenderID,
			&msg.SenderRole,
			&msg.Body,
			&attachments,
			&msg.Read,
			&msg.ClientTag,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, false, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
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
func (s *PostgresStore) MarkMessageRead(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	return err
}

// CountThreads returns the total number of threads.
func (s *PostgresStore) CountThreads(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM threads`).Scan(&count)
	return count, err
}

// CountMessages returns the total number of persisted messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM threads`).Scan(&count)
	return count, err
}

// MostRecentActivity returns the newest thread activity timestamp.
func (s *PostgresStore) MostRecentActivity(ctx context.Context) (*time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(last_active_at) FROM threads`).Scan(&ts)
	if err != nil {
		return nil, err
	}
	return ts, nil
}
