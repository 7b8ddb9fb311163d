package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/models"
)

// ErrDuplicateTag is returned by InsertMessage when a message with the
// same (thread, client_tag) pair already exists.
var ErrDuplicateTag = errors.New("store: duplicate client tag")

// DataStore defines the interface for persistent storage of users,
// projects, threads and messages. Both PostgresStore and SQLiteStore
// implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations (synced from the platform)
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Project operations (synced from the platform)
	UpsertProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)

	// Thread operations
	FindOrCreateThread(ctx context.Context, projectID uuid.UUID) (*models.Thread, error)
	GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	GetThreadByProject(ctx context.Context, projectID uuid.UUID) (*models.Thread, error)
	ListActiveThreads(ctx context.Context, limit, offset int) ([]models.Thread, int, error)
	IsThreadParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error)

	// Message operations
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessageByTag(ctx context.Context, threadID uuid.UUID, tag string) (*models.Message, error)
	ListMessages(ctx context.Context, threadID uuid.UUID, limit int, before int64) ([]models.Message, bool, error)
	MarkMessageRead(ctx context.Context, id string) error

	// Aggregates for the stats endpoint
	CountThreads(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)
	MostRecentActivity(ctx context.Context) (*time.Time, error)
}
