package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/models"
)

// MemoryStore is an in-memory DataStore used by tests.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	projects map[uuid.UUID]*models.Project
	threads  map[uuid.UUID]*models.Thread
	messages map[string]*models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		projects: make(map[uuid.UUID]*models.Project),
		threads:  make(map[uuid.UUID]*models.Thread),
		messages: make(map[string]*models.Message),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// UpsertUser inserts or updates a user.
func (s *MemoryStore) UpsertUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// GetUser retrieves a user by ID.
func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

// UpsertProject inserts or updates a project.
func (s *MemoryStore) UpsertProject(ctx context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.projects[project.ID]; ok {
		project.CreatedAt = existing.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	cp := *project
	s.projects[project.ID] = &cp
	return nil
}

// GetProject retrieves a project by ID.
func (s *MemoryStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *project
	return &cp, nil
}

// FindOrCreateThread returns the project's thread, creating it on first use.
func (s *MemoryStore) FindOrCreateThread(ctx context.Context, projectID uuid.UUID) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, thread := range s.threads {
		if thread.ProjectID == projectID {
			cp := *thread
			return &cp, nil
		}
	}
	now := time.Now()
	thread := &models.Thread{
		ID:           uuid.New(),
		ProjectID:    projectID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.threads[thread.ID] = thread
	cp := *thread
	return &cp, nil
}

// GetThread retrieves a thread by ID.
func (s *MemoryStore) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *thread
	return &cp, nil
}

// GetThreadByProject retrieves a thread by its project ID.
func (s *MemoryStore) GetThreadByProject(ctx context.Context, projectID uuid.UUID) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, thread := range s.threads {
		if thread.ProjectID == projectID {
			cp := *thread
			return &cp, nil
		}
	}
	return nil, nil
}

// ListActiveThreads retrieves threads ordered by recent activity.
func (s *MemoryStore) ListActiveThreads(ctx context.Context, limit, offset int) ([]models.Thread, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]models.Thread, 0, len(s.threads))
	for _, thread := range s.threads {
		all = append(all, *thread)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastActiveAt.After(all[j].LastActiveAt)
	})
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

// IsThreadParticipant reports whether userID belongs to the thread's project.
func (s *MemoryStore) IsThreadParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return false, nil
	}
	project, ok := s.projects[thread.ProjectID]
	if !ok {
		return false, nil
	}
	return project.HasParticipant(userID), nil
}

// InsertMessage persists a message and bumps the thread's counters.
func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ClientTag != "" {
		for _, existing := range s.messages {
			if existing.ThreadID == msg.ThreadID && existing.ClientTag == msg.ClientTag {
				return ErrDuplicateTag
			}
		}
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	if thread, ok := s.threads[msg.ThreadID]; ok {
		thread.MessageCount++
		thread.LastActiveAt = time.Now()
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

// GetMessageByTag retrieves a message by its client tag.
func (s *MemoryStore) GetMessageByTag(ctx context.Context, threadID uuid.UUID, tag string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ThreadID == threadID && msg.ClientTag == tag {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, nil
}

// ListMessages retrieves messages in ascending creation order.
func (s *MemoryStore) ListMessages(ctx context.Context, threadID uuid.UUID, limit int, before int64) ([]models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []models.Message
	for _, msg := range s.messages {
		if msg.ThreadID != threadID {
			continue
		}
		if before > 0 && msg.Timestamp >= before {
			continue
		}
		msgs = append(msgs, *msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, hasMore, nil
}

// MarkMessageRead sets a message's read flag.
func (s *MemoryStore) MarkMessageRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		msg.Read = true
	}
	return nil
}

// CountThreads returns the total number of threads.
func (s *MemoryStore) CountThreads(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.threads)), nil
}

// CountMessages returns the total number of messages.
func (s *MemoryStore) CountMessages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages)), nil
}

// MostRecentActivity returns the newest thread activity timestamp.
func (s *MemoryStore) MostRecentActivity(ctx context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *time.Time
	for _, thread := range s.threads {
		t := thread.LastActiveAt
		if newest == nil || t.After(*newest) {
			newest = &t
		}
	}
	return newest, nil
}
