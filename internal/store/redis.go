package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/byour-platform/chat/internal/models"
)

const (
	cacheTTL   = 24 * time.Hour
	searchTTL  = 24 * time.Hour
	typingTTL  = 5 * time.Second
	sendTagTTL = 10 * time.Minute
)

// RedisStore handles Redis operations: the hot message cache, the search
// word index, typing indicator keys, send deduplication and rate limiting.
// The relational store stays the source of truth; everything here is
// reconstructible.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// threadMessagesKey returns the key for a thread's message sorted set.
func threadMessagesKey(threadID string) string {
	return fmt.Sprintf("thread:%s:messages", threadID)
}

// searchWordKey returns the key for a search word index.
func searchWordKey(word string) string {
	return fmt.Sprintf("search:words:%s", strings.ToLower(word))
}

// typingKey returns the key for a user's typing indicator in a thread.
func typingKey(threadID, userID uuid.UUID) string {
	return fmt.Sprintf("typing:thread:%s:user:%s", threadID, userID)
}

// sendTagKey returns the key for a sender's idempotency tag.
func sendTagKey(threadID uuid.UUID, tag string) string {
	return fmt.Sprintf("sendtag:%s:%s", threadID, tag)
}

// CacheMessage stores a freshly persisted message in the thread's sorted
// set and indexes it for search.
func (s *RedisStore) CacheMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := threadMessagesKey(msg.ThreadID.String())

	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, key, cacheTTL)

	// Index for search; best-effort
	if err := s.IndexMessage(ctx, msg); err != nil {
		_ = err
	}

	return nil
}

// GetCachedMessage retrieves a cached message by ID.
func (s *RedisStore) GetCachedMessage(ctx context.Context, threadID, msgID string) (*models.Message, error) {
	key := threadMessagesKey(threadID)

	results, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		if msg.ID == msgID {
			return &msg, nil
		}
	}

	return nil, nil
}

// wordRegex matches word characters for search indexing.
var wordRegex = regexp.MustCompile(`\w+`)

// IndexMessage indexes a message body for search.
func (s *RedisStore) IndexMessage(ctx context.Context, msg *models.Message) error {
	words := wordRegex.FindAllString(strings.ToLower(msg.Body), -1)

	seen := make(map[string]bool)
	for _, word := range words {
		if len(word) < 3 || seen[word] {
			continue
		}
		seen[word] = true

		key := searchWordKey(word)
		ref := fmt.Sprintf("%s:%s", msg.ThreadID, msg.ID)

		s.client.ZAdd(ctx, key, redis.Z{
			Score:  float64(msg.Timestamp),
			Member: ref,
		})
		s.client.Expire(ctx, key, searchTTL)
	}

	return nil
}

// SearchMessages searches indexed messages for the given tokens, most
// recent first. threadFilter restricts results to a single thread.
func (s *RedisStore) SearchMessages(ctx context.Context, tokens []string, limit int, after int64, threadFilter string) ([]models.Message, error) {
	if len(tokens) == 0 {
		return []models.Message{}, nil
	}

	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = searchWordKey(t)
	}

	var refs []string

	if len(keys) == 1 {
		minScore := "-inf"
		if after > 0 {
			minScore = fmt.Sprintf("(%d", after) // exclusive
		}

		refs, _ = s.client.ZRevRangeByScore(ctx, keys[0], &redis.ZRangeBy{
			Min:   minScore,
			Max:   "+inf",
			Count: int64(limit * 3), // Fetch extra for filtering
		}).Result()
	} else {
		// Multiple words: intersect the per-word indexes
		tempKey := fmt.Sprintf("search:temp:%d", time.Now().UnixNano())

		s.client.ZInterStore(ctx, tempKey, &redis.ZStore{
			Keys:      keys,
			Aggregate: "MIN",
		})
		s.client.Expire(ctx, tempKey, 10*time.Second)

		minScore := "-inf"
		if after > 0 {
			minScore = fmt.Sprintf("(%d", after)
		}

		refs, _ = s.client.ZRevRangeByScore(ctx, tempKey, &redis.ZRangeBy{
			Min:   minScore,
			Max:   "+inf",
			Count: int64(limit * 3),
		}).Result()

		s.client.Del(ctx, tempKey)
	}

	messages := make([]models.Message, 0, limit)
	for _, ref := range refs {
		parts := strings.SplitN(ref, ":", 2)
		if len(parts) != 2 {
			continue
		}
		threadID, msgID := parts[0], parts[1]

		if threadFilter != "" && threadID != threadFilter {
			continue
		}

		msg, err := s.GetCachedMessage(ctx, threadID, msgID)
		if err != nil || msg == nil {
			continue // cache entry expired
		}

		messages = append(messages, *msg)

		if len(messages) >= limit {
			break
		}
	}

	return messages, nil
}

// SetTyping marks a user as typing in a thread. The key carries the
// display name and expires on its own, so a vanished client cannot leave
// a permanently stuck indicator for REST pollers.
func (s *RedisStore) SetTyping(ctx context.Context, threadID, userID uuid.UUID, name string) error {
	return s.client.Set(ctx, typingKey(threadID, userID), name, typingTTL).Err()
}

// ClearTyping removes a user's typing indicator.
func (s *RedisStore) ClearTyping(ctx context.Context, threadID, userID uuid.UUID) error {
	return s.client.Del(ctx, typingKey(threadID, userID)).Err()
}

// GetTyping returns the display name of a typing user, or "" when the
// user is not typing.
func (s *RedisStore) GetTyping(ctx context.Context, threadID, userID uuid.UUID) (string, error) {
	name, err := s.client.Get(ctx, typingKey(threadID, userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return name, err
}

// ClaimSendTag atomically claims a sender's idempotency tag for a message
// ID. Returns (false, existingID) when the tag was already claimed.
func (s *RedisStore) ClaimSendTag(ctx context.Context, threadID uuid.UUID, tag, msgID string) (bool, string, error) {
	key := sendTagKey(threadID, tag)
	claimed, err := s.client.SetNX(ctx, key, msgID, sendTagTTL).Result()
	if err != nil {
		return false, "", err
	}
	if claimed {
		return true, msgID, nil
	}
	existing, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return false, "", err
	}
	return false, existing, nil
}

// ReleaseSendTag frees a claimed tag after a failed insert so the client
// can retry.
func (s *RedisStore) ReleaseSendTag(ctx context.Context, threadID uuid.UUID, tag string) {
	s.client.Del(ctx, sendTagKey(threadID, tag))
}
