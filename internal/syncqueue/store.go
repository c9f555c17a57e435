package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
)

// Store keeps the queued entries, FIFO per user.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Entries(ctx context.Context, userID int) ([]Entry, error)
	Update(ctx context.Context, entry Entry) error
	Remove(ctx context.Context, userID int, entryID string) error
	Users(ctx context.Context) ([]int, error)
}

const (
	queueUsersKey        = "ploop-sync-queue-users"
	queueOrderKeyPrefix  = "ploop-sync-queue-order||"
	queueEntryKeyPrefix  = "ploop-sync-queue-entries||"
)

// RedisStore persists queue entries in redis: a list per user keeps the
// FIFO order, a hash per user keeps the entries themselves, and one set
// tracks which users have queued anything at all.
type RedisStore struct {
	redisClient *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redisClient: redisClient,
	}
}

func orderKey(userID int) string {
	return fmt.Sprintf("%s%d", queueOrderKeyPrefix, userID)
}

func entriesKey(userID int) string {
	return fmt.Sprintf("%s%d", queueEntryKeyPrefix, userID)
}

func (s *RedisStore) Append(ctx context.Context, entry Entry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.store.append")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("entry.id", entry.ID))

	entryJson, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	// HSetNX keeps the first enqueue of an entry, a duplicate enqueue
	// of the same log must not reset its attempts or position
	setCmd := s.redisClient.HSetNX(ctx, entriesKey(entry.UserID), entry.ID, entryJson)
	if err := setCmd.Err(); err != nil {
		return err
	}
	if !setCmd.Val() {
		return nil
	}

	if err := s.redisClient.RPush(ctx, orderKey(entry.UserID), entry.ID).Err(); err != nil {
		return err
	}
	return s.redisClient.SAdd(ctx, queueUsersKey, entry.UserID).Err()
}

func (s *RedisStore) Entries(ctx context.Context, userID int) (_ []Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.store.entries")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	ids, err := s.redisClient.LRange(ctx, orderKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entryJson, err := s.redisClient.HGet(ctx, entriesKey(userID), id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var entry Entry
		if err := json.Unmarshal([]byte(entryJson), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry %s: %w", id, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *RedisStore) Update(ctx context.Context, entry Entry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.store.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("entry.id", entry.ID))

	entryJson, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	return s.redisClient.HSet(ctx, entriesKey(entry.UserID), entry.ID, entryJson).Err()
}

func (s *RedisStore) Remove(ctx context.Context, userID int, entryID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.store.remove")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("entry.id", entryID))

	if err := s.redisClient.LRem(ctx, orderKey(userID), 1, entryID).Err(); err != nil {
		return err
	}
	if err := s.redisClient.HDel(ctx, entriesKey(userID), entryID).Err(); err != nil {
		return err
	}

	// drop the user from the set once the queue is empty
	lenCmd := s.redisClient.LLen(ctx, orderKey(userID))
	if err := lenCmd.Err(); err != nil {
		return err
	}
	if lenCmd.Val() == 0 {
		return s.redisClient.SRem(ctx, queueUsersKey, userID).Err()
	}
	return nil
}

func (s *RedisStore) Users(ctx context.Context) (_ []int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncqueue.store.users")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	cmd := s.redisClient.SMembers(ctx, queueUsersKey)
	if err := cmd.Err(); err != nil {
		return nil, err
	}

	var users []int
	for _, member := range cmd.Val() {
		var userID int
		if _, err := fmt.Sscanf(member, "%d", &userID); err != nil {
			continue
		}
		users = append(users, userID)
	}
	return users, nil
}
