package syncqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pilatesloop/backend/internal/workoutlog"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_AppendAndEntries(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	store := NewRedisStore(db)
	ctx := context.Background()

	entry := Entry{
		ID:     "11111111-2222-3333-4444-555555555555",
		UserID: 7,
		Log: workoutlog.Log{
			ID:              "11111111-2222-3333-4444-555555555555",
			UserID:          7,
			WorkoutDate:     time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
			DurationMinutes: 40,
			Type:            workoutlog.TypeReformer,
			RPE:             6,
		},
		Status:     StatusPending,
		EnqueuedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	entryJson, err := json.Marshal(entry)
	require.NoError(t, err)

	mock.ExpectHSetNX(entriesKey(7), entry.ID, entryJson).SetVal(true)
	mock.ExpectRPush(orderKey(7), entry.ID).SetVal(1)
	mock.ExpectSAdd(queueUsersKey, 7).SetVal(1)
	require.NoError(t, store.Append(ctx, entry))

	// duplicate append changes nothing
	mock.ExpectHSetNX(entriesKey(7), entry.ID, entryJson).SetVal(false)
	require.NoError(t, store.Append(ctx, entry))

	mock.ExpectLRange(orderKey(7), 0, -1).SetVal([]string{entry.ID})
	mock.ExpectHGet(entriesKey(7), entry.ID).SetVal(string(entryJson))
	entries, err := store.Entries(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, StatusPending, entries[0].Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Remove(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	store := NewRedisStore(db)
	ctx := context.Background()

	entryID := "11111111-2222-3333-4444-555555555555"
	mock.ExpectLRem(orderKey(7), 1, entryID).SetVal(1)
	mock.ExpectHDel(entriesKey(7), entryID).SetVal(1)
	mock.ExpectLLen(orderKey(7)).SetVal(0)
	mock.ExpectSRem(queueUsersKey, 7).SetVal(1)

	require.NoError(t, store.Remove(ctx, 7, entryID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Users(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	store := NewRedisStore(db)

	mock.ExpectSMembers(queueUsersKey).SetVal([]string{"1", "42"})
	users, err := store.Users(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 42}, users)
}

func TestMemoryStore_FIFO(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		require.NoError(t, store.Append(ctx, Entry{ID: id, UserID: 1, Status: StatusPending}))
	}

	entries, err := store.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, ids[i], entry.ID)
	}

	// removing the middle entry keeps the order of the rest
	require.NoError(t, store.Remove(ctx, 1, "b"))
	entries, err = store.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "c", entries[1].ID)

	users, err := store.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, users)

	require.NoError(t, store.Remove(ctx, 1, "a"))
	require.NoError(t, store.Remove(ctx, 1, "c"))
	users, err = store.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}
