package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/models"
	"github.com/rollcall-app/rollcall/internal/store"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st.DB(), clk)
}

func TestQueue_Enqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"id":"m1"}`)
	item, err := q.Enqueue(ctx, models.CollectionMembers, models.OpCreate, payload)
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, models.CollectionMembers, item.Collection)
	assert.Equal(t, models.OpCreate, item.Operation)
	assert.Equal(t, 0, item.RetryCount)
	assert.False(t, item.EnqueuedAt.IsZero())
}

func TestQueue_Enqueue_RejectsUnknownOperation(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), models.CollectionMembers, "upsert", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestQueue_Pending_FIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"id":"m%d"}`, i))
		_, err := q.Enqueue(ctx, models.CollectionMembers, models.OpCreate, payload)
		require.NoError(t, err)
	}

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, item := range items {
		assert.JSONEq(t, fmt.Sprintf(`{"id":"m%d"}`, i), string(item.Payload), "enqueue order must be preserved")
		if i > 0 {
			assert.Greater(t, item.Seq, items[i-1].Seq)
		}
	}
}

func TestQueue_Delete(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, models.CollectionMembers, models.OpCreate, json.RawMessage(`{"id":"m1"}`))
	require.NoError(t, err)

	require.NoError(t, q.Delete(ctx, item.ID))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, q.Delete(ctx, item.ID), ErrNotFound)
}

func TestQueue_BumpRetry(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, models.CollectionMembers, models.OpCreate, json.RawMessage(`{"id":"m1"}`))
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		count, err := q.BumpRetry(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	_, err = q.BumpRetry(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	// Queued mutations are durable: a restart must not lose them.
	clk := clock.NewFixed(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := store.Open(path, clk)
	require.NoError(t, err)
	q := New(st.DB(), clk)
	_, err = q.Enqueue(ctx, models.CollectionMembers, models.OpCreate, json.RawMessage(`{"id":"m1"}`))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = store.Open(path, clk)
	require.NoError(t, err)
	defer st.Close()

	items, err := New(st.DB(), clk).Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"id":"m1"}`, string(items[0].Payload))
}
