// Package queue is the persisted log of pending mutations. Items are stored
// in the local database with a monotonically increasing sequence number, so
// drain order is enqueue order even across restarts.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/models"
)

// ErrNotFound is returned when a queue item does not exist.
var ErrNotFound = errors.New("queue item not found")

// Queue wraps the sync_queue table. Only the sync engine may delete items or
// bump retry counts; everything else just enqueues.
type Queue struct {
	db    *sql.DB
	clock clock.Clock
}

// New creates a Queue over the given database handle.
func New(db *sql.DB, clk clock.Clock) *Queue {
	return &Queue{db: db, clock: clk}
}

// Enqueue appends a mutation. It never touches the network and returns as
// soon as the row is committed.
func (q *Queue) Enqueue(ctx context.Context, collection string, op models.Operation, payload json.RawMessage) (*models.QueueItem, error) {
	if _, err := models.ParseOperation(string(op)); err != nil {
		return nil, err
	}

	item := &models.QueueItem{
		ID:         uuid.New().String(),
		Collection: collection,
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: q.clock.Now(),
	}

	query := `INSERT INTO sync_queue (id, collection, operation, payload, enqueued_at, retry_count)
	          VALUES (?, ?, ?, ?, ?, 0)`
	res, err := q.db.ExecContext(ctx, query, item.ID, item.Collection, string(item.Operation), string(item.Payload), item.EnqueuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	item.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue sequence: %w", err)
	}
	return item, nil
}

// Pending returns every queued item in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]*models.QueueItem, error) {
	query := `SELECT seq, id, collection, operation, payload, enqueued_at, retry_count
	          FROM sync_queue ORDER BY seq ASC`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		var op, payload string
		if err := rows.Scan(&item.Seq, &item.ID, &item.Collection, &op, &payload, &item.EnqueuedAt, &item.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Operation = models.Operation(op)
		item.Payload = []byte(payload)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}
	return items, nil
}

// Len returns the number of queued items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}

// Delete removes a reconciled (or permanently dropped) item.
func (q *Queue) Delete(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete queue item %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpRetry increments an item's retry count after a failed apply and
// returns the new count.
func (q *Queue) BumpRetry(ctx context.Context, id string) (int, error) {
	res, err := q.db.ExecContext(ctx, "UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to bump retry count for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to bump retry count for %s: %w", id, err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	var count int
	if err := q.db.QueryRowContext(ctx, "SELECT retry_count FROM sync_queue WHERE id = ?", id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read retry count for %s: %w", id, err)
	}
	return count, nil
}
