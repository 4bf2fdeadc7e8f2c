package attendance

import (
	"context"
	"fmt"

	"github.com/rollcall-app/rollcall/internal/models"
	"github.com/rollcall-app/rollcall/internal/queue"
	"github.com/rollcall-app/rollcall/internal/store"
)

// DrainTrigger is the opportunistic post-enqueue sync hook. The sync engine
// satisfies it; tests leave it nil.
type DrainTrigger interface {
	DrainIfOnline(ctx context.Context)
}

// writeThrough commits a record locally and queues it for remote
// application. The drain nudge runs on its own goroutine so callers never
// block on the network.
func writeThrough(ctx context.Context, st *store.Store, q *queue.Queue, trigger DrainTrigger, table string, rec *models.Record, op models.Operation) error {
	if err := st.Put(ctx, table, rec); err != nil {
		return fmt.Errorf("failed to persist %s record: %w", table, err)
	}
	if _, err := q.Enqueue(ctx, table, op, rec.Payload); err != nil {
		return fmt.Errorf("failed to enqueue %s mutation: %w", table, err)
	}
	if trigger != nil {
		go trigger.DrainIfOnline(context.Background())
	}
	return nil
}
