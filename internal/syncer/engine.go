// Package syncer drains the pending-mutation queue against the remote store.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/connectivity"
	"github.com/rollcall-app/rollcall/internal/models"
	"github.com/rollcall-app/rollcall/internal/queue"
)

// Remote is the only contract the engine requires from the backing store.
type Remote interface {
	Apply(ctx context.Context, collection string, op models.Operation, payload json.RawMessage) error
}

// MaxRetries is the retry ceiling: an item is attempted MaxRetries+1 times
// in total before being dropped.
const MaxRetries = 5

// Engine owns the drain cycle. The queue and the in-progress flag are the
// only shared mutable state; no other component deletes or reorders items.
type Engine struct {
	queue    *queue.Queue
	remote   Remote
	monitor  *connectivity.Monitor
	clock    clock.Clock
	log      *logrus.Logger
	interval time.Duration

	draining atomic.Bool

	mu         sync.Mutex
	lastSyncAt time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewEngine wires the engine to its queue, remote, and monitor. It registers
// for online transitions so regained connectivity triggers an immediate
// drain.
func NewEngine(q *queue.Queue, remote Remote, monitor *connectivity.Monitor, clk clock.Clock, interval time.Duration, log *logrus.Logger) *Engine {
	e := &Engine{
		queue:    q,
		remote:   remote,
		monitor:  monitor,
		clock:    clk,
		log:      log,
		interval: interval,
		done:     make(chan struct{}),
	}
	monitor.OnOnline(func() {
		go e.Drain(context.Background())
	})
	return e
}

// Start runs the periodic drain timer. Each tick drains only while online.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if e.monitor.IsOnline() {
					e.Drain(ctx)
				}
			case <-e.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the periodic timer. An in-flight drain pass finishes on its
// own; individual remote calls are never cancelled mid-item.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

// DrainIfOnline is the opportunistic post-enqueue trigger.
func (e *Engine) DrainIfOnline(ctx context.Context) {
	if e.monitor.IsOnline() {
		e.Drain(ctx)
	}
}

// Drain runs one full pass over the queue in enqueue order. A second
// concurrent call is a no-op: the pass already running covers its items.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer e.draining.Store(false)

	items, err := e.queue.Pending(ctx)
	if err != nil {
		return err
	}

	for _, item := range items {
		e.applyItem(ctx, item)
	}

	e.mu.Lock()
	e.lastSyncAt = e.clock.Now()
	e.mu.Unlock()
	return nil
}

// applyItem finalizes exactly one of: delete on success, retry bump, or
// permanent drop. The remote call always runs to completion first.
func (e *Engine) applyItem(ctx context.Context, item *models.QueueItem) {
	err := e.remote.Apply(ctx, item.Collection, item.Operation, item.Payload)
	if err == nil {
		if derr := e.queue.Delete(ctx, item.ID); derr != nil {
			e.log.WithError(derr).WithField("item", item.ID).Warn("failed to delete reconciled queue item")
		}
		return
	}

	count, berr := e.queue.BumpRetry(ctx, item.ID)
	if berr != nil {
		e.log.WithError(berr).WithField("item", item.ID).Warn("failed to bump retry count")
		return
	}
	if count > MaxRetries {
		// Permanently failed: the local mutation stays in the store but is
		// no longer reconciled with the remote.
		e.log.WithFields(logrus.Fields{
			"item":       item.ID,
			"collection": item.Collection,
			"operation":  item.Operation,
			"retries":    count,
		}).WithError(err).Error("dropping permanently failed queue item")
		if derr := e.queue.Delete(ctx, item.ID); derr != nil {
			e.log.WithError(derr).WithField("item", item.ID).Warn("failed to delete dropped queue item")
		}
		return
	}
	e.log.WithError(err).WithFields(logrus.Fields{
		"item":    item.ID,
		"retries": count,
	}).Debug("remote apply failed, will retry")
}

// LastSyncAt returns the completion time of the most recent drain pass.
func (e *Engine) LastSyncAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncAt
}
