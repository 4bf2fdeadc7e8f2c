package models

import (
	"encoding/json"
	"time"
)

// QueueItem is one pending mutation awaiting remote application. Items are
// owned exclusively by the sync queue: nothing outside a drain pass deletes
// or mutates them.
type QueueItem struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	Collection string          `json:"collection"`
	Operation  Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}
