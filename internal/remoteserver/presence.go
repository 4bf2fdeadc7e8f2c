package remoteserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const presencePrefix = "presence:"

// ErrPresenceNotFound is returned when a device has no live heartbeat.
var ErrPresenceNotFound = errors.New("device presence not found")

// DevicePresence is a device's last successful sync, kept in Redis with a
// TTL so stale devices age out on their own.
type DevicePresence struct {
	DeviceID   string    `json:"device_id"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// PresenceRepository tracks which devices have applied mutations recently.
type PresenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceRepository creates the repository. ttl bounds how long a device
// counts as recently synced.
func NewPresenceRepository(client *redis.Client, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{client: client, ttl: ttl}
}

// Touch refreshes a device's heartbeat.
func (r *PresenceRepository) Touch(ctx context.Context, deviceID string, at time.Time) error {
	presence := DevicePresence{DeviceID: deviceID, LastSyncAt: at}
	jsonData, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	key := presencePrefix + deviceID
	if err := r.client.Set(ctx, key, jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// Get returns a device's heartbeat, or ErrPresenceNotFound once expired.
func (r *PresenceRepository) Get(ctx context.Context, deviceID string) (*DevicePresence, error) {
	jsonData, err := r.client.Get(ctx, presencePrefix+deviceID).Result()
	if err == redis.Nil {
		return nil, ErrPresenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	var presence DevicePresence
	if err := json.Unmarshal([]byte(jsonData), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &presence, nil
}
