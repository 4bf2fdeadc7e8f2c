package models

import (
	"encoding/json"
	"time"
)

// Record is the envelope every locally persisted entity travels in. Payload
// holds the entity JSON; Fields carries the values for the table's indexed
// columns so the store can filter without unmarshalling payloads.
type Record struct {
	ID        string            `json:"id"`
	Fields    map[string]string `json:"fields,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
