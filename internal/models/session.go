package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collection names double as local table names and remote document
// collections.
const (
	CollectionMembers  = "members"
	CollectionSessions = "attendance_sessions"
	CollectionRecords  = "attendance_records"
)

// Indexed field names shared between Record.Fields and the store schema.
const (
	FieldStatus    = "status"
	FieldCreatedBy = "created_by"
	FieldUserID    = "user_id"
	FieldSessionID = "session_id"
)

// Session statuses held in the indexed status column.
const (
	SessionActive = "active"
	SessionClosed = "closed"
)

// AttendanceSession is a time-boxed check-in window. Sessions are never
// deleted, only deactivated.
type AttendanceSession struct {
	ID              string    `json:"id"`
	EventName       string    `json:"event_name"`
	EventType       string    `json:"event_type"`
	WordOfDay       string    `json:"word_of_day"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsActive        bool      `json:"is_active"`
	AttendanceCount int       `json:"attendance_count"`
}

// Usable reports whether the session can still accept check-ins at now.
func (s *AttendanceSession) Usable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// ToRecord wraps the session in a store envelope.
func (s *AttendanceSession) ToRecord() (*Record, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	status := SessionClosed
	if s.IsActive {
		status = SessionActive
	}
	return &Record{
		ID: s.ID,
		Fields: map[string]string{
			FieldStatus:    status,
			FieldCreatedBy: s.CreatedBy,
		},
		Payload:   payload,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.CreatedAt,
	}, nil
}

// SessionFromRecord unwraps a store envelope.
func SessionFromRecord(rec *Record) (*AttendanceSession, error) {
	var s AttendanceSession
	if err := json.Unmarshal(rec.Payload, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", rec.ID, err)
	}
	return &s, nil
}
