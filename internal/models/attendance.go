package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CheckInMethod records how an attendance record was captured.
type CheckInMethod string

const (
	MethodQR      CheckInMethod = "qr"
	MethodManual  CheckInMethod = "manual"
	MethodAdmin   CheckInMethod = "admin"
	MethodOffline CheckInMethod = "offline"
)

// VisitorInfo describes a walk-in without a membership id.
type VisitorInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AttendanceRecord is one committed check-in. For non-visitors at most one
// record exists per (UserID, SessionID) pair.
type AttendanceRecord struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	SessionID   string        `json:"session_id"`
	CheckInTime time.Time     `json:"check_in_time"`
	Method      CheckInMethod `json:"method"`
	IsVisitor   bool          `json:"is_visitor"`
	VisitorInfo *VisitorInfo  `json:"visitor_info,omitempty"`
}

// ToRecord wraps the attendance record in a store envelope.
func (a *AttendanceRecord) ToRecord() (*Record, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attendance record: %w", err)
	}
	return &Record{
		ID: a.ID,
		Fields: map[string]string{
			FieldUserID:    a.UserID,
			FieldSessionID: a.SessionID,
		},
		Payload:   payload,
		CreatedAt: a.CheckInTime,
		UpdatedAt: a.CheckInTime,
	}, nil
}

// AttendanceFromRecord unwraps a store envelope.
func AttendanceFromRecord(rec *Record) (*AttendanceRecord, error) {
	var a AttendanceRecord
	if err := json.Unmarshal(rec.Payload, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attendance record %s: %w", rec.ID, err)
	}
	return &a, nil
}
