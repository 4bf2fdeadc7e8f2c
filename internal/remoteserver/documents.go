package remoteserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcall-app/rollcall/internal/models"
)

// DocumentRepository persists applied mutations. Generic collections share a
// documents table keyed by (collection, id); attendance records get their
// own table so the database enforces the one-record-per-member-per-session
// rule even when two offline devices queued the same check-in.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates the repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// EnsureSchema creates the remote tables and the attendance dedup index.
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			is_visitor BOOLEAN NOT NULL DEFAULT FALSE,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_member_session
			ON attendance_records (session_id, user_id) WHERE NOT is_visitor`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create remote schema: %w", err)
		}
	}
	return nil
}

type payloadID struct {
	ID string `json:"id"`
}

// ApplyDocument handles a mutation against a generic collection.
func (r *DocumentRepository) ApplyDocument(ctx context.Context, collection string, op models.Operation, payload json.RawMessage) error {
	var pid payloadID
	if err := json.Unmarshal(payload, &pid); err != nil || pid.ID == "" {
		return fmt.Errorf("payload for %s has no id", collection)
	}

	switch op {
	case models.OpCreate, models.OpUpdate:
		query := `INSERT INTO documents (collection, id, payload, updated_at)
		          VALUES ($1, $2, $3, NOW())
		          ON CONFLICT (collection, id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`
		if _, err := r.pool.Exec(ctx, query, collection, pid.ID, payload); err != nil {
			return fmt.Errorf("failed to upsert document %s/%s: %w", collection, pid.ID, err)
		}
	case models.OpDelete:
		if _, err := r.pool.Exec(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", collection, pid.ID); err != nil {
			return fmt.Errorf("failed to delete document %s/%s: %w", collection, pid.ID, err)
		}
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}

// ApplyAttendance handles attendance_records mutations. Creates collide with
// the dedup index ON CONFLICT DO NOTHING, so a duplicate offline check-in
// reconciles as a no-op rather than an error.
func (r *DocumentRepository) ApplyAttendance(ctx context.Context, op models.Operation, payload json.RawMessage) error {
	var record models.AttendanceRecord
	if err := json.Unmarshal(payload, &record); err != nil || record.ID == "" {
		return fmt.Errorf("invalid attendance payload: %w", err)
	}

	switch op {
	case models.OpCreate, models.OpUpdate:
		query := `INSERT INTO attendance_records (id, session_id, user_id, is_visitor, payload, created_at)
		          VALUES ($1, $2, $3, $4, $5, $6)
		          ON CONFLICT DO NOTHING`
		if _, err := r.pool.Exec(ctx, query, record.ID, record.SessionID, record.UserID, record.IsVisitor, payload, record.CheckInTime); err != nil {
			return fmt.Errorf("failed to insert attendance record %s: %w", record.ID, err)
		}
	case models.OpDelete:
		if _, err := r.pool.Exec(ctx, "DELETE FROM attendance_records WHERE id = $1", record.ID); err != nil {
			return fmt.Errorf("failed to delete attendance record %s: %w", record.ID, err)
		}
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}
