// Package store is the device-local persistence layer. Every entity kind
// gets its own SQLite table with a JSON payload column plus the indexed
// columns its queries filter on. The sync queue shares the same database
// file so a local write and its queue entry survive restarts together.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnknownTable is returned for a table name outside the registered schema.
var ErrUnknownTable = errors.New("unknown table")

// ErrUnknownIndex is returned for a column the table does not index.
var ErrUnknownIndex = errors.New("unknown index column")

type tableSpec struct {
	indexes []string
}

// Registered entity tables and their secondary index columns. Table and
// column names only ever come from this map, never from callers, so they are
// safe to interpolate into SQL.
var tables = map[string]tableSpec{
	models.CollectionMembers:  {indexes: []string{models.FieldUserID, models.FieldStatus}},
	models.CollectionSessions: {indexes: []string{models.FieldStatus, models.FieldCreatedBy}},
	models.CollectionRecords:  {indexes: []string{models.FieldUserID, models.FieldSessionID}},
}

// Store wraps the local SQLite database. A single mutex serializes writers;
// SQLite would serialize them anyway, but holding the lock across a whole
// transaction keeps upserts to the same table from interleaving.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	clock clock.Clock
}

// Open opens (creating if needed) the local database and runs migrations.
// Any failure here is fatal to the caller: no downstream component may
// operate against a store that failed to open.
func Open(path string, clk clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping local store: %w", err)
	}

	s := &Store{db: db, clock: clk}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the sync queue, which lives in the
// same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Clock returns the store's time source.
func (s *Store) Clock() clock.Clock {
	return s.clock
}

func (s *Store) migrate() error {
	for name, spec := range tables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,`, name)
		for _, col := range spec.indexes {
			ddl += fmt.Sprintf("\n\t\t\t%s TEXT NOT NULL DEFAULT '',", col)
		}
		ddl += `
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		for _, col := range spec.indexes {
			idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", name, col, name, col)
			if _, err := s.db.Exec(idx); err != nil {
				return fmt.Errorf("failed to create index on %s.%s: %w", name, col, err)
			}
		}
	}

	queueDDL := `CREATE TABLE IF NOT EXISTS sync_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		collection TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at TIMESTAMP NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := s.db.Exec(queueDDL); err != nil {
		return fmt.Errorf("failed to create sync_queue table: %w", err)
	}
	return nil
}

func specFor(table string) (tableSpec, error) {
	spec, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return spec, nil
}

// IndexColumns returns the registered secondary index columns for table.
func IndexColumns(table string) ([]string, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), spec.indexes...), nil
}

// Put upserts a record inside its own transaction. On update the original
// created_at is preserved and updated_at moves to now.
func (s *Store) Put(ctx context.Context, table string, rec *models.Record) error {
	spec, err := specFor(table)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	cols := "id"
	placeholders := "?"
	args := []interface{}{rec.ID}
	updates := ""
	for _, col := range spec.indexes {
		cols += ", " + col
		placeholders += ", ?"
		args = append(args, rec.Fields[col])
		updates += fmt.Sprintf("%s = excluded.%s, ", col, col)
	}
	cols += ", payload, created_at, updated_at"
	placeholders += ", ?, ?, ?"
	args = append(args, string(rec.Payload), rec.CreatedAt, rec.UpdatedAt)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)
		ON CONFLICT(id) DO UPDATE SET %spayload = excluded.payload, updated_at = excluded.updated_at`,
		table, cols, placeholders, updates)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to put record in %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit put to %s: %w", table, err)
	}
	return nil
}

// Get returns a single record by id.
func (s *Store) Get(ctx context.Context, table, id string) (*models.Record, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectColumns(spec), table)
	row := s.db.QueryRowContext(ctx, query, id)
	rec, err := scanRecord(row, spec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s from %s: %w", id, table, err)
	}
	return rec, nil
}

// GetAll returns every record in the table in creation order.
func (s *Store) GetAll(ctx context.Context, table string) ([]*models.Record, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at ASC", selectColumns(spec), table)
	return s.queryRecords(ctx, spec, query)
}

// GetByIndex returns the records whose indexed column equals value.
func (s *Store) GetByIndex(ctx context.Context, table, column, value string) ([]*models.Record, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	found := false
	for _, col := range spec.indexes {
		if col == column {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownIndex, table, column)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY created_at ASC",
		selectColumns(spec), table, column)
	return s.queryRecords(ctx, spec, query, value)
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	if _, err := specFor(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s from %s: %w", id, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete record %s from %s: %w", id, table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func selectColumns(spec tableSpec) string {
	cols := "id"
	for _, col := range spec.indexes {
		cols += ", " + col
	}
	return cols + ", payload, created_at, updated_at"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner, spec tableSpec) (*models.Record, error) {
	rec := &models.Record{Fields: make(map[string]string, len(spec.indexes))}
	var payload string
	dest := []interface{}{&rec.ID}
	values := make([]string, len(spec.indexes))
	for i := range spec.indexes {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &payload, &rec.CreatedAt, &rec.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	for i, col := range spec.indexes {
		rec.Fields[col] = values[i]
	}
	rec.Payload = []byte(payload)
	return rec, nil
}

func (s *Store) queryRecords(ctx context.Context, spec tableSpec, query string, args ...interface{}) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var recs []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return recs, nil
}
