/*
Package sqlstore provides SQL implementations of the attendance stores.

PURPOSE:
  Implements attendance.StudentStore and attendance.IndexStore on SQLite
  (default, via mattn/go-sqlite3) or PostgreSQL (via lib/pq). Queries are
  written once with '?' placeholders and rebound per driver by sqlx.

KEY TABLES:
  students:          Student aggregates. The ledger is embedded as a JSON
                     array in attendance_json and rewritten on every save.
  attendance_index:  Derived (batch, day, student) rows. day_at holds the
                     unix seconds of the day's UTC midnight.

NO UNIQUENESS ON THE INDEX:
  attendance_index has no unique key over (student_id, batch, day_at). Rows
  are kept unique by ReplaceDay, which deletes the whole day window before
  inserting. The delete and the insert are separate statements; there is no
  surrounding transaction.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on Open.
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/attendance-engine/attendance"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements attendance.StudentStore and attendance.IndexStore.
type Store struct {
	db *sqlx.DB
}

var (
	_ attendance.StudentStore = (*Store)(nil)
	_ attendance.IndexStore   = (*Store)(nil)
)

// Open connects to the database and migrates the schema. For SQLite use
// ":memory:" for an in-memory database.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// A second connection to ":memory:" would be a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		batch TEXT NOT NULL,
		attendance_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_batch
		ON students(batch);

	CREATE TABLE IF NOT EXISTS attendance_index (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		batch TEXT NOT NULL,
		day_at BIGINT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_index_batch_day
		ON attendance_index(batch, day_at);
	CREATE INDEX IF NOT EXISTS idx_attendance_index_student_day
		ON attendance_index(student_id, day_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STUDENT STORE (attendance.StudentStore interface)
// =============================================================================

type studentRow struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	Batch          string `db:"batch"`
	AttendanceJSON string `db:"attendance_json"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

func (r studentRow) toStudent() (attendance.Student, error) {
	s := attendance.Student{
		ID:    attendance.StudentID(r.ID),
		Name:  r.Name,
		Batch: attendance.Batch(r.Batch),
	}
	if r.AttendanceJSON != "" {
		if err := json.Unmarshal([]byte(r.AttendanceJSON), &s.Attendance); err != nil {
			return s, fmt.Errorf("decode ledger of %s: %w", r.ID, err)
		}
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, r.UpdatedAt)
	return s, nil
}

// GetStudent loads a student with its ledger.
func (s *Store) GetStudent(ctx context.Context, id attendance.StudentID) (*attendance.Student, error) {
	var row studentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		"SELECT id, name, batch, attendance_json, created_at, updated_at FROM students WHERE id = ?",
	), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attendance.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	student, err := row.toStudent()
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// SaveStudent inserts the student or overwrites it, ledger included.
func (s *Store) SaveStudent(ctx context.Context, st attendance.Student) error {
	ledger := st.Attendance
	if ledger == nil {
		ledger = []attendance.LedgerEntry{}
	}
	ledgerJSON, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	now := time.Now().UTC()
	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query := `
		INSERT INTO students (id, name, batch, attendance_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			batch = excluded.batch,
			attendance_json = excluded.attendance_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query),
		string(st.ID),
		st.Name,
		string(st.Batch),
		string(ledgerJSON),
		createdAt.UTC().Format(time.RFC3339),
		updatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

// ListStudents returns the students of batches ordered by name.
func (s *Store) ListStudents(ctx context.Context, batches ...attendance.Batch) ([]attendance.Student, error) {
	if len(batches) == 0 {
		return nil, nil
	}
	names := make([]string, len(batches))
	for i, b := range batches {
		names[i] = string(b)
	}

	query, args, err := sqlx.In(
		"SELECT id, name, batch, attendance_json, created_at, updated_at FROM students WHERE batch IN (?) ORDER BY name, id",
		names,
	)
	if err != nil {
		return nil, err
	}

	var rows []studentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	students := make([]attendance.Student, 0, len(rows))
	for _, r := range rows {
		st, err := r.toStudent()
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, nil
}

// =============================================================================
// INDEX STORE (attendance.IndexStore interface)
// =============================================================================

type indexRow struct {
	ID        string `db:"id"`
	StudentID string `db:"student_id"`
	TeacherID string `db:"teacher_id"`
	Batch     string `db:"batch"`
	DayAt     int64  `db:"day_at"`
	Status    string `db:"status"`
	Notes     string `db:"notes"`
	CreatedAt string `db:"created_at"`
}

func (r indexRow) toRecord() attendance.IndexRecord {
	return attendance.IndexRecord{
		ID:        r.ID,
		StudentID: attendance.StudentID(r.StudentID),
		TeacherID: attendance.TeacherID(r.TeacherID),
		Batch:     attendance.Batch(r.Batch),
		Day:       attendance.DayOf(time.Unix(r.DayAt, 0).UTC()),
		Status:    attendance.Status(r.Status),
		Notes:     r.Notes,
	}
}

// ReplaceDay deletes the (batch, day) window, then bulk-inserts records.
func (s *Store) ReplaceDay(ctx context.Context, batch attendance.Batch, day attendance.Day, records []attendance.IndexRecord) error {
	w := day.Window()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		"DELETE FROM attendance_index WHERE batch = ? AND day_at >= ? AND day_at <= ?",
	), string(batch), w.Start.Unix(), w.End.Unix())
	if err != nil {
		return fmt.Errorf("failed to clear index window: %w", err)
	}
	return s.InsertMany(ctx, records)
}

// InsertMany bulk-inserts index records in one statement.
func (s *Store) InsertMany(ctx context.Context, records []attendance.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	createdAt := time.Now().UTC().Format(time.RFC3339)
	rows := make([]indexRow, len(records))
	for i, r := range records {
		rows[i] = indexRow{
			ID:        r.ID,
			StudentID: string(r.StudentID),
			TeacherID: string(r.TeacherID),
			Batch:     string(r.Batch),
			DayAt:     r.Day.Window().Start.Unix(),
			Status:    string(r.Status),
			Notes:     r.Notes,
			CreatedAt: createdAt,
		}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO attendance_index
		(id, student_id, teacher_id, batch, day_at, status, notes, created_at)
		VALUES (:id, :student_id, :teacher_id, :batch, :day_at, :status, :notes, :created_at)
	`, rows)
	if err != nil {
		return fmt.Errorf("failed to insert index records: %w", err)
	}
	return nil
}

// FindByBatchDay returns the records of the (batch, day) window.
func (s *Store) FindByBatchDay(ctx context.Context, batch attendance.Batch, day attendance.Day) ([]attendance.IndexRecord, error) {
	w := day.Window()
	return s.queryIndex(ctx,
		"SELECT * FROM attendance_index WHERE batch = ? AND day_at >= ? AND day_at <= ? ORDER BY student_id",
		string(batch), w.Start.Unix(), w.End.Unix(),
	)
}

// FindByStudentRange returns a student's records in [from, to], newest first.
func (s *Store) FindByStudentRange(ctx context.Context, student attendance.StudentID, from, to attendance.Day) ([]attendance.IndexRecord, error) {
	w := attendance.Span(from, to)
	return s.queryIndex(ctx,
		"SELECT * FROM attendance_index WHERE student_id = ? AND day_at >= ? AND day_at <= ? ORDER BY day_at DESC, batch",
		string(student), w.Start.Unix(), w.End.Unix(),
	)
}

func (s *Store) queryIndex(ctx context.Context, query string, args ...any) ([]attendance.IndexRecord, error) {
	var rows []indexRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	records := make([]attendance.IndexRecord, len(rows))
	for i, r := range rows {
		records[i] = r.toRecord()
	}
	return records, nil
}

// Reset deletes all data. Used by tests and dev tooling.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM attendance_index; DELETE FROM students;")
	return err
}
