/*
store.go - Persistence interfaces

KEY INTERFACES:
  StudentStore: Student aggregates with their embedded ledgers (system of record)
  IndexStore:   (batch, day, student) projection, replaced a day at a time

IMPLEMENTATIONS:
  - attendance/store/memory.go: In-memory for testing and dev
  - store/sqlstore/sqlstore.go: SQLite / PostgreSQL

NO LOCKING:
  SaveStudent is a plain overwrite of the aggregate, ledger included. Two
  concurrent submissions that touch the same student resolve
  last-write-wins on the whole aggregate: when they mark different days,
  the one that saves first loses its entry. Callers that need both must
  serialize submissions per student.

INDEX WINDOW:
  ReplaceDay deletes every record of the batch inside day.Window() and then
  inserts the new set. The two steps are separate writes and a reader can
  observe an empty window between them. The store enforces no uniqueness.
*/
package attendance

import "context"

// StudentStore persists Student aggregates.
type StudentStore interface {
	// GetStudent returns ErrStudentNotFound if id does not resolve.
	GetStudent(ctx context.Context, id StudentID) (*Student, error)

	// SaveStudent creates or overwrites the student, ledger included.
	SaveStudent(ctx context.Context, s Student) error

	// ListStudents returns every student in any of batches, ordered by name.
	ListStudents(ctx context.Context, batches ...Batch) ([]Student, error)
}

// IndexStore persists the derived attendance index.
type IndexStore interface {
	// ReplaceDay deletes the (batch, day) window and inserts records.
	ReplaceDay(ctx context.Context, batch Batch, day Day, records []IndexRecord) error

	// FindByBatchDay returns the records of the (batch, day) window.
	FindByBatchDay(ctx context.Context, batch Batch, day Day) ([]IndexRecord, error)

	// FindByStudentRange returns a student's records in [from, to], newest first.
	FindByStudentRange(ctx context.Context, student StudentID, from, to Day) ([]IndexRecord, error)
}
