/*
Package attendance implements daily attendance marking for batch-based cohorts.

PURPOSE:
  Teachers mark students present, absent or late for a calendar day. Every
  student carries an embedded attendance ledger (the system of record). A
  secondary index keyed by (batch, day, student) serves cross-student
  queries and is rebuilt wholesale for a (batch, day) on every submission.

COMPONENTS:
  ledger.go:  UpsertDay / FindDay on a student's embedded ledger
  engine.go:  Engine, applies a submission and rebuilds the index window
  query.go:   QueryService, read side (student history, day snapshot, month)
  summary.go: Monthly rollups with decimal attendance rates
  store.go:   Persistence interfaces (StudentStore, IndexStore)

CONSISTENCY:
  The ledger and the index are not written atomically. The ledger wins; the
  index is a projection that can be re-derived at any time with RebuildIndex
  or by re-running the same submission.

SEE ALSO:
  - attendance/store: in-memory stores
  - store/sqlstore: SQLite / PostgreSQL stores
  - api: HTTP surface
*/
package attendance

import (
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	StudentID string
	TeacherID string
)

// =============================================================================
// BATCH - Cohort name
// =============================================================================

// Batch is a cohort name. The set of valid batches is deployment config.
type Batch string

// DefaultBatches is the batch set used when none is configured.
var DefaultBatches = []Batch{"Udbhav", "Samarth", "Prakhar"}

// BatchSet is a set of batches.
type BatchSet map[Batch]struct{}

// NewBatchSet builds a set from a list.
func NewBatchSet(batches ...Batch) BatchSet {
	s := make(BatchSet, len(batches))
	for _, b := range batches {
		s[b] = struct{}{}
	}
	return s
}

// ParseBatches splits a comma-separated list, dropping blanks.
func ParseBatches(s string) []Batch {
	var out []Batch
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, Batch(p))
		}
	}
	return out
}

func (s BatchSet) Has(b Batch) bool {
	_, ok := s[b]
	return ok
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"

	// StatusUnmarked is a read-side sentinel. It is never stored.
	StatusUnmarked Status = "unmarked"
)

// Valid reports whether s can be written to a ledger.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}

// =============================================================================
// STUDENT - Aggregate owning the ledger
// =============================================================================

// LedgerEntry is one calendar day of a student's attendance.
type LedgerEntry struct {
	Day      Day       `json:"day"`
	Status   Status    `json:"status"`
	MarkedBy TeacherID `json:"marked_by"`
}

// Student is the aggregate that exclusively owns its attendance ledger.
type Student struct {
	ID         StudentID
	Name       string
	Batch      Batch
	Attendance []LedgerEntry
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// INDEX RECORD - Derived projection row
// =============================================================================

// IndexRecord is one row of the (batch, day, student) index.
type IndexRecord struct {
	ID        string
	StudentID StudentID
	TeacherID TeacherID
	Batch     Batch
	Day       Day
	Status    Status
	Notes     string
}

// =============================================================================
// SUBMISSION - Input to the engine
// =============================================================================

// Mark is one student's status inside a submission.
type Mark struct {
	StudentID StudentID
	Status    Status
	Notes     string
}

// Submission is a teacher's marks for one batch on one day.
type Submission struct {
	Batch     Batch
	Day       Day
	TeacherID TeacherID
	Records   []Mark
}

// ItemResult is the outcome of one Mark. Name and Status are set on success.
type ItemResult struct {
	StudentID StudentID
	Success   bool
	Message   string
	Name      string
	Status    Status
	Err       error
}

// Result aggregates a submission. Items always has one element per input
// record, in input order.
type Result struct {
	Items      []ItemResult
	Count      int
	IndexStale bool
}
