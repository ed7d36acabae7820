// Package store provides in-memory attendance stores.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STUDENT STORE - system of record (for testing/dev)
// =============================================================================

type Students struct {
	mu       sync.RWMutex
	students map[attendance.StudentID]attendance.Student
}

func NewStudents() *Students {
	return &Students{students: make(map[attendance.StudentID]attendance.Student)}
}

func (m *Students) GetStudent(_ context.Context, id attendance.StudentID) (*attendance.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return nil, attendance.ErrStudentNotFound
	}
	cp := cloneStudent(s)
	return &cp, nil
}

// SaveStudent stores a copy so callers cannot mutate the stored ledger.
func (m *Students) SaveStudent(_ context.Context, s attendance.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = cloneStudent(s)
	return nil
}

func (m *Students) ListStudents(_ context.Context, batches ...attendance.Batch) ([]attendance.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := attendance.NewBatchSet(batches...)
	var result []attendance.Student
	for _, s := range m.students {
		if want.Has(s.Batch) {
			result = append(result, cloneStudent(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func cloneStudent(s attendance.Student) attendance.Student {
	s.Attendance = append([]attendance.LedgerEntry(nil), s.Attendance...)
	return s
}

// =============================================================================
// MEMORY INDEX STORE - derived projection
// =============================================================================

// Index keeps records in insertion order. It enforces no uniqueness.
type Index struct {
	mu      sync.RWMutex
	records []attendance.IndexRecord
}

func NewIndex() *Index {
	return &Index{}
}

// ReplaceDay deletes then inserts under two separate locks, so a concurrent
// reader can see the window empty.
func (m *Index) ReplaceDay(ctx context.Context, batch attendance.Batch, day attendance.Day, records []attendance.IndexRecord) error {
	m.deleteWindow(batch, day.Window())
	return m.InsertMany(ctx, records)
}

func (m *Index) deleteWindow(batch attendance.Batch, w attendance.Window) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, r := range m.records {
		if r.Batch == batch && w.Contains(r.Day.Time()) {
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
}

// InsertMany appends records.
func (m *Index) InsertMany(_ context.Context, records []attendance.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *Index) FindByBatchDay(_ context.Context, batch attendance.Batch, day attendance.Day) ([]attendance.IndexRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := day.Window()
	var result []attendance.IndexRecord
	for _, r := range m.records {
		if r.Batch == batch && w.Contains(r.Day.Time()) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Index) FindByStudentRange(_ context.Context, student attendance.StudentID, from, to attendance.Day) ([]attendance.IndexRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := attendance.Span(from, to)
	var result []attendance.IndexRecord
	for _, r := range m.records {
		if r.StudentID == student && w.Contains(r.Day.Time()) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Day.After(result[j].Day)
	})
	return result, nil
}

// Len returns the total record count.
func (m *Index) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
