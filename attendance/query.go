/*
query.go - Read side of attendance

  HistoryByStudent:   one student's ledger, newest first, optionally capped
  SnapshotByBatchDay: every current student of the batches with their status
                      for the day, StatusUnmarked when no entry exists
  HistoryByMonth:     flattened ledger entries of a batch set within a month

All reads go to the ledger. The index is exposed separately through
IndexStore for callers that want the projection.
*/
package attendance

import (
	"context"
	"sort"
	"time"
)

// DayStatus is one row of a day snapshot.
type DayStatus struct {
	StudentID StudentID
	Name      string
	Batch     Batch
	Status    Status
}

// MonthEntry is one row of a month history.
type MonthEntry struct {
	Day         Day
	StudentID   StudentID
	StudentName string
	Batch       Batch
	Status      Status
	MarkedBy    TeacherID
}

// QueryService answers attendance reads.
type QueryService struct {
	students StudentStore
	index    IndexStore
}

func NewQueryService(students StudentStore, index IndexStore) *QueryService {
	return &QueryService{students: students, index: index}
}

// Student returns the student aggregate.
func (q *QueryService) Student(ctx context.Context, id StudentID) (*Student, error) {
	return q.students.GetStudent(ctx, id)
}

// Students lists the current students of batches.
func (q *QueryService) Students(ctx context.Context, batches ...Batch) ([]Student, error) {
	return q.students.ListStudents(ctx, batches...)
}

// HistoryByStudent returns the ledger newest first. limit <= 0 means all.
func (q *QueryService) HistoryByStudent(ctx context.Context, id StudentID, limit int) ([]LedgerEntry, error) {
	s, err := q.students.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	entries := SortNewestFirst(s.Attendance)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// SnapshotByBatchDay returns one row per current student of batches.
func (q *QueryService) SnapshotByBatchDay(ctx context.Context, day Day, batches ...Batch) ([]DayStatus, error) {
	students, err := q.students.ListStudents(ctx, batches...)
	if err != nil {
		return nil, err
	}
	out := make([]DayStatus, 0, len(students))
	for _, s := range students {
		row := DayStatus{StudentID: s.ID, Name: s.Name, Batch: s.Batch, Status: StatusUnmarked}
		if entry := FindDay(s.Attendance, day); entry != nil {
			row.Status = entry.Status
		}
		out = append(out, row)
	}
	return out, nil
}

// HistoryByMonth returns every entry of the month across batches, newest
// day first. Entries of the same day keep student order.
func (q *QueryService) HistoryByMonth(ctx context.Context, year int, month time.Month, batches ...Batch) ([]MonthEntry, error) {
	students, err := q.students.ListStudents(ctx, batches...)
	if err != nil {
		return nil, err
	}
	from, to := StartOfMonth(year, month), EndOfMonth(year, month)

	var out []MonthEntry
	for _, s := range students {
		for _, e := range EntriesBetween(s.Attendance, from, to) {
			out = append(out, MonthEntry{
				Day:         e.Day,
				StudentID:   s.ID,
				StudentName: s.Name,
				Batch:       s.Batch,
				Status:      e.Status,
				MarkedBy:    e.MarkedBy,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Day.After(out[j].Day)
	})
	return out, nil
}

// IndexByBatchDay reads the index window.
func (q *QueryService) IndexByBatchDay(ctx context.Context, batch Batch, day Day) ([]IndexRecord, error) {
	return q.index.FindByBatchDay(ctx, batch, day)
}

// IndexByStudent reads a student's index records in [from, to].
func (q *QueryService) IndexByStudent(ctx context.Context, id StudentID, from, to Day) ([]IndexRecord, error) {
	return q.index.FindByStudentRange(ctx, id, from, to)
}
