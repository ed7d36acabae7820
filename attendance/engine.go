/*
engine.go - Applies an attendance submission to ledgers and the index

PROCESSING ORDER:
  1. Reject malformed submissions (missing batch/day/teacher) as a whole.
  2. Reject the whole call if the caller may not act on the batch.
  3. For each record, in input order and one at a time:
       validate → load student → check batch → UpsertDay → SaveStudent
     Any failure is recorded on that item and processing moves on.
  4. Replace the index window for (batch, day) with one record per success.
     When no record succeeded the window is left as it was, so it keeps the
     last successful reconciliation.

FAILURE POLICY:
  Ledger writes are never rolled back. If step 4 fails the error is logged,
  counted and reported as Result.IndexStale, and the window is remembered as
  stale. Running the same submission again, or RebuildIndex, repairs it and
  clears the mark. StaleWindows lists what is still pending.

REBUILD:
  RebuildIndex derives the window from the ledgers. Notes live only in the
  index, so a current record whose status and teacher still match the
  ledger keeps its ID and notes.

RACE WINDOW:
  Step 4 is delete-then-insert. A concurrent reader of the index can see an
  empty window for (batch, day) while it runs.
*/
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/attendance-engine/metrics"
)

// MessageMarked is the per-item message of a successful mark.
const MessageMarked = "Attendance marked successfully"

// Engine reconciles submissions into the ledger and the index.
type Engine struct {
	students StudentStore
	index    IndexStore
	batches  BatchSet
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time

	staleMu sync.Mutex
	stale   map[IndexWindow]struct{}
}

// IndexWindow identifies the index records of one batch on one day.
type IndexWindow struct {
	Batch Batch
	Day   Day
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator replaces the index record ID generator.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) { e.newID = fn }
}

// WithClock replaces the clock used for UpdatedAt.
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) { e.now = fn }
}

// NewEngine creates an engine. batches is the set of known batch names.
func NewEngine(students StudentStore, index IndexStore, batches BatchSet, opts ...EngineOption) *Engine {
	e := &Engine{
		students: students,
		index:    index,
		batches:  batches,
		logger:   slog.Default(),
		newID:    uuid.NewString,
		now:      time.Now,
		stale:    make(map[IndexWindow]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "reconcile"))
	return e
}

// Submit applies sub on behalf of p. A non-nil error means the whole call was
// rejected and nothing was written.
func (e *Engine) Submit(ctx context.Context, p Principal, sub Submission) (Result, error) {
	if err := e.validate(sub); err != nil {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return Result{}, err
	}
	if err := p.Authorize(sub.Batch); err != nil {
		metrics.Submissions.WithLabelValues("forbidden").Inc()
		return Result{}, err
	}
	metrics.Submissions.WithLabelValues("accepted").Inc()

	result := Result{Items: make([]ItemResult, 0, len(sub.Records))}
	var marked []Mark

	for _, rec := range sub.Records {
		item := e.apply(ctx, sub, rec)
		if item.Success {
			result.Count++
			marked = append(marked, rec)
		}
		result.Items = append(result.Items, item)
	}

	if len(marked) > 0 {
		if err := e.replaceDay(ctx, sub.Batch, sub.Day, e.indexRecords(sub, marked)); err != nil {
			result.IndexStale = true
		}
	}

	e.logger.InfoContext(ctx, "attendance submitted",
		slog.String("batch", string(sub.Batch)),
		slog.String("day", sub.Day.String()),
		slog.String("teacher", string(sub.TeacherID)),
		slog.Int("records", len(sub.Records)),
		slog.Int("marked", result.Count),
		slog.Bool("index_stale", result.IndexStale),
	)
	return result, nil
}

func (e *Engine) validate(sub Submission) error {
	switch {
	case sub.Batch == "":
		return &ValidationError{Field: "batch", Reason: "required"}
	case sub.Day.IsZero():
		return &ValidationError{Field: "day", Reason: "required"}
	case sub.TeacherID == "":
		return &ValidationError{Field: "teacherId", Reason: "required"}
	case len(sub.Records) == 0:
		return &ValidationError{Field: "records", Reason: "at least one record is required"}
	}
	if !e.batches.Has(sub.Batch) {
		return fmt.Errorf("%w: %q", ErrUnknownBatch, sub.Batch)
	}
	return nil
}

// apply processes one record. It never returns an error; failures are
// carried on the item.
func (e *Engine) apply(ctx context.Context, sub Submission, rec Mark) ItemResult {
	item := ItemResult{StudentID: rec.StudentID}
	fail := func(outcome string, err error) ItemResult {
		metrics.Marks.WithLabelValues(outcome).Inc()
		item.Err = err
		item.Message = err.Error()
		return item
	}

	if rec.StudentID == "" {
		return fail("invalid", ErrMissingStudentID)
	}
	if !rec.Status.Valid() {
		return fail("invalid", fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status))
	}

	student, err := e.students.GetStudent(ctx, rec.StudentID)
	if err != nil {
		if IsNotFound(err) {
			return fail("not_found", ErrStudentNotFound)
		}
		return fail("persistence", &PersistenceError{StudentID: rec.StudentID, Err: err})
	}
	if student.Batch != sub.Batch {
		return fail("batch_mismatch", ErrBatchMismatch)
	}

	student.Attendance = UpsertDay(student.Attendance, sub.Day, rec.Status, sub.TeacherID)
	student.UpdatedAt = e.now().UTC()
	if err := e.students.SaveStudent(ctx, *student); err != nil {
		e.logger.WarnContext(ctx, "ledger write failed",
			slog.String("student", string(rec.StudentID)),
			slog.String("error", err.Error()),
		)
		return fail("persistence", &PersistenceError{StudentID: rec.StudentID, Err: err})
	}

	metrics.Marks.WithLabelValues("ok").Inc()
	item.Success = true
	item.Message = MessageMarked
	item.Name = student.Name
	item.Status = rec.Status
	return item
}

// indexRecords builds one record per marked student. A student marked twice
// in one submission keeps only its last mark, matching the ledger.
func (e *Engine) indexRecords(sub Submission, marked []Mark) []IndexRecord {
	last := make(map[StudentID]int, len(marked))
	for i, m := range marked {
		last[m.StudentID] = i
	}
	records := make([]IndexRecord, 0, len(last))
	for i, m := range marked {
		if last[m.StudentID] != i {
			continue
		}
		records = append(records, IndexRecord{
			ID:        e.newID(),
			StudentID: m.StudentID,
			TeacherID: sub.TeacherID,
			Batch:     sub.Batch,
			Day:       sub.Day,
			Status:    m.Status,
			Notes:     m.Notes,
		})
	}
	return records
}

func (e *Engine) replaceDay(ctx context.Context, batch Batch, day Day, records []IndexRecord) error {
	start := time.Now()
	err := e.index.ReplaceDay(ctx, batch, day, records)
	metrics.IndexRebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IndexRebuildFailures.Inc()
		rebuildErr := &IndexRebuildError{Batch: batch, Day: day, Err: err}
		e.logger.ErrorContext(ctx, "index rebuild failed",
			slog.String("batch", string(batch)),
			slog.String("day", day.String()),
			slog.String("error", err.Error()),
		)
		e.setStale(IndexWindow{Batch: batch, Day: day}, true)
		return rebuildErr
	}
	e.setStale(IndexWindow{Batch: batch, Day: day}, false)
	return nil
}

func (e *Engine) setStale(w IndexWindow, stale bool) {
	e.staleMu.Lock()
	defer e.staleMu.Unlock()
	if stale {
		e.stale[w] = struct{}{}
	} else {
		delete(e.stale, w)
	}
}

// StaleWindows returns the windows whose last replacement failed, oldest day
// first. The set is held in memory and starts empty on every process start.
func (e *Engine) StaleWindows() []IndexWindow {
	e.staleMu.Lock()
	out := make([]IndexWindow, 0, len(e.stale))
	for w := range e.stale {
		out = append(out, w)
	}
	e.staleMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Batch < out[j].Batch
	})
	return out
}

// RebuildIndex re-derives the (batch, day) window from the ledgers of the
// batch's current students. It returns the number of records written.
func (e *Engine) RebuildIndex(ctx context.Context, batch Batch, day Day) (int, error) {
	if !e.batches.Has(batch) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBatch, batch)
	}
	if day.IsZero() {
		return 0, &ValidationError{Field: "day", Reason: "required"}
	}

	students, err := e.students.ListStudents(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}

	current, err := e.index.FindByBatchDay(ctx, batch, day)
	if err != nil {
		e.logger.WarnContext(ctx, "rebuild without current window",
			slog.String("batch", string(batch)),
			slog.String("day", day.String()),
			slog.String("error", err.Error()),
		)
	}
	prev := make(map[StudentID]IndexRecord, len(current))
	for _, r := range current {
		prev[r.StudentID] = r
	}

	var records []IndexRecord
	for _, s := range students {
		entry := FindDay(s.Attendance, day)
		if entry == nil {
			continue
		}
		rec := IndexRecord{
			ID:        e.newID(),
			StudentID: s.ID,
			TeacherID: entry.MarkedBy,
			Batch:     batch,
			Day:       day,
			Status:    entry.Status,
		}
		if old, ok := prev[s.ID]; ok && old.Status == entry.Status && old.TeacherID == entry.MarkedBy {
			rec.ID = old.ID
			rec.Notes = old.Notes
		}
		records = append(records, rec)
	}

	if err := e.replaceDay(ctx, batch, day, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
