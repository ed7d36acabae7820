package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

// outageIndex fails ReplaceDay while down is set.
type outageIndex struct {
	*store.Index
	down bool
}

func (o *outageIndex) ReplaceDay(ctx context.Context, batch attendance.Batch, day attendance.Day, records []attendance.IndexRecord) error {
	if o.down {
		return errors.New("index unavailable")
	}
	return o.Index.ReplaceDay(ctx, batch, day, records)
}

func TestIndexRepairScheduler_RunOnceRepairsStaleWindows(t *testing.T) {
	// GIVEN: A mark with notes on a healthy window, and a mark written while the index was down
	ctx := context.Background()
	students := store.NewStudents()
	idx := &outageIndex{Index: store.NewIndex()}
	engine := attendance.NewEngine(students, idx, attendance.NewBatchSet(attendance.DefaultBatches...))
	for _, s := range []attendance.Student{
		{ID: "S1", Name: "Asha", Batch: "Udbhav"},
		{ID: "X1", Name: "Zoya", Batch: "Samarth"},
	} {
		require.NoError(t, students.SaveStudent(ctx, s))
	}
	p := attendance.Principal{TeacherID: "t-1", Batches: attendance.DefaultBatches}
	day := attendance.NewDay(2024, time.March, 1)

	_, err := engine.Submit(ctx, p, attendance.Submission{Batch: "Samarth", Day: day, TeacherID: "t-1",
		Records: []attendance.Mark{{StudentID: "X1", Status: attendance.StatusLate, Notes: "bus delayed"}}})
	require.NoError(t, err)

	idx.down = true
	res, err := engine.Submit(ctx, p, attendance.Submission{Batch: "Udbhav", Day: day, TeacherID: "t-1",
		Records: []attendance.Mark{{StudentID: "S1", Status: attendance.StatusPresent}}})
	require.NoError(t, err)
	require.True(t, res.IndexStale)

	s := NewIndexRepairScheduler(engine, nil)

	// WHEN: Repairing while the index is still down
	assert.Equal(t, 0, s.RunOnce(ctx))
	assert.Len(t, engine.StaleWindows(), 1)

	// AND: Again after it recovers
	idx.down = false
	assert.Equal(t, 1, s.RunOnce(ctx))

	// THEN: The stale window is rebuilt and the healthy one is untouched
	assert.Empty(t, engine.StaleWindows())
	udbhav, err := idx.FindByBatchDay(ctx, "Udbhav", day)
	require.NoError(t, err)
	require.Len(t, udbhav, 1)
	assert.Equal(t, attendance.StudentID("S1"), udbhav[0].StudentID)

	samarth, err := idx.FindByBatchDay(ctx, "Samarth", day)
	require.NoError(t, err)
	require.Len(t, samarth, 1)
	assert.Equal(t, "bus delayed", samarth[0].Notes)

	// Nothing left to do
	assert.Equal(t, 0, s.RunOnce(ctx))
}

func TestIndexRepairScheduler_DisabledDoesNotStart(t *testing.T) {
	ts := newTestServer(t)
	s := NewIndexRepairScheduler(ts.engine, nil)
	s.CheckInterval = 0

	s.Start()
	assert.Nil(t, s.ticker)
	s.Stop()
}

func TestIndexRepairScheduler_StartStop(t *testing.T) {
	ts := newTestServer(t)
	s := NewIndexRepairScheduler(ts.engine, nil)
	s.CheckInterval = time.Hour

	s.Start()
	s.Start()
	assert.NotNil(t, s.ticker)
	s.Stop()
	assert.Nil(t, s.ticker)
}
