package attendance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MonthlySummary rolls up one student's month.
type MonthlySummary struct {
	StudentID StudentID
	Name      string
	Batch     Batch
	Present   int
	Absent    int
	Late      int
	// Rate is (present + late) / marked days as a percentage with two
	// decimals. Zero when nothing was marked.
	Rate decimal.Decimal
}

// Marked is the number of days with any status.
func (s MonthlySummary) Marked() int { return s.Present + s.Absent + s.Late }

var hundred = decimal.NewFromInt(100)

// AttendanceRate computes the percentage of attended days.
func AttendanceRate(present, late, marked int) decimal.Decimal {
	if marked == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(present + late)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(marked))).
		Round(2)
}

// MonthSummary returns one summary per current student of batches, in
// student order. Students with no marks in the month are included.
func (q *QueryService) MonthSummary(ctx context.Context, year int, month time.Month, batches ...Batch) ([]MonthlySummary, error) {
	students, err := q.students.ListStudents(ctx, batches...)
	if err != nil {
		return nil, err
	}
	from, to := StartOfMonth(year, month), EndOfMonth(year, month)

	out := make([]MonthlySummary, 0, len(students))
	for _, s := range students {
		sum := MonthlySummary{StudentID: s.ID, Name: s.Name, Batch: s.Batch}
		for _, e := range EntriesBetween(s.Attendance, from, to) {
			switch e.Status {
			case StatusPresent:
				sum.Present++
			case StatusAbsent:
				sum.Absent++
			case StatusLate:
				sum.Late++
			}
		}
		sum.Rate = AttendanceRate(sum.Present, sum.Late, sum.Marked())
		out = append(out, sum)
	}
	return out, nil
}
