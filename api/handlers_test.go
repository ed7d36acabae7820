/*
handlers_test.go - HTTP tests for the attendance API

Tests for:
- Submission results, partial failures and the idempotent index
- 401/403/400 mapping for tokens, roles and batches
- Day snapshot, student history and admin endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testSecret = "test-secret"

type testServer struct {
	router   http.Handler
	auth     *Authenticator
	students *store.Students
	index    *store.Index
	engine   *attendance.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	students := store.NewStudents()
	index := store.NewIndex()
	batches := attendance.NewBatchSet(attendance.DefaultBatches...)
	engine := attendance.NewEngine(students, index, batches)
	auth := NewAuthenticator(testSecret)

	ts := &testServer{
		router:   NewRouter(NewHandler(students, index, engine, batches), auth, nil),
		auth:     auth,
		students: students,
		index:    index,
		engine:   engine,
	}
	for _, s := range []attendance.Student{
		{ID: "S1", Name: "Asha", Batch: "Udbhav"},
		{ID: "S2", Name: "Bilal", Batch: "Udbhav"},
		{ID: "S3", Name: "Chitra", Batch: "Udbhav"},
		{ID: "X1", Name: "Zoya", Batch: "Samarth"},
	} {
		require.NoError(t, students.SaveStudent(context.Background(), s))
	}
	return ts
}

func (ts *testServer) token(t *testing.T, role string, batches ...attendance.Batch) string {
	t.Helper()
	tok, err := ts.auth.Issue(attendance.Principal{TeacherID: "t-1", Role: role, Batches: batches}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func submitBody(batch, day string, records ...MarkDTO) SubmitAttendanceRequest {
	return SubmitAttendanceRequest{Batch: batch, Day: day, Records: records}
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmitAttendance_Success(t *testing.T) {
	// GIVEN: A teacher of Udbhav
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")

	// WHEN: Submitting three marks
	rec := ts.do(t, http.MethodPost, "/api/attendance", tok, submitBody("Udbhav", "2024-03-01",
		MarkDTO{StudentID: "S1", Status: "present"},
		MarkDTO{StudentID: "S2", Status: "absent"},
		MarkDTO{StudentID: "S3", Status: "late", Notes: "bus"},
	))

	// THEN: 200 with a result per record
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SubmitAttendanceResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.Results, 3)
	for _, r := range resp.Results {
		assert.True(t, r.Success)
		assert.Equal(t, attendance.MessageMarked, r.Message)
	}
	assert.Equal(t, "Chitra", resp.Results[2].Name)

	// AND: The index window holds exactly three records
	idx := ts.do(t, http.MethodGet, "/api/attendance/index?batch=Udbhav&day=2024-03-01", tok, nil)
	require.Equal(t, http.StatusOK, idx.Code)
	records := decode[[]IndexRecordDTO](t, idx)
	assert.Len(t, records, 3)
}

func TestSubmitAttendance_ResubmitKeepsSingleEntries(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")

	for _, status := range []string{"absent", "late"} {
		rec := ts.do(t, http.MethodPost, "/api/attendance", tok, submitBody("Udbhav", "2024-03-01",
			MarkDTO{StudentID: "S1", Status: "present"},
			MarkDTO{StudentID: "S2", Status: status},
		))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	s2, err := ts.students.GetStudent(context.Background(), "S2")
	require.NoError(t, err)
	require.Len(t, s2.Attendance, 1)
	assert.Equal(t, attendance.StatusLate, s2.Attendance[0].Status)
	assert.Equal(t, 2, ts.index.Len())
}

func TestSubmitAttendance_PartialFailuresStill200(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")

	rec := ts.do(t, http.MethodPost, "/api/attendance", tok, submitBody("Udbhav", "2024-03-01",
		MarkDTO{StudentID: "S1", Status: "PRESENT"},
		MarkDTO{StudentID: "ghost", Status: "present"},
		MarkDTO{StudentID: "X1", Status: "present"},
		MarkDTO{StudentID: "", Status: "present"},
		MarkDTO{StudentID: "S2", Status: "excused"},
	))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SubmitAttendanceResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Results, 5)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, "student not found", resp.Results[1].Message)
	assert.Equal(t, "student not in this batch", resp.Results[2].Message)
	assert.Equal(t, "student id is required", resp.Results[3].Message)
	assert.False(t, resp.Results[4].Success)
}

func TestSubmitAttendance_ForbiddenBatch(t *testing.T) {
	// GIVEN: A teacher permitted only Udbhav
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")

	// WHEN: Submitting for Samarth
	rec := ts.do(t, http.MethodPost, "/api/attendance", tok, submitBody("Samarth", "2024-03-01",
		MarkDTO{StudentID: "X1", Status: "present"},
	))

	// THEN: 403 and nothing changed
	assert.Equal(t, http.StatusForbidden, rec.Code)
	x1, err := ts.students.GetStudent(context.Background(), "X1")
	require.NoError(t, err)
	assert.Empty(t, x1.Attendance)
	assert.Equal(t, 0, ts.index.Len())
}

func TestSubmitAttendance_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", attendance.DefaultBatches...)

	tests := []struct {
		name string
		body any
	}{
		{"missing batch", submitBody("", "2024-03-01", MarkDTO{StudentID: "S1", Status: "present"})},
		{"missing day", submitBody("Udbhav", "", MarkDTO{StudentID: "S1", Status: "present"})},
		{"empty records", submitBody("Udbhav", "2024-03-01")},
		{"bad day", submitBody("Udbhav", "03/01/2024", MarkDTO{StudentID: "S1", Status: "present"})},
		{"unknown batch", submitBody("Nope", "2024-03-01", MarkDTO{StudentID: "S1", Status: "present"})},
		{"not json", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/attendance", tok, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 0, ts.index.Len())
}

func TestSubmitAttendance_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")

	rec := ts.do(t, http.MethodPost, "/api/attendance", tok, submitBody("Udbhav", "2024-03-01",
		MarkDTO{StudentID: "S1", Status: "present", Notes: strings.Repeat("x", MaxBodyBytes)},
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	s1, err := ts.students.GetStudent(context.Background(), "S1")
	require.NoError(t, err)
	assert.Empty(t, s1.Attendance)
}

func TestAdmin_CreateStudentBodyTooLarge(t *testing.T) {
	ts := newTestServer(t)
	adminTok := ts.token(t, RoleAdmin, attendance.DefaultBatches...)

	rec := ts.do(t, http.MethodPost, "/api/admin/students", adminTok,
		CreateStudentRequest{ID: "S9", Name: strings.Repeat("n", MaxBodyBytes), Batch: "Udbhav"})

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAuth_MissingOrInvalidToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/students", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/students", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewAuthenticator("other-secret").Issue(attendance.Principal{TeacherID: "t-1"}, time.Hour)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodGet, "/api/students", other, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := ts.auth.Issue(attendance.Principal{TeacherID: "t-1"}, -time.Minute)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodGet, "/api/students", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_IssueParseRoundTrip(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	want := attendance.Principal{TeacherID: "t-9", Role: RoleAdmin, Batches: []attendance.Batch{"Udbhav", "Prakhar"}}

	tok, err := auth.Issue(want, time.Hour)
	require.NoError(t, err)
	got, err := auth.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHealthz_NoTokenNeeded(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// READS
// =============================================================================

func TestGetAttendanceByDate_IncludesUnmarked(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/attendance", tok,
		submitBody("Udbhav", "2024-03-01", MarkDTO{StudentID: "S2", Status: "present"})).Code)

	rec := ts.do(t, http.MethodGet, "/api/attendance/date?day=2024-03-01&batch=Udbhav", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]DayStatusDTO](t, rec)
	require.Len(t, rows, 3)
	assert.Equal(t, "unmarked", rows[0].Status)
	assert.Equal(t, "present", rows[1].Status)
	assert.Equal(t, "unmarked", rows[2].Status)
}

func TestGetAttendanceByDate_BatchChecks(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")

	rec := ts.do(t, http.MethodGet, "/api/attendance/date?day=2024-03-01&batch=Samarth", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/attendance/date?day=2024-03-01&batch=Nope", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/attendance/date?day=yesterday", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAttendanceByMonth(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")
	for _, day := range []string{"2024-02-29", "2024-03-01", "2024-03-31", "2024-04-01"} {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/attendance", tok,
			submitBody("Udbhav", day, MarkDTO{StudentID: "S1", Status: "present"})).Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/attendance/month?month=2024-03", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]MonthEntryDTO](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-03-31", entries[0].Day)
	assert.Equal(t, "2024-03-01", entries[1].Day)

	bad := ts.do(t, http.MethodGet, "/api/attendance/month?month=March", tok, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestGetMonthSummary(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")
	for day, status := range map[string]string{"2024-03-01": "present", "2024-03-02": "absent"} {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/attendance", tok,
			submitBody("Udbhav", day, MarkDTO{StudentID: "S1", Status: status})).Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/attendance/month/summary?month=2024-03&batch=Udbhav", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	sums := decode[[]MonthSummaryDTO](t, rec)
	require.Len(t, sums, 3)
	assert.Equal(t, "Asha", sums[0].Name)
	assert.Equal(t, 2, sums[0].Marked)
	assert.Equal(t, "50", sums[0].Rate.String())
}

func TestGetStudentAttendance_NewestFirstWithLimit(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")
	for _, day := range []string{"2024-03-02", "2024-03-01", "2024-03-03"} {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/attendance", tok,
			submitBody("Udbhav", day, MarkDTO{StudentID: "S1", Status: "present"})).Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/students/S1/attendance?limit=2", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StudentAttendanceDTO](t, rec)
	assert.Equal(t, "Asha", resp.Name)
	require.Len(t, resp.Attendance, 2)
	assert.Equal(t, "2024-03-03", resp.Attendance[0].Day)
	assert.Equal(t, "2024-03-02", resp.Attendance[1].Day)
	assert.Equal(t, "t-1", resp.Attendance[0].MarkedBy)
}

func TestGetStudentAttendance_NotFoundAndForbidden(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")

	rec := ts.do(t, http.MethodGet, "/api/students/ghost/attendance", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/students/X1/attendance", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetStudentIndex_Range(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Udbhav")
	for _, day := range []string{"2024-03-01", "2024-03-05", "2024-03-09"} {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/attendance", tok,
			submitBody("Udbhav", day, MarkDTO{StudentID: "S1", Status: "late", Notes: "traffic"})).Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/students/S1/index?from=2024-03-01&to=2024-03-05", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]IndexRecordDTO](t, rec)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-03-05", records[0].Day)
	assert.Equal(t, "traffic", records[0].Notes)

	bad := ts.do(t, http.MethodGet, "/api/students/S1/index?from=2024-03-05&to=2024-03-01", tok, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestListStudents_DefaultsToPermittedBatches(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", "Samarth")

	rec := ts.do(t, http.MethodGet, "/api/students", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	students := decode[[]StudentDTO](t, rec)
	require.Len(t, students, 1)
	assert.Equal(t, "Zoya", students[0].Name)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAdmin_RequiresRole(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "teacher", attendance.DefaultBatches...)

	rec := ts.do(t, http.MethodPost, "/api/admin/students", tok, CreateStudentRequest{ID: "S9", Name: "New", Batch: "Udbhav"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/index/rebuild", tok, RebuildIndexRequest{Batch: "Udbhav", Day: "2024-03-01"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_CreateStudentKeepsLedger(t *testing.T) {
	ts := newTestServer(t)
	teacherTok := ts.token(t, "teacher", "Udbhav")
	adminTok := ts.token(t, RoleAdmin, attendance.DefaultBatches...)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/attendance", teacherTok,
		submitBody("Udbhav", "2024-03-01", MarkDTO{StudentID: "S1", Status: "present"})).Code)

	rec := ts.do(t, http.MethodPost, "/api/admin/students", adminTok, CreateStudentRequest{ID: "S1", Name: "Asha K", Batch: "Udbhav"})

	require.Equal(t, http.StatusCreated, rec.Code)
	s1, err := ts.students.GetStudent(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "Asha K", s1.Name)
	assert.Len(t, s1.Attendance, 1)

	bad := ts.do(t, http.MethodPost, "/api/admin/students", adminTok, CreateStudentRequest{ID: "S9", Name: "X", Batch: "Nope"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	missing := ts.do(t, http.MethodPost, "/api/admin/students", adminTok, CreateStudentRequest{ID: "S9"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestAdmin_RebuildIndexRestoresWindow(t *testing.T) {
	// GIVEN: Ledgers marked for a day but an empty index window
	ts := newTestServer(t)
	teacherTok := ts.token(t, "teacher", "Udbhav")
	adminTok := ts.token(t, RoleAdmin, attendance.DefaultBatches...)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/attendance", teacherTok, submitBody("Udbhav", "2024-03-01",
		MarkDTO{StudentID: "S1", Status: "present"},
		MarkDTO{StudentID: "S2", Status: "absent"},
	)).Code)
	day := attendance.NewDay(2024, time.March, 1)
	require.NoError(t, ts.index.ReplaceDay(context.Background(), "Udbhav", day, nil))

	// WHEN: Rebuilding the window
	rec := ts.do(t, http.MethodPost, "/api/admin/index/rebuild", adminTok, RebuildIndexRequest{Batch: "Udbhav", Day: "2024-03-01"})

	// THEN: The window is derived back from the ledgers
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RebuildIndexResponse](t, rec)
	assert.Equal(t, 2, resp.Records)
	assert.Equal(t, "2024-03-01", resp.Day)
	assert.Equal(t, 2, ts.index.Len())

	unknown := ts.do(t, http.MethodPost, "/api/admin/index/rebuild", adminTok, RebuildIndexRequest{Batch: "Nope", Day: "2024-03-01"})
	assert.Equal(t, http.StatusBadRequest, unknown.Code)
}
