/*
handlers.go - HTTP API handlers for attendance

ENDPOINTS:
  Attendance:
    POST   /api/attendance                    Submit marks for a batch and day
    GET    /api/attendance/date               Day snapshot (unmarked included)
    GET    /api/attendance/month              Flattened month history
    GET    /api/attendance/month/summary      Per-student month rollup
    GET    /api/attendance/index              Raw index window

  Students:
    GET    /api/students                      List students of permitted batches
    GET    /api/students/{id}/attendance      Ledger, newest first
    GET    /api/students/{id}/index           Index records in a day range

  Admin:
    POST   /api/admin/students                Create or rename a student
    POST   /api/admin/index/rebuild           Re-derive an index window from ledgers

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unknown batch
  - 413: Body larger than MaxBodyBytes
  - 401: Missing or invalid token (auth middleware)
  - 403: Batch outside the caller's permitted set
  - 404: Student not found
  - 500: Internal errors

  A submission that passes validation and authorization always answers 200
  with one result per record. Per-item failures are in results[i].success.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/attendance-engine/attendance"
)

// DefaultHistoryLimit caps student history when no limit is given.
const DefaultHistoryLimit = 30

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *attendance.Engine
	Query    *attendance.QueryService
	Students attendance.StudentStore
	Batches  attendance.BatchSet

	// HistoryLimit is used when a student history request has no limit.
	HistoryLimit int

	validate *validator.Validate
}

// NewHandler creates a handler over the given stores.
func NewHandler(students attendance.StudentStore, index attendance.IndexStore, engine *attendance.Engine, batches attendance.BatchSet) *Handler {
	return &Handler{
		Engine:       engine,
		Query:        attendance.NewQueryService(students, index),
		Students:     students,
		Batches:      batches,
		HistoryLimit: DefaultHistoryLimit,
		validate:     newValidator(),
	}
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// SubmitAttendance applies a teacher's marks.
func (h *Handler) SubmitAttendance(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req SubmitAttendanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}
	day, err := attendance.ParseDay(req.Day)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
		return
	}

	sub := attendance.Submission{
		Batch:     attendance.Batch(req.Batch),
		Day:       day,
		TeacherID: p.TeacherID,
		Records:   make([]attendance.Mark, len(req.Records)),
	}
	for i, rec := range req.Records {
		sub.Records[i] = attendance.Mark{
			StudentID: attendance.StudentID(strings.TrimSpace(rec.StudentID)),
			Status:    attendance.Status(strings.ToLower(strings.TrimSpace(rec.Status))),
			Notes:     rec.Notes,
		}
	}

	res, err := h.Engine.Submit(r.Context(), p, sub)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitResponse(res))
}

// GetAttendanceByDate returns every student of the batches with their status.
func (h *Handler) GetAttendanceByDate(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r, "day")
	if !ok {
		return
	}
	batches, ok := h.batchesParam(w, r)
	if !ok {
		return
	}

	rows, err := h.Query.SnapshotByBatchDay(r.Context(), day, batches...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attendance", err)
		return
	}

	dtos := make([]DayStatusDTO, len(rows))
	for i, row := range rows {
		dtos[i] = DayStatusDTO{
			StudentID: string(row.StudentID),
			Name:      row.Name,
			Batch:     string(row.Batch),
			Status:    string(row.Status),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAttendanceByMonth returns the month's entries, newest day first.
func (h *Handler) GetAttendanceByMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := attendance.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}
	batches, ok := h.batchesParam(w, r)
	if !ok {
		return
	}

	entries, err := h.Query.HistoryByMonth(r.Context(), year, month, batches...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attendance", err)
		return
	}

	dtos := make([]MonthEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = MonthEntryDTO{
			Day:         e.Day.String(),
			StudentID:   string(e.StudentID),
			StudentName: e.StudentName,
			Batch:       string(e.Batch),
			Status:      string(e.Status),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMonthSummary returns per-student counts and attendance rate.
func (h *Handler) GetMonthSummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := attendance.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}
	batches, ok := h.batchesParam(w, r)
	if !ok {
		return
	}

	sums, err := h.Query.MonthSummary(r.Context(), year, month, batches...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize attendance", err)
		return
	}

	dtos := make([]MonthSummaryDTO, len(sums))
	for i, s := range sums {
		dtos[i] = MonthSummaryDTO{
			StudentID: string(s.StudentID),
			Name:      s.Name,
			Batch:     string(s.Batch),
			Present:   s.Present,
			Absent:    s.Absent,
			Late:      s.Late,
			Marked:    s.Marked(),
			Rate:      s.Rate,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetIndexWindow returns the index records of one (batch, day).
func (h *Handler) GetIndexWindow(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r, "day")
	if !ok {
		return
	}
	batch := attendance.Batch(r.URL.Query().Get("batch"))
	if batch == "" {
		writeError(w, http.StatusBadRequest, "batch is required", nil)
		return
	}
	if !h.authorizeBatches(w, r, batch) {
		return
	}

	records, err := h.Query.IndexByBatchDay(r.Context(), batch, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read index", err)
		return
	}
	writeJSON(w, http.StatusOK, toIndexRecordDTOs(records))
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns the students of the requested (or all permitted) batches.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	batches, ok := h.batchesParam(w, r)
	if !ok {
		return
	}
	students, err := h.Query.Students(r.Context(), batches...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}
	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStudentAttendance returns a student's ledger newest first.
func (h *Handler) GetStudentAttendance(w http.ResponseWriter, r *http.Request) {
	student, ok := h.permittedStudent(w, r)
	if !ok {
		return
	}

	limit := h.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Query.HistoryByStudent(r.Context(), student.ID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StudentAttendanceDTO{
		StudentID:  string(student.ID),
		Name:       student.Name,
		Batch:      string(student.Batch),
		Attendance: toLedgerEntryDTOs(entries),
	})
}

// GetStudentIndex returns a student's index records. Without from/to the
// last 30 days up to today are returned.
func (h *Handler) GetStudentIndex(w http.ResponseWriter, r *http.Request) {
	student, ok := h.permittedStudent(w, r)
	if !ok {
		return
	}

	to := attendance.Today()
	if r.URL.Query().Get("to") != "" {
		if to, ok = dayParam(w, r, "to"); !ok {
			return
		}
	}
	from := to.AddDays(-29)
	if r.URL.Query().Get("from") != "" {
		if from, ok = dayParam(w, r, "from"); !ok {
			return
		}
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from must not be after to", nil)
		return
	}

	records, err := h.Query.IndexByStudent(r.Context(), student.ID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read index", err)
		return
	}
	writeJSON(w, http.StatusOK, toIndexRecordDTOs(records))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateStudent creates a student or updates name/batch of an existing one.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}
	batch := attendance.Batch(req.Batch)
	if !h.Batches.Has(batch) {
		writeError(w, http.StatusBadRequest, "Unknown batch", attendance.ErrUnknownBatch)
		return
	}

	student := attendance.Student{ID: attendance.StudentID(req.ID)}
	existing, err := h.Students.GetStudent(r.Context(), student.ID)
	switch {
	case err == nil:
		student = *existing
	case !attendance.IsNotFound(err):
		writeError(w, http.StatusInternalServerError, "Failed to load student", err)
		return
	}
	student.Name = req.Name
	student.Batch = batch

	if err := h.Students.SaveStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(student))
}

// RebuildIndex re-derives an index window from the ledgers.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	var req RebuildIndexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}
	day, err := attendance.ParseDay(req.Day)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
		return
	}

	n, err := h.Engine.RebuildIndex(r.Context(), attendance.Batch(req.Batch), day)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RebuildIndexResponse{Batch: req.Batch, Day: day.String(), Records: n})
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// decodeBody reads a JSON body of at most MaxBodyBytes into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func dayParam(w http.ResponseWriter, r *http.Request, name string) (attendance.Day, bool) {
	day, err := attendance.ParseDay(r.URL.Query().Get(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name+" format (use YYYY-MM-DD)", err)
		return attendance.Day{}, false
	}
	return day, true
}

// batchesParam reads ?batch=A&batch=B (or batch=A,B). Without the parameter
// every batch the caller may access is used.
func (h *Handler) batchesParam(w http.ResponseWriter, r *http.Request) ([]attendance.Batch, bool) {
	var batches []attendance.Batch
	for _, v := range r.URL.Query()["batch"] {
		batches = append(batches, attendance.ParseBatches(v)...)
	}
	if len(batches) == 0 {
		p, _ := PrincipalFrom(r.Context())
		return p.Batches, true
	}
	for _, b := range batches {
		if !h.Batches.Has(b) {
			writeError(w, http.StatusBadRequest, "Unknown batch", attendance.ErrUnknownBatch)
			return nil, false
		}
	}
	if !h.authorizeBatches(w, r, batches...) {
		return nil, false
	}
	return batches, true
}

func (h *Handler) authorizeBatches(w http.ResponseWriter, r *http.Request, batches ...attendance.Batch) bool {
	p, _ := PrincipalFrom(r.Context())
	if err := p.Authorize(batches...); err != nil {
		writeDomainError(w, err)
		return false
	}
	return true
}

func (h *Handler) permittedStudent(w http.ResponseWriter, r *http.Request) (*attendance.Student, bool) {
	id := attendance.StudentID(chi.URLParam(r, "id"))
	student, err := h.Query.Student(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if !h.authorizeBatches(w, r, student.Batch) {
		return nil, false
	}
	return student, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "Validation failed", Code: "validation_error"}
	if fields := fieldErrors(err); fields != nil {
		resp.Details = fields
	} else {
		resp.Details = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeDomainError maps attendance errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case attendance.IsForbidden(err):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Batch not permitted", Code: "forbidden", Details: err.Error()})
	case attendance.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Student not found", Code: "not_found"})
	case attendance.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Code: "validation_error", Details: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
