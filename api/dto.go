/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

Field names are camelCase to match the existing web client.

VALIDATION:
  Structural checks use validator struct tags. Per-record status and
  studentId checks are NOT tagged here: a bad record must fail alone, so the
  engine validates records one by one.
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// SubmitAttendanceRequest is a teacher's marks for one batch and day.
type SubmitAttendanceRequest struct {
	Batch   string    `json:"batch" validate:"required"`
	Day     string    `json:"day" validate:"required"`
	Records []MarkDTO `json:"records" validate:"required,min=1"`
}

// MarkDTO is one record of a submission.
type MarkDTO struct {
	StudentID string `json:"studentId"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

// SubmitAttendanceResponse always carries one result per submitted record.
type SubmitAttendanceResponse struct {
	Success    bool            `json:"success"`
	Results    []ItemResultDTO `json:"results"`
	Count      int             `json:"count"`
	IndexStale bool            `json:"indexStale,omitempty"`
}

type ItemResultDTO struct {
	StudentID string `json:"studentId"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status,omitempty"`
}

// DayStatusDTO is one student's status for a day.
type DayStatusDTO struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	Batch     string `json:"batch"`
	Status    string `json:"status"`
}

type LedgerEntryDTO struct {
	Day      string `json:"day"`
	Status   string `json:"status"`
	MarkedBy string `json:"markedBy"`
}

// StudentAttendanceDTO is a student's ledger, newest first.
type StudentAttendanceDTO struct {
	StudentID  string           `json:"studentId"`
	Name       string           `json:"name"`
	Batch      string           `json:"batch"`
	Attendance []LedgerEntryDTO `json:"attendance"`
}

type MonthEntryDTO struct {
	Day         string `json:"day"`
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Batch       string `json:"batch"`
	Status      string `json:"status"`
}

type MonthSummaryDTO struct {
	StudentID string          `json:"studentId"`
	Name      string          `json:"name"`
	Batch     string          `json:"batch"`
	Present   int             `json:"present"`
	Absent    int             `json:"absent"`
	Late      int             `json:"late"`
	Marked    int             `json:"marked"`
	Rate      decimal.Decimal `json:"rate"`
}

type IndexRecordDTO struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	TeacherID string `json:"teacherId"`
	Batch     string `json:"batch"`
	Day       string `json:"day"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

type StudentDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Batch string `json:"batch"`
}

// CreateStudentRequest creates or renames a student. An existing ledger is kept.
type CreateStudentRequest struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Batch string `json:"batch" validate:"required"`
}

type RebuildIndexRequest struct {
	Batch string `json:"batch" validate:"required"`
	Day   string `json:"day" validate:"required"`
}

type RebuildIndexResponse struct {
	Batch   string `json:"batch"`
	Day     string `json:"day"`
	Records int    `json:"records"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSubmitResponse(res attendance.Result) SubmitAttendanceResponse {
	out := SubmitAttendanceResponse{
		Success:    true,
		Results:    make([]ItemResultDTO, len(res.Items)),
		Count:      res.Count,
		IndexStale: res.IndexStale,
	}
	for i, it := range res.Items {
		out.Results[i] = ItemResultDTO{
			StudentID: string(it.StudentID),
			Success:   it.Success,
			Message:   it.Message,
			Name:      it.Name,
			Status:    string(it.Status),
		}
	}
	return out
}

func toLedgerEntryDTOs(entries []attendance.LedgerEntry) []LedgerEntryDTO {
	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LedgerEntryDTO{Day: e.Day.String(), Status: string(e.Status), MarkedBy: string(e.MarkedBy)}
	}
	return dtos
}

func toIndexRecordDTOs(records []attendance.IndexRecord) []IndexRecordDTO {
	dtos := make([]IndexRecordDTO, len(records))
	for i, r := range records {
		dtos[i] = IndexRecordDTO{
			ID:        r.ID,
			StudentID: string(r.StudentID),
			TeacherID: string(r.TeacherID),
			Batch:     string(r.Batch),
			Day:       r.Day.String(),
			Status:    string(r.Status),
			Notes:     r.Notes,
		}
	}
	return dtos
}

func toStudentDTO(s attendance.Student) StudentDTO {
	return StudentDTO{ID: string(s.ID), Name: s.Name, Batch: string(s.Batch)}
}
