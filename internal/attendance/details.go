package attendance

import (
	"time"

	"attendboard/internal/model"
)

// UnknownSubject labels records whose subject is not in the subject list.
const UnknownSubject = "Unknown"

// DetailRow is one line of the attendance log.
type DetailRow struct {
	RecordID    string       `json:"record_id"`
	Date        string       `json:"date"`
	SubjectName string       `json:"subject_name"`
	SubjectCode string       `json:"subject_code"`
	Status      model.Status `json:"status"`
}

// BuildDetailRows joins records with subjects, keeping API order. Records
// of unknown subjects are labelled, never dropped.
func BuildDetailRows(records []model.AttendanceRecord, subjects []model.Subject, loc *time.Location) []DetailRow {
	byID := make(map[string]model.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
	}
	rows := make([]DetailRow, 0, len(records))
	for _, rec := range records {
		row := DetailRow{
			RecordID:    rec.ID,
			SubjectName: UnknownSubject,
			SubjectCode: "-",
			Status:      rec.Status,
		}
		if !rec.Date.IsZero() {
			row.Date = rec.Date.Day(loc)
		}
		if s, ok := byID[rec.SubjectID]; ok {
			row.SubjectName = s.Name
			row.SubjectCode = s.Code
		}
		rows = append(rows, row)
	}
	return rows
}

// Overall summarises the server's per-subject rows. It sums what the
// server counted and never recounts raw records.
type Overall struct {
	TotalClasses    int                       `json:"total_classes"`
	ClassesAttended int                       `json:"classes_attended"`
	Percentage      float64                   `json:"percentage"`
	Threshold       float64                   `json:"threshold"`
	LowAttendance   []model.AttendanceSummary `json:"low_attendance"`
}

// ComputeOverall totals the summary rows and lists subjects with classes
// held whose percentage is below threshold.
func ComputeOverall(rows []model.AttendanceSummary, threshold float64) Overall {
	o := Overall{Threshold: threshold}
	for _, row := range rows {
		o.TotalClasses += row.TotalClasses
		o.ClassesAttended += row.ClassesAttended
		if row.TotalClasses > 0 && row.AttendancePercentage < threshold {
			o.LowAttendance = append(o.LowAttendance, row)
		}
	}
	o.Percentage = percentage(o.ClassesAttended, o.TotalClasses)
	return o
}
