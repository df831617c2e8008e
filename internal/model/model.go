package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the presence state of a single attendance record.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// User is the authenticated student profile returned by /api/me.
type User struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	EnrollmentNumber string `json:"enrollment_number"`
	Branch           string `json:"branch"`
	Year             int    `json:"year"`
	Role             string `json:"role,omitempty"`
}

// Subject is read-only reference data.
type Subject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// AttendanceRecord represents a single attendance log entry.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Date      Timestamp `json:"date"`
	Status    Status    `json:"status"`
}

// AttendanceSummary is a server-computed per-subject aggregate.
type AttendanceSummary struct {
	SubjectID            string  `json:"subject_id"`
	SubjectName          string  `json:"subject_name"`
	SubjectCode          string  `json:"subject_code"`
	TotalClasses         int     `json:"total_classes"`
	ClassesAttended      int     `json:"classes_attended"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// DateLayout is the calendar-day format used for labels and keys.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// Timestamp accepts the date shapes the API emits: RFC 3339, zone-less
// ISO-8601 (read as UTC) and bare calendar dates.
type Timestamp struct {
	time.Time
	// DateOnly marks values that carried no time of day.
	DateOnly bool
}

// ParseTimestamp parses s into a Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, time.UTC); err == nil {
		return Timestamp{Time: t, DateOnly: true}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised date %q", s)
}

// Day returns the calendar day of t in loc as YYYY-MM-DD. Date-only
// values are already calendar days and are never shifted.
func (t Timestamp) Day(loc *time.Location) string {
	if t.DateOnly || loc == nil {
		return t.Time.UTC().Format(DateLayout)
	}
	return t.Time.In(loc).Format(DateLayout)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.DateOnly {
		return json.Marshal(t.Time.Format(DateLayout))
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}
