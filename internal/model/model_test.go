package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestampShapes(t *testing.T) {
	cases := []struct {
		in       string
		dateOnly bool
		want     time.Time
	}{
		{"2024-01-01", true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-01T10:30:00", false, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-01-01T10:30:00.123456", false, time.Date(2024, 1, 1, 10, 30, 0, 123456000, time.UTC)},
		{"2024-01-01T10:30:00+05:30", false, time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)},
		{"2024-01-01T10:30:00Z", false, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got.DateOnly != tc.dateOnly {
			t.Errorf("%s: DateOnly = %v", tc.in, got.DateOnly)
		}
		if !got.Time.Equal(tc.want) {
			t.Errorf("%s: got %s, want %s", tc.in, got.Time, tc.want)
		}
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestTimestampDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)

	late, _ := ParseTimestamp("2024-01-01T20:00:00")
	if got := late.Day(loc); got != "2024-01-02" {
		t.Errorf("late UTC evening in IST: got %s", got)
	}

	west := time.FixedZone("PST", -8*3600)
	day, _ := ParseTimestamp("2024-01-01")
	if got := day.Day(west); got != "2024-01-01" {
		t.Errorf("date-only value shifted to %s", got)
	}
}

func TestAttendanceRecordJSON(t *testing.T) {
	raw := `[{"id":"r1","subject_id":"s1","date":"2024-03-04T09:00:00","status":"present","student_id":"u1"},
	         {"id":"r2","subject_id":"s1","date":null,"status":"absent"}]`
	var recs []AttendanceRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Status != StatusPresent || recs[0].Date.Day(time.UTC) != "2024-03-04" {
		t.Fatalf("unexpected decode: %+v", recs)
	}
	if !recs[1].Date.IsZero() {
		t.Errorf("null date should decode to zero value")
	}
}
