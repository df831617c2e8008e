package attendance

import (
	"time"

	"attendboard/internal/model"
)

// DayStatus is the aggregate state of one day in the monthly overview.
type DayStatus string

const (
	DayNone    DayStatus = "none"
	DayPresent DayStatus = "present"
	DayAbsent  DayStatus = "absent"
	DayPartial DayStatus = "partial"
)

// MonthDay is a cell of the monthly calendar. Padding cells outside the
// month have Day == 0.
type MonthDay struct {
	Day     int       `json:"day"`
	Date    string    `json:"date,omitempty"`
	Status  DayStatus `json:"status"`
	Present int       `json:"present"`
	Total   int       `json:"total"`
}

// MonthlyOverview is a Sunday-first calendar grid for one month.
type MonthlyOverview struct {
	Title string       `json:"title"`
	Weeks [][]MonthDay `json:"weeks"`
}

// BuildMonthlyOverview lays out the month containing month (in loc) and
// colours each day from the records that fall on it.
func BuildMonthlyOverview(records []model.AttendanceRecord, month time.Time, loc *time.Location) MonthlyOverview {
	if loc == nil {
		loc = time.UTC
	}
	month = month.In(loc)
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	days := first.AddDate(0, 1, -1).Day()

	type tally struct{ present, total int }
	counts := make(map[string]*tally)
	for _, rec := range records {
		if rec.Date.IsZero() {
			continue
		}
		key := rec.Date.Day(loc)
		t, ok := counts[key]
		if !ok {
			t = &tally{}
			counts[key] = t
		}
		t.total++
		if rec.Status == model.StatusPresent {
			t.present++
		}
	}

	ov := MonthlyOverview{Title: first.Format("January 2006")}
	week := make([]MonthDay, 0, 7)
	for i := 0; i < int(first.Weekday()); i++ {
		week = append(week, MonthDay{Status: DayNone})
	}
	for d := 1; d <= days; d++ {
		date := time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, loc).Format(model.DateLayout)
		cell := MonthDay{Day: d, Date: date, Status: DayNone}
		if t, ok := counts[date]; ok {
			cell.Present, cell.Total = t.present, t.total
			switch {
			case t.present == t.total:
				cell.Status = DayPresent
			case t.present == 0:
				cell.Status = DayAbsent
			default:
				cell.Status = DayPartial
			}
		}
		week = append(week, cell)
		if len(week) == 7 {
			ov.Weeks = append(ov.Weeks, week)
			week = make([]MonthDay, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, MonthDay{Status: DayNone})
		}
		ov.Weeks = append(ov.Weeks, week)
	}
	return ov
}
