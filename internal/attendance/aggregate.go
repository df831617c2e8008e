package attendance

import (
	"slices"
	"time"

	"attendboard/internal/model"
)

// Palette is the fixed colour cycle of the per-subject chart.
var Palette = []string{
	"rgba(54, 162, 235, 0.7)",
	"rgba(255, 99, 132, 0.7)",
	"rgba(75, 192, 192, 0.7)",
	"rgba(255, 206, 86, 0.7)",
	"rgba(153, 102, 255, 0.7)",
	"rgba(255, 159, 64, 0.7)",
}

// Dataset is one chart series.
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
	BorderColor     string    `json:"borderColor,omitempty"`
}

// ChartSeries is chart-bound data: labels plus parallel datasets.
type ChartSeries struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// BuildOverallChartSeries charts attendance percentage per subject in the
// order the server returned the rows.
func BuildOverallChartSeries(rows []model.AttendanceSummary) ChartSeries {
	labels := make([]string, len(rows))
	data := make([]float64, len(rows))
	colors := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = row.SubjectName
		data[i] = row.AttendancePercentage
		colors[i] = Palette[i%len(Palette)]
	}
	return ChartSeries{
		Labels: labels,
		Datasets: []Dataset{{
			Label:           "Attendance %",
			Data:            data,
			BackgroundColor: colors,
		}},
	}
}

// TrendPoint is the attendance of one calendar day.
type TrendPoint struct {
	Date         string  `json:"date"`
	PresentCount int     `json:"present_count"`
	TotalCount   int     `json:"total_count"`
	Percentage   float64 `json:"percentage"`
}

// TrendSeries holds the points plus the parallel label/value slices a
// line chart consumes.
type TrendSeries struct {
	Points []TrendPoint `json:"points"`
	Labels []string     `json:"labels"`
	Values []float64    `json:"values"`
}

// Chart converts the trend into a single-line chart series.
func (t TrendSeries) Chart() ChartSeries {
	return ChartSeries{
		Labels: t.Labels,
		Datasets: []Dataset{{
			Label:       "Daily attendance %",
			Data:        t.Values,
			BorderColor: Palette[0],
		}},
	}
}

// BuildTrendSeries groups records by calendar day in loc and computes the
// daily percentage. Days come back strictly ascending; no records yields
// an empty series.
func BuildTrendSeries(records []model.AttendanceRecord, loc *time.Location) TrendSeries {
	buckets := make(map[string]*TrendPoint)
	for _, rec := range records {
		if rec.Date.IsZero() {
			continue
		}
		day := rec.Date.Day(loc)
		p, ok := buckets[day]
		if !ok {
			p = &TrendPoint{Date: day}
			buckets[day] = p
		}
		p.TotalCount++
		if rec.Status == model.StatusPresent {
			p.PresentCount++
		}
	}

	out := TrendSeries{
		Points: make([]TrendPoint, 0, len(buckets)),
		Labels: make([]string, 0, len(buckets)),
		Values: make([]float64, 0, len(buckets)),
	}
	for _, p := range buckets {
		p.Percentage = percentage(p.PresentCount, p.TotalCount)
		out.Points = append(out.Points, *p)
	}
	// YYYY-MM-DD sorts lexically in calendar order.
	slices.SortFunc(out.Points, func(a, b TrendPoint) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	for _, p := range out.Points {
		out.Labels = append(out.Labels, p.Date)
		out.Values = append(out.Values, p.Percentage)
	}
	return out
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
