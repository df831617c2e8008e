package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"attendboard/internal/apiclient"
	"attendboard/internal/model"
)

type fakeSource struct {
	summaryErr, recordsErr, subjectsErr error
	// gate makes every fetch wait until all three have started.
	gate *sync.WaitGroup
	hang bool

	mu      sync.Mutex
	queries []apiclient.RecordsQuery
}

func (f *fakeSource) wait(ctx context.Context) error {
	if f.gate != nil {
		f.gate.Done()
		f.gate.Wait()
	}
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeSource) Summary(ctx context.Context) ([]model.AttendanceSummary, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return []model.AttendanceSummary{{SubjectID: "s1", SubjectName: "Maths", TotalClasses: 2, ClassesAttended: 1, AttendancePercentage: 50}}, nil
}

func (f *fakeSource) Records(ctx context.Context, q apiclient.RecordsQuery) ([]model.AttendanceRecord, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	return []model.AttendanceRecord{rec("r1", "s1", "2024-01-01", model.StatusPresent)}, nil
}

func (f *fakeSource) Subjects(ctx context.Context) ([]model.Subject, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.subjectsErr != nil {
		return nil, f.subjectsErr
	}
	return []model.Subject{{ID: "s1", Name: "Maths", Code: "M1"}}, nil
}

func TestLoadFetchesConcurrently(t *testing.T) {
	gate := &sync.WaitGroup{}
	gate.Add(3)
	svc := NewService(&fakeSource{gate: gate}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := svc.Load(ctx, apiclient.RecordsQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Summary) != 1 || len(snap.Records) != 1 || len(snap.Subjects) != 1 || len(snap.Failures) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLoadDegradesFailedDatasets(t *testing.T) {
	svc := NewService(&fakeSource{recordsErr: errors.New("boom"), summaryErr: errors.New("boom")}, nil, nil)
	snap, err := svc.Load(context.Background(), apiclient.RecordsQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Summary == nil || len(snap.Summary) != 0 || snap.Records == nil || len(snap.Records) != 0 {
		t.Fatalf("failed datasets should be empty, not nil: %+v", snap)
	}
	if len(snap.Subjects) != 1 {
		t.Fatal("healthy dataset lost")
	}
	if len(snap.Failures) != 2 || snap.Failures[0] != "records" || snap.Failures[1] != "summary" {
		t.Fatalf("failures %v", snap.Failures)
	}
}

func TestLoadReturnsErrorWhenCallerGoesAway(t *testing.T) {
	svc := NewService(&fakeSource{hang: true}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	snap, err := svc.Load(ctx, apiclient.RecordsQuery{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if snap.Summary != nil || snap.Failures != nil {
		t.Fatalf("partial snapshot leaked: %+v", snap)
	}
}

func TestDerive(t *testing.T) {
	snap, _ := NewService(&fakeSource{}, nil, nil).Load(context.Background(), apiclient.RecordsQuery{})
	d := Derive(snap, DeriveOptions{Location: time.UTC, Threshold: 75, Month: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})

	if d.Overall.Percentage != 50 || len(d.Overall.LowAttendance) != 1 {
		t.Errorf("overall %+v", d.Overall)
	}
	if len(d.SubjectChart.Labels) != 1 || d.SubjectChart.Labels[0] != "Maths" {
		t.Errorf("subject chart %+v", d.SubjectChart)
	}
	if len(d.Trend.Points) != 1 || d.TrendChart.Labels[0] != "2024-01-01" {
		t.Errorf("trend %+v", d.Trend)
	}
	if len(d.Details) != 1 || d.Details[0].SubjectName != "Maths" {
		t.Errorf("details %+v", d.Details)
	}
	if d.Monthly.Title != "January 2024" {
		t.Errorf("monthly %q", d.Monthly.Title)
	}
}

func TestLoadForwardsRecordsQuery(t *testing.T) {
	src := &fakeSource{}
	q := apiclient.RecordsQuery{SubjectID: "s1", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := NewService(src, nil, nil).Load(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if len(src.queries) != 1 || src.queries[0] != q {
		t.Fatalf("records queries = %+v", src.queries)
	}
}
