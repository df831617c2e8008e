package attendance

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"attendboard/internal/apiclient"
	"attendboard/internal/metrics"
	"attendboard/internal/model"
)

// Source fetches the three dashboard datasets. The context carries the
// caller's credentials.
type Source interface {
	Summary(ctx context.Context) ([]model.AttendanceSummary, error)
	Records(ctx context.Context, q apiclient.RecordsQuery) ([]model.AttendanceRecord, error)
	Subjects(ctx context.Context) ([]model.Subject, error)
}

// Snapshot is everything the dashboard renders from. A dataset that could
// not be fetched is empty and named in Failures.
type Snapshot struct {
	Summary  []model.AttendanceSummary `json:"summary"`
	Records  []model.AttendanceRecord  `json:"records"`
	Subjects []model.Subject           `json:"subjects"`
	Failures []string                  `json:"failures,omitempty"`
}

// Service loads dashboard snapshots.
type Service struct {
	src     Source
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a service backed by src.
func NewService(src Source, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{src: src, log: log.With(zap.String("component", "attendance")), metrics: m}
}

// Load fetches summary, records matching q and subjects concurrently and
// returns once all three have settled. Summary rows are never filtered. Individual failures degrade to empty datasets;
// only cancellation of ctx is returned as an error, in which case the
// partial results are discarded.
func (s *Service) Load(ctx context.Context, q apiclient.RecordsQuery) (Snapshot, error) {
	var (
		snap Snapshot
		mu   sync.Mutex
		g    errgroup.Group
	)
	fail := func(dataset string, err error) {
		s.log.Warn("dashboard fetch failed", zap.String("dataset", dataset), zap.Error(err))
		s.metrics.DashboardFailure(dataset)
		mu.Lock()
		snap.Failures = append(snap.Failures, dataset)
		mu.Unlock()
	}

	g.Go(func() error {
		rows, err := s.src.Summary(ctx)
		if err != nil {
			fail("summary", err)
			return nil
		}
		snap.Summary = rows
		return nil
	})
	g.Go(func() error {
		recs, err := s.src.Records(ctx, q)
		if err != nil {
			fail("records", err)
			return nil
		}
		snap.Records = recs
		return nil
	})
	g.Go(func() error {
		subs, err := s.src.Subjects(ctx)
		if err != nil {
			fail("subjects", err)
			return nil
		}
		snap.Subjects = subs
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if snap.Summary == nil {
		snap.Summary = []model.AttendanceSummary{}
	}
	if snap.Records == nil {
		snap.Records = []model.AttendanceRecord{}
	}
	if snap.Subjects == nil {
		snap.Subjects = []model.Subject{}
	}
	slices.Sort(snap.Failures)
	return snap, nil
}

// DeriveOptions control the client-side derivations.
type DeriveOptions struct {
	Location  *time.Location
	Threshold float64
	// Month selects the monthly overview; zero means the current month.
	Month time.Time
}

// Dashboard is the fully derived, render-ready dashboard.
type Dashboard struct {
	Overall      Overall         `json:"overall"`
	SubjectChart ChartSeries     `json:"subject_chart"`
	Trend        TrendSeries     `json:"trend"`
	TrendChart   ChartSeries     `json:"trend_chart"`
	Details      []DetailRow     `json:"details"`
	Monthly      MonthlyOverview `json:"monthly"`
}

// Derive computes every view of snap. Summary rows are used as the server
// sent them; only the trend and the monthly overview come from records.
func Derive(snap Snapshot, opts DeriveOptions) Dashboard {
	month := opts.Month
	if month.IsZero() {
		month = time.Now()
	}
	trend := BuildTrendSeries(snap.Records, opts.Location)
	return Dashboard{
		Overall:      ComputeOverall(snap.Summary, opts.Threshold),
		SubjectChart: BuildOverallChartSeries(snap.Summary),
		Trend:        trend,
		TrendChart:   trend.Chart(),
		Details:      BuildDetailRows(snap.Records, snap.Subjects, opts.Location),
		Monthly:      BuildMonthlyOverview(snap.Records, month, opts.Location),
	}
}
