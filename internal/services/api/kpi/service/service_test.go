package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adperf/internal/core/catalog"
	"adperf/internal/core/kpi"
	"adperf/internal/core/month"
	"adperf/internal/core/plan"
	"adperf/internal/core/rank"
	"adperf/internal/core/rules"
	"adperf/internal/modkit/repokit"
	perr "adperf/internal/platform/errors"
	"adperf/internal/platform/store"
	"adperf/internal/platform/testkit"
	"adperf/internal/services/api/kpi/domain"
	"adperf/internal/services/api/kpi/repo"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeExec serves canned rows per month; "" is the full history
type fakeExec struct {
	mu       sync.Mutex
	byMonth  map[string][]kpi.MetricRow
	errMonth map[string]error
	plans    []plan.Plan
	deadline []bool
}

func (f *fakeExec) Run(ctx context.Context, p plan.Plan) ([]kpi.MetricRow, repo.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := ctx.Deadline()
	f.plans = append(f.plans, p)
	f.deadline = append(f.deadline, ok)
	m := ""
	if p.Range != nil {
		m = p.Range.Month
	}
	if err := f.errMonth[m]; err != nil {
		return nil, repo.Stats{Elapsed: time.Second}, err
	}
	rows := f.byMonth[m]
	return rows, repo.Stats{Elapsed: 1500 * time.Millisecond, Rows: len(rows)}, nil
}

func (f *fakeExec) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plans)
}

// fakeLedger is a TxRunner whose Tx hands itself to fn
type fakeLedger struct{}

func (fakeLedger) Exec(context.Context, string, ...any) (store.CommandTag, error)  { return nil, nil }
func (fakeLedger) Query(context.Context, string, ...any) (store.Rows, error)       { return nil, nil }
func (fakeLedger) QueryRow(context.Context, string, ...any) store.Row              { return nil }
func (l fakeLedger) Tx(_ context.Context, fn func(q store.RowQuerier) error) error { return fn(l) }

type fakeRuns struct {
	mu        sync.Mutex
	inserted  []repo.Run
	insertErr error
	recent    []repo.Run
	recentErr error
	limit     int
}

func (f *fakeRuns) EnsureSchema(context.Context) error { return nil }
func (f *fakeRuns) Insert(_ context.Context, r repo.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, r)
	return f.insertErr
}
func (f *fakeRuns) Recent(_ context.Context, limit int) ([]repo.Run, error) {
	f.limit = limit
	return f.recent, f.recentErr
}

func row(device string, visitors, pageviews, conversions int64, avg *float64) kpi.MetricRow {
	return kpi.MetricRow{
		Dims:    kpi.Values{catalog.DeviceType: kpi.Str(device)},
		Metrics: kpi.Metrics{TotalVisitors: visitors, TotalPageviews: pageviews, AvgTimeOnSite: avg, TotalConversions: conversions},
	}
}

func newSvc(t *testing.T, ex *fakeExec, opts Options) *Svc {
	t.Helper()
	return New(plan.New(plan.Config{}), ex, opts)
}

func TestNew_PanicsOnNil(t *testing.T) {
	testkit.MustPanic(t, func() { New(nil, &fakeExec{}, Options{}) })
	testkit.MustPanic(t, func() { New(plan.New(plan.Config{}), nil, Options{}) })
	testkit.MustPanic(t, func() { New(plan.New(plan.Config{}), &fakeExec{}, Options{Ledger: fakeLedger{}}) })
}

func TestFetch_Month(t *testing.T) {
	ex := &fakeExec{byMonth: map[string][]kpi.MetricRow{
		"2017-01": {row("desktop", 10, 40, 1, kpi.Float(12))},
	}}
	doc, err := newSvc(t, ex, Options{}).Fetch(context.Background(), domain.FetchInput{
		Dimensions: []string{"device_type", "device_type"},
		Month:      "2017-01",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.Scope != kpi.ScopeMonth || doc.Month != "2017-01" || doc.RowCount != 1 {
		t.Fatalf("unexpected doc header: %+v", doc)
	}
	if d := cmp.Diff([]string{"device_type"}, doc.Dimensions); d != "" {
		t.Fatalf("dims (-want +got):\n%s", d)
	}
	want := domain.Notes{Source: "analytics.ga_sessions", TableSuffixFilter: "20170101..20170131", Having: "total_pageviews >= 20", Rows: 1}
	if d := cmp.Diff(want, doc.Notes); d != "" {
		t.Fatalf("notes (-want +got):\n%s", d)
	}
	if !ex.deadline[0] {
		t.Fatalf("default timeout not applied")
	}
}

func TestFetch_NoMonthIsAllScope(t *testing.T) {
	ex := &fakeExec{byMonth: map[string][]kpi.MetricRow{"": {row("mobile", 1, 25, 0, nil)}}}
	for _, m := range []string{"", month.AllData} {
		doc, err := newSvc(t, ex, Options{}).Fetch(context.Background(), domain.FetchInput{Dimensions: []string{"device_type"}, Month: m})
		if err != nil {
			t.Fatalf("Fetch(%q): %v", m, err)
		}
		if doc.Scope != kpi.ScopeAll || doc.Range != nil || doc.Month != "" || doc.Notes.TableSuffixFilter != "" {
			t.Fatalf("Fetch(%q) = %+v", m, doc)
		}
	}
}

func TestFetch_ValidationBeforeExecution(t *testing.T) {
	cases := []struct {
		name string
		in   domain.FetchInput
		is   error
	}{
		{"bad month", domain.FetchInput{Dimensions: []string{"device_type"}, Month: "2017-13"}, month.ErrInvalidMonth},
		{"short year", domain.FetchInput{Dimensions: []string{"device_type"}, Month: "13-01"}, month.ErrInvalidMonth},
		{"unknown dim", domain.FetchInput{Dimensions: []string{"device_type", "browser"}}, catalog.ErrInvalidDimension},
		{"empty dims", domain.FetchInput{}, plan.ErrQueryBuild},
		{"unknown context", domain.FetchInput{Dimensions: []string{"medium"}, Context: "prod"}, kpi.ErrInvalidContext},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex := &fakeExec{}
			_, err := newSvc(t, ex, Options{}).Fetch(context.Background(), tc.in)
			if !perr.IsCode(err, perr.ErrorCodeValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
			if !errors.Is(err, tc.is) {
				t.Fatalf("err = %v, want %v in chain", err, tc.is)
			}
			if ex.calls() != 0 {
				t.Fatalf("executor called on invalid input")
			}
		})
	}
}

func TestFetch_KeepsCallerDeadline(t *testing.T) {
	ex := &fakeExec{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	if _, err := newSvc(t, ex, Options{Timeout: time.Millisecond}).Fetch(ctx, domain.FetchInput{Dimensions: []string{"medium"}}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !ex.deadline[0] {
		t.Fatalf("caller deadline lost")
	}
}

func TestFetch_ExecutionErrorIsTerminal(t *testing.T) {
	boom := perr.Executionf("query failed after 1s (rows=0)")
	ex := &fakeExec{errMonth: map[string]error{"": boom}}
	doc, err := newSvc(t, ex, Options{}).Fetch(context.Background(), domain.FetchInput{Dimensions: []string{"medium"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if doc.Rows != nil {
		t.Fatalf("partial result returned: %+v", doc)
	}
}

func TestDiff_PctChange(t *testing.T) {
	ex := &fakeExec{byMonth: map[string][]kpi.MetricRow{
		"2016-12": {row("desktop", 100, 400, 0, kpi.Float(10)), row("tablet", 5, 30, 0, nil)},
		"2017-01": {row("mobile", 7, 50, 1, nil), row("desktop", 150, 200, 2, kpi.Float(15))},
	}}
	doc, err := newSvc(t, ex, Options{}).Diff(context.Background(), domain.DiffInput{
		MonthA: "2016-12", MonthB: "2017-01", Dimensions: []string{"device_type"},
	})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if ex.calls() != 2 {
		t.Fatalf("want two period executions, got %d", ex.calls())
	}
	if doc.RowCount != 3 || doc.MonthA != "2016-12" || doc.MonthB != "2017-01" || len(doc.Notes) != 2 {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	var order []string
	for _, r := range doc.Rows {
		order = append(order, *r.Dims[catalog.DeviceType])
	}
	if d := cmp.Diff([]string{"desktop", "mobile", "tablet"}, order); d != "" {
		t.Fatalf("order (-want +got):\n%s", d)
	}

	desk, _ := doc.Rows[0].Change(kpi.TotalVisitors)
	if desk.PctChange == nil || *desk.PctChange != 50 {
		t.Fatalf("desktop visitors pct = %v, want 50", desk.PctChange)
	}
	conv, _ := doc.Rows[0].Change(kpi.TotalConversions)
	if conv.PctChange != nil {
		t.Fatalf("zero baseline must be null, got %v", *conv.PctChange)
	}
	mobile, _ := doc.Rows[1].Change(kpi.TotalVisitors)
	if mobile.A != nil || mobile.PctChange != nil {
		t.Fatalf("segment absent from A: %+v", mobile)
	}
}

func TestDiff_InvalidMonthNamesField(t *testing.T) {
	ex := &fakeExec{}
	_, err := newSvc(t, ex, Options{}).Diff(context.Background(), domain.DiffInput{
		MonthA: "2017-01", MonthB: "2017-1", Dimensions: []string{"device_type"},
	})
	e, ok := perr.As(err)
	if !ok || e.Code() != perr.ErrorCodeValidation || e.Field() != "month_b" {
		t.Fatalf("err = %v, want validation on month_b", err)
	}
	if ex.calls() != 0 {
		t.Fatalf("executor called on invalid input")
	}
}

func TestDiff_EitherSideFails(t *testing.T) {
	boom := perr.Timeoutf("query timed out after 60s (rows=0)")
	ex := &fakeExec{errMonth: map[string]error{"2017-01": boom}}
	_, err := newSvc(t, ex, Options{}).Diff(context.Background(), domain.DiffInput{
		MonthA: "2016-12", MonthB: "2017-01", Dimensions: []string{"device_type"},
	})
	if !perr.IsCode(err, perr.ErrorCodeTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestFlag(t *testing.T) {
	mk := func(src string, avg float64, pv, conv int64) kpi.MetricRow {
		return kpi.MetricRow{
			Dims: kpi.Values{
				catalog.TrafficSource: kpi.Str(src), catalog.Medium: kpi.Str("organic"),
				catalog.DeviceType: kpi.Str("desktop"), catalog.PageTitle: nil,
			},
			Metrics: kpi.Metrics{TotalPageviews: pv, AvgTimeOnSite: kpi.Float(avg), TotalConversions: conv},
		}
	}
	ex := &fakeExec{byMonth: map[string][]kpi.MetricRow{"": {
		mk("google", 90, 20, 0),
		mk("bing", 90, 40, 0),
		mk("yahoo", 300, 300, 0),
		mk("direct", 90, 21, 3),
	}}}
	s := newSvc(t, ex, Options{})

	doc, err := s.Flag(context.Background(), domain.FlagInput{Rule: "traffic"})
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if d := cmp.Diff(rules.DefaultDimensions, ex.plans[0].Dimensions); d != "" {
		t.Fatalf("default dims (-want +got):\n%s", d)
	}
	if ex.plans[0].Range != nil || doc.Scope != kpi.ScopeAll {
		t.Fatalf("flag must scan the full history")
	}
	var got []string
	for _, r := range doc.Rows {
		got = append(got, *r.Dims[catalog.TrafficSource])
	}
	if d := cmp.Diff([]string{"google", "direct"}, got); d != "" {
		t.Fatalf("flagged (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]kpi.KPI{kpi.AvgTimeOnSite, kpi.TotalPageviews}, doc.KPIs); d != "" {
		t.Fatalf("kpis (-want +got):\n%s", d)
	}

	doc, err = s.Flag(context.Background(), domain.FlagInput{Rule: " Conversion ", Dimensions: []string{"traffic_source"}})
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if doc.Rule != rules.NameConversion || doc.RowCount != 1 || *doc.Rows[0].Dims[catalog.TrafficSource] != "yahoo" {
		t.Fatalf("conversion flagged = %+v", doc)
	}
	if len(doc.Rows[0].Dims) != 1 {
		t.Fatalf("output must carry only requested dims: %v", doc.Rows[0].Dims)
	}
}

func TestFlag_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   domain.FlagInput
		is   error
	}{
		{"unknown rule", domain.FlagInput{Rule: "bounce"}, rules.ErrUnknownRule},
		{"country", domain.FlagInput{Rule: "traffic", Dimensions: []string{"medium", "user_country"}}, catalog.ErrInvalidDimension},
		{"unknown dim", domain.FlagInput{Rule: "traffic", Dimensions: []string{"browser"}}, catalog.ErrInvalidDimension},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex := &fakeExec{}
			_, err := newSvc(t, ex, Options{}).Flag(context.Background(), tc.in)
			if !perr.IsCode(err, perr.ErrorCodeValidation) || !errors.Is(err, tc.is) {
				t.Fatalf("err = %v", err)
			}
			if ex.calls() != 0 {
				t.Fatalf("executor called on invalid input")
			}
		})
	}
}

func TestFlag_ConfiguredThresholds(t *testing.T) {
	ex := &fakeExec{byMonth: map[string][]kpi.MetricRow{"": {row("desktop", 1, 100, 0, kpi.Float(50))}}}
	s := newSvc(t, ex, Options{Thresholds: rules.Thresholds{TrafficMaxAvgTime: 60, TrafficMaxPageviews: 200, ConversionMinPageviews: 1000}})
	doc, err := s.Flag(context.Background(), domain.FlagInput{Rule: "traffic", Dimensions: []string{"device_type"}})
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if doc.RowCount != 1 {
		t.Fatalf("configured thresholds ignored: %+v", doc)
	}
}

func TestRank(t *testing.T) {
	mk := func(country, device string, visitors, conv int64) kpi.MetricRow {
		return kpi.MetricRow{
			Dims:    kpi.Values{catalog.UserCountry: kpi.Str(country), catalog.DeviceType: kpi.Str(device)},
			Metrics: kpi.Metrics{TotalVisitors: visitors, TotalPageviews: 100, TotalConversions: conv},
		}
	}
	ex := &fakeExec{byMonth: map[string][]kpi.MetricRow{"2017-01": {
		mk("Chile", "desktop", 100, 1),
		mk("Peru", "mobile", 0, 0),
		mk("Chile", "mobile", 10, 2),
		mk("Peru", "desktop", 100, 1),
	}}}
	doc, err := newSvc(t, ex, Options{}).Rank(context.Background(), domain.RankInput{Month: "2017-01"})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if d := cmp.Diff(rank.Dimensions, ex.plans[0].Dimensions); d != "" {
		t.Fatalf("rank dims (-want +got):\n%s", d)
	}
	if doc.RowCount != 4 {
		t.Fatalf("rows dropped: %d", doc.RowCount)
	}
	var got []string
	for _, r := range doc.Rows {
		got = append(got, *r.Dims[catalog.UserCountry]+"/"+*r.Dims[catalog.DeviceType])
	}
	want := []string{"Chile/mobile", "Chile/desktop", "Peru/desktop", "Peru/mobile"}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("rank order (-want +got):\n%s", d)
	}
	if doc.Rows[3].Rate != 0 {
		t.Fatalf("zero visitors must rank with rate 0")
	}
}

func TestRank_AllData(t *testing.T) {
	ex := &fakeExec{}
	doc, err := newSvc(t, ex, Options{}).Rank(context.Background(), domain.RankInput{Month: month.AllData})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if doc.Scope != kpi.ScopeAll || doc.Range != nil || ex.plans[0].Range != nil {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestLedger_RecordsEveryExecution(t *testing.T) {
	runs := &fakeRuns{}
	ex := &fakeExec{
		byMonth:  map[string][]kpi.MetricRow{"2016-12": {row("desktop", 1, 30, 0, nil)}},
		errMonth: map[string]error{"2017-01": perr.Timeoutf("query timed out after 1s (rows=0)")},
	}
	s := newSvc(t, ex, Options{Ledger: fakeLedger{}, Runs: repokit.BindFunc[repo.Runs](func(repokit.Queryer) repo.Runs { return runs })})
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	testkit.Swap(t, &s.now, func() time.Time { return at })
	testkit.Swap(t, &s.newID, func() string { return "run-1" })

	if _, err := s.Fetch(context.Background(), domain.FetchInput{Dimensions: []string{"device_type"}, Month: "2016-12"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := s.Fetch(context.Background(), domain.FetchInput{Dimensions: []string{"device_type"}, Month: "2017-01"}); err == nil {
		t.Fatalf("expected timeout")
	}

	if len(runs.inserted) != 2 {
		t.Fatalf("want 2 ledger rows, got %d", len(runs.inserted))
	}
	want := repo.Run{
		ID: "run-1", Op: "fetch", Scope: "month", Dimensions: []string{"device_type"},
		RangeStart: "20161201", RangeEnd: "20161231", Context: "analytics",
		Rows: 1, ElapsedMs: 1500, Status: repo.StatusOK, CreatedAt: at,
	}
	if d := cmp.Diff(want, runs.inserted[0]); d != "" {
		t.Fatalf("ok run (-want +got):\n%s", d)
	}
	if runs.inserted[1].Status != repo.StatusTimeout || runs.inserted[1].Error == "" {
		t.Fatalf("timeout run = %+v", runs.inserted[1])
	}
}

func TestLedger_FailureDoesNotFailOperation(t *testing.T) {
	runs := &fakeRuns{insertErr: errors.New("relation kpi_query_runs does not exist")}
	ex := &fakeExec{}
	s := newSvc(t, ex, Options{Ledger: fakeLedger{}, Runs: repokit.BindFunc[repo.Runs](func(repokit.Queryer) repo.Runs { return runs })})
	if _, err := s.Fetch(context.Background(), domain.FetchInput{Dimensions: []string{"medium"}}); err != nil {
		t.Fatalf("ledger failure leaked: %v", err)
	}
}

func TestRuns(t *testing.T) {
	doc, err := newSvc(t, &fakeExec{}, Options{}).Runs(context.Background(), domain.RunsInput{})
	if err != nil || doc.Enabled || doc.Rows == nil {
		t.Fatalf("disabled ledger: doc=%+v err=%v", doc, err)
	}

	runs := &fakeRuns{recent: []repo.Run{{ID: "a", Op: "rank", Status: repo.StatusOK}}}
	s := newSvc(t, &fakeExec{}, Options{Ledger: fakeLedger{}, Runs: repokit.BindFunc[repo.Runs](func(repokit.Queryer) repo.Runs { return runs })})
	doc, err = s.Runs(context.Background(), domain.RunsInput{})
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if runs.limit != DefaultRunsLimit || !doc.Enabled || doc.RowCount != 1 || doc.Rows[0].Op != "rank" {
		t.Fatalf("doc = %+v limit=%d", doc, runs.limit)
	}
	if _, err := s.Runs(context.Background(), domain.RunsInput{Limit: 501}); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}

	runs.recentErr = &pgconn.PgError{Code: "57P03"}
	if _, err := s.Runs(context.Background(), domain.RunsInput{}); !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	runs.recentErr = errors.New("conn reset")
	if _, err := s.Runs(context.Background(), domain.RunsInput{}); !perr.IsCode(err, perr.ErrorCodeDB) {
		t.Fatalf("err = %v, want db", err)
	}
}

func TestCatalog(t *testing.T) {
	doc, err := newSvc(t, &fakeExec{}, Options{}).Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(doc.Dimensions) != 5 || doc.MinPageviews != plan.DefaultMinPageviews || doc.DefaultContext != plan.DefaultContext {
		t.Fatalf("doc = %+v", doc)
	}
	if len(doc.Rules) != 2 || doc.Rules[0].Description != "avg_time_on_site_seconds < 120 and total_pageviews < 30" {
		t.Fatalf("rules = %+v", doc.Rules)
	}
	testkit.MustContain(t, doc.Rules[1].Description, "> 250")
}
