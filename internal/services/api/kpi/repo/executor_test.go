package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"adperf/internal/core/kpi"
	"adperf/internal/core/plan"
	perr "adperf/internal/platform/errors"
	"adperf/internal/platform/store"
	"adperf/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

type fakeRows struct {
	cols    []string
	data    [][]any
	i       int
	err     error
	scanErr error
	closed  bool
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(row))
	}
	for i, v := range row {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func (r *fakeRows) Err() error        { return r.err }
func (r *fakeRows) Close()            { r.closed = true }
func (r *fakeRows) Columns() []string { return r.cols }

type fakeCH struct {
	rows     *fakeRows
	err      error
	block    bool
	sql      string
	params   map[string]string
	settings map[string]any
}

func (f *fakeCH) Insert(context.Context, string, any) error { return nil }
func (f *fakeCH) Query(context.Context, string, ...any) (store.Rows, error) {
	return nil, errors.New("positional queries are not used")
}
func (f *fakeCH) QueryParams(ctx context.Context, sql string, p map[string]string, s map[string]any) (store.Rows, error) {
	f.sql, f.params, f.settings = sql, p, s
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("read: %w", ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}
func (f *fakeCH) Close() error { return nil }

func buildPlan(t *testing.T, dims ...string) plan.Plan {
	t.Helper()
	p, err := plan.New(plan.Config{}).Build(dims, &kpi.Range{Month: "2017-01", Start: "20170101", End: "20170131"}, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return p
}

func TestRun_ScansRows(t *testing.T) {
	p := buildPlan(t, "device_type", "user_country")
	f := &fakeCH{rows: &fakeRows{
		cols: p.Columns(),
		data: [][]any{
			{kpi.Str("desktop"), kpi.Str("Chile"), int64(10), int64(40), kpi.Float(33.5), int64(1)},
			{kpi.Str("mobile"), (*string)(nil), int64(3), int64(21), (*float64)(nil), int64(0)},
		},
	}}

	rows, st, err := NewCH(f).Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Rows != 2 {
		t.Fatalf("stats rows = %d", st.Rows)
	}
	want := []kpi.MetricRow{
		{Dims: kpi.Values{"device_type": kpi.Str("desktop"), "user_country": kpi.Str("Chile")}, Metrics: kpi.Metrics{TotalVisitors: 10, TotalPageviews: 40, AvgTimeOnSite: kpi.Float(33.5), TotalConversions: 1}},
		{Dims: kpi.Values{"device_type": kpi.Str("mobile"), "user_country": nil}, Metrics: kpi.Metrics{TotalVisitors: 3, TotalPageviews: 21}},
	}
	if d := cmp.Diff(want, rows); d != "" {
		t.Fatalf("rows (-want +got):\n%s", d)
	}
	if !f.rows.closed {
		t.Fatalf("rows not closed")
	}
	if f.params[plan.ParamSuffixStart] != "20170101" || f.sql != p.SQL {
		t.Fatalf("plan not forwarded as bound params: %v", f.params)
	}
	if f.settings != nil {
		t.Fatalf("no deadline means no execution cap, got %v", f.settings)
	}
}

func TestRun_ColumnMismatchIsParseError(t *testing.T) {
	p := buildPlan(t, "device_type")
	f := &fakeCH{rows: &fakeRows{cols: []string{"device_type", "visitors"}}}
	_, _, err := NewCH(f).Run(context.Background(), p)
	if !perr.IsCode(err, perr.ErrorCodeParse) {
		t.Fatalf("err = %v, want parse", err)
	}
}

func TestRun_ScanFailureIsParseError(t *testing.T) {
	p := buildPlan(t, "device_type")
	f := &fakeCH{rows: &fakeRows{
		cols:    p.Columns(),
		data:    [][]any{{kpi.Str("x"), int64(1), int64(20), (*float64)(nil), int64(0)}},
		scanErr: errors.New("cannot convert"),
	}}
	_, _, err := NewCH(f).Run(context.Background(), p)
	if !perr.IsCode(err, perr.ErrorCodeParse) {
		t.Fatalf("err = %v, want parse", err)
	}
}

func TestRun_NegativeCountIsParseError(t *testing.T) {
	p := buildPlan(t, "device_type")
	f := &fakeCH{rows: &fakeRows{
		cols: p.Columns(),
		data: [][]any{{kpi.Str("x"), int64(-1), int64(20), (*float64)(nil), int64(0)}},
	}}
	if _, _, err := NewCH(f).Run(context.Background(), p); !perr.IsCode(err, perr.ErrorCodeParse) {
		t.Fatalf("err = %v, want parse", err)
	}
}

func TestRun_BackendErrorIsExecutionError(t *testing.T) {
	boom := errors.New("code: 60, table does not exist")
	f := &fakeCH{err: boom}
	_, _, err := NewCH(f).Run(context.Background(), buildPlan(t, "medium"))
	if !perr.IsCode(err, perr.ErrorCodeExecution) {
		t.Fatalf("err = %v, want execution", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if !strings.Contains(err.Error(), "rows=0") {
		t.Fatalf("diagnostics missing from %q", err.Error())
	}
}

func TestRun_IterationErrorIsExecutionError(t *testing.T) {
	p := buildPlan(t, "medium")
	f := &fakeCH{rows: &fakeRows{cols: p.Columns(), err: errors.New("connection reset")}}
	if _, _, err := NewCH(f).Run(context.Background(), p); !perr.IsCode(err, perr.ErrorCodeExecution) {
		t.Fatalf("err = %v, want execution", err)
	}
}

func TestRun_DeadlineIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := &fakeCH{block: true}
	_, _, err := NewCH(f).Run(ctx, buildPlan(t, "medium"))
	if !perr.IsCode(err, perr.ErrorCodeTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("deadline cause lost: %v", err)
	}
	if f.settings["max_execution_time"] != 1 {
		t.Fatalf("execution cap not derived from deadline: %v", f.settings)
	}
}

func TestRun_CancelIsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeCH{block: true}
	_, _, err := NewCH(f).Run(ctx, buildPlan(t, "medium"))
	if !perr.IsCode(err, perr.ErrorCodeTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want timeout wrapping cancel", err)
	}
}

func TestRun_ElapsedUsesClock(t *testing.T) {
	p := buildPlan(t, "medium")
	f := &fakeCH{rows: &fakeRows{cols: p.Columns()}}
	e := NewCH(f)

	base := time.Unix(0, 0)
	calls := 0
	testkit.Swap(t, &e.now, func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 250 * time.Millisecond)
	})
	_, st, err := e.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Elapsed != 250*time.Millisecond || st.Rows != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNewCH_NilPanics(t *testing.T) {
	testkit.MustPanic(t, func() { NewCH(nil) })
}
