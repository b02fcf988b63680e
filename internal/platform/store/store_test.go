package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	chx "adperf/internal/platform/store/ch"
	"adperf/internal/platform/store/pg"
	"adperf/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

type pingTx struct {
	TxRunner
	err    error
	closed bool
}

func (p *pingTx) Ping(context.Context) error { return p.err }
func (p *pingTx) Close() error               { p.closed = true; return nil }

func TestOpen_CHOnly(t *testing.T) {
	testkit.Serial(t)

	var seen chx.Config
	testkit.Swap(t, &chOpen, func(_ context.Context, c chx.Config) (*chx.CH, error) {
		seen = c
		return chx.FromConn(nil), nil
	})

	st, err := Open(context.Background(), Config{CH: CHConfig{
		Enabled: true, URL: "clickhouse://warehouse:9000/analytics", ClientRole: "api", ClientTag: "dev", MaxOpenConn: 3,
	}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.CH == nil || st.PG != nil {
		t.Fatalf("want ch only, got ch=%v pg=%v", st.CH, st.PG)
	}
	want := chx.Config{URL: "clickhouse://warehouse:9000/analytics", ClientRole: "api", ClientTag: "dev", MaxOpenConn: 3}
	if d := cmp.Diff(want, seen); d != "" {
		t.Fatalf("ch config (-want +got):\n%s", d)
	}
}

func TestOpen_Errors(t *testing.T) {
	testkit.Serial(t)

	boom := errors.New("connection refused")
	testkit.Swap(t, &chOpen, func(context.Context, chx.Config) (*chx.CH, error) { return nil, boom })
	if _, err := Open(context.Background(), Config{CH: CHConfig{Enabled: true, URL: "x"}}); !errors.Is(err, boom) {
		t.Fatalf("ch err = %v, want %v", err, boom)
	}

	testkit.Swap(t, &pgOpen, func(context.Context, pg.Config, pg.QueryTracer) (*pg.PG, error) { return nil, boom })
	if _, err := Open(context.Background(), Config{PG: PGConfig{Enabled: true, URL: "y"}}); !errors.Is(err, boom) {
		t.Fatalf("pg err = %v, want %v", err, boom)
	}
}

func TestRetryPing(t *testing.T) {
	calls := 0
	err := retryPing(context.Background(), 3, time.Second, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("starting up")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}

	err = retryPing(context.Background(), 2, time.Second, func(context.Context) error { return errors.New("down") })
	if err == nil || !strings.Contains(err.Error(), "after 2 attempts: down") {
		t.Fatalf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := retryPing(ctx, 5, time.Second, func(context.Context) error { return errors.New("down") }); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
}

func TestGuard(t *testing.T) {
	down := errors.New("down")
	cases := []struct {
		name string
		st   *Store
		want string
	}{
		{"nil store", nil, "nil store"},
		{"no backends", &Store{}, ""},
		{"pg ok", &Store{PG: &pingTx{}}, ""},
		{"pg down", &Store{PG: &pingTx{err: down}}, "pg: down"},
		{"ch down", &Store{CH: newCHAdapter(&fakeCH{pingErr: down})}, "ch: down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.st.Guard(context.Background())
			got := ""
			if err != nil {
				got = err.Error()
			}
			if got != tc.want {
				t.Fatalf("Guard = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClose(t *testing.T) {
	p := &pingTx{}
	st := &Store{PG: p, CH: newCHAdapter(&fakeCH{})}
	if err := st.Close(context.Background()); err != nil || !p.closed {
		t.Fatalf("Close err=%v closed=%v", err, p.closed)
	}
}

type sliceRows struct {
	data [][]any
	i    int
	err  error
}

func (r *sliceRows) Next() bool        { r.i++; return r.i <= len(r.data) }
func (r *sliceRows) Err() error        { return r.err }
func (r *sliceRows) Close()            {}
func (r *sliceRows) Columns() []string { return []string{"op", "rows"} }
func (r *sliceRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*int) = row[1].(int)
	return nil
}

type rowsQ struct {
	RowQuerier
	rows *sliceRows
}

func (q rowsQ) Query(context.Context, string, ...any) (Rows, error) { return q.rows, nil }

func TestMany(t *testing.T) {
	type run struct {
		Op   string
		Rows int
	}
	scan := func(r Row) (run, error) {
		var x run
		return x, r.Scan(&x.Op, &x.Rows)
	}

	q := rowsQ{rows: &sliceRows{data: [][]any{{"fetch", 12}, {"rank", 3}}}}
	got, err := Many(context.Background(), q, scan, "select op, rows from kpi_query_runs")
	if err != nil {
		t.Fatalf("Many: %v", err)
	}
	if d := cmp.Diff([]run{{"fetch", 12}, {"rank", 3}}, got); d != "" {
		t.Fatalf("Many (-want +got):\n%s", d)
	}

	iterErr := errors.New("conn reset")
	q = rowsQ{rows: &sliceRows{err: iterErr}}
	if _, err := Many(context.Background(), q, scan, "select 1"); !errors.Is(err, iterErr) {
		t.Fatalf("err = %v, want %v", err, iterErr)
	}
}
