package store

import (
	"context"
	"errors"

	"adperf/internal/platform/store/ch"
)

// chClient is the slice of *ch.CH the adapter needs
type chClient interface {
	Insert(ctx context.Context, table string, rows [][]any) error
	QueryParams(ctx context.Context, sql string, params map[string]string, settings map[string]any) (ch.Rows, error)
	Query(ctx context.Context, sql string, args ...any) (ch.Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ chClient   = (*ch.CH)(nil)
	_ Clickhouse = (*chAdapter)(nil)
	_ Pinger     = (*chAdapter)(nil)
)

// chAdapter narrows *ch.CH to the Clickhouse seam
type chAdapter struct{ inner chClient }

func newCHAdapter(c chClient) Clickhouse { return &chAdapter{inner: c} }

// Insert accepts rows as [][]any, one slice per row in column order
func (a *chAdapter) Insert(ctx context.Context, table string, data any) error {
	rs, ok := data.([][]any)
	if !ok {
		return errors.New("store: clickhouse insert wants [][]any")
	}
	return a.inner.Insert(ctx, table, rs)
}

func (a *chAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return chRows(a.inner.Query(ctx, sql, args...))
}

func (a *chAdapter) QueryParams(ctx context.Context, sql string, params map[string]string, settings map[string]any) (Rows, error) {
	return chRows(a.inner.QueryParams(ctx, sql, params, settings))
}

func (a *chAdapter) Ping(ctx context.Context) error {
	if a == nil || a.inner == nil {
		return errors.New("store: nil clickhouse adapter")
	}
	return a.inner.Ping(ctx)
}

func (a *chAdapter) Close() error { return a.inner.Close() }

func chRows(r ch.Rows, err error) (Rows, error) {
	if err != nil {
		return nil, err
	}
	return closeQuiet{r}, nil
}

// closeQuiet drops the Close error clickhouse rows return
type closeQuiet struct{ ch.Rows }

func (r closeQuiet) Close() { _ = r.Rows.Close() }
