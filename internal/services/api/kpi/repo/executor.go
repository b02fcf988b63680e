// Package repo runs aggregation plans against clickhouse and records query runs in postgres
package repo

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"adperf/internal/core/kpi"
	"adperf/internal/core/plan"
	perr "adperf/internal/platform/errors"
	"adperf/internal/platform/logger"
	"adperf/internal/platform/store"
)

// Stats describes one execution for observability
type Stats struct {
	Elapsed time.Duration
	Rows    int
}

// Executor runs a plan and returns one MetricRow per segment
type Executor interface {
	Run(ctx context.Context, p plan.Plan) ([]kpi.MetricRow, Stats, error)
}

// CH executes plans on the clickhouse seam with server side bound parameters
type CH struct {
	ch  store.Clickhouse
	now func() time.Time
}

var _ Executor = (*CH)(nil)

// NewCH constructs the clickhouse executor
func NewCH(ch store.Clickhouse) *CH {
	if ch == nil {
		panic("kpi.repo requires a non nil Clickhouse")
	}
	return &CH{ch: ch, now: time.Now}
}

// Run executes p once; there are no retries
func (e *CH) Run(ctx context.Context, p plan.Plan) ([]kpi.MetricRow, Stats, error) {
	start := e.now()
	scope := string(p.Scope)
	log := logger.C(ctx).With().Str("component", "kpi.exec").Str("scope", scope).Strs("dims", p.Dimensions).Logger()

	rows, err := e.ch.QueryParams(ctx, p.SQL, p.Params, settingsFor(ctx))
	if err != nil {
		return nil, e.stats(start, 0), e.fail(ctx, &log, start, 0, err)
	}
	defer rows.Close()

	want := p.Columns()
	if got := rows.Columns(); !slices.Equal(got, want) {
		queryErrors.WithLabelValues("parse").Inc()
		log.Error().Strs("got", got).Strs("want", want).Msg("result columns mismatch")
		return nil, e.stats(start, 0), perr.Parsef("result columns %v do not match %v", got, want)
	}

	out := make([]kpi.MetricRow, 0, 64)
	n := len(p.Dimensions)
	for rows.Next() {
		dims := make([]*string, n)
		var (
			visitors, pageviews, conversions int64
			avg                              *float64
		)
		dest := make([]any, 0, n+4)
		for i := range dims {
			dest = append(dest, &dims[i])
		}
		dest = append(dest, &visitors, &pageviews, &avg, &conversions)
		if err := rows.Scan(dest...); err != nil {
			queryErrors.WithLabelValues("parse").Inc()
			log.Error().Err(err).Int("row", len(out)).Msg("scan failed")
			return nil, e.stats(start, len(out)), perr.Wrapf(err, perr.ErrorCodeParse, "scan row %d", len(out))
		}
		if err := checkRow(visitors, pageviews, conversions, avg); err != nil {
			queryErrors.WithLabelValues("parse").Inc()
			return nil, e.stats(start, len(out)), perr.Wrapf(err, perr.ErrorCodeParse, "row %d", len(out))
		}

		row := kpi.MetricRow{
			Dims: make(kpi.Values, n),
			Metrics: kpi.Metrics{
				TotalVisitors:    visitors,
				TotalPageviews:   pageviews,
				AvgTimeOnSite:    avg,
				TotalConversions: conversions,
			},
		}
		for i, d := range p.Dimensions {
			row.Dims[d] = dims[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, e.stats(start, len(out)), e.fail(ctx, &log, start, len(out), err)
	}

	st := e.stats(start, len(out))
	queryDuration.WithLabelValues(scope).Observe(st.Elapsed.Seconds())
	queryRows.WithLabelValues(scope).Add(float64(st.Rows))
	log.Info().Dur("elapsed", st.Elapsed).Int("rows", st.Rows).Str("context", p.Context).Msg("aggregation done")
	return out, st, nil
}

func (e *CH) stats(start time.Time, rows int) Stats {
	return Stats{Elapsed: e.now().Sub(start), Rows: rows}
}

// fail classifies a backend error; cancellation and deadlines become timeouts
func (e *CH) fail(ctx context.Context, log *logger.Logger, start time.Time, rows int, err error) error {
	elapsed := e.now().Sub(start)
	if cerr := ctx.Err(); cerr != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		queryErrors.WithLabelValues("timeout").Inc()
		log.Warn().Err(err).Dur("elapsed", elapsed).Int("rows", rows).Msg("aggregation cancelled")
		return perr.Wrapf(errors.Join(cerr, err), perr.ErrorCodeTimeout,
			"query timed out after %s (rows=%d)", elapsed.Round(time.Millisecond), rows)
	}
	queryErrors.WithLabelValues("execution").Inc()
	log.Error().Err(err).Dur("elapsed", elapsed).Int("rows", rows).Msg("aggregation failed")
	return perr.Wrapf(err, perr.ErrorCodeExecution, "query failed after %s (rows=%d)", elapsed.Round(time.Millisecond), rows)
}

// settingsFor caps server side execution at the caller deadline
func settingsFor(ctx context.Context) map[string]any {
	dl, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	secs := int(math.Ceil(time.Until(dl).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return map[string]any{"max_execution_time": secs}
}

func checkRow(visitors, pageviews, conversions int64, avg *float64) error {
	switch {
	case visitors < 0 || pageviews < 0 || conversions < 0:
		return errors.New("negative count")
	case avg != nil && (math.IsNaN(*avg) || math.IsInf(*avg, 0)):
		return errors.New("non finite average")
	}
	return nil
}
