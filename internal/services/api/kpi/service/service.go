// Package service contains the kpi workflows: fetch, diff, flag and rank
package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"adperf/internal/core/catalog"
	"adperf/internal/core/diff"
	"adperf/internal/core/kpi"
	"adperf/internal/core/month"
	"adperf/internal/core/plan"
	"adperf/internal/core/rank"
	"adperf/internal/core/rules"
	"adperf/internal/modkit/repokit"
	perr "adperf/internal/platform/errors"
	"adperf/internal/platform/logger"
	"adperf/internal/services/api/kpi/domain"
	"adperf/internal/services/api/kpi/repo"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Defaults
const (
	DefaultTimeout   = 60 * time.Second
	DefaultRunsLimit = 50
	ledgerTimeout    = 5 * time.Second
)

// Service defines the kpi service contract
type Service interface {
	domain.ServicePort
}

// Options are fixed at construction
type Options struct {
	Thresholds rules.Thresholds

	// Timeout bounds each execution when the caller set no deadline
	Timeout time.Duration

	// Ledger is nil when postgres is disabled
	Ledger repokit.TxRunner
	Runs   repokit.Binder[repo.Runs]
}

// Svc implements the kpi service
type Svc struct {
	plans *plan.Builder
	exec  repo.Executor
	opts  Options

	now   func() time.Time
	newID func() string
}

var _ Service = (*Svc)(nil)

// New constructs a kpi service
func New(plans *plan.Builder, exec repo.Executor, opts Options) *Svc {
	if plans == nil {
		panic("kpi.Service requires a non nil plan Builder")
	}
	if exec == nil {
		panic("kpi.Service requires a non nil Executor")
	}
	if opts.Ledger != nil && opts.Runs == nil {
		panic("kpi.Service requires a Runs binder when the ledger is on")
	}
	if opts.Thresholds == (rules.Thresholds{}) {
		opts.Thresholds = rules.DefaultThresholds()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Svc{plans: plans, exec: exec, opts: opts, now: time.Now, newID: uuid.NewString}
}

// Catalog describes the dimensions, KPIs and rules callers may use
func (s *Svc) Catalog(context.Context) (domain.CatalogDoc, error) {
	reg := s.plans.Registry()
	dims := make([]domain.DimensionDoc, 0, len(reg.IDs()))
	for _, d := range reg.Dimensions() {
		dims = append(dims, domain.DimensionDoc{ID: d.ID, Doc: d.Doc})
	}
	th := s.opts.Thresholds
	rs := make([]domain.RuleDoc, 0, len(rules.Names))
	for _, name := range rules.Names {
		r, _ := rules.Parse(name, th)
		rs = append(rs, domain.RuleDoc{Name: r.Name(), Description: describe(r), Uses: r.Uses()})
	}
	ctxName, _ := s.plans.Context("")
	return domain.CatalogDoc{
		Dimensions:     dims,
		KPIs:           kpi.All,
		Rules:          rs,
		MinPageviews:   s.plans.MinPageviews(),
		DefaultContext: ctxName,
	}, nil
}

// Fetch returns per segment KPIs for one month or, with no month, the full history
func (s *Svc) Fetch(ctx context.Context, in domain.FetchInput) (domain.PeriodDoc, error) {
	r, err := month.ResolveOptional(in.Month)
	if err != nil {
		return domain.PeriodDoc{}, err
	}
	p, err := s.plans.Build(in.Dimensions, r, in.Context)
	if err != nil {
		return domain.PeriodDoc{}, err
	}
	res, err := s.period(ctx, "fetch", p)
	if err != nil {
		return domain.PeriodDoc{}, err
	}
	m := ""
	if r != nil {
		m = r.Month
	}
	return domain.PeriodDoc{
		Scope:      res.Scope,
		Month:      m,
		Range:      res.Range,
		Dimensions: res.Dimensions,
		KPIs:       kpi.All,
		RowCount:   len(res.Rows),
		Rows:       res.Rows,
		Notes:      notes(p, len(res.Rows)),
	}, nil
}

// Diff compares two months segment by segment; both periods are fetched concurrently
func (s *Svc) Diff(ctx context.Context, in domain.DiffInput) (domain.DiffDoc, error) {
	ra, err := month.Resolve(in.MonthA)
	if err != nil {
		return domain.DiffDoc{}, perr.WithField(err, "month_a")
	}
	rb, err := month.Resolve(in.MonthB)
	if err != nil {
		return domain.DiffDoc{}, perr.WithField(err, "month_b")
	}
	pa, err := s.plans.Build(in.Dimensions, &ra, in.Context)
	if err != nil {
		return domain.DiffDoc{}, err
	}
	pb, err := s.plans.Build(in.Dimensions, &rb, in.Context)
	if err != nil {
		return domain.DiffDoc{}, err
	}

	var a, b kpi.PeriodResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = s.period(gctx, "diff", pa)
		return err
	})
	g.Go(func() (err error) {
		b, err = s.period(gctx, "diff", pb)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DiffDoc{}, err
	}

	rows, err := diff.Periods(a, b, ra.Month, rb.Month)
	if err != nil {
		return domain.DiffDoc{}, perr.Wrap(err, perr.ErrorCodeUnknown, "diff periods")
	}
	logger.C(ctx).Debug().Str("op", "diff").Int("a", len(a.Rows)).Int("b", len(b.Rows)).Int("union", len(rows)).Msg("periods merged")
	return domain.DiffDoc{
		Scope:      kpi.ScopeMonth,
		MonthA:     ra.Month,
		MonthB:     rb.Month,
		RangeA:     ra,
		RangeB:     rb,
		Dimensions: pa.Dimensions,
		KPIs:       kpi.All,
		RowCount:   len(rows),
		Rows:       rows,
		Notes:      []domain.Notes{notes(pa, len(a.Rows)), notes(pb, len(b.Rows))},
	}, nil
}

// Flag evaluates a named rule over the full history
func (s *Svc) Flag(ctx context.Context, in domain.FlagInput) (domain.FlagDoc, error) {
	rule, err := rules.Parse(in.Rule, s.opts.Thresholds)
	if err != nil {
		return domain.FlagDoc{}, err
	}
	dims := in.Dimensions
	if len(dims) == 0 {
		dims = rules.DefaultDimensions
	}
	if slices.Contains(dims, catalog.UserCountry) {
		return domain.FlagDoc{}, perr.WithField(perr.Wrapf(catalog.ErrInvalidDimension, perr.ErrorCodeValidation,
			"rules are evaluated without %s", catalog.UserCountry), "dimensions")
	}
	p, err := s.plans.Build(dims, nil, in.Context)
	if err != nil {
		return domain.FlagDoc{}, err
	}
	res, err := s.period(ctx, "flag", p)
	if err != nil {
		return domain.FlagDoc{}, err
	}
	flagged := rules.Evaluate(rule, res.Rows, p.Dimensions)
	logger.C(ctx).Debug().Str("op", "flag").Str("rule", rule.Name()).Int("rows", len(res.Rows)).Int("flagged", len(flagged)).Msg("rule evaluated")
	return domain.FlagDoc{
		Rule:       rule.Name(),
		Scope:      res.Scope,
		Dimensions: p.Dimensions,
		KPIs:       rule.Uses(),
		RowCount:   len(flagged),
		Rows:       flagged,
		Notes:      notes(p, len(res.Rows)),
	}, nil
}

// Rank orders country and device segments by conversion rate, highest first
func (s *Svc) Rank(ctx context.Context, in domain.RankInput) (domain.RankDoc, error) {
	r, err := month.ResolveOptional(in.Month)
	if err != nil {
		return domain.RankDoc{}, err
	}
	p, err := s.plans.Build(rank.Dimensions, r, in.Context)
	if err != nil {
		return domain.RankDoc{}, err
	}
	res, err := s.period(ctx, "rank", p)
	if err != nil {
		return domain.RankDoc{}, err
	}
	ranked := rank.ByConversionRate(res.Rows, p.Dimensions)
	m := ""
	if r != nil {
		m = r.Month
	}
	return domain.RankDoc{
		Scope:      res.Scope,
		Month:      m,
		Range:      res.Range,
		Dimensions: p.Dimensions,
		RowCount:   len(ranked),
		Rows:       ranked,
		Notes:      notes(p, len(res.Rows)),
	}, nil
}

// Runs lists recent ledger entries; a disabled ledger yields an empty document
func (s *Svc) Runs(ctx context.Context, in domain.RunsInput) (domain.RunsDoc, error) {
	if s.opts.Ledger == nil {
		return domain.RunsDoc{Rows: []domain.RunRow{}}, nil
	}
	limit := in.Limit
	if limit == 0 {
		limit = DefaultRunsLimit
	}
	if limit < 1 || limit > 500 {
		return domain.RunsDoc{}, perr.WithField(perr.Validationf("limit must be between 1 and 500 (got %d)", limit), "limit")
	}
	runs, err := s.opts.Runs.Bind(s.opts.Ledger).Recent(ctx, limit)
	if err != nil {
		return domain.RunsDoc{}, perr.FromPostgres(err, "list query runs")
	}
	out := make([]domain.RunRow, 0, len(runs))
	for _, r := range runs {
		out = append(out, domain.RunRow{
			ID:         r.ID,
			Op:         r.Op,
			Scope:      r.Scope,
			Dimensions: r.Dimensions,
			RangeStart: r.RangeStart,
			RangeEnd:   r.RangeEnd,
			Context:    r.Context,
			Rows:       r.Rows,
			ElapsedMs:  r.ElapsedMs,
			Status:     r.Status,
			Error:      r.Error,
			CreatedAt:  r.CreatedAt,
		})
	}
	return domain.RunsDoc{Enabled: true, RowCount: len(out), Rows: out}, nil
}

// period runs one plan under the configured timeout and records the run
func (s *Svc) period(ctx context.Context, op string, p plan.Plan) (kpi.PeriodResult, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	rows, st, err := s.exec.Run(ctx, p)
	s.record(ctx, op, p, st, err)
	if err != nil {
		return kpi.PeriodResult{}, err
	}
	return kpi.PeriodResult{Scope: p.Scope, Range: p.Range, Dimensions: p.Dimensions, Rows: rows}, nil
}

// record writes one ledger entry; failures are logged and never change the outcome
func (s *Svc) record(ctx context.Context, op string, p plan.Plan, st repo.Stats, runErr error) {
	if s.opts.Ledger == nil {
		return
	}
	run := repo.Run{
		ID:         s.newID(),
		Op:         op,
		Scope:      string(p.Scope),
		Dimensions: p.Dimensions,
		Context:    p.Context,
		Rows:       st.Rows,
		ElapsedMs:  st.Elapsed.Milliseconds(),
		Status:     repo.StatusOK,
		CreatedAt:  s.now().UTC(),
	}
	if p.Range != nil {
		run.RangeStart, run.RangeEnd = p.Range.Start, p.Range.End
	}
	if runErr != nil {
		run.Status, run.Error = repo.StatusError, runErr.Error()
		if perr.IsCode(runErr, perr.ErrorCodeTimeout) {
			run.Status = repo.StatusTimeout
		}
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	err := repokit.WithTx(wctx, s.opts.Ledger, func(q repokit.Queryer) error {
		return s.opts.Runs.Bind(q).Insert(wctx, run)
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("op", op).Str("run_id", run.ID).Msg("query run not recorded")
	}
}

func notes(p plan.Plan, rows int) domain.Notes {
	n := domain.Notes{
		Source: p.Params[plan.ParamDB] + "." + p.Params[plan.ParamTable],
		Having: p.Having(),
		Rows:   rows,
	}
	if p.Range != nil {
		n.TableSuffixFilter = p.Range.Start + ".." + p.Range.End
	}
	return n
}

func describe(r rules.Rule) string {
	switch r := r.(type) {
	case rules.Traffic:
		return fmt.Sprintf("avg_time_on_site_seconds < %g and total_pageviews < %d", r.MaxAvgTime, r.MaxPageviews)
	case rules.Conversion:
		return fmt.Sprintf("total_conversions == 0 and total_pageviews > %d", r.MinPageviews)
	}
	return r.Name()
}
