// Package plan builds the bound aggregation query for a dimension set and optional month range
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"adperf/internal/core/catalog"
	"adperf/internal/core/kpi"
	perr "adperf/internal/platform/errors"
	"adperf/internal/platform/logger"

	"github.com/samber/lo"
)

// ErrQueryBuild is wrapped by every plan construction failure
var ErrQueryBuild = errors.New("query build failed")

// Defaults
const (
	DefaultMinPageviews = 20
	DefaultTable        = "ga_sessions"
	DefaultContext      = "analytics"
)

// Bound parameter names
const (
	ParamDB           = "ctx_db"
	ParamTable        = "ctx_table"
	ParamSuffixStart  = "suffix_start"
	ParamSuffixEnd    = "suffix_end"
	ParamMinPageviews = "min_pageviews"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// Config is fixed at construction; nothing here is caller controlled per request
type Config struct {
	Registry *catalog.Registry

	// Table holds one row per session, partitioned by YYYYMMDD date
	Table string

	// MinPageviews is the quality floor applied to every segment
	MinPageviews uint64

	// DefaultContext is the database used when a request names none
	DefaultContext string

	// Contexts is the allowlist of databases a request may name
	Contexts []string
}

// Plan is a ready to run query and its bound parameters
type Plan struct {
	SQL        string
	Params     map[string]string
	Dimensions []string
	Scope      kpi.Scope
	Range      *kpi.Range
	Context    string
}

// Columns is the result schema the query produces, in order
func (p Plan) Columns() []string {
	out := append([]string(nil), p.Dimensions...)
	for _, k := range kpi.All {
		out = append(out, string(k))
	}
	return out
}

// Having describes the quality floor for result notes
func (p Plan) Having() string {
	return "total_pageviews >= " + p.Params[ParamMinPageviews]
}

// Builder turns validated inputs into plans
type Builder struct {
	cfg Config
	log *logger.Logger
}

// New applies defaults and returns a Builder; an invalid static config panics
func New(cfg Config) *Builder {
	if cfg.Registry == nil {
		cfg.Registry = catalog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.MinPageviews == 0 {
		cfg.MinPageviews = DefaultMinPageviews
	}
	if cfg.DefaultContext == "" {
		cfg.DefaultContext = DefaultContext
	}
	cfg.Contexts = lo.Uniq(append([]string{cfg.DefaultContext}, cfg.Contexts...))
	for _, id := range append([]string{cfg.Table}, cfg.Contexts...) {
		if !identPattern.MatchString(id) {
			panic(fmt.Sprintf("plan: bad identifier %q", id))
		}
	}
	return &Builder{cfg: cfg, log: logger.Named("kpi.plan")}
}

// Registry returns the dimension catalog the builder validates against
func (b *Builder) Registry() *catalog.Registry { return b.cfg.Registry }

// MinPageviews returns the configured quality floor
func (b *Builder) MinPageviews() uint64 { return b.cfg.MinPageviews }

// Context resolves a requested execution context against the allowlist
func (b *Builder) Context(name string) (string, error) {
	if name == "" {
		return b.cfg.DefaultContext, nil
	}
	if !lo.Contains(b.cfg.Contexts, name) {
		return "", perr.WithField(perr.Wrapf(kpi.ErrInvalidContext, perr.ErrorCodeValidation,
			"unknown execution context %q, allowed %v", name, b.cfg.Contexts), "context")
	}
	return name, nil
}

// Build validates dims and produces the plan; r nil means the full history
func (b *Builder) Build(dims []string, r *kpi.Range, execCtx string) (Plan, error) {
	dims, err := b.cfg.Registry.Validate(dims)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrQueryBuild, err)
	}
	db, err := b.Context(execCtx)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrQueryBuild, err)
	}

	params := map[string]string{
		ParamDB:           db,
		ParamTable:        b.cfg.Table,
		ParamMinPageviews: strconv.FormatUint(b.cfg.MinPageviews, 10),
	}
	scope := kpi.ScopeAll
	if r != nil {
		scope = kpi.ScopeMonth
		params[ParamSuffixStart] = r.Start
		params[ParamSuffixEnd] = r.End
	}

	exprs := make([]string, len(dims))
	for i, d := range dims {
		e, _ := b.cfg.Registry.Expr(d)
		exprs[i] = e
	}

	sql := render(dims, exprs, r != nil)
	b.log.Debug().Strs("dims", dims).Str("scope", string(scope)).Str("context", db).Msg("plan built")
	b.log.Trace().Str("sql", sql).Interface("params", params).Msg("plan sql")

	return Plan{
		SQL:        sql,
		Params:     params,
		Dimensions: dims,
		Scope:      scope,
		Range:      r,
		Context:    db,
	}, nil
}

// render writes the six stage aggregation
// session metrics are computed once per (session, segment) so extra hits only grow pageviews
func render(dims, exprs []string, ranged bool) string {
	source := "{" + ParamDB + ":Identifier}.{" + ParamTable + ":Identifier}"
	dateFilter := ""
	if ranged {
		dateFilter = "\n    AND date BETWEEN {" + ParamSuffixStart + ":String} AND {" + ParamSuffixEnd + ":String}"
	}

	projected := make([]string, len(dims))
	for i := range dims {
		projected[i] = fmt.Sprintf("CAST(%s AS Nullable(String)) AS %s", exprs[i], dims[i])
	}
	dimList := strings.Join(dims, ", ")
	prefixed := func(alias string) string {
		return strings.Join(lo.Map(dims, func(d string, _ int) string { return alias + "." + d + " AS " + d }), ", ")
	}
	joinOn := strings.Join(lo.Map(dims, func(d string, _ int) string {
		return "isNotDistinctFrom(p." + d + ", s." + d + ")"
	}), " AND ")

	return `WITH
sessions AS (
  SELECT
    fullVisitorId,
    visitId,
    totals.timeOnSite AS time_on_site,
    totals.transactions AS transactions
  FROM ` + source + `
  WHERE trafficSource.source IS NOT NULL
    AND trafficSource.medium IS NOT NULL
    AND totals.visits >= 1` + dateFilter + `
),
pageview_hits AS (
  SELECT
    fullVisitorId,
    visitId,
    ` + strings.Join(projected, ",\n    ") + `
  FROM ` + source + `
  ARRAY JOIN hits AS ` + catalog.HitAlias + `
  WHERE trafficSource.source IS NOT NULL
    AND trafficSource.source != '(not set)'
    AND trafficSource.medium IS NOT NULL
    AND trafficSource.medium NOT IN ('(not set)', '(none)')
    AND totals.visits >= 1
    AND ` + catalog.HitAlias + `.type = 'PAGE'` + dateFilter + `
),
session_dims AS (
  SELECT DISTINCT fullVisitorId, visitId, ` + dimList + `
  FROM pageview_hits
),
pageviews_agg AS (
  SELECT ` + dimList + `, count() AS total_pageviews
  FROM pageview_hits
  GROUP BY ` + dimList + `
),
sessions_agg AS (
  SELECT
    ` + prefixed("d") + `,
    uniqExact(d.fullVisitorId) AS total_visitors,
    CAST(avg(s.time_on_site) AS Nullable(Float64)) AS avg_time_on_site_seconds,
    uniqExactIf((d.fullVisitorId, d.visitId), ifNull(s.transactions, 0) >= 1) AS total_conversions
  FROM session_dims AS d
  INNER JOIN sessions AS s ON s.fullVisitorId = d.fullVisitorId AND s.visitId = d.visitId
  GROUP BY ` + dimList + `
)
SELECT
  ` + prefixed("p") + `,
  toInt64(s.total_visitors) AS total_visitors,
  toInt64(p.total_pageviews) AS total_pageviews,
  s.avg_time_on_site_seconds AS avg_time_on_site_seconds,
  toInt64(s.total_conversions) AS total_conversions
FROM pageviews_agg AS p
INNER JOIN sessions_agg AS s ON ` + joinOn + `
WHERE p.total_pageviews >= {` + ParamMinPageviews + `:UInt64}
ORDER BY total_pageviews DESC, ` + dimList + `
`
}
