package module

import (
	"context"
	"net/http"
	"time"

	"adperf/internal/core/catalog"
	"adperf/internal/core/plan"
	"adperf/internal/core/rules"
	modkit "adperf/internal/modkit"
	"adperf/internal/modkit/httpkit"
	"adperf/internal/modkit/repokit"
	"adperf/internal/platform/config"
	perr "adperf/internal/platform/errors"
	"adperf/internal/services/api/kpi/repo"
	"adperf/internal/services/api/kpi/service"
)

// Options is the engine configuration, fixed at construction
type Options struct {
	// Registry is the dimension catalog; nil means the built in session catalog
	Registry *catalog.Registry

	Table          string
	MinPageviews   uint64
	DefaultContext string
	Contexts       []string

	// Timeout bounds each execution when the caller set no deadline
	Timeout    time.Duration
	Thresholds rules.Thresholds

	// Ledger records every execution in postgres when a pool is available
	Ledger bool
}

// FromConfig reads the KPI_ keys under cfg
func FromConfig(cfg config.Conf) (Options, error) {
	c := cfg.Prefix("KPI_")
	def := rules.DefaultThresholds()
	o := Options{
		Table:          c.MayString("TABLE", plan.DefaultTable),
		MinPageviews:   uint64(max(c.MayInt("MIN_PAGEVIEWS", plan.DefaultMinPageviews), 1)),
		DefaultContext: c.MayString("CONTEXT", plan.DefaultContext),
		Contexts:       c.MayCSV("CONTEXTS", nil),
		Timeout:        c.MayDuration("QUERY_TIMEOUT", service.DefaultTimeout),
		Thresholds: rules.Thresholds{
			TrafficMaxAvgTime:      c.MayFloat64("TRAFFIC_MAX_AVG_TIME", def.TrafficMaxAvgTime),
			TrafficMaxPageviews:    int64(c.MayInt("TRAFFIC_MAX_PAGEVIEWS", int(def.TrafficMaxPageviews))),
			ConversionMinPageviews: int64(c.MayInt("CONVERSION_MIN_PAGEVIEWS", int(def.ConversionMinPageviews))),
		},
		Ledger: c.MayBool("LEDGER", true),
	}
	if path := c.MayString("CATALOG_FILE", ""); path != "" {
		reg, err := catalog.Load(path)
		if err != nil {
			return Options{}, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "load dimension catalog %s", path)
		}
		o.Registry = reg
	}
	return o, nil
}

// EnsureSchema creates the query run ledger table
func EnsureSchema(ctx context.Context, db repokit.TxRunner) error {
	return repo.NewPG().Bind(db).EnsureSchema(ctx)
}

// Option is a configuration option for the kpi module
type Option = modkit.Option

// WithPrefix sets the route prefix for the module
func WithPrefix(prefix string) Option { return modkit.WithPrefix(prefix) }

// WithMiddlewares sets the middlewares for the module
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return modkit.WithMiddlewares(mw...)
}

// WithRegister mounts extra routes next to the kpi ones
func WithRegister(fn func(httpkit.Router)) Option { return modkit.WithRegister(fn) }
