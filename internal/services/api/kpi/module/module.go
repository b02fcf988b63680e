// Package module wires the kpi engine into the API using modkit
package module

import (
	"time"

	"adperf/internal/core/plan"
	modkit "adperf/internal/modkit"
	"adperf/internal/modkit/httpkit"
	"adperf/internal/modkit/repokit"
	kpihttp "adperf/internal/services/api/kpi/http"
	"adperf/internal/services/api/kpi/repo"
	"adperf/internal/services/api/kpi/service"
)

// Module implements the kpi module
type Module struct {
	modkit.Base

	ports Ports
	svc   *service.Svc
}

// ledgerStatementTimeout keeps a slow ledger from holding pool connections
const ledgerStatementTimeout = 3 * time.Second

// NewService builds the engine without any transport; the report cli uses it directly
func NewService(deps modkit.Deps, o Options) *service.Svc {
	plans := plan.New(plan.Config{
		Registry:       o.Registry,
		Table:          o.Table,
		MinPageviews:   o.MinPageviews,
		DefaultContext: o.DefaultContext,
		Contexts:       o.Contexts,
	})
	so := service.Options{Thresholds: o.Thresholds, Timeout: o.Timeout}
	if o.Ledger && deps.PG != nil {
		so.Ledger = repokit.WithBeginHooks(deps.PG, repokit.StatementTimeout(ledgerStatementTimeout))
		so.Runs = repo.NewPG()
	}
	return service.New(plans, repo.NewCH(deps.CH), so)
}

// New constructs the kpi module
func New(deps modkit.Deps, o Options, opts ...modkit.Option) modkit.Module {
	svc := NewService(deps, o)
	m := &Module{svc: svc, ports: Ports{Service: svc}}
	m.Base = modkit.NewBase([]modkit.Option{
		modkit.WithName("kpi"),
		modkit.WithPrefix("/kpi"),
		modkit.WithRegister(func(r httpkit.Router) { kpihttp.Register(r, svc) }),
	}, opts...)
	return m
}
