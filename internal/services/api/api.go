// Package api provides the HTTP API for the application
package api

import (
	"adperf/internal/platform/config"
	"adperf/internal/platform/logger"
	phttp "adperf/internal/platform/net/http"
	"adperf/internal/platform/store"

	"adperf/internal/modkit"
	"adperf/internal/modkit/httpkit"
	"adperf/internal/modkit/module"
	"adperf/internal/modkit/swaggerkit"

	kpimod "adperf/internal/services/api/kpi/module"
	metamod "adperf/internal/services/api/meta/module"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName is what meta endpoints and clickhouse client info report
const ServiceName = "adperf-api"

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	KPI            kpimod.Options
	EnableSwagger  bool
	EnableProfiler bool
	EnableMetrics  bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}
	if opt.Logger != nil {
		deps.Log = *opt.Logger
	}

	mods := []modkit.Module{
		metamod.New(deps, ServiceName),
		kpimod.New(deps, opt.KPI),
	}

	if opt.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}
