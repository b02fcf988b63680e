// @title         adperf API
// @version       0.1.0
// @description   Read only marketing KPI queries over session analytics

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adperf/internal/modkit/repokit"
	"adperf/internal/platform/config"
	"adperf/internal/platform/logger"
	phttp "adperf/internal/platform/net/http"
	"adperf/internal/platform/store"

	"adperf/internal/services/api"
	kpimod "adperf/internal/services/api/kpi/module"
)

func main() {
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	coreCfg := root.Prefix("CORE_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")      // pgCfg lives under SERVICE_PGSQL_*
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_") // chCfg lives under SERVICE_CLICKHOUSE_*
	// bring up logging early
	l := logger.Get()

	kpiOpts, err := kpimod.FromConfig(coreCfg)
	if err != nil {
		l.Panic().Err(err).Msg("kpi config")
	}

	// clickhouse is required; postgres only backs the query run ledger
	pgOn := pgCfg.MayBool("ENABLED", false)
	pg := store.PGConfig{Enabled: pgOn}
	if pgOn {
		pg.URL = pgCfg.MustString("DBURL")
		pg.MaxConns = int32(pgCfg.MayInt("MAX_CONNS", 4))
		pg.SlowQueryMs = pgCfg.MayInt("SLOW_MS", 500)
		pg.LogSQL = pgCfg.MayBool("LOG_SQL", false)
		pg.ConnectRetries = pgCfg.MayInt("CONNECT_RETRIES", 20)
		pg.PingTimeout = pgCfg.MayDuration("PING_TIMEOUT", 3*time.Second)
	}

	st, err := store.Open(
		context.Background(),
		store.Config{
			AppName: api.ServiceName,
			PG:      pg,
			CH: store.CHConfig{
				Enabled:     true,
				URL:         chCfg.MustString("DBURL"),
				ClientRole:  "api",
				ClientTag:   chCfg.MayString("CLIENT_TAG", ""),
				MaxOpenConn: chCfg.MayInt("MAX_OPEN_CONNS", 8),
			},
		},
		store.WithLogger(*logger.Get()),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// fail fast when a configured backend does not answer
	repokit.MustGuard(context.Background(), st)

	if kpiOpts.Ledger && st.PG != nil {
		if err := kpimod.EnsureSchema(context.Background(), st.PG); err != nil {
			l.Panic().Err(err).Msg("kpi ledger schema")
		}
	}

	// http server (reads CORE_API_PORT, CORE_API_WRITE_TIMEOUT, CORE_API_SHUTDOWN_GRACE)
	srv := phttp.NewServer(apiCfg)

	// mount our API
	api.Mount(
		srv.Router(),
		api.Options{
			Config:         apiCfg,
			Store:          st,
			Logger:         l,
			KPI:            kpiOpts,
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", false),
			EnableMetrics:  apiCfg.MayBool("METRICS", true),
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
