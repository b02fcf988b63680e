package modkit

import (
	"adperf/internal/modkit/repokit"
	"adperf/internal/platform/config"
	"adperf/internal/platform/logger"
	"adperf/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// PG may be nil when the ledger is off, CH is required by kpi
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
}
