// Package http provides http transport for kpi queries
package http

import (
	"context"
	stdhttp "net/http"
	"strconv"

	"adperf/internal/modkit/httpkit"
	perr "adperf/internal/platform/errors"
	"adperf/internal/platform/logger"
	pnet "adperf/internal/platform/net"
	"adperf/internal/services/api/kpi/domain"
)

// Register mounts kpi endpoints on the given router
func Register(r httpkit.Router, s domain.ServicePort) {
	h := &handlers{svc: s}

	httpkit.Get(r, "/catalog", h.catalog)

	httpkit.PostJSON[domain.FetchInput](r, "/fetch", h.fetch)
	httpkit.PostJSON[domain.DiffInput](r, "/diff", h.diff)
	httpkit.PostJSON[domain.FlagInput](r, "/flag", h.flag)
	httpkit.PostJSON[domain.RankInput](r, "/rank", h.rank)

	// query run ledger
	httpkit.Get(r, "/runs", h.runs)
}

type handlers struct{ svc domain.ServicePort }

// opCtx tags downstream logs with the request id and operation
func opCtx(r *stdhttp.Request, op string) context.Context {
	return logger.WithRequest(r.Context(), pnet.RequestID(r.Context()), op)
}

// swagger:route GET /kpi/catalog KPI kpiCatalog
// @Summary Dimensions, KPIs and rules available to queries
// @Tags KPI
// @Produce json
// @Success 200 {object} domain.CatalogDoc "ok"
// @Router /kpi/catalog [get]
func (h *handlers) catalog(r *stdhttp.Request) (any, error) {
	return h.svc.Catalog(r.Context())
}

// swagger:route POST /kpi/fetch KPI kpiFetch
// @Summary Per segment KPIs for one month or the full history
// @Tags KPI
// @Accept json
// @Produce json
// @Param payload body domain.FetchInput true "Query"
// @Success 200 {object} domain.PeriodDoc "ok"
// @Failure 400 {object} httpkit.Envelope "invalid dimension, month or context"
// @Failure 502 {object} httpkit.Envelope "backend failure"
// @Failure 504 {object} httpkit.Envelope "backend timeout"
// @Router /kpi/fetch [post]
func (h *handlers) fetch(r *stdhttp.Request, in domain.FetchInput) (any, error) {
	return h.svc.Fetch(opCtx(r, "fetch"), in)
}

// swagger:route POST /kpi/diff KPI kpiDiff
// @Summary Month over month change per segment
// @Tags KPI
// @Accept json
// @Produce json
// @Param payload body domain.DiffInput true "Query"
// @Success 200 {object} domain.DiffDoc "ok"
// @Failure 400 {object} httpkit.Envelope "invalid dimension or month"
// @Failure 502 {object} httpkit.Envelope "backend failure"
// @Failure 504 {object} httpkit.Envelope "backend timeout"
// @Router /kpi/diff [post]
func (h *handlers) diff(r *stdhttp.Request, in domain.DiffInput) (any, error) {
	return h.svc.Diff(opCtx(r, "diff"), in)
}

// swagger:route POST /kpi/flag KPI kpiFlag
// @Summary Segments matching a named rule
// @Tags KPI
// @Accept json
// @Produce json
// @Param payload body domain.FlagInput true "Query"
// @Success 200 {object} domain.FlagDoc "ok"
// @Failure 400 {object} httpkit.Envelope "unknown rule or dimension"
// @Router /kpi/flag [post]
func (h *handlers) flag(r *stdhttp.Request, in domain.FlagInput) (any, error) {
	return h.svc.Flag(opCtx(r, "flag"), in)
}

// swagger:route POST /kpi/rank KPI kpiRank
// @Summary Country and device segments by conversion rate
// @Tags KPI
// @Accept json
// @Produce json
// @Param payload body domain.RankInput true "Query"
// @Success 200 {object} domain.RankDoc "ok"
// @Router /kpi/rank [post]
func (h *handlers) rank(r *stdhttp.Request, in domain.RankInput) (any, error) {
	return h.svc.Rank(opCtx(r, "rank"), in)
}

// swagger:route GET /kpi/runs KPI kpiRuns
// @Summary Recent query runs, newest first
// @Tags KPI
// @Produce json
// @Param limit query int false "1..500, default 50"
// @Success 200 {object} domain.RunsDoc "ok"
// @Router /kpi/runs [get]
func (h *handlers) runs(r *stdhttp.Request) (any, error) {
	var in domain.RunsInput
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, perr.WithField(perr.Validationf("limit must be an integer (got %q)", v), "limit")
		}
		in.Limit = n
	}
	return h.svc.Runs(opCtx(r, "runs"), in)
}
