// Package http provides the meta endpoints: liveness, readiness and build info
package http

import (
	"context"
	"net/http"
	"time"

	"adperf/internal/core/version"
	"adperf/internal/modkit/httpkit"

	"golang.org/x/sync/errgroup"
)

// ReadyTimeout bounds the dependency pings behind /ready
const ReadyTimeout = 2 * time.Second

// Pinger is satisfied by store adapters that can report readiness
type Pinger interface {
	Ping(context.Context) error
}

// Deps are the handler dependencies
// PG is optional and only pinged when the run ledger is wired
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	PG          any
	CH          any
}

type handlers struct {
	deps Deps
}

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{deps: d}
	httpkit.Get(r, "/health", h.health)
	httpkit.Get(r, "/ready", h.ready)
	httpkit.Get(r, "/version", h.version)
	httpkit.Get(r, "/service", h.service)
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	OK      bool   `json:"ok" example:"true"`
	Service string `json:"service" example:"adperf-api"`
	Now     string `json:"now" example:"2026-10-01T13:05:00Z"`
}

// ReadyCheck is one dependency probe
type ReadyCheck struct {
	Name   string `json:"name" example:"clickhouse"`
	Status string `json:"status" example:"ok"` // ok fail skipped unknown
	Error  string `json:"error,omitempty" example:"dial tcp 127.0.0.1:9000: connect: connection refused"`
	Millis int64  `json:"ms" example:"3"`
}

// ReadyResponse summarizes readiness
type ReadyResponse struct {
	Status string       `json:"status" example:"ok"` // ok degraded fail
	Checks []ReadyCheck `json:"checks"`
}

// ServiceResponse describes the running process
type ServiceResponse struct {
	Name    string `json:"name" example:"adperf-api"`
	Started string `json:"started" example:"2026-10-01T13:00:00Z"`
	Uptime  int64  `json:"uptime" example:"300"`
}

// @Summary Health check
// @Tags Meta
// @Produce json
// @Success 200 {object} HealthResponse "ok"
// @Router /meta/health [get]
func (h *handlers) health(_ *http.Request) (any, error) {
	return HealthResponse{OK: true, Service: h.deps.ServiceName, Now: time.Now().UTC().Format(time.RFC3339)}, nil
}

// @Summary Readiness probe with dependency checks
// @Tags Meta
// @Produce json
// @Success 200 {object} ReadyResponse "ok"
// @Failure 503 {object} ReadyResponse "clickhouse down"
// @Router /meta/ready [get]
func (h *handlers) ready(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), ReadyTimeout)
	defer cancel()

	checks := []ReadyCheck{{Name: "clickhouse"}, {Name: "postgres"}}
	targets := []any{h.deps.CH, h.deps.PG}

	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			checks[i] = probe(ctx, checks[i].Name, targets[i])
			return nil
		})
	}
	_ = g.Wait()

	out := ReadyResponse{Status: "ok", Checks: checks}
	switch ch, pg := checks[0], checks[1]; {
	case ch.Status != "ok":
		// every kpi operation needs the warehouse
		out.Status = "fail"
		return httpkit.Response{Status: http.StatusServiceUnavailable, Body: out}, nil
	case pg.Status == "fail" || pg.Status == "unknown":
		out.Status = "degraded"
	}
	return out, nil
}

func probe(ctx context.Context, name string, target any) ReadyCheck {
	c := ReadyCheck{Name: name}
	p, ok := target.(Pinger)
	switch {
	case target == nil:
		c.Status = "skipped"
	case !ok:
		c.Status = "unknown"
	default:
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			c.Status, c.Error = "fail", err.Error()
		} else {
			c.Status = "ok"
		}
		c.Millis = time.Since(start).Milliseconds()
	}
	return c
}

// @Summary Build and version info
// @Tags Meta
// @Produce json
// @Success 200 {object} version.BuildInfo "ok"
// @Router /meta/version [get]
func (h *handlers) version(_ *http.Request) (any, error) {
	return version.Info(h.deps.ServiceName), nil
}

// @Summary Service info and uptime
// @Tags Meta
// @Produce json
// @Success 200 {object} ServiceResponse "ok"
// @Router /meta/service [get]
func (h *handlers) service(_ *http.Request) (any, error) {
	return ServiceResponse{
		Name:    h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(time.Since(h.deps.StartedAt) / time.Second),
	}, nil
}
