// Package module wires meta endpoints into the API
package module

import (
	"time"

	modkit "adperf/internal/modkit"
	"adperf/internal/modkit/httpkit"
	str "adperf/internal/platform/strings"

	metahttp "adperf/internal/services/api/meta/http"
)

// Module serves liveness, readiness and build info
type Module struct {
	modkit.Base
}

// New constructs a meta module reporting as service
func New(deps modkit.Deps, service string, opts ...modkit.Option) modkit.Module {
	d := metahttp.Deps{
		ServiceName: str.MustString(service, "service name"),
		StartedAt:   time.Now(),
		PG:          deps.PG,
		CH:          deps.CH,
	}
	return &Module{Base: modkit.NewBase([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
		modkit.WithRegister(func(r httpkit.Router) { metahttp.Register(r, d) }),
	}, opts...)}
}

// Ports implements modkit.Module; meta exposes none
func (m *Module) Ports() any { return nil }
