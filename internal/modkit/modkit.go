package modkit

import (
	"net/http"

	"adperf/internal/modkit/httpkit"
	str "adperf/internal/platform/strings"
)

// Module is the surface api.Mount drives: routes, ports and a name
type Module interface {
	MountRoutes(r httpkit.Router)
	Ports() any
	Name() string
}

// Base carries the routing half every module shares
// embed it and provide Ports
type Base struct {
	Built
}

// NewBase applies defaults then caller options
func NewBase(defaults []Option, opts ...Option) Base {
	return Base{Built: Build(append(defaults, opts...)...)}
}

// MountRoutes mounts the module under its prefix with its own middleware
func (b Base) MountRoutes(r httpkit.Router) {
	r.Route(b.Prefix(), func(rr httpkit.Router) {
		if len(b.Mw) > 0 {
			rr.Use(b.Mw...)
		}
		b.Register(rr)
	})
}

// Name returns the module name
func (b Base) Name() string { return str.MustString(b.Built.Name, "module name") }

// Prefix returns the normalized route prefix
func (b Base) Prefix() string { return str.MustPrefix(b.Built.Prefix) }

// Middlewares returns the per module middleware chain
func (b Base) Middlewares() []func(http.Handler) http.Handler { return b.Mw }
