// Package modkit provides module wiring and core deps
package modkit

import (
	"net/http"

	"adperf/internal/modkit/httpkit"
)

// Option mutates build configuration for a module
type Option func(*Built)

// Built is what options resolve to
type Built struct {
	Name   string
	Prefix string
	Mw     []func(http.Handler) http.Handler

	// Register attaches endpoints to the module router; options chain onto it
	Register func(httpkit.Router)
}

// WithName sets a module name used in logs and the port registry
func WithName(name string) Option {
	return func(b *Built) { b.Name = name }
}

// WithPrefix mounts a module under a path prefix
func WithPrefix(prefix string) Option {
	return func(b *Built) { b.Prefix = prefix }
}

// WithMiddlewares attaches per module middleware in order
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(b *Built) { b.Mw = append(b.Mw, mw...) }
}

// WithRegister adds endpoints after whatever is already registered
func WithRegister(fn func(httpkit.Router)) Option {
	return func(b *Built) {
		if fn == nil {
			return
		}
		prev := b.Register
		b.Register = func(r httpkit.Router) {
			if prev != nil {
				prev(r)
			}
			fn(r)
		}
	}
}

// Build applies options in order
func Build(opts ...Option) Built {
	var b Built
	for _, o := range opts {
		o(&b)
	}
	if b.Register == nil {
		b.Register = func(httpkit.Router) {}
	}
	b.Mw = append([]func(http.Handler) http.Handler(nil), b.Mw...)
	return b
}
