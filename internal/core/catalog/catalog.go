// Package catalog holds the dimension allowlist and the source expression behind each id
package catalog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	perr "adperf/internal/platform/errors"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDimension is wrapped by every dimension validation failure
var ErrInvalidDimension = errors.New("invalid dimension")

// Dimension ids usable to group metrics
const (
	TrafficSource = "traffic_source"
	UserCountry   = "user_country"
	Medium        = "medium"
	DeviceType    = "device_type"
	PageTitle     = "page_title"
)

// HitAlias is the alias the query plan gives the array joined hit
// expressions over hit fields must be written against it
const HitAlias = "h"

// Dimension maps an id to the expression that produces its value
type Dimension struct {
	ID   string `yaml:"id" json:"id"`
	Expr string `yaml:"expr" json:"expr"`
	// Doc is a short human description
	Doc string `yaml:"doc,omitempty" json:"doc,omitempty"`
}

// Registry is an immutable ordered set of dimensions
type Registry struct {
	dims  []Dimension
	index map[string]Dimension
}

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// New builds a registry, rejecting duplicate or malformed ids and empty expressions
func New(dims ...Dimension) (*Registry, error) {
	if len(dims) == 0 {
		return nil, errors.New("catalog: no dimensions")
	}
	r := &Registry{index: make(map[string]Dimension, len(dims))}
	for _, d := range dims {
		d.ID = strings.TrimSpace(d.ID)
		d.Expr = strings.TrimSpace(d.Expr)
		if !idPattern.MatchString(d.ID) {
			return nil, fmt.Errorf("catalog: bad dimension id %q", d.ID)
		}
		if d.Expr == "" {
			return nil, fmt.Errorf("catalog: dimension %q has no expression", d.ID)
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate dimension %q", d.ID)
		}
		r.index[d.ID] = d
		r.dims = append(r.dims, d)
	}
	return r, nil
}

// MustNew is New that panics, for static catalogs
func MustNew(dims ...Dimension) *Registry {
	r, err := New(dims...)
	if err != nil {
		panic(err)
	}
	return r
}

// Default is the session dataset catalog
func Default() *Registry {
	return MustNew(
		Dimension{ID: TrafficSource, Expr: "trafficSource.source", Doc: "referral source"},
		// "(not set)" is folded into null
		Dimension{ID: UserCountry, Expr: "nullIf(geoNetwork.country, '(not set)')", Doc: "visitor country"},
		Dimension{ID: Medium, Expr: "trafficSource.medium", Doc: "acquisition medium"},
		Dimension{ID: DeviceType, Expr: "device.deviceCategory", Doc: "desktop, mobile or tablet"},
		Dimension{ID: PageTitle, Expr: HitAlias + ".pageTitle", Doc: "title of the viewed page"},
	)
}

// IDs returns the allowlist in registration order
func (r *Registry) IDs() []string {
	return lo.Map(r.dims, func(d Dimension, _ int) string { return d.ID })
}

// Dimensions returns a copy of the registered dimensions
func (r *Registry) Dimensions() []Dimension {
	return append([]Dimension(nil), r.dims...)
}

// Has reports whether id is allowlisted
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Expr returns the source expression for id
func (r *Registry) Expr(id string) (string, bool) {
	d, ok := r.index[id]
	return d.Expr, ok
}

// Validate dedupes dims keeping first occurrence and checks every id is known
// failures carry the unknown ids and the sorted allowlist
func (r *Registry) Validate(dims []string) ([]string, error) {
	if len(dims) == 0 {
		return nil, perr.Wrap(ErrInvalidDimension, perr.ErrorCodeValidation, "dimensions must be a non-empty list")
	}
	unknown := lo.Uniq(lo.Reject(dims, func(d string, _ int) bool { return r.Has(d) }))
	if len(unknown) > 0 {
		allowed := r.IDs()
		sort.Strings(allowed)
		return nil, perr.WithField(perr.Wrapf(ErrInvalidDimension, perr.ErrorCodeValidation,
			"unknown dimensions %v, allowed %v", unknown, allowed), "dimensions")
	}
	return lo.Uniq(dims), nil
}

// file is the on disk catalog shape
type file struct {
	Dimensions []Dimension `yaml:"dimensions"`
}

// Load reads a YAML catalog file
//
//	dimensions:
//	  - id: device_type
//	    expr: device.deviceCategory
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a YAML catalog document
func Parse(b []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return New(f.Dimensions...)
}
