// Package rules flags segments whose metrics match a named rule
package rules

import (
	"encoding/json"
	"errors"
	"strings"

	"adperf/internal/core/catalog"
	"adperf/internal/core/kpi"
	perr "adperf/internal/platform/errors"

	"github.com/samber/lo"
)

// ErrUnknownRule is wrapped when a rule name does not parse
var ErrUnknownRule = errors.New("unknown rule")

// Rule names
const (
	NameTraffic    = "traffic"
	NameConversion = "conversion"
)

// Names lists the rule names in a stable order
var Names = []string{NameTraffic, NameConversion}

// DefaultDimensions is every default catalog dimension except country
var DefaultDimensions = []string{catalog.TrafficSource, catalog.Medium, catalog.DeviceType, catalog.PageTitle}

// Thresholds are the business constants behind the rules
type Thresholds struct {
	TrafficMaxAvgTime      float64 // seconds, exclusive
	TrafficMaxPageviews    int64   // exclusive
	ConversionMinPageviews int64   // exclusive
}

// DefaultThresholds returns 120s, 30 and 250 pageviews
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrafficMaxAvgTime:      120,
		TrafficMaxPageviews:    30,
		ConversionMinPageviews: 250,
	}
}

// Rule is a closed set of flagging rules; the unexported method seals it
type Rule interface {
	Name() string
	// Uses lists the metrics the predicate reads
	Uses() []kpi.KPI
	// Match evaluates the predicate with null metrics already coerced to 0
	Match(m kpi.Metrics) bool
	sealed()
}

// Traffic flags low engagement: short visits with few pageviews
type Traffic struct {
	MaxAvgTime   float64
	MaxPageviews int64
}

// Name implements Rule
func (Traffic) Name() string { return NameTraffic }

// Uses implements Rule
func (Traffic) Uses() []kpi.KPI { return []kpi.KPI{kpi.AvgTimeOnSite, kpi.TotalPageviews} }

// Match implements Rule
func (r Traffic) Match(m kpi.Metrics) bool {
	return m.OrZero(kpi.AvgTimeOnSite) < r.MaxAvgTime && m.TotalPageviews < r.MaxPageviews
}

func (Traffic) sealed() {}

// Conversion flags busy segments that never convert
type Conversion struct {
	MinPageviews int64
}

// Name implements Rule
func (Conversion) Name() string { return NameConversion }

// Uses implements Rule
func (Conversion) Uses() []kpi.KPI { return []kpi.KPI{kpi.TotalConversions, kpi.TotalPageviews} }

// Match implements Rule
func (r Conversion) Match(m kpi.Metrics) bool {
	return m.TotalConversions == 0 && m.TotalPageviews > r.MinPageviews
}

func (Conversion) sealed() {}

// Parse resolves a rule name into a Rule carrying the given thresholds
func Parse(name string, th Thresholds) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameTraffic:
		return Traffic{MaxAvgTime: th.TrafficMaxAvgTime, MaxPageviews: th.TrafficMaxPageviews}, nil
	case NameConversion:
		return Conversion{MinPageviews: th.ConversionMinPageviews}, nil
	}
	return nil, perr.WithField(perr.Wrapf(ErrUnknownRule, perr.ErrorCodeValidation,
		"rule %q is not one of %v", name, Names), "rule")
}

// Measure is one metric a rule consumed, after null coercion
type Measure struct {
	KPI   kpi.KPI
	Value float64
}

// Flagged is a matched segment restricted to the requested dims and the rule's metrics
type Flagged struct {
	Dims    kpi.Values
	Metrics []Measure
}

// MarshalJSON flattens dims and metrics into one object
func (f Flagged) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Dims)+len(f.Metrics))
	for k, v := range f.Dims {
		out[k] = v
	}
	for _, m := range f.Metrics {
		out[string(m.KPI)] = m.Value
	}
	return json.Marshal(out)
}

// Evaluate keeps the rows r matches, in source order
func Evaluate(r Rule, rows []kpi.MetricRow, dims []string) []Flagged {
	uses := r.Uses()
	matched := lo.Filter(rows, func(row kpi.MetricRow, _ int) bool { return r.Match(row.Metrics) })
	return lo.Map(matched, func(row kpi.MetricRow, _ int) Flagged {
		return Flagged{
			Dims: row.Dims.Pick(dims),
			Metrics: lo.Map(uses, func(k kpi.KPI, _ int) Measure {
				return Measure{KPI: k, Value: row.OrZero(k)}
			}),
		}
	})
}
