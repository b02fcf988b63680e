// Package kpi holds the metric row model shared by the query, diff, flag and rank stages
package kpi

import (
	"encoding/json"
	"errors"
)

// KPI names one of the four summary metrics tracked per segment
type KPI string

// The tracked KPIs, in canonical output order
const (
	TotalVisitors    KPI = "total_visitors"
	TotalPageviews   KPI = "total_pageviews"
	AvgTimeOnSite    KPI = "avg_time_on_site_seconds"
	TotalConversions KPI = "total_conversions"
)

// All lists the KPIs in canonical order
var All = []KPI{TotalVisitors, TotalPageviews, AvgTimeOnSite, TotalConversions}

// ErrInvalidContext is returned when a request names an execution context outside the allowlist
var ErrInvalidContext = errors.New("invalid execution context")

// Scope tells whether a result covers one month or the full history
type Scope string

// Scopes
const (
	ScopeMonth Scope = "month"
	ScopeAll   Scope = "all"
)

// Values maps a dimension id to its value; nil is a null value
type Values map[string]*string

// Get returns the value for dim, nil when absent or null
func (v Values) Get(dim string) *string {
	if v == nil {
		return nil
	}
	return v[dim]
}

// Pick returns a copy restricted to dims; missing dims become null
func (v Values) Pick(dims []string) Values {
	out := make(Values, len(dims))
	for _, d := range dims {
		out[d] = v.Get(d)
	}
	return out
}

// Metrics are the per segment KPI values
type Metrics struct {
	TotalVisitors    int64    `json:"total_visitors"`
	TotalPageviews   int64    `json:"total_pageviews"`
	AvgTimeOnSite    *float64 `json:"avg_time_on_site_seconds"`
	TotalConversions int64    `json:"total_conversions"`
}

// Value returns the metric for k as a float, nil when null or unknown
func (m Metrics) Value(k KPI) *float64 {
	var f float64
	switch k {
	case TotalVisitors:
		f = float64(m.TotalVisitors)
	case TotalPageviews:
		f = float64(m.TotalPageviews)
	case AvgTimeOnSite:
		if m.AvgTimeOnSite == nil {
			return nil
		}
		f = *m.AvgTimeOnSite
	case TotalConversions:
		f = float64(m.TotalConversions)
	default:
		return nil
	}
	return &f
}

// OrZero returns the metric for k with null coerced to 0
func (m Metrics) OrZero(k KPI) float64 {
	if v := m.Value(k); v != nil {
		return *v
	}
	return 0
}

// MetricRow is one aggregated segment: its dimension values and KPIs
type MetricRow struct {
	Dims Values
	Metrics
}

// MarshalJSON flattens dimension values next to the metrics
func (r MetricRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Dims)+len(All))
	for k, v := range r.Dims {
		out[k] = v
	}
	out[string(TotalVisitors)] = r.TotalVisitors
	out[string(TotalPageviews)] = r.TotalPageviews
	out[string(AvgTimeOnSite)] = r.AvgTimeOnSite
	out[string(TotalConversions)] = r.TotalConversions
	return json.Marshal(out)
}

// Range is an inclusive partition date range, bounds formatted YYYYMMDD
type Range struct {
	Month string `json:"month,omitempty"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// PeriodResult is the output of one aggregation over a scope
type PeriodResult struct {
	Scope      Scope       `json:"scope"`
	Range      *Range      `json:"range,omitempty"`
	Dimensions []string    `json:"dimensions"`
	Rows       []MetricRow `json:"rows"`
}

// Str is a small helper to take the address of a dimension value
func Str(s string) *string { return &s }

// Float is a small helper to take the address of a float metric
func Float(f float64) *float64 { return &f }
