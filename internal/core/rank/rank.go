// Package rank orders segments by conversion rate
package rank

import (
	"encoding/json"
	"sort"

	"adperf/internal/core/catalog"
	"adperf/internal/core/kpi"
)

// Dimensions is the fixed (country, device) pair rates are computed over
var Dimensions = []string{catalog.UserCountry, catalog.DeviceType}

// Row is one ranked segment
type Row struct {
	Dims        kpi.Values
	Visitors    int64
	Conversions int64
	Rate        float64
	Pageviews   int64
}

// MarshalJSON flattens dims next to the ranked metrics
func (r Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Dims)+4)
	for k, v := range r.Dims {
		out[k] = v
	}
	out[string(kpi.TotalVisitors)] = r.Visitors
	out[string(kpi.TotalConversions)] = r.Conversions
	out["conversion_rate"] = r.Rate
	out[string(kpi.TotalPageviews)] = r.Pageviews
	return json.Marshal(out)
}

// Rate is conversions per visitor, 0 when there are no visitors
func Rate(conversions, visitors int64) float64 {
	if visitors <= 0 {
		return 0
	}
	return float64(conversions) / float64(visitors)
}

// ByConversionRate computes the rate for every row and sorts descending
// ties keep source order; rows without visitors rank last with rate 0
func ByConversionRate(rows []kpi.MetricRow, dims []string) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			Dims:        r.Dims.Pick(dims),
			Visitors:    r.TotalVisitors,
			Conversions: r.TotalConversions,
			Rate:        Rate(r.TotalConversions, r.TotalVisitors),
			Pageviews:   r.TotalPageviews,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rate > out[j].Rate })
	return out
}
