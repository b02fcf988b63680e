// Package diff merges two period results by segment and computes percent change per KPI
package diff

import (
	"encoding/json"
	"errors"
	"slices"

	"adperf/internal/core/kpi"
	"adperf/internal/core/segment"
)

// ErrDimensionMismatch is returned when the two periods were fetched with different dimension lists
var ErrDimensionMismatch = errors.New("periods have different dimensions")

// Change is one KPI across both periods
// A and B are the raw values, nil when the segment is absent or the metric is null
type Change struct {
	KPI       kpi.KPI
	A         *float64
	B         *float64
	PctChange *float64
}

// Row is one segment's comparison
type Row struct {
	Dims    kpi.Values
	MonthA  string
	MonthB  string
	Changes []Change
}

// Change returns the entry for k
func (r Row) Change(k kpi.KPI) (Change, bool) {
	for _, c := range r.Changes {
		if c.KPI == k {
			return c, true
		}
	}
	return Change{}, false
}

// MarshalJSON renders dims flat with a, b and pct_change blocks
func (r Row) MarshalJSON() ([]byte, error) {
	a := make(map[string]*float64, len(r.Changes))
	b := make(map[string]*float64, len(r.Changes))
	pct := make(map[string]*float64, len(r.Changes))
	for _, c := range r.Changes {
		a[string(c.KPI)] = c.A
		b[string(c.KPI)] = c.B
		pct[string(c.KPI)+"_pct_change"] = c.PctChange
	}
	out := make(map[string]any, len(r.Dims)+5)
	for k, v := range r.Dims {
		out[k] = v
	}
	out["month_a"] = r.MonthA
	out["month_b"] = r.MonthB
	out["a"] = a
	out["b"] = b
	out["pct_change"] = pct
	return json.Marshal(out)
}

// PctChange is (b-a)/a*100 with a missing value counted as 0
// it is nil when either side is null or the baseline is 0
func PctChange(a, b *float64, aPresent, bPresent bool) *float64 {
	av, bv := 0.0, 0.0
	if aPresent {
		if a == nil {
			return nil
		}
		av = *a
	}
	if bPresent {
		if b == nil {
			return nil
		}
		bv = *b
	}
	if av == 0 {
		return nil
	}
	p := (bv - av) / av * 100
	return &p
}

// Periods compares a and b segment by segment
// output covers the union of segments sorted ascending by key, independent of input row order
func Periods(a, b kpi.PeriodResult, monthA, monthB string) ([]Row, error) {
	if !slices.Equal(a.Dimensions, b.Dimensions) {
		return nil, ErrDimensionMismatch
	}
	dims := a.Dimensions

	type entry struct {
		key  segment.Key
		a, b *kpi.MetricRow
	}
	byKey := make(map[string]*entry, len(a.Rows)+len(b.Rows))
	index := func(rows []kpi.MetricRow, side func(*entry, *kpi.MetricRow)) {
		for i := range rows {
			k := segment.Of(rows[i].Dims, dims)
			s := k.String()
			e, ok := byKey[s]
			if !ok {
				e = &entry{key: k}
				byKey[s] = e
			}
			side(e, &rows[i])
		}
	}
	index(a.Rows, func(e *entry, r *kpi.MetricRow) { e.a = r })
	index(b.Rows, func(e *entry, r *kpi.MetricRow) { e.b = r })

	entries := make([]*entry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(x, y *entry) int { return segment.Compare(x.key, y.key) })

	out := make([]Row, 0, len(entries))
	for _, e := range entries {
		row := Row{
			Dims:    e.key.Values(dims),
			MonthA:  monthA,
			MonthB:  monthB,
			Changes: make([]Change, 0, len(kpi.All)),
		}
		for _, k := range kpi.All {
			var av, bv *float64
			if e.a != nil {
				av = e.a.Value(k)
			}
			if e.b != nil {
				bv = e.b.Value(k)
			}
			row.Changes = append(row.Changes, Change{
				KPI:       k,
				A:         av,
				B:         bv,
				PctChange: PctChange(av, bv, e.a != nil, e.b != nil),
			})
		}
		out = append(out, row)
	}
	return out, nil
}
