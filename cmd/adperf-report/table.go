package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"adperf/internal/core/kpi"
	"adperf/internal/services/api/kpi/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const null = "-"

var printer = message.NewPrinter(language.English)

func renderTable(w io.Writer, doc any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	line := func(cells ...string) { fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t") }

	switch d := doc.(type) {
	case domain.PeriodDoc:
		line(append(append([]string{}, d.Dimensions...), kpiNames(d.KPIs)...)...)
		for _, r := range d.Rows {
			cells := dimCells(r.Dims, d.Dimensions)
			for _, k := range d.KPIs {
				cells = append(cells, num(r.Value(k)))
			}
			line(cells...)
		}
	case domain.DiffDoc:
		head := append([]string{}, d.Dimensions...)
		for _, k := range d.KPIs {
			head = append(head, string(k)+" "+d.MonthA, string(k)+" "+d.MonthB, "pct")
		}
		line(head...)
		for _, r := range d.Rows {
			cells := dimCells(r.Dims, d.Dimensions)
			for _, k := range d.KPIs {
				c, _ := r.Change(k)
				cells = append(cells, num(c.A), num(c.B), pct(c.PctChange))
			}
			line(cells...)
		}
	case domain.FlagDoc:
		line(append(append([]string{}, d.Dimensions...), kpiNames(d.KPIs)...)...)
		for _, r := range d.Rows {
			cells := dimCells(r.Dims, d.Dimensions)
			for _, m := range r.Metrics {
				v := m.Value
				cells = append(cells, num(&v))
			}
			line(cells...)
		}
	case domain.RankDoc:
		line(append(append([]string{}, d.Dimensions...), "conversion_rate", "visitors", "conversions", "pageviews")...)
		for _, r := range d.Rows {
			cells := dimCells(r.Dims, d.Dimensions)
			cells = append(cells,
				printer.Sprintf("%.4f", r.Rate),
				printer.Sprintf("%d", r.Visitors),
				printer.Sprintf("%d", r.Conversions),
				printer.Sprintf("%d", r.Pageviews),
			)
			line(cells...)
		}
	case domain.CatalogDoc:
		line("dimension", "doc")
		for _, dim := range d.Dimensions {
			line(dim.ID, dim.Doc)
		}
	case domain.RunsDoc:
		line("created_at", "op", "scope", "dimensions", "rows", "elapsed_ms", "status")
		for _, r := range d.Rows {
			line(r.CreatedAt.Format("2006-01-02 15:04:05"), r.Op, r.Scope, strings.Join(r.Dimensions, ","),
				printer.Sprintf("%d", r.Rows), printer.Sprintf("%d", r.ElapsedMs), r.Status)
		}
	default:
		return fmt.Errorf("no table layout for %T", doc)
	}
	return tw.Flush()
}

func kpiNames(ks []kpi.KPI) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return out
}

func dimCells(v kpi.Values, dims []string) []string {
	out := make([]string, 0, len(dims))
	for _, d := range dims {
		if s := v.Get(d); s != nil {
			out = append(out, *s)
		} else {
			out = append(out, null)
		}
	}
	return out
}

// num prints integers without decimals and everything with thousands separators
func num(f *float64) string {
	if f == nil {
		return null
	}
	if *f == float64(int64(*f)) {
		return printer.Sprintf("%d", int64(*f))
	}
	return printer.Sprintf("%.2f", *f)
}

func pct(f *float64) string {
	if f == nil {
		return null
	}
	return printer.Sprintf("%+.1f%%", *f)
}
