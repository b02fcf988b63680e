// Package domain holds DTOs for the kpi http and service contracts
package domain

import (
	"time"

	"adperf/internal/core/diff"
	"adperf/internal/core/kpi"
	"adperf/internal/core/rank"
	"adperf/internal/core/rules"
)

// Months are YYYY-MM; rank and fetch also accept an empty month for the full history

// FetchInput asks for per segment KPIs over one month or the full history
type FetchInput struct {
	Dimensions []string `json:"dimensions" validate:"required,min=1,max=16,dive,required" example:"device_type,traffic_source"`
	Month      string   `json:"month,omitempty" validate:"omitempty,max=16" example:"2017-01"`
	Context    string   `json:"context,omitempty" validate:"omitempty,max=128" example:"analytics"`
}

// DiffInput compares two months over the same dimension list
type DiffInput struct {
	MonthA     string   `json:"month_a" validate:"required,max=16" example:"2016-12"`
	MonthB     string   `json:"month_b" validate:"required,max=16" example:"2017-01"`
	Dimensions []string `json:"dimensions" validate:"required,min=1,max=16,dive,required" example:"device_type"`
	Context    string   `json:"context,omitempty" validate:"omitempty,max=128" example:"analytics"`
}

// FlagInput evaluates a named rule over the full history
type FlagInput struct {
	Rule       string   `json:"rule" validate:"required,max=32" example:"traffic"`
	Dimensions []string `json:"dimensions,omitempty" validate:"omitempty,max=16,dive,required" example:"traffic_source,medium"`
	Context    string   `json:"context,omitempty" validate:"omitempty,max=128" example:"analytics"`
}

// RankInput ranks country and device segments by conversion rate
type RankInput struct {
	Month   string `json:"month,omitempty" validate:"omitempty,max=16" example:"2017-01"`
	Context string `json:"context,omitempty" validate:"omitempty,max=128" example:"analytics"`
}

// RunsInput pages the query run ledger
type RunsInput struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=500" example:"50"`
}

// Notes describe how a result was produced
type Notes struct {
	Source            string `json:"source" example:"analytics.ga_sessions"`
	TableSuffixFilter string `json:"table_suffix_filter,omitempty" example:"20170101..20170131"`
	Having            string `json:"having" example:"total_pageviews >= 20"`
	Rows              int    `json:"source_rows,omitempty" example:"120"`
}

// PeriodDoc is the fetch result
type PeriodDoc struct {
	Scope      kpi.Scope       `json:"scope" example:"month"`
	Month      string          `json:"month,omitempty" example:"2017-01"`
	Range      *kpi.Range      `json:"range,omitempty"`
	Dimensions []string        `json:"dimensions"`
	KPIs       []kpi.KPI       `json:"kpis"`
	RowCount   int             `json:"row_count" example:"42"`
	Rows       []kpi.MetricRow `json:"rows"`
	Notes      Notes           `json:"notes"`
}

// DiffDoc is the two month comparison result
type DiffDoc struct {
	Scope      kpi.Scope  `json:"scope" example:"month"`
	MonthA     string     `json:"month_a" example:"2016-12"`
	MonthB     string     `json:"month_b" example:"2017-01"`
	RangeA     kpi.Range  `json:"range_a"`
	RangeB     kpi.Range  `json:"range_b"`
	Dimensions []string   `json:"dimensions"`
	KPIs       []kpi.KPI  `json:"kpis"`
	RowCount   int        `json:"row_count" example:"12"`
	Rows       []diff.Row `json:"rows"`
	Notes      []Notes    `json:"notes"`
}

// FlagDoc is the rule evaluation result
type FlagDoc struct {
	Rule       string          `json:"rule" example:"conversion"`
	Scope      kpi.Scope       `json:"scope" example:"all"`
	Dimensions []string        `json:"dimensions"`
	KPIs       []kpi.KPI       `json:"kpis"`
	RowCount   int             `json:"row_count" example:"3"`
	Rows       []rules.Flagged `json:"rows"`
	Notes      Notes           `json:"notes"`
}

// RankDoc is the conversion rate ranking
type RankDoc struct {
	Scope      kpi.Scope  `json:"scope" example:"month"`
	Month      string     `json:"month,omitempty" example:"2017-01"`
	Range      *kpi.Range `json:"range,omitempty"`
	Dimensions []string   `json:"dimensions"`
	RowCount   int        `json:"row_count" example:"30"`
	Rows       []rank.Row `json:"rows"`
	Notes      Notes      `json:"notes"`
}

// DimensionDoc describes one groupable dimension
type DimensionDoc struct {
	ID  string `json:"id" example:"device_type"`
	Doc string `json:"doc,omitempty" example:"device category reported by the client"`
}

// RuleDoc describes one flagging rule
type RuleDoc struct {
	Name        string    `json:"name" example:"traffic"`
	Description string    `json:"description"`
	Uses        []kpi.KPI `json:"uses"`
}

// CatalogDoc lists what callers may ask for
type CatalogDoc struct {
	Dimensions     []DimensionDoc `json:"dimensions"`
	KPIs           []kpi.KPI      `json:"kpis"`
	Rules          []RuleDoc      `json:"rules"`
	MinPageviews   uint64         `json:"min_pageviews" example:"20"`
	DefaultContext string         `json:"default_context" example:"analytics"`
}

// RunRow is one ledger entry
type RunRow struct {
	ID         string    `json:"id" example:"9b2f0c9e-8d0c-4a57-9a55-0b8f3c6f0e1a"`
	Op         string    `json:"op" example:"fetch"`
	Scope      string    `json:"scope" example:"month"`
	Dimensions []string  `json:"dimensions"`
	RangeStart string    `json:"range_start,omitempty" example:"20170101"`
	RangeEnd   string    `json:"range_end,omitempty" example:"20170131"`
	Context    string    `json:"context" example:"analytics"`
	Rows       int       `json:"rows" example:"42"`
	ElapsedMs  int64     `json:"elapsed_ms" example:"830"`
	Status     string    `json:"status" example:"ok"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunsDoc lists recent runs, newest first
type RunsDoc struct {
	Enabled  bool     `json:"enabled"`
	RowCount int      `json:"row_count"`
	Rows     []RunRow `json:"rows"`
}
