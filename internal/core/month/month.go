// Package month maps calendar month strings to inclusive partition date ranges
package month

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"adperf/internal/core/kpi"
	perr "adperf/internal/platform/errors"
)

// ErrInvalidMonth is wrapped by every month parse failure
var ErrInvalidMonth = errors.New("invalid month")

// AllData is the month value callers pass to ask for the full history
const AllData = "all_data"

// partitionLayout is the date layout of the partition key
const partitionLayout = "20060102"

var monthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// Resolve turns "YYYY-MM" into the first and last partition dates of that month
func Resolve(m string) (kpi.Range, error) {
	g := monthPattern.FindStringSubmatch(m)
	if g == nil {
		return kpi.Range{}, invalid(m, "month must be in YYYY-MM format, e.g. 2017-08")
	}
	y, _ := strconv.Atoi(g[1])
	mo, _ := strconv.Atoi(g[2])
	if mo < 1 || mo > 12 {
		return kpi.Range{}, invalid(m, "month must have MM between 01 and 12")
	}

	first := time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return kpi.Range{
		Month: m,
		Start: first.Format(partitionLayout),
		End:   last.Format(partitionLayout),
	}, nil
}

// ResolveOptional treats "" and AllData as the full history and returns nil
func ResolveOptional(m string) (*kpi.Range, error) {
	if m == "" || m == AllData {
		return nil, nil
	}
	r, err := Resolve(m)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Days returns the number of calendar days in the range
func Days(r kpi.Range) int {
	s, err1 := time.Parse(partitionLayout, r.Start)
	e, err2 := time.Parse(partitionLayout, r.End)
	if err1 != nil || err2 != nil || e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

func invalid(m, why string) error {
	return perr.WithField(perr.Wrapf(ErrInvalidMonth, perr.ErrorCodeValidation, "%s (got %q)", why, m), "month")
}

// String renders a range for logs
func String(r *kpi.Range) string {
	if r == nil {
		return "all"
	}
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}
