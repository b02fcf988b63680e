// adperf-report runs one KPI operation in process and prints the result document
//
//	adperf-report -op diff -month-a 2016-12 -month-b 2017-01 -dims device_type
//	adperf-report -op flag -rule conversion -format table
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"adperf/internal/modkit"
	"adperf/internal/platform/config"
	perr "adperf/internal/platform/errors"
	"adperf/internal/platform/logger"
	"adperf/internal/platform/store"
	"adperf/internal/services/api/kpi/domain"
	kpimod "adperf/internal/services/api/kpi/module"
)

// request is the parsed command line
type request struct {
	op      string
	dims    []string
	month   string
	monthA  string
	monthB  string
	rule    string
	context string
	format  string
	limit   int
}

func parseArgs(args []string, stderr io.Writer) (request, error) {
	fs := flag.NewFlagSet("adperf-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		rq   request
		dims string
	)
	fs.StringVar(&rq.op, "op", "fetch", "operation: fetch, diff, flag, rank, catalog or runs")
	fs.StringVar(&dims, "dims", "", "comma separated dimension ids")
	fs.StringVar(&rq.month, "month", "", "YYYY-MM for fetch and rank; empty or all_data for the full history")
	fs.StringVar(&rq.monthA, "month-a", "", "baseline month for diff")
	fs.StringVar(&rq.monthB, "month-b", "", "comparison month for diff")
	fs.StringVar(&rq.rule, "rule", "", "rule for flag: traffic or conversion")
	fs.StringVar(&rq.context, "context", "", "execution context (clickhouse database)")
	fs.StringVar(&rq.format, "format", "json", "output: json or table")
	fs.IntVar(&rq.limit, "limit", 0, "rows for runs")
	if err := fs.Parse(args); err != nil {
		return request{}, err
	}
	for _, d := range strings.Split(dims, ",") {
		if d = strings.TrimSpace(d); d != "" {
			rq.dims = append(rq.dims, d)
		}
	}
	if rq.format != "json" && rq.format != "table" {
		return request{}, perr.WithField(perr.Validationf("format must be json or table (got %q)", rq.format), "format")
	}
	return rq, nil
}

// execute dispatches one operation
func execute(ctx context.Context, svc domain.ServicePort, rq request) (any, error) {
	switch rq.op {
	case "fetch":
		return svc.Fetch(ctx, domain.FetchInput{Dimensions: rq.dims, Month: rq.month, Context: rq.context})
	case "diff":
		return svc.Diff(ctx, domain.DiffInput{MonthA: rq.monthA, MonthB: rq.monthB, Dimensions: rq.dims, Context: rq.context})
	case "flag":
		return svc.Flag(ctx, domain.FlagInput{Rule: rq.rule, Dimensions: rq.dims, Context: rq.context})
	case "rank":
		return svc.Rank(ctx, domain.RankInput{Month: rq.month, Context: rq.context})
	case "catalog":
		return svc.Catalog(ctx)
	case "runs":
		return svc.Runs(ctx, domain.RunsInput{Limit: rq.limit})
	}
	return nil, perr.WithField(perr.Validationf("unknown op %q", rq.op), "op")
}

func write(w io.Writer, format string, doc any) error {
	if format == "table" {
		return renderTable(w, doc)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func run(ctx context.Context, svc domain.ServicePort, args []string, stdout, stderr io.Writer) error {
	rq, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	doc, err := execute(ctx, svc, rq)
	if err != nil {
		return err
	}
	return write(stdout, rq.format, doc)
}

func main() {
	root := config.New()
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	l := logger.Named("report")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kpiOpts, err := kpimod.FromConfig(root.Prefix("CORE_"))
	if err != nil {
		l.Fatal().Err(err).Msg("kpi config")
	}

	pg := store.PGConfig{Enabled: pgCfg.MayBool("ENABLED", false)}
	if pg.Enabled {
		pg.URL = pgCfg.MustString("DBURL")
		pg.MaxConns = 2
	}
	st, err := store.Open(ctx, store.Config{
		AppName: "adperf-report",
		PG:      pg,
		CH: store.CHConfig{
			Enabled:     true,
			URL:         chCfg.MustString("DBURL"),
			ClientRole:  "report",
			ClientTag:   chCfg.MayString("CLIENT_TAG", ""),
			MaxOpenConn: 2,
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}

	svc := kpimod.NewService(modkit.Deps{Cfg: root, PG: st.PG, CH: st.CH, Log: *l}, kpiOpts)
	err = run(ctx, svc, os.Args[1:], os.Stdout, os.Stderr)
	if cerr := st.Close(context.Background()); cerr != nil {
		l.Error().Err(cerr).Msg("failed to close store")
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "adperf-report:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates caller mistakes from backend trouble
func exitCode(err error) int {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeValidation, perr.ErrorCodeJSON:
		return 2
	case perr.ErrorCodeTimeout:
		return 4
	}
	return 1
}
