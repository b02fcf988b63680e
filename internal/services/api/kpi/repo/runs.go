package repo

import (
	"context"
	"time"

	"adperf/internal/modkit/repokit"
	"adperf/internal/platform/store"
)

// Run statuses
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Run is one ledger entry for an executed aggregation
type Run struct {
	ID         string
	Op         string
	Scope      string
	Dimensions []string
	RangeStart string
	RangeEnd   string
	Context    string
	Rows       int
	ElapsedMs  int64
	Status     string
	Error      string
	CreatedAt  time.Time
}

// Runs is the persistence surface for the query run ledger
type Runs interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, r Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

type (
	// PG is a binder for the postgres run ledger
	PG struct{}
	// runs implements Runs
	runs struct{ q repokit.Queryer }
)

// NewPG returns a binder that can bind the ledger to a Queryer or TxRunner
func NewPG() repokit.Binder[Runs] { return PG{} }

// Bind wires a Queryer to the ledger
func (PG) Bind(q repokit.Queryer) Runs { return &runs{q: q} }

// Schema creates the ledger table
const Schema = `
create table if not exists kpi_query_runs (
	id           uuid primary key,
	op           text not null,
	scope        text not null,
	dimensions   text[] not null,
	range_start  text,
	range_end    text,
	exec_context text not null,
	row_count    integer not null default 0,
	elapsed_ms   bigint not null default 0,
	status       text not null,
	error        text,
	created_at   timestamptz not null default now()
);
create index if not exists kpi_query_runs_created_at_idx on kpi_query_runs (created_at desc);
`

func (r *runs) EnsureSchema(ctx context.Context) error {
	_, err := store.Exec(ctx, r.q, Schema)
	return err
}

func (r *runs) Insert(ctx context.Context, run Run) error {
	const sql = `
insert into kpi_query_runs (
	id, op, scope, dimensions, range_start, range_end, exec_context, row_count, elapsed_ms, status, error, created_at
) values (
	$1::uuid, $2, $3, $4, nullif($5, ''), nullif($6, ''), $7, $8, $9, $10, nullif($11, ''), $12
)
`
	_, err := r.q.Exec(ctx, sql,
		run.ID, run.Op, run.Scope, run.Dimensions, run.RangeStart, run.RangeEnd,
		run.Context, run.Rows, run.ElapsedMs, run.Status, run.Error, run.CreatedAt,
	)
	return err
}

func (r *runs) Recent(ctx context.Context, limit int) ([]Run, error) {
	const sql = `
select id::text, op, scope, dimensions, coalesce(range_start, ''), coalesce(range_end, ''),
       exec_context, row_count, elapsed_ms, status, coalesce(error, ''), created_at
from kpi_query_runs
order by created_at desc, id
limit $1
`
	return store.Many(ctx, r.q, scanRun, sql, limit)
}

func scanRun(row store.Row) (Run, error) {
	var rr Run
	err := row.Scan(&rr.ID, &rr.Op, &rr.Scope, &rr.Dimensions, &rr.RangeStart, &rr.RangeEnd,
		&rr.Context, &rr.Rows, &rr.ElapsedMs, &rr.Status, &rr.Error, &rr.CreatedAt)
	return rr, err
}
