package domain

import "context"

// ServicePort is consumed by handlers, the report cli and other modules
type ServicePort interface {
	Catalog(ctx context.Context) (CatalogDoc, error)
	Fetch(ctx context.Context, in FetchInput) (PeriodDoc, error)
	Diff(ctx context.Context, in DiffInput) (DiffDoc, error)
	Flag(ctx context.Context, in FlagInput) (FlagDoc, error)
	Rank(ctx context.Context, in RankInput) (RankDoc, error)
	Runs(ctx context.Context, in RunsInput) (RunsDoc, error)
}
