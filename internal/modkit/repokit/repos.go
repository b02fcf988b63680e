// Package repokit is the glue between domain repos and the store seams
package repokit

import (
	"context"

	"adperf/internal/platform/store"
)

type (
	// Queryer is what a bound repo runs statements on
	Queryer = store.RowQuerier
	// TxRunner opens transactions
	TxRunner   = store.TxRunner
	Rows       = store.Rows
	Row        = store.Row
	CommandTag = store.CommandTag
)

// WithTx runs fn in one transaction on tx
func WithTx(ctx context.Context, tx TxRunner, fn func(q Queryer) error) error {
	return tx.Tx(ctx, fn)
}
