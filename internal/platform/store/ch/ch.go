// Package ch provides a clickhouse client on top of the native clickhouse-go protocol
package ch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures clickhouse client
type Config struct {
	URL string

	// ClientRole and ClientTag are reported in system.query_log via client info
	ClientRole string
	ClientTag  string

	DialTimeout time.Duration // default 5s
	MaxOpenConn int           // default 8
}

// Rows is the minimal result set iteration for ch
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
	Columns() []string
}

// CH wraps a native clickhouse connection
type CH struct {
	conn driver.Conn
}

// seams for tests
var (
	parseDSN = clickhouse.ParseDSN
	openConn = clickhouse.Open
)

// Open parses the DSN, dials and pings clickhouse
func Open(ctx context.Context, cfg Config) (*CH, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("ch: empty url")
	}
	opt, err := parseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ch: parse dsn: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	} else if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConn > 0 {
		opt.MaxOpenConns = cfg.MaxOpenConn
	} else if opt.MaxOpenConns == 0 {
		opt.MaxOpenConns = 8
	}
	opt.ClientInfo = BuildClientInfo(cfg.ClientRole, cfg.ClientTag)

	conn, err := openConn(opt)
	if err != nil {
		return nil, fmt.Errorf("ch: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ch: ping: %w", err)
	}
	return &CH{conn: conn}, nil
}

// FromConn wraps an already open connection
func FromConn(conn driver.Conn) *CH { return &CH{conn: conn} }

// Ping checks connectivity
func (c *CH) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("ch: not connected")
	}
	return c.conn.Ping(ctx)
}

// Insert appends rows to table through a single batch
func (c *CH) Insert(ctx context.Context, table string, rows [][]any) error {
	if c == nil || c.conn == nil {
		return errors.New("ch: not connected")
	}
	if len(rows) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return fmt.Errorf("ch: prepare batch: %w", err)
	}
	for i, r := range rows {
		if err := batch.Append(r...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("ch: append row %d: %w", i, err)
		}
	}
	return batch.Send()
}

// Exec runs a statement that returns no rows
func (c *CH) Exec(ctx context.Context, sql string, args ...any) error {
	if c == nil || c.conn == nil {
		return errors.New("ch: not connected")
	}
	return c.conn.Exec(ctx, sql, args...)
}

// Query runs a query with positional args and returns ch.Rows
func (c *CH) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if c == nil || c.conn == nil {
		return nil, errors.New("ch: not connected")
	}
	return c.conn.Query(ctx, sql, args...)
}

// QueryParams runs a query whose {name:Type} placeholders are bound server side
// settings are applied per query, values are never spliced into sql
func (c *CH) QueryParams(ctx context.Context, sql string, params map[string]string, settings map[string]any) (Rows, error) {
	if c == nil || c.conn == nil {
		return nil, errors.New("ch: not connected")
	}
	opts := []clickhouse.QueryOption{clickhouse.WithParameters(clickhouse.Parameters(params))}
	if len(settings) > 0 {
		opts = append(opts, clickhouse.WithSettings(clickhouse.Settings(settings)))
	}
	return c.conn.Query(clickhouse.Context(ctx, opts...), sql)
}

// Close closes resources
func (c *CH) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
