package store

import "time"

// Config selects and configures the backends Open connects
type Config struct {
	// AppName is reported to postgres as application_name
	AppName string

	PG PGConfig
	CH CHConfig
}

// PGConfig configures the ledger database
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	ConnectRetries int           // default 20
	PingTimeout    time.Duration // default 3s
}

// CHConfig configures the warehouse connection
type CHConfig struct {
	Enabled bool
	URL     string

	// ClientRole and ClientTag identify this process in system.query_log
	ClientRole  string
	ClientTag   string
	MaxOpenConn int
}
