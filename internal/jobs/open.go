package jobs

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend     string
	Table       string
	SQLitePath  string
	PostgresDSN string
	// Dynamo is required for the dynamodb backend.
	Dynamo DynamoAPI
}

// Open returns the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendDynamoDB:
		if opts.Dynamo == nil {
			return nil, fmt.Errorf("dynamodb backend requires a client")
		}
		if opts.Table == "" {
			return nil, fmt.Errorf("dynamodb backend requires a table name")
		}
		return NewDynamoStore(opts.Dynamo, opts.Table), nil
	case BackendSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
