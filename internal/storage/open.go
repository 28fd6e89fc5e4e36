package storage

import (
	"context"
	"errors"
	"strings"

	logx "pewunit/pkg/logx"
)

// Store is the persistence API used by the runner wiring and reporters.
type Store interface {
	// LoadFailures returns the failure counts recorded by the last run.
	LoadFailures(ctx context.Context) (map[FailureKey]int, error)
	// PutFailure records count failed assertions for key; count <= 0 deletes.
	PutFailure(ctx context.Context, key FailureKey, count int) error
	DeleteFailure(ctx context.Context, key FailureKey) error
	ClearFailures(ctx context.Context) error
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
