package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "pewunit/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	aborted := 0
	if r.Aborted {
		aborted = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, run_id, status, aborted, tests, failed_tests, assertions, failed, took_ms, seed)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.At.Format(time.RFC3339Nano), r.RunID, r.Status, aborted, r.Tests, r.FailedTests,
		r.Assertions, r.Failed, r.TookMS, nullStr(r.Seed),
	)
	return err
}

func (s *sqliteStore) LoadFailures(ctx context.Context) (map[FailureKey]int, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT module, test, count FROM failures`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[FailureKey]int{}
	for rows.Next() {
		var k FailureKey
		var n int
		if err := rows.Scan(&k.Module, &k.Test, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutFailure(ctx context.Context, key FailureKey, count int) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if count <= 0 {
		return s.DeleteFailure(ctx, key)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures(module, test, count) VALUES(?,?,?)
		 ON CONFLICT(module, test) DO UPDATE SET count=excluded.count`,
		key.Module, key.Test, count,
	)
	return err
}

func (s *sqliteStore) DeleteFailure(ctx context.Context, key FailureKey) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM failures WHERE module = ? AND test = ?`, key.Module, key.Test)
	return err
}

func (s *sqliteStore) ClearFailures(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM failures`)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
