package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// FailureKey identifies a test across runs by full module name and test name.
type FailureKey struct {
	Module string `json:"module"`
	Test   string `json:"test"`
}

// RunRecord summarizes one finished run.
// Keep it compact and schema-stable.
type RunRecord struct {
	At          time.Time `json:"at"`
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	Aborted     bool      `json:"aborted,omitempty"`
	Tests       int       `json:"tests"`
	FailedTests int       `json:"failed_tests"`
	Assertions  int       `json:"assertions"`
	Failed      int       `json:"failed"`
	TookMS      int64     `json:"took_ms"`
	Seed        string    `json:"seed,omitempty"`
}
