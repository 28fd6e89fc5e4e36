package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "pewunit/pkg/logx"
)

// compactEvery bounds the failure journal between snapshots.
const compactEvery = 1000

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.runs.jsonl                (append-only JSON Lines)
//   - <prefix>.failures.snapshot.json    (periodic snapshot)
//   - <prefix>.failures.journal.jsonl    (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on ClearFailures.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsFile *os.File

	snapshotPath string
	journalFile  *os.File
	failures     map[FailureKey]int

	writes int
}

// failureRecord is one journal line. Count 0 deletes the key; Clear drops
// everything recorded before it.
type failureRecord struct {
	Module string `json:"module,omitempty"`
	Test   string `json:"test,omitempty"`
	Count  int    `json:"count,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".failures.snapshot.json"
	journalPath := prefix + ".failures.journal.jsonl"

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load failures from snapshot + journal.
	failures := map[FailureKey]int{}
	if err := loadFailureSnapshot(snapPath, failures); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failure snapshot unreadable", logx.Err(err))
	}
	if err := replayFailureJournal(journalPath, failures); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failure journal unreadable", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	return &fileStore{
		log:          log,
		runsFile:     rf,
		snapshotPath: snapPath,
		journalFile:  jf,
		failures:     failures,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.runsFile != nil {
		err1 = s.runsFile.Close()
		s.runsFile = nil
	}
	if s.journalFile != nil {
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) LoadFailures(ctx context.Context) (map[FailureKey]int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[FailureKey]int, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out, nil
}

func (s *fileStore) PutFailure(ctx context.Context, key FailureKey, count int) error {
	_ = ctx
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if count == 0 {
		if _, ok := s.failures[key]; !ok {
			return nil
		}
		delete(s.failures, key)
	} else {
		s.failures[key] = count
	}
	return s.appendLocked(failureRecord{Module: key.Module, Test: key.Test, Count: count})
}

func (s *fileStore) DeleteFailure(ctx context.Context, key FailureKey) error {
	return s.PutFailure(ctx, key, 0)
}

func (s *fileStore) ClearFailures(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	// The clear marker keeps replay correct if compaction is interrupted.
	if err := json.NewEncoder(s.journalFile).Encode(failureRecord{Clear: true}); err != nil {
		return err
	}
	clear(s.failures)
	return s.compactLocked()
}

func (s *fileStore) appendLocked(rec failureRecord) error {
	if s.journalFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("failure journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	recs := make([]failureRecord, 0, len(s.failures))
	for k, v := range s.failures {
		recs = append(recs, failureRecord{Module: k.Module, Test: k.Test, Count: v})
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadFailureSnapshot(path string, out map[FailureKey]int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var recs []failureRecord
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		return err
	}
	for _, r := range recs {
		if r.Count > 0 {
			out[FailureKey{Module: r.Module, Test: r.Test}] = r.Count
		}
	}
	return nil
}

func replayFailureJournal(path string, out map[FailureKey]int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r failureRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			continue
		}
		k := FailureKey{Module: r.Module, Test: r.Test}
		switch {
		case r.Clear:
			clear(out)
		case r.Count > 0:
			out[k] = r.Count
		default:
			delete(out, k)
		}
	}
	return s.Err()
}
