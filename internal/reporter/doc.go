// Package reporter turns runner events into side effects: log lines,
// Prometheus text files and failure memory. Reporters only read event
// payloads; they never touch the runner.
package reporter
