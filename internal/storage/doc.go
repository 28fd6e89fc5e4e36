// Package storage persists what one run leaves for the next.
//
// It currently supports:
//   - Failure memory: per-test failed assertion counts of the last run,
//     used to mark previous failures and run them first
//   - Run history appends (one record per finished run)
package storage
