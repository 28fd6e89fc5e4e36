// Package logx configures pewunit's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Trace/debug chatter from the scheduler sampled (rate limited)
package logx
