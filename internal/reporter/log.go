package reporter

import (
	"context"
	"strings"

	"pewunit/internal/eventbus"
	"pewunit/internal/runner"
	logx "pewunit/pkg/logx"
)

// LogReporter renders runner events as structured log lines.
type LogReporter struct {
	log logx.Logger
}

func NewLogReporter(log logx.Logger) *LogReporter {
	return &LogReporter{log: log}
}

// Consume handles events from ch until it is closed. Buffered events are
// drained even after ctx is done so the run summary is never lost.
func (l *LogReporter) Consume(ctx context.Context, ch <-chan eventbus.Event) error {
	_ = ctx
	for e := range ch {
		l.Handle(e)
	}
	return nil
}

func (l *LogReporter) Handle(e eventbus.Event) {
	switch d := e.Data.(type) {
	case runner.RunStartEvent:
		l.log.Info("run start",
			logx.String("run_id", d.RunID),
			logx.Int("tests", d.TotalTests),
			logx.Int("modules", len(d.Modules)),
		)
	case runner.ModuleStartEvent:
		l.log.Debug("module start", logx.String("module", d.Name), logx.String("module_id", d.ModuleID))
	case runner.ModuleDoneEvent:
		l.log.Debug("module done",
			logx.String("module", d.Name),
			logx.Int("failed", d.Failed),
			logx.Int("total", d.Total),
			logx.Duration("runtime", d.Runtime),
		)
	case runner.TestDoneEvent:
		fields := []logx.Field{
			logx.String("module", d.Module),
			logx.String("test", d.Name),
			logx.String("test_id", d.TestID),
			logx.String("status", d.Status),
			logx.Int("assertions", d.Total),
			logx.Duration("runtime", d.Runtime),
		}
		switch d.Status {
		case runner.StatusFailed, runner.StatusAborted:
			fields = append(fields, logx.String("failures", failureSummary(d.Assertions)))
			if d.Source != "" {
				fields = append(fields, logx.String("source", d.Source))
			}
			l.log.Warn("test "+d.Status, fields...)
		default:
			l.log.Info("test "+d.Status, fields...)
		}
	case runner.AssertionEvent:
		if d.Passed {
			l.log.Trace("assertion passed", logx.String("test", d.Test), logx.String("assertion", d.Message))
			return
		}
		fields := []logx.Field{
			logx.String("module", d.Module),
			logx.String("test", d.Test),
			logx.String("assertion", d.Message),
			logx.Bool("todo", d.Todo),
		}
		if d.Diff != "" {
			fields = append(fields, logx.String("diff", d.Diff))
		}
		if d.Stack != "" {
			fields = append(fields, logx.Stack(d.Stack))
		}
		l.log.Debug("assertion failed", fields...)
	case runner.ErrorEvent:
		l.log.Error("uncaught error", logx.String("reason", d.Message), logx.Stack(d.Stack))
	case runner.RunEndEvent:
		fields := []logx.Field{
			logx.String("run_id", d.RunID),
			logx.String("status", d.Status),
			logx.Int("passed", d.TestCounts.Passed),
			logx.Int("failed", d.TestCounts.Failed),
			logx.Int("skipped", d.TestCounts.Skipped),
			logx.Int("todo", d.TestCounts.Todo),
			logx.Int("aborted", d.TestCounts.Aborted),
			logx.Int("assertions", d.Total),
			logx.Int("failed_assertions", d.Failed),
			logx.Duration("runtime", d.Runtime),
		}
		if d.Status == runner.StatusFailed || d.Aborted {
			l.log.Warn("run end", fields...)
		} else {
			l.log.Info("run end", fields...)
		}
	}
}

func failureSummary(as []runner.AssertionResult) string {
	var msgs []string
	for _, a := range as {
		if !a.Result {
			msgs = append(msgs, firstLine(a.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
