package runner

import (
	"fmt"
	"runtime"
	"strings"
)

const pkgPath = "pewunit/internal/runner."

// callerSource renders the first stack frame outside the runner's own API,
// which is where the user declared a test or made an assertion.
func callerSource() string {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !internalFrame(f.Function) {
			return fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line)
		}
		if !more {
			return ""
		}
	}
}

func internalFrame(fn string) bool {
	if strings.HasPrefix(fn, "runtime.") {
		return true
	}
	rest, ok := strings.CutPrefix(fn, pkgPath)
	if !ok {
		return false
	}
	return strings.HasPrefix(rest, "(*Assert).") ||
		strings.HasPrefix(rest, "(*Runner).") ||
		strings.HasPrefix(rest, "(*Scope).") ||
		strings.HasPrefix(rest, "(*GlobalHooks).") ||
		strings.HasPrefix(rest, "callerSource")
}
