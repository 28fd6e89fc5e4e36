package runner

import (
	"maps"
	"time"
)

type HookPhase int

const (
	HookBefore HookPhase = iota
	HookBeforeEach
	HookAfterEach
	HookAfter

	hookPhaseCount
)

func (p HookPhase) String() string {
	switch p {
	case HookBefore:
		return "before"
	case HookBeforeEach:
		return "beforeEach"
	case HookAfterEach:
		return "afterEach"
	case HookAfter:
		return "after"
	default:
		return "unknown"
	}
}

// HookFunc runs around tests. It receives the Assert of the test it runs for.
type HookFunc func(a *Assert)

type moduleStats struct {
	all     int
	bad     int
	started time.Time
}

// module is one node of the declaration tree. Top-level modules have a nil
// parent; the unnamed root holds tests declared outside any module and is
// never a parent itself.
type module struct {
	name   string // full name, "parent > child"
	id     string
	parent *module

	children []*module
	hooks    [hookPhaseCount][]HookFunc
	tests    []TestRef
	env      map[string]any

	skip bool
	todo bool
	// ignored suppresses further declarations (shadowed by ModuleOnly).
	ignored bool

	// total counts every test declared in this subtree, testsRun and
	// testsIgnored count the finished ones. The module is complete when
	// testsRun+testsIgnored == total.
	total        int
	testsRun     int
	testsIgnored int

	// pending counts queued, non-skipped tests of the subtree that have not
	// finished. "after" hooks run when the current test is the last one.
	pending int

	stats   moduleStats
	started bool
	done    bool
}

func newModule(name string, parent *module, skip, todo bool, env map[string]any) *module {
	m := &module{
		name:   name,
		id:     ModuleID(name),
		parent: parent,
		skip:   skip,
		todo:   !skip && todo,
		env:    map[string]any{},
	}
	if parent != nil {
		maps.Copy(m.env, parent.env)
		parent.children = append(parent.children, m)
	}
	maps.Copy(m.env, env)
	return m
}

func (m *module) complete() bool {
	return m.testsRun+m.testsIgnored == m.total
}

// hasTest reports whether a test with this exact name is already declared.
func (m *module) hasTest(name string) bool {
	for _, t := range m.tests {
		if t.Name == name {
			return true
		}
	}
	return false
}

// The walkers below are O(depth) per call.

func (m *module) addDeclared() {
	for ; m != nil; m = m.parent {
		m.total++
	}
}

func (m *module) addRun() {
	for ; m != nil; m = m.parent {
		m.testsRun++
	}
}

func (m *module) addIgnored() {
	for ; m != nil; m = m.parent {
		m.testsIgnored++
	}
}

func (m *module) addPending(delta int) {
	for ; m != nil; m = m.parent {
		m.pending += delta
	}
}

func (m *module) addStats(all, bad int) {
	for ; m != nil; m = m.parent {
		m.stats.all += all
		m.stats.bad += bad
	}
}

// reported reports whether the module shows up in runStart. Modules
// shadowed by ModuleOnly are left out unless a descendant is selected.
func (m *module) reported() bool {
	if !m.ignored {
		return true
	}
	for _, c := range m.children {
		if c.reported() {
			return true
		}
	}
	return false
}

func (m *module) info() ModuleInfo {
	return ModuleInfo{Name: m.name, ModuleID: m.id, Tests: cloneRefs(m.tests)}
}
