package runner

import (
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strconv"
	"time"

	logx "pewunit/pkg/logx"
)

// Scope declares tests, hooks and nested modules inside one module.
// Declarations are only accepted before Run; later ones are logged and
// dropped.
type Scope struct {
	r *Runner
	m *module
}

type moduleKind int

const (
	modulePlain moduleKind = iota
	moduleOnly
	moduleSkip
	moduleTodo
)

type moduleOptions struct {
	env map[string]any
}

type ModuleOption func(*moduleOptions)

// WithEnv seeds the module environment. Nested modules inherit it.
func WithEnv(env map[string]any) ModuleOption {
	return func(o *moduleOptions) {
		if o.env == nil {
			o.env = map[string]any{}
		}
		maps.Copy(o.env, env)
	}
}

type testSpec struct {
	name         string
	body         TestFunc
	skip         bool
	todo         bool
	only         bool
	bypassFilter bool
	timeout      *time.Duration
	source       string
}

type TestOption func(*testSpec)

// WithTimeout sets the test's timeout up front, as Assert.Timeout would.
func WithTimeout(d time.Duration) TestOption {
	return func(s *testSpec) { s.timeout = &d }
}

// Root is the scope of tests declared outside any module.
func (r *Runner) Root() *Scope { return &Scope{r: r, m: r.root} }

func (r *Runner) Module(name string, fn func(s *Scope), opts ...ModuleOption) {
	r.Root().declareModule(name, modulePlain, fn, opts)
}

func (r *Runner) ModuleOnly(name string, fn func(s *Scope), opts ...ModuleOption) {
	r.Root().declareModule(name, moduleOnly, fn, opts)
}

func (r *Runner) ModuleSkip(name string, fn func(s *Scope), opts ...ModuleOption) {
	r.Root().declareModule(name, moduleSkip, fn, opts)
}

func (r *Runner) ModuleTodo(name string, fn func(s *Scope), opts ...ModuleOption) {
	r.Root().declareModule(name, moduleTodo, fn, opts)
}

func (r *Runner) Test(name string, fn TestFunc, opts ...TestOption) {
	r.Root().declareTest(testSpec{name: name, body: fn}, opts)
}

func (r *Runner) Only(name string, fn TestFunc, opts ...TestOption) {
	r.Root().declareTest(testSpec{name: name, body: fn, only: true}, opts)
}

func (r *Runner) Todo(name string, fn TestFunc, opts ...TestOption) {
	r.Root().declareTest(testSpec{name: name, body: fn, todo: true}, opts)
}

func (r *Runner) Skip(name string) {
	r.Root().declareTest(testSpec{name: name, skip: true}, nil)
}

func (r *Runner) Each(name string, data any, fn EachFunc, opts ...TestOption) {
	r.Root().Each(name, data, fn, opts...)
}

// Name is the module's full name ("" for the root scope).
func (s *Scope) Name() string { return s.m.name }

func (s *Scope) Module(name string, fn func(s *Scope), opts ...ModuleOption) {
	s.declareModule(name, modulePlain, fn, opts)
}

// ModuleOnly restricts the run to modules declared with ModuleOnly (and
// their nested modules).
func (s *Scope) ModuleOnly(name string, fn func(s *Scope), opts ...ModuleOption) {
	s.declareModule(name, moduleOnly, fn, opts)
}

// ModuleSkip marks every test of the module skipped.
func (s *Scope) ModuleSkip(name string, fn func(s *Scope), opts ...ModuleOption) {
	s.declareModule(name, moduleSkip, fn, opts)
}

// ModuleTodo marks every test of the module todo.
func (s *Scope) ModuleTodo(name string, fn func(s *Scope), opts ...ModuleOption) {
	s.declareModule(name, moduleTodo, fn, opts)
}

// Before runs once, ahead of the first test of the module.
func (s *Scope) Before(fn HookFunc) { s.addHook(HookBefore, fn) }

func (s *Scope) BeforeEach(fn HookFunc) { s.addHook(HookBeforeEach, fn) }

func (s *Scope) AfterEach(fn HookFunc) { s.addHook(HookAfterEach, fn) }

// After runs once, behind the last test of the module.
func (s *Scope) After(fn HookFunc) { s.addHook(HookAfter, fn) }

func (s *Scope) Test(name string, fn TestFunc, opts ...TestOption) {
	s.declareTest(testSpec{name: name, body: fn}, opts)
}

// Only restricts the run to tests declared with Only. The first call drops
// every test queued so far.
func (s *Scope) Only(name string, fn TestFunc, opts ...TestOption) {
	s.declareTest(testSpec{name: name, body: fn, only: true}, opts)
}

// Todo declares a test expected to have at least one failing assertion.
func (s *Scope) Todo(name string, fn TestFunc, opts ...TestOption) {
	s.declareTest(testSpec{name: name, body: fn, todo: true}, opts)
}

func (s *Scope) Skip(name string) {
	s.declareTest(testSpec{name: name, skip: true}, nil)
}

// Each declares one test per element of data, named "<name> [<key>]".
// data must be a slice, an array or a map; map keys are visited in the
// order of their fmt.Sprint rendering.
func (s *Scope) Each(name string, data any, fn EachFunc, opts ...TestOption) {
	s.declareEach(testSpec{name: name}, data, fn, opts)
}

func (s *Scope) OnlyEach(name string, data any, fn EachFunc, opts ...TestOption) {
	s.declareEach(testSpec{name: name, only: true}, data, fn, opts)
}

func (s *Scope) TodoEach(name string, data any, fn EachFunc, opts ...TestOption) {
	s.declareEach(testSpec{name: name, todo: true}, data, fn, opts)
}

func (s *Scope) SkipEach(name string, data any) {
	s.declareEach(testSpec{name: name, skip: true}, data, nil, nil)
}

// GlobalHooks registers beforeEach/afterEach hooks that wrap every test.
type GlobalHooks struct{ r *Runner }

func (r *Runner) Hooks() *GlobalHooks { return &GlobalHooks{r: r} }

func (g *GlobalHooks) BeforeEach(fn HookFunc) { g.r.addGlobalHook(HookBeforeEach, fn) }

func (g *GlobalHooks) AfterEach(fn HookFunc) { g.r.addGlobalHook(HookAfterEach, fn) }

func (r *Runner) addGlobalHook(phase HookPhase, fn HookFunc) {
	if fn == nil {
		panic(fmt.Errorf("runner: nil global %s hook", phase))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.declarableLocked("global hook", phase.String()) {
		return
	}
	r.globalHooks[phase] = append(r.globalHooks[phase], fn)
}

func (s *Scope) addHook(phase HookPhase, fn HookFunc) {
	if fn == nil {
		panic(fmt.Errorf("runner: nil %s hook in module %q", phase, s.m.name))
	}
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.declarableLocked("hook", phase.String()) {
		return
	}
	s.m.hooks[phase] = append(s.m.hooks[phase], fn)
}

func (r *Runner) declarableLocked(kind, name string) bool {
	if r.state == StateIdle {
		return true
	}
	r.log.Warn("declaration after run start ignored",
		logx.String("kind", kind),
		logx.String("name", name),
	)
	return false
}

func (s *Scope) declareModule(name string, kind moduleKind, fn func(*Scope), opts []ModuleOption) {
	var o moduleOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	r := s.r
	r.mu.Lock()
	if !r.declarableLocked("module", name) {
		r.mu.Unlock()
		return
	}

	switch kind {
	case moduleOnly:
		if !r.onlyModule {
			for _, m := range r.modules {
				m.ignored = true
			}
			for _, t := range r.queue.clear() {
				r.dropLocked(t)
			}
			r.onlyModule = true
		}
	case moduleSkip, moduleTodo:
		if r.onlyModule {
			r.mu.Unlock()
			return
		}
	}

	var parent *module
	if s.m != r.root {
		parent = s.m
	}
	full := name
	if parent != nil {
		full = parent.name + " > " + name
	}
	skip := kind == moduleSkip || (parent != nil && parent.skip)
	todo := kind == moduleTodo || (parent != nil && parent.todo)

	m := newModule(full, parent, skip, todo, o.env)
	if kind == modulePlain && r.onlyModule {
		m.ignored = !selectedAncestor(parent)
	}
	r.modules = append(r.modules, m)
	r.mu.Unlock()

	if fn != nil {
		fn(&Scope{r: r, m: m})
	}
}

func selectedAncestor(m *module) bool {
	for ; m != nil; m = m.parent {
		if !m.ignored {
			return true
		}
	}
	return false
}

func (s *Scope) declareTest(spec testSpec, opts []TestOption) {
	if !spec.skip && spec.body == nil {
		panic(fmt.Errorf("runner: test %q has no body", spec.name))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&spec)
		}
	}
	if spec.source == "" {
		spec.source = callerSource()
	}

	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.declarableLocked("test", spec.name) || s.m.ignored {
		return
	}
	if spec.only {
		if !r.onlyTest {
			for _, t := range r.queue.clear() {
				r.dropLocked(t)
			}
			r.onlyTest = true
		}
	} else if r.onlyTest {
		return
	}

	r.enqueueLocked(r.newTestLocked(s.m, spec))
}

func (s *Scope) declareEach(spec testSpec, data any, fn EachFunc, opts []TestOption) {
	if !spec.skip && fn == nil {
		panic(fmt.Errorf("runner: each %q has no body", spec.name))
	}
	source := callerSource()
	eachCase(data, func(key string, v any) {
		c := spec
		c.name = fmt.Sprintf("%s [%s]", spec.name, key)
		c.source = source
		if fn != nil {
			c.body = func(a *Assert) { fn(a, v) }
		}
		s.declareTest(c, opts)
	})
}

func eachCase(data any, fn func(key string, v any)) {
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			fn(strconv.Itoa(i), rv.Index(i).Interface())
		}
	case reflect.Map:
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
		}
		idx := make([]int, len(keys))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })
		for _, i := range idx {
			fn(names[i], rv.MapIndex(keys[i]).Interface())
		}
	default:
		panic(fmt.Errorf("runner: each expects a slice, array or map, got %T", data))
	}
}

// newTestLocked builds a test and records it on its module. Duplicate names
// within a module get a trailing space.
func (r *Runner) newTestLocked(m *module, spec testSpec) *test {
	name := spec.name
	for m.hasTest(name) {
		name += " "
	}
	t := &test{
		name:         name,
		id:           TestID(m.name, name),
		module:       m,
		body:         spec.body,
		source:       spec.source,
		skip:         spec.skip || m.skip,
		bypassFilter: spec.bypassFilter,
		pauses:       map[int]*pauseToken{},
		nextPauseID:  1,
	}
	t.todo = !t.skip && (spec.todo || m.todo)
	if spec.timeout != nil {
		t.timeout = *spec.timeout
		t.hasTimeout = true
	}
	if t.skip {
		t.body = func(*Assert) {}
		t.expected = 0
		t.hasExpected = true
	}
	t.assert = &Assert{r: r, t: t}

	m.tests = append(m.tests, TestRef{Name: t.name, TestID: t.id, Skip: t.skip})
	m.addDeclared()
	if r.state == StateIdle {
		r.declared++
	}
	return t
}

// enqueueLocked queues t if the selection keeps it, otherwise accounts it
// as ignored right away.
func (r *Runner) enqueueLocked(t *test) {
	if !r.sel.valid(t) {
		t.module.addIgnored()
		return
	}
	if r.failures != nil {
		t.previousFailure = r.failures(t.module.name, t.name) > 0
	}
	if !t.skip {
		t.runnableTest = true
		t.module.addPending(1)
	}
	r.queue.add(t, r.cfg.Reorder && t.previousFailure)
}
