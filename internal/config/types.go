package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Runner  RunnerConfig  `json:"runner"`

	// Optional sections. Nil means disabled.
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Metrics  *MetricsConfig  `json:"metrics,omitempty"`
	Schedule *ScheduleConfig `json:"schedule,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Sample  LoggingSample `json:"sample,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingSample rate-limits trace/debug lines (assertion and hook chatter
// gets loud on large suites).
type LoggingSample struct {
	Enabled    bool `json:"enabled"`
	RatePerSec int  `json:"rate_per_sec"`
}

// RunnerConfig controls which tests run and in what order.
//
// FailOnZeroTests and Reorder are pointers so we can distinguish "omitted"
// (default true) from an explicit false.
//
// Example:
//
//	"runner": { "filter": "!slow", "seed": "abc", "test_timeout": "5s" }
type RunnerConfig struct {
	// Filter is a case-insensitive substring ("!" negates) or a /regex/i
	// matched against "<module>: <test>".
	Filter string `json:"filter,omitempty"`
	// Module selects a module (and its descendants) by full name.
	Module    string   `json:"module,omitempty"`
	ModuleIDs []string `json:"module_ids,omitempty"`
	TestIDs   []string `json:"test_ids,omitempty"`

	// Seed enables seeded reordering of the queue.
	Seed string `json:"seed,omitempty"`
	// Reorder runs tests that failed last time first (requires storage).
	Reorder *bool `json:"reorder,omitempty"`

	FailOnZeroTests *bool `json:"fail_on_zero_tests,omitempty"`
	RequireExpects  bool  `json:"require_expects,omitempty"`
	NoTryCatch      bool  `json:"no_try_catch,omitempty"`

	// TestTimeout applies to suspended tests without their own timeout.
	// "0s" or empty disables it.
	TestTimeout Duration `json:"test_timeout,omitempty"`
}

// ReorderEnabled reports the effective reorder flag (default true).
func (c RunnerConfig) ReorderEnabled() bool { return boolOr(c.Reorder, true) }

// FailOnZeroTestsEnabled reports the effective zero-test guard (default true).
func (c RunnerConfig) FailOnZeroTestsEnabled() bool { return boolOr(c.FailOnZeroTests, true) }

// StorageConfig controls the failure memory used for reordering.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./pewunit_store" }
type StorageConfig struct {
	Driver      string   `json:"driver"`
	Path        string   `json:"path"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"` // sqlite only
}

// MetricsConfig controls the Prometheus text-format report written after
// every run.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // default: "./pewunit.prom"
}

// ScheduleConfig re-runs the suite periodically.
//
// Spec accepts a cron expression ("*/5 * * * *"), a descriptor ("@every 30s")
// or a bare interval ("30s").
type ScheduleConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec"`
	// MinInterval drops triggers that arrive sooner than this after the
	// previous run started.
	MinInterval Duration `json:"min_interval,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
}

// HTTPConfig controls the observability endpoint (/metrics, /healthz and
// optionally /debug/pprof/).
//
// Security:
//   - Prefer binding to localhost (default "127.0.0.1:9464").
//   - A non-loopback addr requires token or allow_insecure.
type HTTPConfig struct {
	Enabled       bool     `json:"enabled"`
	Addr          string   `json:"addr,omitempty"`
	Token         string   `json:"token,omitempty"`
	AllowInsecure bool     `json:"allow_insecure,omitempty"`
	Pprof         bool     `json:"pprof,omitempty"`
	ReadTimeout   Duration `json:"read_timeout,omitempty"`
	WriteTimeout  Duration `json:"write_timeout,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
