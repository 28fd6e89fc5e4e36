package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pewunit/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.sample_enabled", newCfg.Logging.Sample.Enabled),
		)
	}

	// Runner (selection + ordering)
	o, n := oldCfg.Runner, newCfg.Runner
	if strings.TrimSpace(o.Filter) != strings.TrimSpace(n.Filter) ||
		strings.TrimSpace(o.Module) != strings.TrimSpace(n.Module) ||
		!sameStrings(o.ModuleIDs, n.ModuleIDs) ||
		!sameStrings(o.TestIDs, n.TestIDs) ||
		o.Seed != n.Seed ||
		o.ReorderEnabled() != n.ReorderEnabled() ||
		o.FailOnZeroTestsEnabled() != n.FailOnZeroTestsEnabled() ||
		o.RequireExpects != n.RequireExpects ||
		o.NoTryCatch != n.NoTryCatch ||
		strings.TrimSpace(string(o.TestTimeout)) != strings.TrimSpace(string(n.TestTimeout)) {
		changed = append(changed, "runner")
		attrs = append(attrs,
			logx.String("runner.filter", strings.TrimSpace(n.Filter)),
			logx.String("runner.module", strings.TrimSpace(n.Module)),
			logx.Int("runner.module_ids", len(n.ModuleIDs)),
			logx.Int("runner.test_ids", len(n.TestIDs)),
			logx.Bool("runner.seeded", n.Seed != ""),
			logx.Bool("runner.reorder", n.ReorderEnabled()),
			logx.String("runner.test_timeout", strings.TrimSpace(string(n.TestTimeout))),
		)
	}

	// Storage (persistence). Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if s := oldCfg.Storage; s != nil {
		oDriver = strings.TrimSpace(s.Driver)
		oBusy = strings.TrimSpace(string(s.BusyTimeout))
		oPathSet = strings.TrimSpace(s.Path) != ""
	}
	if s := newCfg.Storage; s != nil {
		nDriver = strings.TrimSpace(s.Driver)
		nBusy = strings.TrimSpace(string(s.BusyTimeout))
		nPathSet = strings.TrimSpace(s.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	if !reflect.DeepEqual(derefMetrics(oldCfg.Metrics), derefMetrics(newCfg.Metrics)) {
		m := derefMetrics(newCfg.Metrics)
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", m.Enabled),
			logx.String("metrics.path", strings.TrimSpace(m.Path)),
		)
	}

	if !reflect.DeepEqual(derefSchedule(oldCfg.Schedule), derefSchedule(newCfg.Schedule)) {
		sc := derefSchedule(newCfg.Schedule)
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", sc.Enabled),
			logx.String("schedule.spec", strings.TrimSpace(sc.Spec)),
			logx.String("schedule.timezone", strings.TrimSpace(sc.Timezone)),
		)
	}

	if !reflect.DeepEqual(derefHTTP(oldCfg.HTTP), derefHTTP(newCfg.HTTP)) {
		h := derefHTTP(newCfg.HTTP)
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", h.Enabled),
			logx.String("http.addr", strings.TrimSpace(h.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(h.Token) != ""),
			logx.Bool("http.pprof", h.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefMetrics(m *MetricsConfig) MetricsConfig {
	if m == nil {
		return MetricsConfig{}
	}
	return *m
}

func derefSchedule(s *ScheduleConfig) ScheduleConfig {
	if s == nil {
		return ScheduleConfig{}
	}
	return *s
}

func derefHTTP(h *HTTPConfig) HTTPConfig {
	if h == nil {
		return HTTPConfig{}
	}
	return *h
}

// sameStrings compares two lists as sets (order and surrounding spaces ignored).
func sameStrings(a, b []string) bool {
	norm := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		sort.Strings(out)
		return out
	}
	return reflect.DeepEqual(norm(a), norm(b))
}
