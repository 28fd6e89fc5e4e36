package app

import (
	"fmt"
	"strings"
	"time"

	"pewunit/internal/config"
	"pewunit/internal/observability/httpserver"
	"pewunit/internal/periodic"
	"pewunit/internal/runner"
	"pewunit/internal/storage"
	logx "pewunit/pkg/logx"
)

const defaultMetricsPath = "./pewunit.prom"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Sample: logx.SampleConfig{
			Enabled:    cfg.Logging.Sample.Enabled,
			RatePerSec: cfg.Logging.Sample.RatePerSec,
		},
	}
}

func mapRunnerConfig(cfg *config.Config) (runner.Config, error) {
	rc := cfg.Runner
	timeout, err := config.ParseDurationField("runner.test_timeout", rc.TestTimeout)
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Filter:          strings.TrimSpace(rc.Filter),
		Module:          strings.TrimSpace(rc.Module),
		ModuleIDs:       rc.ModuleIDs,
		TestIDs:         rc.TestIDs,
		Seed:            rc.Seed,
		Reorder:         rc.ReorderEnabled(),
		FailOnZeroTests: rc.FailOnZeroTestsEnabled(),
		RequireExpects:  rc.RequireExpects,
		NoTryCatch:      rc.NoTryCatch,
		TestTimeout:     timeout,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapScheduleConfig(cfg *config.Config) (periodic.Config, bool, error) {
	sc := cfg.Schedule
	if sc == nil || !sc.Enabled {
		return periodic.Config{}, false, nil
	}
	minInterval, err := config.ParseDurationField("schedule.min_interval", sc.MinInterval)
	if err != nil {
		return periodic.Config{}, false, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return periodic.Config{}, false, fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}
	return periodic.Config{Spec: sc.Spec, MinInterval: minInterval, Location: loc}, true, nil
}

// metricsPath returns "" when the metrics report is disabled.
func metricsPath(cfg *config.Config) string {
	mc := cfg.Metrics
	if mc == nil || !mc.Enabled {
		return ""
	}
	if p := strings.TrimSpace(mc.Path); p != "" {
		return p
	}
	return defaultMetricsPath
}

func mapHTTPConfig(cfg *config.Config) (httpserver.Config, error) {
	h := cfg.HTTP
	if h == nil || !h.Enabled {
		return httpserver.Config{}, nil
	}
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	// pprof profiles stream for up to 30s by default.
	write, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 40*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	return httpserver.Config{
		Enabled:       true,
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
	}, nil
}
