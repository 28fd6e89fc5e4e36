package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// filterRegex mirrors the runner's "/pattern/i" filter syntax with optional
// leading "!" negation.
var filterRegex = regexp.MustCompile(`^(!?)/([\w\W]*)/(i?$)`)

// Validate rejects configs that would fail later at wiring time. Used both at
// startup and as the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDurationField("runner.test_timeout", cfg.Runner.TestTimeout); err != nil {
		return err
	}
	if m := filterRegex.FindStringSubmatch(strings.TrimSpace(cfg.Runner.Filter)); m != nil {
		if _, err := regexp.Compile(m[2]); err != nil {
			return fmt.Errorf("runner.filter: invalid regex %q: %w", m[2], err)
		}
	}

	if s := cfg.Storage; s != nil {
		switch d := strings.ToLower(strings.TrimSpace(s.Driver)); d {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=%s", d)
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	if s := cfg.Schedule; s != nil && s.Enabled {
		if strings.TrimSpace(s.Spec) == "" {
			return fmt.Errorf("schedule.spec is required when schedule.enabled=true")
		}
		if _, err := ParseDurationField("schedule.min_interval", s.MinInterval); err != nil {
			return err
		}
		if tz := strings.TrimSpace(s.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
			}
		}
	}
	if h := cfg.HTTP; h != nil && h.Enabled {
		if _, err := ParseDurationField("http.read_timeout", h.ReadTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("http.write_timeout", h.WriteTimeout); err != nil {
			return err
		}
		if addr := strings.TrimSpace(h.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("http.addr: invalid %q: %w", addr, err)
			}
		}
	}
	return nil
}
