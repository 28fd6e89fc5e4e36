package periodic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

func (k SpecKind) String() string {
	if k == SpecCron {
		return "cron"
	}
	return "interval"
}

// ParsedSpec is a schedule.spec value resolved to either a cron expression
// or a fixed interval. Source records how it was written: "cron", "hhmm" or
// "duration".
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string
}

// hhmm is an interval written as hours:minutes, e.g. "02:30" or "100:00".
var hhmm = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// ParseSchedule accepts:
//
//	cron:<expr> | interval:<d> | every:<d>   explicit kind
//	"*/5 * * * *", "@hourly", "@every 1m"    cron (whitespace or leading @)
//	"02:30"                                  interval in HH:MM
//	"55m"                                    interval as a Go duration
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	if kind, rest, ok := cutKind(s); ok {
		rest = strings.TrimSpace(rest)
		if kind == SpecCron {
			if rest == "" {
				return ParsedSpec{}, fmt.Errorf("cron expression required after 'cron:'")
			}
			return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
		}
		return parseInterval(rest)
	}

	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	spec, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')", raw)
	}
	return spec, nil
}

// cutKind strips an explicit, case-insensitive kind prefix.
func cutKind(s string) (SpecKind, string, bool) {
	prefixes := []struct {
		p    string
		kind SpecKind
	}{
		{"cron:", SpecCron},
		{"interval:", SpecInterval},
		{"every:", SpecInterval},
	}
	low := strings.ToLower(s)
	for _, pr := range prefixes {
		if strings.HasPrefix(low, pr.p) {
			return pr.kind, s[len(pr.p):], true
		}
	}
	return 0, "", false
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}

	var (
		d   time.Duration
		src string
	)
	if m := hhmm.FindStringSubmatch(v); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		if mins > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d, src = time.Duration(h)*time.Hour+time.Duration(mins)*time.Minute, "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or a duration like '55m')", v)
		}
		src = "duration"
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}
