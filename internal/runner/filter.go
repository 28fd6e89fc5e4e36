package runner

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var regexFilterSyntax = regexp.MustCompile(`^(!?)/([\w\W]*)/(i?$)`)

// selection decides test validity. It is evaluated once per test, at
// declaration time.
type selection struct {
	moduleIDs []string
	testIDs   []string
	module    string // lower-cased

	text   string // lower-cased substring filter
	re     *regexp.Regexp
	negate bool
}

func newSelection(cfg Config) (selection, error) {
	s := selection{
		moduleIDs: nonEmpty(cfg.ModuleIDs),
		testIDs:   nonEmpty(cfg.TestIDs),
		module:    strings.ToLower(strings.TrimSpace(cfg.Module)),
	}

	f := cfg.Filter
	if f == "" {
		return s, nil
	}
	if m := regexFilterSyntax.FindStringSubmatch(f); m != nil {
		expr := m[2]
		if m[3] == "i" {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return selection{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, f, err)
		}
		s.re = re
		s.negate = m[1] == "!"
		return s, nil
	}

	s.text = strings.ToLower(f)
	if strings.HasPrefix(s.text, "!") {
		s.negate = true
		s.text = s.text[1:]
	}
	return s, nil
}

func (s selection) valid(t *test) bool {
	if t.bypassFilter {
		return true
	}
	if len(s.moduleIDs) > 0 && !s.moduleIDMatch(t.module) {
		return false
	}
	if len(s.testIDs) > 0 && !slices.Contains(s.testIDs, t.id) {
		return false
	}
	if s.module != "" && !s.moduleNameMatch(t.module) {
		return false
	}
	if s.re == nil && s.text == "" && !s.negate {
		return true
	}

	full := t.module.name + ": " + t.name
	if s.re != nil {
		return s.re.MatchString(full) != s.negate
	}
	return strings.Contains(strings.ToLower(full), s.text) != s.negate
}

func (s selection) moduleIDMatch(m *module) bool {
	for ; m != nil; m = m.parent {
		if slices.Contains(s.moduleIDs, m.id) {
			return true
		}
	}
	return false
}

func (s selection) moduleNameMatch(m *module) bool {
	for ; m != nil; m = m.parent {
		if m.name != "" && strings.ToLower(m.name) == s.module {
			return true
		}
	}
	return false
}

// zeroTestsMessage explains an empty run, naming the most specific
// selector that matched nothing.
func zeroTestsMessage(cfg Config) string {
	switch {
	case cfg.Filter != "":
		return fmt.Sprintf("No tests matched the filter %q.", cfg.Filter)
	case strings.TrimSpace(cfg.Module) != "":
		return fmt.Sprintf("No tests matched the module %q.", cfg.Module)
	case len(nonEmpty(cfg.ModuleIDs)) > 0:
		return fmt.Sprintf("No tests matched the moduleId %q.", strings.Join(nonEmpty(cfg.ModuleIDs), ","))
	case len(nonEmpty(cfg.TestIDs)) > 0:
		return fmt.Sprintf("No tests matched the testId %q.", strings.Join(nonEmpty(cfg.TestIDs), ","))
	default:
		return "No tests were run."
	}
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
