package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionValid(t *testing.T) {
	t.Parallel()

	parent := newModule("Net", nil, false, false, nil)
	child := newModule("Net > HTTP", parent, false, false, nil)
	mk := func(m *module, name string) *test {
		return &test{name: name, module: m, id: TestID(m.name, name)}
	}

	cases := []struct {
		name string
		cfg  Config
		test *test
		want bool
	}{
		{"no filter", Config{}, mk(child, "get"), true},
		{"substring", Config{Filter: "http: g"}, mk(child, "get"), true},
		{"substring miss", Config{Filter: "post"}, mk(child, "get"), false},
		{"negated substring", Config{Filter: "!slow"}, mk(child, "slow get"), false},
		{"negated substring keeps", Config{Filter: "!slow"}, mk(child, "get"), true},
		{"regex", Config{Filter: `/^Net > HTTP: g/`}, mk(child, "get"), true},
		{"regex case", Config{Filter: `/^net/`}, mk(child, "get"), false},
		{"regex insensitive", Config{Filter: `/^net/i`}, mk(child, "get"), true},
		{"negated regex", Config{Filter: `!/get$/`}, mk(child, "get"), false},
		{"module exact", Config{Module: "net > http"}, mk(child, "get"), true},
		{"module ancestor", Config{Module: "NET"}, mk(child, "get"), true},
		{"module partial", Config{Module: "ne"}, mk(child, "get"), false},
		{"module id ancestor", Config{ModuleIDs: []string{parent.id}}, mk(child, "get"), true},
		{"module id miss", Config{ModuleIDs: []string{"deadbeef"}}, mk(child, "get"), false},
		{"test id", Config{TestIDs: []string{TestID("Net > HTTP", "get")}}, mk(child, "get"), true},
		{"test id miss", Config{TestIDs: []string{TestID("Net", "get")}}, mk(child, "get"), false},
		{"all must hold", Config{Module: "net", Filter: "post"}, mk(child, "get"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel, err := newSelection(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sel.valid(tc.test))
		})
	}
}

func TestSelectionBypass(t *testing.T) {
	t.Parallel()

	sel, err := newSelection(Config{Filter: "nothing"})
	require.NoError(t, err)
	root := newModule("", nil, false, false, nil)
	assert.True(t, sel.valid(&test{name: "global failure", module: root, bypassFilter: true}))
}

func TestSelectionInvalidRegex(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Filter: "/(/"})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestZeroTestsMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `No tests matched the filter "x".`, zeroTestsMessage(Config{Filter: "x"}))
	assert.Equal(t, `No tests matched the module "M".`, zeroTestsMessage(Config{Module: "M"}))
	assert.Equal(t, `No tests matched the moduleId "a,b".`, zeroTestsMessage(Config{ModuleIDs: []string{"a", "b"}}))
	assert.Equal(t, `No tests matched the testId "c".`, zeroTestsMessage(Config{TestIDs: []string{"c", ""}}))
	assert.Equal(t, "No tests were run.", zeroTestsMessage(Config{}))
}
